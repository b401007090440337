package metrics

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bitriver-origin/internal/coroutine"
)

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "", want: "/"},
		{input: "/", want: "/"},
		{input: "/units/42", want: "/units/:id"},
		{input: "units/42/", want: "/units/:id"},
		{input: "/healthz", want: "/healthz"},
		{input: "/units/0123456789abcdef", want: "/units/:id"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			if got := normalizePath(tc.input); got != tc.want {
				t.Fatalf("normalizePath(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestActiveUnitsGaugeConcurrent(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	starts := 100
	stops := 150

	wg.Add(starts + stops)
	for i := 0; i < starts; i++ {
		go func() {
			defer wg.Done()
			recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventStarted})
		}()
	}
	for i := 0; i < stops; i++ {
		go func() {
			defer wg.Done()
			recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventTerminated})
		}()
	}
	wg.Wait()

	if active := recorder.ActiveUnits(); active != 0 {
		t.Fatalf("active units should not go negative; got %d", active)
	}
	events := recorder.UnitEvents()
	if events["start"] != uint64(starts) {
		t.Fatalf("unexpected start events: got %d want %d", events["start"], starts)
	}
	if events["terminate"] != uint64(stops) {
		t.Fatalf("unexpected terminate events: got %d want %d", events["terminate"], stops)
	}
}

func TestRecorderObservesRealCoroutine(t *testing.T) {
	recorder := New()
	sc := coroutine.NewSTCoroutine("metered", coroutine.HandlerFunc(func(ctx context.Context) error {
		return coroutine.NewError(-1, "cycle")
	}), coroutine.WithObserver(recorder))

	if err := sc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-sc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("unit did not finish")
	}
	sc.Stop()

	events := recorder.UnitEvents()
	for _, kind := range []string{"start", "terminate", "dispose"} {
		if events[kind] != 1 {
			t.Fatalf("expected one %s event, got %v", kind, events)
		}
	}
	if recorder.ActiveUnits() != 0 {
		t.Fatalf("expected no active units, got %d", recorder.ActiveUnits())
	}
}

func TestWriteAndHandlerOutput(t *testing.T) {
	recorder := New()

	recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventStarted})
	recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventStarted})
	recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventTerminated, Code: coroutine.CodeThreadInterrupted})
	recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventStartFailed, Code: coroutine.CodeCreateCycleThread})
	recorder.ObserveJournalWrite("ok")
	recorder.ObserveJournalWrite("ok")
	recorder.ObserveJournalWrite("error")
	recorder.ObserveJournalDrop()
	recorder.ObserveRequest("get", "/units/17", 200, 250*time.Millisecond)

	var buf bytes.Buffer
	recorder.Write(&buf)

	expected := `# HELP bitriver_coroutine_events_total Execution unit lifecycle events by type
# TYPE bitriver_coroutine_events_total counter
bitriver_coroutine_events_total{event="start"} 2
bitriver_coroutine_events_total{event="start_failed"} 1
bitriver_coroutine_events_total{event="terminate"} 1
# HELP bitriver_coroutine_terminations_total Execution unit terminations by result code
# TYPE bitriver_coroutine_terminations_total counter
bitriver_coroutine_terminations_total{code="1078"} 1
# HELP bitriver_coroutine_active Current number of running execution units
# TYPE bitriver_coroutine_active gauge
bitriver_coroutine_active 1
# HELP bitriver_journal_writes_total Lifecycle journal appends by outcome
# TYPE bitriver_journal_writes_total counter
bitriver_journal_writes_total{outcome="error"} 1
bitriver_journal_writes_total{outcome="ok"} 2
# HELP bitriver_journal_dropped_total Lifecycle events dropped because the journal buffer was full
# TYPE bitriver_journal_dropped_total counter
bitriver_journal_dropped_total 1
# HELP bitriver_admin_requests_total Total number of admin HTTP requests
# TYPE bitriver_admin_requests_total counter
bitriver_admin_requests_total{method="GET",path="/units/:id",status="200"} 1
# HELP bitriver_admin_request_duration_seconds_sum Cumulative duration of admin HTTP requests in seconds
# TYPE bitriver_admin_request_duration_seconds_sum counter
bitriver_admin_request_duration_seconds_sum{method="GET",path="/units/:id",status="200"} 0.250000`

	if diff := compareLines(buf.String(), expected); diff != "" {
		t.Fatalf("unexpected write output:\n%s", diff)
	}

	res := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))
	if contentType := res.Result().Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %s", contentType)
	}
	if diff := compareLines(res.Body.String(), expected); diff != "" {
		t.Fatalf("unexpected handler output:\n%s", diff)
	}
}

func TestResetClearsCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveCoroutine(coroutine.Event{Kind: coroutine.EventStarted})
	recorder.ObserveJournalDrop()
	recorder.Reset()

	if recorder.ActiveUnits() != 0 || len(recorder.UnitEvents()) != 0 {
		t.Fatal("expected reset to clear unit counters")
	}
	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), "bitriver_journal_dropped_total 0") {
		t.Fatalf("expected dropped counter to reset, got %q", buf.String())
	}
}

func compareLines(actual, expected string) string {
	actualLines := strings.Split(strings.TrimSpace(actual), "\n")
	expectedLines := strings.Split(strings.TrimSpace(expected), "\n")
	if len(actualLines) == len(expectedLines) {
		same := true
		for i := range actualLines {
			if actualLines[i] != expectedLines[i] {
				same = false
				break
			}
		}
		if same {
			return ""
		}
	}
	var b strings.Builder
	b.WriteString("expected\n")
	b.WriteString(strings.Join(expectedLines, "\n"))
	b.WriteString("\ngot\n")
	b.WriteString(strings.Join(actualLines, "\n"))
	return b.String()
}
