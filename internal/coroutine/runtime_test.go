package coroutine

import (
	"context"
	"testing"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{input: "", want: ModeST},
		{input: "st", want: ModeST},
		{input: " ON ", want: ModeST},
		{input: "dummy", want: ModeDummy},
		{input: "off", want: ModeDummy},
		{input: "threads", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseMode(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRuntimeDummyMode(t *testing.T) {
	rt := NewRuntime(ModeDummy)
	if rt.Enabled() {
		t.Fatal("expected dummy runtime to be disabled")
	}
	co := rt.New("session", HandlerFunc(func(context.Context) error { return nil }))
	if _, ok := co.(*DummyCoroutine); !ok {
		t.Fatalf("expected *DummyCoroutine, got %T", co)
	}
	if CodeOf(co.Start()) != CodeThreadDummy {
		t.Fatal("expected dummy start failure")
	}
}

func TestRuntimeAppliesDefaults(t *testing.T) {
	var events []Event
	rt := NewRuntime("",
		WithLogger(quietLogger()),
		WithScheduler(NewBoundedScheduler(0)),
		WithObserver(ObserverFunc(func(ev Event) { events = append(events, ev) })),
	)
	if rt.Mode() != ModeST {
		t.Fatalf("expected default mode st, got %q", rt.Mode())
	}

	co := rt.New("session", HandlerFunc(func(context.Context) error { return nil }), WithCID(12))
	if co.CID() != 12 {
		t.Fatalf("expected per-handle option to apply, got cid %d", co.CID())
	}
	if CodeOf(co.Start()) != CodeCreateCycleThread {
		t.Fatal("expected runtime scheduler to be used")
	}
	if len(events) != 1 || events[0].Kind != EventStartFailed {
		t.Fatalf("expected runtime observer to receive start failure, got %+v", events)
	}
}
