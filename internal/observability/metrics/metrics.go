package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bitriver-origin/internal/coroutine"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for execution units,
// the lifecycle journal, and the admin HTTP surface. Counters are guarded by a
// RWMutex; the active unit gauge is atomic so it can be read without locking.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	unitEvents      map[string]uint64
	terminations    map[int]uint64
	journalWrites   map[string]uint64
	activeUnits     atomic.Int64
	journalDropped  atomic.Uint64
}

var (
	defaultMu       sync.RWMutex
	defaultRecorder = New()
)

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		unitEvents:      make(map[string]uint64),
		terminations:    make(map[int]uint64),
		journalWrites:   make(map[string]uint64),
	}
}

// Default returns the process-wide Recorder.
func Default() *Recorder {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. Nil is ignored.
func SetDefault(r *Recorder) {
	if r == nil {
		return
	}
	defaultMu.Lock()
	defaultRecorder = r
	defaultMu.Unlock()
}

// ObserveCoroutine implements coroutine.Observer. Start and terminate events
// move the active unit gauge; terminations are additionally counted by result
// code.
func (r *Recorder) ObserveCoroutine(ev coroutine.Event) {
	r.incrementUnitEvent(string(ev.Kind))
	switch ev.Kind {
	case coroutine.EventStarted:
		r.activeUnits.Add(1)
	case coroutine.EventTerminated:
		r.decrementGauge(&r.activeUnits)
		r.mu.Lock()
		r.terminations[ev.Code]++
		r.mu.Unlock()
	}
}

func (r *Recorder) incrementUnitEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.unitEvents[normalized]++
	r.mu.Unlock()
}

// ActiveUnits exposes the current number of running execution units.
func (r *Recorder) ActiveUnits() int64 {
	return r.activeUnits.Load()
}

// UnitEvents returns a copy of the lifecycle event counters.
func (r *Recorder) UnitEvents() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.unitEvents))
	for k, v := range r.unitEvents {
		out[k] = v
	}
	return out
}

// ObserveJournalWrite counts a journal store append by outcome ("ok" or
// "error").
func (r *Recorder) ObserveJournalWrite(outcome string) {
	normalized := normalizeName(outcome)
	r.mu.Lock()
	r.journalWrites[normalized]++
	r.mu.Unlock()
}

// ObserveJournalDrop counts a lifecycle event discarded because the journal
// buffer was full.
func (r *Recorder) ObserveJournalDrop() {
	r.journalDropped.Add(1)
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: strconv.Itoa(status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// Reset clears all counters and gauges. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.unitEvents = make(map[string]uint64)
	r.terminations = make(map[int]uint64)
	r.journalWrites = make(map[string]uint64)
	r.activeUnits.Store(0)
	r.journalDropped.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format with label
// sets sorted for stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fmt.Fprintln(w, "# HELP bitriver_coroutine_events_total Execution unit lifecycle events by type")
	fmt.Fprintln(w, "# TYPE bitriver_coroutine_events_total counter")
	for _, event := range sortedKeys(r.unitEvents) {
		fmt.Fprintf(w, "bitriver_coroutine_events_total{event=\"%s\"} %d\n", event, r.unitEvents[event])
	}

	fmt.Fprintln(w, "# HELP bitriver_coroutine_terminations_total Execution unit terminations by result code")
	fmt.Fprintln(w, "# TYPE bitriver_coroutine_terminations_total counter")
	codes := make([]int, 0, len(r.terminations))
	for code := range r.terminations {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "bitriver_coroutine_terminations_total{code=\"%d\"} %d\n", code, r.terminations[code])
	}

	fmt.Fprintln(w, "# HELP bitriver_coroutine_active Current number of running execution units")
	fmt.Fprintln(w, "# TYPE bitriver_coroutine_active gauge")
	fmt.Fprintf(w, "bitriver_coroutine_active %d\n", r.activeUnits.Load())

	fmt.Fprintln(w, "# HELP bitriver_journal_writes_total Lifecycle journal appends by outcome")
	fmt.Fprintln(w, "# TYPE bitriver_journal_writes_total counter")
	for _, outcome := range sortedKeys(r.journalWrites) {
		fmt.Fprintf(w, "bitriver_journal_writes_total{outcome=\"%s\"} %d\n", outcome, r.journalWrites[outcome])
	}

	fmt.Fprintln(w, "# HELP bitriver_journal_dropped_total Lifecycle events dropped because the journal buffer was full")
	fmt.Fprintln(w, "# TYPE bitriver_journal_dropped_total counter")
	fmt.Fprintf(w, "bitriver_journal_dropped_total %d\n", r.journalDropped.Load())

	requestLabels := r.sortedRequestLabels()

	fmt.Fprintln(w, "# HELP bitriver_admin_requests_total Total number of admin HTTP requests")
	fmt.Fprintln(w, "# TYPE bitriver_admin_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "bitriver_admin_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP bitriver_admin_request_duration_seconds_sum Cumulative duration of admin HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE bitriver_admin_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "bitriver_admin_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizePath collapses numeric segments so per-unit routes such as
// /units/1234 share one label.
func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part != "" && looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if _, err := strconv.Atoi(segment); err == nil {
		return true
	}
	return len(segment) >= 16
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return Default().Handler()
}
