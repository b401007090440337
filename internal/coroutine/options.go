package coroutine

import (
	"context"
	"log/slog"
)

// EventKind names a lifecycle transition reported to an Observer.
type EventKind string

const (
	EventStarted     EventKind = "start"
	EventStartFailed EventKind = "start_failed"
	EventTerminated  EventKind = "terminate"
	EventDisposed    EventKind = "dispose"
)

// Event describes one lifecycle transition of a handle. Code is the result
// code of Err, or CodeSuccess when Err is nil.
type Event struct {
	Kind  EventKind
	Label string
	CID   int
	Code  int
	Err   error
}

// Observer receives lifecycle events. Implementations are called from the
// goroutine performing the transition and must not block.
type Observer interface {
	ObserveCoroutine(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// ObserveCoroutine calls f(ev).
func (f ObserverFunc) ObserveCoroutine(ev Event) {
	f(ev)
}

type multiObserver []Observer

func (m multiObserver) ObserveCoroutine(ev Event) {
	for _, o := range m {
		o.ObserveCoroutine(ev)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type options struct {
	cid       int
	scheduler Scheduler
	logger    *slog.Logger
	observer  Observer
	parent    context.Context
}

// Option configures a handle at construction.
type Option func(*options)

// WithCID presets the correlation id. A preset id is never replaced by a
// generated one.
func WithCID(cid int) Option {
	return func(o *options) {
		o.cid = cid
	}
}

// WithScheduler replaces the scheduler used to create the execution unit.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithLogger sets the logger used for lifecycle diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver installs a lifecycle observer.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithParent derives the unit context from ctx, so values such as a stream id
// travel into the handler. Cancelling ctx interrupts the handler's context but
// does not dispose the handle.
func WithParent(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.parent = ctx
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		scheduler: GoroutineScheduler{},
		parent:    context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
