// Package coroutine drives the long-running units of work behind every
// session, publisher and player of the origin.
//
// An STCoroutine wraps a Handler and moves through a small, one-way state
// machine:
//
//	created -> started -> running -> terminated
//	      \________________________\-> disposed (Stop)
//
// Start asks a Scheduler for an execution unit and returns immediately. The
// Handler's Cycle runs on that unit and polls Pull (or watches its context) to
// learn when to return. Whatever Cycle returns is recorded once as the
// handle's terminal result; every later Pull reports that same value. Stop
// interrupts a running handler, waits for Cycle to return and disposes the
// handle so it can never be started again.
//
// Errors are *Error values carrying a numeric code. Lifecycle failures use
// the sentinels in this package (ErrTerminated, ErrDisposed, ErrStarted,
// ErrInterrupted, ErrCreateCycleThread, ErrDummy); errors returned by a
// Handler are recorded verbatim.
//
// The Scheduler is injected per handle or per Runtime, which is also how
// tests force unit creation to fail. A Runtime in ModeDummy hands out
// DummyCoroutine values so callers program against Coroutine regardless of
// whether cooperative execution is enabled.
package coroutine
