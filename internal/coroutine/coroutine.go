package coroutine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"bitriver-origin/internal/execctx"
)

// Handler is the unit of work driven by a handle. Cycle runs once per started
// handle and is expected to loop until its work is done or until the owning
// handle's Pull reports an error (equivalently, until ctx is cancelled). The
// returned value becomes the handle's terminal result unless one was already
// recorded.
type Handler interface {
	Cycle(ctx context.Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context) error

// Cycle calls f(ctx).
func (f HandlerFunc) Cycle(ctx context.Context) error {
	return f(ctx)
}

// Coroutine is the capability shared by running and dummy handles.
type Coroutine interface {
	Start() error
	Stop()
	Pull() error
	Interrupt()
	CID() int
}

// result is a write-once cell. A stored nil is a recorded success and is
// distinct from "not yet recorded".
type result struct {
	v atomic.Pointer[outcome]
}

type outcome struct {
	err error
}

func (r *result) set(err error) bool {
	return r.v.CompareAndSwap(nil, &outcome{err: err})
}

func (r *result) get() (error, bool) {
	o := r.v.Load()
	if o == nil {
		return nil, false
	}
	return o.err, true
}

// STCoroutine drives a Handler on an execution unit obtained from a
// Scheduler. started, disposed, the cid and the terminal result are each
// written at most once, so Pull and CID never lock.
type STCoroutine struct {
	label     string
	handler   Handler
	scheduler Scheduler
	logger    *slog.Logger
	observer  Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	unit Unit

	started     atomic.Bool
	disposed    atomic.Bool
	interrupted atomic.Bool
	cid         atomic.Int64
	result      result

	interruptErr error
	done         chan struct{}
	doneOnce     sync.Once
}

// NewSTCoroutine returns an unstarted handle for handler. It panics if
// handler is nil.
func NewSTCoroutine(label string, handler Handler, opts ...Option) *STCoroutine {
	if handler == nil {
		panic("coroutine: nil handler")
	}
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(o.parent)
	c := &STCoroutine{
		label:        label,
		handler:      handler,
		scheduler:    o.scheduler,
		logger:       o.logger.With("component", "coroutine", "label", label),
		observer:     o.observer,
		ctx:          ctx,
		cancel:       cancel,
		interruptErr: labelled(ErrInterrupted, label, nil),
		done:         make(chan struct{}),
	}
	c.cid.Store(int64(o.cid))
	return c
}

// Label returns the diagnostic label.
func (c *STCoroutine) Label() string {
	return c.label
}

// CID returns the preset id, 0 before the unit first runs, or the id assigned
// when it did.
func (c *STCoroutine) CID() int {
	return int(c.cid.Load())
}

// Done is closed once the handle can no longer run: the unit returned, the
// unit could not be created, or the handle was stopped before starting.
func (c *STCoroutine) Done() <-chan struct{} {
	return c.done
}

// Start schedules the handler. It returns once the unit is scheduled, without
// waiting for the handler to run.
func (c *STCoroutine) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed.Load() {
		return labelled(ErrDisposed, c.label, nil)
	}
	if c.started.Load() {
		err := labelled(ErrStarted, c.label, nil)
		c.result.set(err)
		return err
	}
	c.started.Store(true)

	unitCtx := execctx.WithUnit(c.ctx)
	if cid := c.CID(); cid != 0 {
		execctx.SetCurrentID(unitCtx, cid)
	}

	unit, err := c.scheduler.Spawn(unitCtx, c.run)
	if err == nil && unit == nil {
		err = fmt.Errorf("scheduler returned no unit")
	}
	if err != nil {
		startErr := labelled(ErrCreateCycleThread, c.label, err)
		c.result.set(startErr)
		c.closeDone()
		c.logger.Warn("coroutine start failed", "cid", c.CID(), "error", err)
		c.emit(EventStartFailed, startErr)
		return startErr
	}
	c.unit = unit
	return nil
}

// Pull reports the terminal result once recorded. Before that it reports an
// interrupted error if Interrupt was requested, and nil otherwise.
func (c *STCoroutine) Pull() error {
	if err, ok := c.result.get(); ok {
		return err
	}
	if c.interrupted.Load() {
		return c.interruptErr
	}
	return nil
}

// Interrupt requests cooperative cancellation of a started handle. It cancels
// the handler's context and makes subsequent Pull calls report an interrupted
// error until the handler returns.
func (c *STCoroutine) Interrupt() {
	if !c.started.Load() {
		return
	}
	if c.interrupted.Swap(true) {
		return
	}
	c.cancel()
}

// Stop disposes the handle. A running handler is interrupted and Stop blocks
// until it returns. Stop must not be called from the handle's own Cycle.
func (c *STCoroutine) Stop() {
	c.mu.Lock()
	first := !c.disposed.Swap(true)
	started := c.started.Load()
	unit := c.unit
	c.mu.Unlock()

	if !started {
		c.result.set(labelled(ErrTerminated, c.label, nil))
		c.cancel()
		c.closeDone()
		if first {
			c.emit(EventDisposed, c.Pull())
		}
		return
	}

	c.Interrupt()
	if unit != nil {
		unit.Wait()
	}
	c.cancel()
	if first {
		c.emit(EventDisposed, c.Pull())
	}
}

func (c *STCoroutine) run(ctx context.Context) {
	defer c.closeDone()

	c.cid.CompareAndSwap(0, int64(execctx.GenerateID()))
	cid := c.CID()
	execctx.SetCurrentID(ctx, cid)
	c.emit(EventStarted, nil)

	err := c.cycle(ctx)
	if !c.result.set(err) && err != nil {
		c.logger.Debug("coroutine result discarded", "cid", cid, "error", err)
	}

	if err != nil {
		c.logger.Info("coroutine terminated", "cid", cid, "code", CodeOf(err), "error", err)
	} else {
		c.logger.Debug("coroutine finished", "cid", cid)
	}
	c.emit(EventTerminated, err)
}

func (c *STCoroutine) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = labelled(ErrCyclePanic, c.label, fmt.Errorf("%v", r))
		}
	}()
	return c.handler.Cycle(ctx)
}

func (c *STCoroutine) closeDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

func (c *STCoroutine) emit(kind EventKind, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCoroutine(Event{
		Kind:  kind,
		Label: c.label,
		CID:   c.CID(),
		Code:  CodeOf(err),
		Err:   err,
	})
}
