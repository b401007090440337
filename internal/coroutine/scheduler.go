package coroutine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Unit is one scheduled strand of execution.
type Unit interface {
	// Wait blocks until the unit's entry function has returned.
	Wait()
}

// Scheduler creates execution units. Spawn must either schedule entry and
// return its Unit, or fail without ever running entry.
type Scheduler interface {
	Spawn(ctx context.Context, entry func(context.Context)) (Unit, error)
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(ctx context.Context, entry func(context.Context)) (Unit, error)

// Spawn calls f(ctx, entry).
func (f SchedulerFunc) Spawn(ctx context.Context, entry func(context.Context)) (Unit, error) {
	return f(ctx, entry)
}

// ErrSchedulerFull is returned by a BoundedScheduler that has no free slot.
var ErrSchedulerFull = errors.New("scheduler capacity exhausted")

type goroutineUnit struct {
	done chan struct{}
}

func (u *goroutineUnit) Wait() {
	<-u.done
}

func spawnGoroutine(ctx context.Context, entry func(context.Context), release func()) *goroutineUnit {
	unit := &goroutineUnit{done: make(chan struct{})}
	go func() {
		defer close(unit.done)
		if release != nil {
			defer release()
		}
		entry(ctx)
	}()
	return unit
}

// GoroutineScheduler runs every unit on its own goroutine without limit.
type GoroutineScheduler struct{}

// Spawn starts entry on a new goroutine.
func (GoroutineScheduler) Spawn(ctx context.Context, entry func(context.Context)) (Unit, error) {
	if entry == nil {
		return nil, errors.New("entry function is required")
	}
	return spawnGoroutine(ctx, entry, nil), nil
}

// BoundedScheduler runs units on goroutines while holding one slot of a
// weighted semaphore per live unit. Spawn fails fast with ErrSchedulerFull
// instead of queueing when every slot is taken.
type BoundedScheduler struct {
	sem      *semaphore.Weighted
	capacity int64

	mu     sync.Mutex
	active int64
}

// NewBoundedScheduler limits the number of concurrently live units to
// capacity. A non-positive capacity yields a scheduler that refuses every
// spawn.
func NewBoundedScheduler(capacity int) *BoundedScheduler {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedScheduler{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Spawn acquires a slot and starts entry, releasing the slot when entry
// returns.
func (s *BoundedScheduler) Spawn(ctx context.Context, entry func(context.Context)) (Unit, error) {
	if entry == nil {
		return nil, errors.New("entry function is required")
	}
	if s.capacity == 0 || !s.sem.TryAcquire(1) {
		return nil, ErrSchedulerFull
	}
	s.adjust(1)
	return spawnGoroutine(ctx, entry, func() {
		s.adjust(-1)
		s.sem.Release(1)
	}), nil
}

// Active reports the number of units currently holding a slot.
func (s *BoundedScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.active)
}

// Capacity reports the configured slot count.
func (s *BoundedScheduler) Capacity() int {
	return int(s.capacity)
}

func (s *BoundedScheduler) adjust(delta int64) {
	s.mu.Lock()
	s.active += delta
	s.mu.Unlock()
}
