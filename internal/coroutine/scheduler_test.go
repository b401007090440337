package coroutine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoroutineSchedulerRunsEntry(t *testing.T) {
	ran := make(chan struct{})
	unit, err := GoroutineScheduler{}.Spawn(context.Background(), func(context.Context) {
		close(ran)
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	unit.Wait()
	select {
	case <-ran:
	default:
		t.Fatal("expected entry to have run before Wait returned")
	}
}

func TestGoroutineSchedulerRejectsNilEntry(t *testing.T) {
	if _, err := (GoroutineScheduler{}).Spawn(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil entry")
	}
}

func TestBoundedSchedulerCapacity(t *testing.T) {
	sched := NewBoundedScheduler(1)
	if sched.Capacity() != 1 {
		t.Fatalf("expected capacity 1, got %d", sched.Capacity())
	}

	release := make(chan struct{})
	first, err := sched.Spawn(context.Background(), func(context.Context) {
		<-release
	})
	if err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if active := sched.Active(); active != 1 {
		t.Fatalf("expected 1 active unit, got %d", active)
	}

	if _, err := sched.Spawn(context.Background(), func(context.Context) {}); !errors.Is(err, ErrSchedulerFull) {
		t.Fatalf("expected ErrSchedulerFull, got %v", err)
	}

	close(release)
	first.Wait()

	deadline := time.Now().Add(time.Second)
	for sched.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slot was not released")
		}
		time.Sleep(time.Millisecond)
	}

	second, err := sched.Spawn(context.Background(), func(context.Context) {})
	if err != nil {
		t.Fatalf("spawn after release: %v", err)
	}
	second.Wait()
}

func TestBoundedSchedulerZeroCapacity(t *testing.T) {
	if _, err := NewBoundedScheduler(0).Spawn(context.Background(), func(context.Context) {}); !errors.Is(err, ErrSchedulerFull) {
		t.Fatalf("expected ErrSchedulerFull, got %v", err)
	}
}

func TestBoundedSchedulerBacksCoroutines(t *testing.T) {
	sched := NewBoundedScheduler(1)

	block := HandlerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	first := NewSTCoroutine("first", block, WithScheduler(sched), WithLogger(quietLogger()))
	if err := first.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}

	second := NewSTCoroutine("second", block, WithScheduler(sched), WithLogger(quietLogger()))
	err := second.Start()
	if CodeOf(err) != CodeCreateCycleThread || !errors.Is(err, ErrSchedulerFull) {
		t.Fatalf("expected create-cycle failure caused by a full scheduler, got %v", err)
	}
	if CodeOf(second.Pull()) != CodeCreateCycleThread {
		t.Fatalf("expected pull to report create-cycle failure, got %v", second.Pull())
	}

	first.Stop()

	deadline := time.Now().Add(time.Second)
	for sched.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("slot was not released after stop")
		}
		time.Sleep(time.Millisecond)
	}

	third := NewSTCoroutine("third", block, WithScheduler(sched), WithLogger(quietLogger()))
	if err := third.Start(); err != nil {
		t.Fatalf("third start: %v", err)
	}
	third.Stop()
}
