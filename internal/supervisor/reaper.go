package supervisor

import (
	"context"
	"sync"
	"time"
)

type reapTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) reapTicker

// StartReaper calls Reap every interval until ctx ends or the returned stop
// function is called. A non-positive interval disables the reaper.
func (s *Supervisor) StartReaper(ctx context.Context, interval time.Duration) func() {
	return s.startReaperWithTicker(ctx, interval, func(d time.Duration) reapTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func (s *Supervisor) startReaperWithTicker(ctx context.Context, interval time.Duration, newTicker tickerFactory) func() {
	if interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if reaped := s.Reap(); len(reaped) > 0 {
					s.logger.Debug("reaped finished units", "count", len(reaped))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
