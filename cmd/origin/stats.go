package main

import (
	"context"
	"time"

	"bitriver-origin/internal/journal"
	"bitriver-origin/internal/observability/logging"
	"bitriver-origin/internal/observability/metrics"
	"bitriver-origin/internal/supervisor"
)

const defaultStatsInterval = time.Minute

// statsReporter is a supervised unit that periodically logs runtime gauges.
type statsReporter struct {
	interval   time.Duration
	supervisor *supervisor.Supervisor
	recorder   *metrics.Recorder
	journal    *journal.Journal
}

func newStatsReporter(interval time.Duration, sup *supervisor.Supervisor, recorder *metrics.Recorder, j *journal.Journal) *statsReporter {
	if interval <= 0 {
		interval = defaultStatsInterval
	}
	return &statsReporter{interval: interval, supervisor: sup, recorder: recorder, journal: j}
}

func (s *statsReporter) Cycle(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			attrs := []any{
				"units", s.supervisor.Len(),
				"active", s.recorder.ActiveUnits(),
			}
			if s.journal != nil {
				attrs = append(attrs, "journal_pending", s.journal.Pending(), "journal_dropped", s.journal.Dropped())
			}
			logger.Info("runtime stats", attrs...)
		}
	}
}
