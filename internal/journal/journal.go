package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"bitriver-origin/internal/coroutine"
	"bitriver-origin/internal/observability/logging"
	"bitriver-origin/internal/observability/metrics"
)

const (
	defaultBuffer       = 256
	defaultFlushTimeout = 2 * time.Second
)

// Entry is one persisted lifecycle transition.
type Entry struct {
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	CID        int       `json:"cid"`
	Code       int       `json:"code"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Close(ctx context.Context) error
}

// Config configures a Journal.
type Config struct {
	Store        Store
	Buffer       int
	FlushTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
	Now          func() time.Time
}

// Journal buffers coroutine lifecycle events and writes them to a Store.
// It is an Observer on the producing side and a Handler on the consuming
// side: run it on its own coroutine and every handle that observes into it
// gets persisted without ever blocking on the store.
type Journal struct {
	store        Store
	events       chan Entry
	flushTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Recorder
	now          func() time.Time
	dropped      atomic.Uint64
}

// New validates cfg and returns a Journal.
func New(cfg Config) (*Journal, error) {
	if cfg.Store == nil {
		return nil, errors.New("journal store is required")
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = defaultFlushTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Journal{
		store:        cfg.Store,
		events:       make(chan Entry, buffer),
		flushTimeout: flush,
		logger:       logging.WithComponent(logger, "journal"),
		metrics:      cfg.Metrics,
		now:          now,
	}, nil
}

// ObserveCoroutine enqueues ev. When the buffer is full the event is dropped
// and counted rather than blocking the transitioning handle.
func (j *Journal) ObserveCoroutine(ev coroutine.Event) {
	entry := Entry{
		Kind:       string(ev.Kind),
		Label:      ev.Label,
		CID:        ev.CID,
		Code:       ev.Code,
		OccurredAt: j.now().UTC(),
	}
	if ev.Err != nil {
		entry.Message = ev.Err.Error()
	}
	select {
	case j.events <- entry:
	default:
		j.dropped.Add(1)
		if j.metrics != nil {
			j.metrics.ObserveJournalDrop()
		}
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Pending reports how many events are waiting to be written.
func (j *Journal) Pending() int {
	return len(j.events)
}

// Cycle writes buffered events until ctx is cancelled, then flushes what is
// still buffered within the flush timeout. Store failures are logged and
// counted; they never terminate the journal.
func (j *Journal) Cycle(ctx context.Context) error {
	logger := logging.WithContext(ctx, j.logger)
	logger.Debug("journal started")
	for {
		select {
		case <-ctx.Done():
			j.flush(ctx, logger)
			logger.Debug("journal stopped")
			return nil
		case entry := <-j.events:
			j.write(ctx, logger, entry)
		}
	}
}

func (j *Journal) flush(ctx context.Context, logger *slog.Logger) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.flushTimeout)
	defer cancel()
	for {
		select {
		case entry := <-j.events:
			j.write(flushCtx, logger, entry)
		default:
			return
		}
		if flushCtx.Err() != nil {
			logger.Warn("journal flush timed out", "pending", len(j.events))
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, logger *slog.Logger, entry Entry) {
	err := j.store.Append(ctx, entry)
	if j.metrics != nil {
		if err != nil {
			j.metrics.ObserveJournalWrite("error")
		} else {
			j.metrics.ObserveJournalWrite("ok")
		}
	}
	if err != nil {
		logger.Error("journal append failed", "kind", entry.Kind, "label", entry.Label, "entry_cid", entry.CID, "error", err)
	}
}
