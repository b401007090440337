package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS coroutine_events (
    id BIGSERIAL PRIMARY KEY,
    kind TEXT NOT NULL,
    label TEXT NOT NULL,
    cid BIGINT NOT NULL,
    code INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS coroutine_events_cid_idx ON coroutine_events (cid, occurred_at)`,
}

// PostgresConfig configures the Postgres backed store.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	ApplicationName string
	QueryTimeout    time.Duration
}

// PostgresStore persists entries to the coroutine_events table.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore opens a pool for cfg.DSN and creates the events table
// when it does not exist.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres journal dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres journal config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if name := strings.TrimSpace(cfg.ApplicationName); name != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres journal pool: %w", err)
	}
	store := &PostgresStore{pool: pool, timeout: cfg.QueryTimeout}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the events table and index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create coroutine_events schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO coroutine_events (kind, label, cid, code, message, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, entry.Kind, entry.Label, int64(entry.CID), entry.Code, entry.Message, entry.OccurredAt.UTC())
	return err
}

// ListByCID returns the entries recorded for cid, oldest first.
func (s *PostgresStore) ListByCID(ctx context.Context, cid int) ([]Entry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT kind, label, cid, code, message, occurred_at
FROM coroutine_events
WHERE cid = $1
ORDER BY occurred_at, id
`, int64(cid))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			entry Entry
			id    int64
		)
		if err := row.Scan(&entry.Kind, &entry.Label, &id, &entry.Code, &entry.Message, &entry.OccurredAt); err != nil {
			return Entry{}, err
		}
		entry.CID = int(id)
		return entry, nil
	})
}

// Close releases the pool, giving up when ctx ends first.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
