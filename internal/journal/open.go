package journal

import (
	"context"
	"fmt"
	"strings"
)

// Store drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// StoreConfig selects and configures a Store.
type StoreConfig struct {
	Driver      string
	MemoryLimit int
	Redis       RedisConfig
	Postgres    PostgresConfig
}

// Open builds the Store named by cfg.Driver. DriverNone yields a nil Store
// and no error; callers skip the journal in that case.
func Open(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverMemory:
		return NewMemoryStore(cfg.MemoryLimit), nil
	case DriverRedis:
		store, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis journal: %w", err)
		}
		return store, nil
	case DriverPostgres:
		store, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
}
