// Package config resolves the origin process settings from command line
// flags with BITRIVER_ORIGIN_* environment fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"bitriver-origin/internal/coroutine"
	"bitriver-origin/internal/journal"
	"bitriver-origin/internal/observability/logging"
)

const envPrefix = "BITRIVER_ORIGIN_"

// Config holds the resolved settings.
type Config struct {
	Mode            coroutine.Mode
	MaxUnits        int
	ReapInterval    time.Duration
	LogLevel        string
	LogFormat       string
	AdminAddr       string
	AdminTLSCert    string
	AdminTLSKey     string
	ShutdownTimeout time.Duration
	Journal         JournalConfig
}

// JournalConfig selects the lifecycle journal backend.
type JournalConfig struct {
	Driver           string
	Buffer           int
	MemoryLimit      int
	RedisAddr        string
	RedisAddrs       []string
	RedisUsername    string
	RedisPassword    string
	RedisMasterName  string
	RedisStream      string
	RedisMaxLen      int64
	RedisPoolSize    int
	PostgresDSN      string
	PostgresMaxConns int
	PostgresAppName  string
}

// Enabled reports whether a journal backend was selected.
func (j JournalConfig) Enabled() bool {
	return j.Driver != journal.DriverNone
}

// StoreConfig converts j into the journal package's store settings.
func (j JournalConfig) StoreConfig() journal.StoreConfig {
	return journal.StoreConfig{
		Driver:      j.Driver,
		MemoryLimit: j.MemoryLimit,
		Redis: journal.RedisConfig{
			Addr:       j.RedisAddr,
			Addrs:      j.RedisAddrs,
			Username:   j.RedisUsername,
			Password:   j.RedisPassword,
			MasterName: j.RedisMasterName,
			Stream:     j.RedisStream,
			MaxLen:     j.RedisMaxLen,
			PoolSize:   j.RedisPoolSize,
		},
		Postgres: journal.PostgresConfig{
			DSN:             j.PostgresDSN,
			MaxConns:        int32(j.PostgresMaxConns),
			ApplicationName: j.PostgresAppName,
			QueryTimeout:    5 * time.Second,
		},
	}
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Mode:            coroutine.ModeST,
		ReapInterval:    30 * time.Second,
		LogLevel:        "info",
		LogFormat:       string(logging.FormatJSON),
		AdminAddr:       ":9090",
		ShutdownTimeout: 10 * time.Second,
		Journal: JournalConfig{
			Driver:          journal.DriverNone,
			Buffer:          256,
			MemoryLimit:     1024,
			RedisStream:     "bitriver:coroutines",
			RedisMaxLen:     10000,
			PostgresAppName: "bitriver-origin",
		},
	}
}

// Load resolves settings in order of precedence: flags in args, then
// environment variables read through getenv, then defaults.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	cfg := Default()
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	mode := string(cfg.Mode)
	redisAddrs := strings.Join(cfg.Journal.RedisAddrs, ",")

	fs := flag.NewFlagSet("origin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&mode, "mode", mode, "coroutine mode (st or dummy)")
	fs.IntVar(&cfg.MaxUnits, "max-units", cfg.MaxUnits, "maximum concurrently running units, 0 for unbounded")
	fs.DurationVar(&cfg.ReapInterval, "reap-interval", cfg.ReapInterval, "interval between sweeps of finished units, 0 disables")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or text)")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin HTTP listen address, empty disables")
	fs.StringVar(&cfg.AdminTLSCert, "admin-tls-cert", cfg.AdminTLSCert, "path to admin TLS certificate file")
	fs.StringVar(&cfg.AdminTLSKey, "admin-tls-key", cfg.AdminTLSKey, "path to admin TLS private key file")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown bound")
	fs.StringVar(&cfg.Journal.Driver, "journal-driver", cfg.Journal.Driver, "lifecycle journal driver (none, memory, redis or postgres)")
	fs.IntVar(&cfg.Journal.Buffer, "journal-buffer", cfg.Journal.Buffer, "lifecycle events buffered before dropping")
	fs.IntVar(&cfg.Journal.MemoryLimit, "journal-memory-limit", cfg.Journal.MemoryLimit, "entries retained by the memory journal")
	fs.StringVar(&cfg.Journal.RedisAddr, "journal-redis-addr", cfg.Journal.RedisAddr, "Redis address for the journal")
	fs.StringVar(&redisAddrs, "journal-redis-addrs", redisAddrs, "comma separated Redis addresses for the journal")
	fs.StringVar(&cfg.Journal.RedisUsername, "journal-redis-username", cfg.Journal.RedisUsername, "Redis username for the journal")
	fs.StringVar(&cfg.Journal.RedisPassword, "journal-redis-password", cfg.Journal.RedisPassword, "Redis password for the journal")
	fs.StringVar(&cfg.Journal.RedisMasterName, "journal-redis-sentinel-master", cfg.Journal.RedisMasterName, "Redis sentinel master name for the journal")
	fs.StringVar(&cfg.Journal.RedisStream, "journal-redis-stream", cfg.Journal.RedisStream, "Redis stream key for lifecycle events")
	fs.Int64Var(&cfg.Journal.RedisMaxLen, "journal-redis-maxlen", cfg.Journal.RedisMaxLen, "approximate cap on the lifecycle stream, 0 for uncapped")
	fs.IntVar(&cfg.Journal.RedisPoolSize, "journal-redis-pool-size", cfg.Journal.RedisPoolSize, "maximum Redis connections for the journal")
	fs.StringVar(&cfg.Journal.PostgresDSN, "journal-postgres-dsn", cfg.Journal.PostgresDSN, "Postgres connection string for the journal")
	fs.IntVar(&cfg.Journal.PostgresMaxConns, "journal-postgres-max-conns", cfg.Journal.PostgresMaxConns, "maximum connections in the journal Postgres pool")
	fs.StringVar(&cfg.Journal.PostgresAppName, "journal-postgres-app-name", cfg.Journal.PostgresAppName, "application_name reported to Postgres")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	parsedMode, err := coroutine.ParseMode(mode)
	if err != nil {
		return Config{}, err
	}
	cfg.Mode = parsedMode
	cfg.Journal.RedisAddrs = splitList(redisAddrs)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = journal.DriverNone
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.MaxUnits < 0 {
		return errors.New("max units must not be negative")
	}
	if c.ReapInterval < 0 {
		return errors.New("reap interval must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if (c.AdminTLSCert == "") != (c.AdminTLSKey == "") {
		return errors.New("both admin TLS cert file and key file must be provided")
	}
	j := c.Journal
	if j.Buffer <= 0 {
		return errors.New("journal buffer must be positive")
	}
	if j.RedisMaxLen < 0 {
		return errors.New("journal redis maxlen must not be negative")
	}
	switch j.Driver {
	case journal.DriverNone, journal.DriverMemory:
	case journal.DriverRedis:
		if strings.TrimSpace(j.RedisAddr) == "" && len(j.RedisAddrs) == 0 {
			return errors.New("redis journal selected without address")
		}
	case journal.DriverPostgres:
		if strings.TrimSpace(j.PostgresDSN) == "" {
			return errors.New("postgres journal selected without DSN")
		}
	default:
		return fmt.Errorf("unsupported journal driver %q", j.Driver)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	lookup := func(name string) string {
		return strings.TrimSpace(getenv(envPrefix + name))
	}
	setString := func(dst *string, name string) {
		if v := lookup(name); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, name string) error {
		v := lookup(name)
		if v == "" {
			return nil
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}
	setDuration := func(dst *time.Duration, name string) error {
		v := lookup(name)
		if v == "" {
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
		}
		*dst = parsed
		return nil
	}

	if v := lookup("MODE"); v != "" {
		mode, err := coroutine.ParseMode(v)
		if err != nil {
			return fmt.Errorf("parse %sMODE: %w", envPrefix, err)
		}
		cfg.Mode = mode
	}
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.AdminAddr, "ADMIN_ADDR")
	setString(&cfg.AdminTLSCert, "ADMIN_TLS_CERT")
	setString(&cfg.AdminTLSKey, "ADMIN_TLS_KEY")
	setString(&cfg.Journal.Driver, "JOURNAL_DRIVER")
	setString(&cfg.Journal.RedisAddr, "JOURNAL_REDIS_ADDR")
	setString(&cfg.Journal.RedisUsername, "JOURNAL_REDIS_USERNAME")
	setString(&cfg.Journal.RedisPassword, "JOURNAL_REDIS_PASSWORD")
	setString(&cfg.Journal.RedisMasterName, "JOURNAL_REDIS_SENTINEL_MASTER")
	setString(&cfg.Journal.RedisStream, "JOURNAL_REDIS_STREAM")
	setString(&cfg.Journal.PostgresDSN, "JOURNAL_POSTGRES_DSN")
	setString(&cfg.Journal.PostgresAppName, "JOURNAL_POSTGRES_APP_NAME")
	if v := lookup("JOURNAL_REDIS_ADDRS"); v != "" {
		cfg.Journal.RedisAddrs = splitList(v)
	}
	if v := lookup("JOURNAL_REDIS_MAXLEN"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse %sJOURNAL_REDIS_MAXLEN: %w", envPrefix, err)
		}
		cfg.Journal.RedisMaxLen = parsed
	}

	for _, setter := range []func() error{
		func() error { return setInt(&cfg.MaxUnits, "MAX_UNITS") },
		func() error { return setInt(&cfg.Journal.Buffer, "JOURNAL_BUFFER") },
		func() error { return setInt(&cfg.Journal.MemoryLimit, "JOURNAL_MEMORY_LIMIT") },
		func() error { return setInt(&cfg.Journal.RedisPoolSize, "JOURNAL_REDIS_POOL_SIZE") },
		func() error { return setInt(&cfg.Journal.PostgresMaxConns, "JOURNAL_POSTGRES_MAX_CONNS") },
		func() error { return setDuration(&cfg.ReapInterval, "REAP_INTERVAL") },
		func() error { return setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT") },
	} {
		if err := setter(); err != nil {
			return err
		}
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
