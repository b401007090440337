// Command origin runs the execution unit runtime of a BitRiver origin node:
// the supervisor, the lifecycle journal and the admin HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitriver-origin/internal/admin"
	"bitriver-origin/internal/config"
	"bitriver-origin/internal/coroutine"
	"bitriver-origin/internal/journal"
	"bitriver-origin/internal/observability/logging"
	"bitriver-origin/internal/observability/metrics"
	"bitriver-origin/internal/serverutil"
	"bitriver-origin/internal/supervisor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "origin:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	cfg, err := config.Load(args, getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: stdout})

	a, err := newApp(ctx, cfg, logger, metrics.Default())
	if err != nil {
		return err
	}
	if err := a.start(); err != nil {
		_ = a.shutdown()
		return err
	}
	logger.Info("origin started", "mode", string(cfg.Mode), "max_units", cfg.MaxUnits, "journal", cfg.Journal.Driver, "admin_addr", cfg.AdminAddr)

	waitErr := a.wait(ctx)
	if waitErr == nil {
		logger.Info("received shutdown signal")
	}
	if err := a.shutdown(); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		if waitErr == nil {
			waitErr = err
		}
	}
	return waitErr
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder

	store      journal.Store
	journal    *journal.Journal
	journalCo  *coroutine.STCoroutine
	runtime    *coroutine.Runtime
	supervisor *supervisor.Supervisor
	stopReaper func()
	admin      *serverutil.Handler
	adminCo    *coroutine.STCoroutine
	adminReady chan struct{}
}

// newApp builds every component without starting any unit. Infrastructure
// handles (journal, admin server) always run on plain goroutines; the
// configured mode and unit cap govern supervised workload only.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*app, error) {
	a := &app{cfg: cfg, logger: logger, recorder: recorder, stopReaper: func() {}}

	observers := []coroutine.Observer{recorder}
	if cfg.Journal.Enabled() {
		store, err := journal.Open(ctx, cfg.Journal.StoreConfig())
		if err != nil {
			return nil, err
		}
		j, err := journal.New(journal.Config{
			Store:   store,
			Buffer:  cfg.Journal.Buffer,
			Logger:  logger,
			Metrics: recorder,
		})
		if err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		a.store = store
		a.journal = j
		a.journalCo = coroutine.NewSTCoroutine("journal", j,
			coroutine.WithLogger(logger),
			coroutine.WithObserver(recorder))
		observers = append(observers, j)
	}

	var scheduler coroutine.Scheduler = coroutine.GoroutineScheduler{}
	if cfg.MaxUnits > 0 {
		scheduler = coroutine.NewBoundedScheduler(cfg.MaxUnits)
	}
	a.runtime = coroutine.NewRuntime(cfg.Mode,
		coroutine.WithScheduler(scheduler),
		coroutine.WithLogger(logger),
		coroutine.WithObserver(coroutine.Observers(observers...)))
	a.supervisor = supervisor.New(a.runtime, logger)

	if cfg.AdminAddr != "" {
		adminCfg := admin.Config{
			Mode:    cfg.Mode,
			Units:   a.supervisor,
			Metrics: recorder,
			Logger:  logger,
		}
		if a.journal != nil {
			adminCfg.Journal = a.journal
		}
		mux, err := admin.NewHandler(adminCfg)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		a.adminReady = make(chan struct{})
		srv, err := serverutil.NewHandler(serverutil.Config{
			Server: &http.Server{
				Addr:              cfg.AdminAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			},
			TLS:             serverutil.TLSConfig{CertFile: cfg.AdminTLSCert, KeyFile: cfg.AdminTLSKey},
			ShutdownTimeout: cfg.ShutdownTimeout,
			Ready:           a.adminReady,
			Logger:          logging.WithComponent(logger, "admin"),
		})
		if err != nil {
			a.closeStore()
			return nil, err
		}
		a.admin = srv
		a.adminCo = coroutine.NewSTCoroutine("admin-http", srv,
			coroutine.WithLogger(logger),
			coroutine.WithObserver(coroutine.Observers(observers...)))
	}
	return a, nil
}

func (a *app) start() error {
	if a.journalCo != nil {
		if err := a.journalCo.Start(); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
	}
	if a.adminCo != nil {
		if err := a.adminCo.Start(); err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
	}

	stats := newStatsReporter(a.cfg.ReapInterval, a.supervisor, a.recorder, a.journal)
	if _, err := a.supervisor.Spawn("runtime-stats", stats); err != nil {
		if !errors.Is(err, coroutine.ErrDummy) {
			return err
		}
		a.logger.Info("coroutines disabled, supervised units will not run")
	}
	a.stopReaper = a.supervisor.StartReaper(context.Background(), a.cfg.ReapInterval)
	return nil
}

// wait blocks until ctx ends or the admin server exits on its own. It
// returns the admin server's error in the latter case.
func (a *app) wait(ctx context.Context) error {
	var adminDone <-chan struct{}
	if a.adminCo != nil {
		adminDone = a.adminCo.Done()
	}
	select {
	case <-ctx.Done():
		return nil
	case <-adminDone:
		if err := a.adminCo.Pull(); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
		return errors.New("admin server exited")
	}
}

// adminAddr returns the bound admin address once the server listens.
func (a *app) adminAddr() net.Addr {
	if a.admin == nil {
		return nil
	}
	return a.admin.Addr()
}

// shutdown stops the reaper, the admin server and every supervised unit,
// then drains the journal and closes its store, all within the configured
// shutdown timeout.
func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.stopReaper()
	if a.adminCo != nil {
		a.adminCo.Stop()
	}
	var errs []error
	if err := a.supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop units: %w", err))
	}
	if a.journalCo != nil {
		a.journalCo.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close journal store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) closeStore() {
	if a.store != nil {
		_ = a.store.Close(context.Background())
	}
}
