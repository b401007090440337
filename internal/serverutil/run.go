package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"bitriver-origin/internal/observability/logging"
)

// TLSConfig defines certificate and key paths for enabling TLS listeners.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config controls the HTTP server runtime behaviour.
type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	Ready           chan<- struct{}
	Logger          *slog.Logger
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run listens on cfg.Server.Addr and serves until ctx is cancelled, then
// shuts the server down gracefully within ShutdownTimeout. TLS is used when
// both certificate and key files are set.
func Run(ctx context.Context, cfg Config) error {
	ln, err := listen(cfg)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, ln)
}

// Handler runs an HTTP server as a coroutine: Cycle serves until its context
// is cancelled, so stopping the owning handle performs a graceful shutdown.
type Handler struct {
	cfg Config

	mu   sync.Mutex
	addr net.Addr
}

// NewHandler validates cfg and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Handler{cfg: cfg}, nil
}

// Addr returns the bound listener address, or nil before the server listens.
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *Handler) Cycle(ctx context.Context) error {
	ln, err := listen(h.cfg)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.cfg.Server.Addr, err)
	}
	h.mu.Lock()
	h.addr = ln.Addr()
	h.mu.Unlock()
	return serve(ctx, h.cfg, ln)
}

func validate(cfg Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}
	return nil
}

func listen(cfg Config) (net.Listener, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	if cfg.TLS.CertFile == "" {
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		ln.Close()
		return nil, err
	}
	tlsCfg := cfg.Server.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
	cfg.Server.TLSConfig = tlsCfg
	return tls.NewListener(ln, tlsCfg), nil
}

func serve(ctx context.Context, cfg Config, ln net.Listener) error {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithContext(ctx, logger)

	if cfg.Ready != nil {
		close(cfg.Ready)
	}
	logger.Info("http server listening", "addr", ln.Addr().String(), "tls", cfg.TLS.CertFile != "")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}

	if shutdownErr == nil {
		logger.Info("http server stopped", "addr", ln.Addr().String())
	}
	return shutdownErr
}
