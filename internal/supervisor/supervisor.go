package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"bitriver-origin/internal/coroutine"
	"bitriver-origin/internal/execctx"
	"bitriver-origin/internal/observability/logging"
)

// ErrClosed is returned by Spawn once Shutdown has begun.
var ErrClosed = errors.New("supervisor closed")

// UnitStatus describes one supervised handle.
type UnitStatus struct {
	CID     int    `json:"cid"`
	Label   string `json:"label"`
	Running bool   `json:"running"`
	Code    int    `json:"code"`
	Error   string `json:"error,omitempty"`
}

type unit struct {
	label string
	co    coroutine.Coroutine
}

type doner interface {
	Done() <-chan struct{}
}

func (u unit) finished() bool {
	if d, ok := u.co.(doner); ok {
		select {
		case <-d.Done():
			return true
		default:
			return false
		}
	}
	return u.co.Pull() != nil
}

func (u unit) status(cid int) UnitStatus {
	status := UnitStatus{CID: cid, Label: u.label, Running: !u.finished()}
	if err := u.co.Pull(); err != nil {
		status.Code = coroutine.CodeOf(err)
		status.Error = err.Error()
	}
	return status
}

// Supervisor owns the handles it spawns, keyed by cid, until they are reaped
// or shut down.
type Supervisor struct {
	runtime *coroutine.Runtime
	logger  *slog.Logger

	mu     sync.Mutex
	units  map[int]unit
	closed bool
}

// New returns a Supervisor building handles with runtime.
func New(runtime *coroutine.Runtime, logger *slog.Logger) *Supervisor {
	if runtime == nil {
		runtime = coroutine.NewRuntime(coroutine.ModeST)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		runtime: runtime,
		logger:  logging.WithComponent(logger, "supervisor"),
		units:   make(map[int]unit),
	}
}

// Spawn creates and starts a handle for handler and tracks it under its cid.
// A cid is allocated up front unless opts preset one.
func (s *Supervisor) Spawn(label string, handler coroutine.Handler, opts ...coroutine.Option) (coroutine.Coroutine, error) {
	all := make([]coroutine.Option, 0, len(opts)+1)
	all = append(all, coroutine.WithCID(execctx.GenerateID()))
	all = append(all, opts...)
	co := s.runtime.New(label, handler, all...)
	cid := co.CID()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		co.Stop()
		return nil, ErrClosed
	}
	if _, exists := s.units[cid]; exists {
		s.mu.Unlock()
		co.Stop()
		return nil, fmt.Errorf("unit with cid %d already supervised", cid)
	}
	if err := co.Start(); err != nil {
		s.mu.Unlock()
		co.Stop()
		return nil, fmt.Errorf("start %s: %w", label, err)
	}
	s.units[cid] = unit{label: label, co: co}
	s.mu.Unlock()

	s.logger.Debug("unit spawned", "label", label, "cid", cid)
	return co, nil
}

// Get returns the handle tracked under cid.
func (s *Supervisor) Get(cid int) (coroutine.Coroutine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[cid]
	return u.co, ok
}

// Len reports how many handles are tracked.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

// Snapshot returns the status of every tracked handle ordered by cid.
func (s *Supervisor) Snapshot() []UnitStatus {
	s.mu.Lock()
	out := make([]UnitStatus, 0, len(s.units))
	for cid, u := range s.units {
		out = append(out, u.status(cid))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CID < out[j].CID })
	return out
}

// Stop disposes the handle tracked under cid and forgets it.
func (s *Supervisor) Stop(cid int) bool {
	s.mu.Lock()
	u, ok := s.units[cid]
	delete(s.units, cid)
	s.mu.Unlock()
	if !ok {
		return false
	}
	u.co.Stop()
	return true
}

// Reap disposes every handle whose unit has finished and returns their final
// status.
func (s *Supervisor) Reap() []UnitStatus {
	s.mu.Lock()
	var finished []UnitStatus
	var handles []coroutine.Coroutine
	for cid, u := range s.units {
		if !u.finished() {
			continue
		}
		finished = append(finished, u.status(cid))
		handles = append(handles, u.co)
		delete(s.units, cid)
	}
	s.mu.Unlock()

	for _, co := range handles {
		co.Stop()
	}
	for _, status := range finished {
		if status.Error != "" {
			s.logger.Info("unit reaped", "label", status.Label, "cid", status.CID, "code", status.Code, "error", status.Error)
		} else {
			s.logger.Debug("unit reaped", "label", status.Label, "cid", status.CID)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CID < finished[j].CID })
	return finished
}

// Shutdown refuses new spawns and stops every tracked handle concurrently.
// It returns ctx.Err() if ctx ends before all handles have stopped.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	units := s.units
	s.units = make(map[int]unit)
	s.mu.Unlock()

	var group errgroup.Group
	for _, u := range units {
		co := u.co
		group.Go(func() error {
			co.Stop()
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Debug("supervisor stopped", "units", len(units))
		return nil
	case <-ctx.Done():
		s.logger.Warn("supervisor shutdown timed out", "units", len(units))
		return ctx.Err()
	}
}
