package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bitriver-origin/internal/coroutine"
	"bitriver-origin/internal/observability/logging"
	"bitriver-origin/internal/observability/metrics"
	"bitriver-origin/internal/supervisor"
)

// Units is the view of the supervisor the admin surface needs.
type Units interface {
	Snapshot() []supervisor.UnitStatus
	Stop(cid int) bool
	Len() int
}

// JournalStats reports journal backlog for health checks.
type JournalStats interface {
	Pending() int
	Dropped() uint64
}

// Config wires the admin handler.
type Config struct {
	Mode    coroutine.Mode
	Units   Units
	Journal JournalStats
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

type handler struct {
	mode    coroutine.Mode
	units   Units
	journal JournalStats
	logger  *slog.Logger
}

// NewHandler returns the admin mux serving /healthz, /metrics and /units,
// instrumented with request metrics.
func NewHandler(cfg Config) (http.Handler, error) {
	if cfg.Units == nil {
		return nil, errors.New("admin units source is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		mode:    cfg.Mode,
		units:   cfg.Units,
		journal: cfg.Journal,
		logger:  logging.WithComponent(logger, "admin"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/units", h.listUnits)
	mux.HandleFunc("/units/", h.unitByCID)
	return metrics.HTTPMiddleware(recorder, mux), nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	payload := map[string]interface{}{
		"status": "ok",
		"mode":   string(h.mode),
		"units":  h.units.Len(),
	}
	if h.journal != nil {
		dropped := h.journal.Dropped()
		payload["journal"] = map[string]interface{}{
			"pending": h.journal.Pending(),
			"dropped": dropped,
		}
		if dropped > 0 {
			payload["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) listUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"units": h.units.Snapshot()})
}

func (h *handler) unitByCID(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/units/"), "/")
	cid, err := strconv.Atoi(raw)
	if err != nil || cid <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid cid %q", raw))
		return
	}

	switch r.Method {
	case http.MethodGet:
		for _, status := range h.units.Snapshot() {
			if status.CID == cid {
				writeJSON(w, http.StatusOK, status)
				return
			}
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("unit %d not found", cid))
	case http.MethodDelete:
		if !h.units.Stop(cid) {
			writeError(w, http.StatusNotFound, fmt.Errorf("unit %d not found", cid))
			return
		}
		logging.WithContext(r.Context(), h.logger).Info("unit stopped via admin", "unit_cid", cid)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}
