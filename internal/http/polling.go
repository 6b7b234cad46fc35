package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codex-k8s/telegram-poller/internal/polling"
)

const defaultStopReason = "stopped via http"

// PollingControl is the lifecycle surface exposed over HTTP.
type PollingControl interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	StopWith(ctx context.Context, opts polling.StopOptions) error
	State() polling.State
}

// PollingHandler serves the polling control endpoints.
type PollingHandler struct {
	control     PollingControl
	stopTimeout time.Duration
	log         *slog.Logger
}

// NewPollingHandler creates a new polling control handler. stopTimeout bounds a graceful stop.
func NewPollingHandler(control PollingControl, stopTimeout time.Duration, log *slog.Logger) *PollingHandler {
	return &PollingHandler{control: control, stopTimeout: stopTimeout, log: log}
}

// PollingResponse defines output payload for the polling endpoints.
type PollingResponse struct {
	Status string        `json:"status"`
	State  polling.State `json:"state"`
	Error  string        `json:"error,omitempty"`
}

// Register mounts the endpoints on s.
func (h *PollingHandler) Register(s *Server) {
	s.mux.HandleFunc("GET /polling", h.state)
	s.mux.HandleFunc("POST /polling/start", h.start)
	s.mux.HandleFunc("POST /polling/stop", h.stop)
}

func (h *PollingHandler) state(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, "ok", "")
}

func (h *PollingHandler) start(w http.ResponseWriter, r *http.Request) {
	restart, err := boolQuery(r, "restart")
	if err != nil {
		h.respond(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	if restart {
		err = h.control.Restart(r.Context())
	} else {
		err = h.control.Start(r.Context())
	}
	if err != nil {
		h.log.Error("Polling start request failed", "error", err, "restart", restart)
		h.respond(w, http.StatusInternalServerError, "error", err.Error())
		return
	}
	if restart {
		h.respond(w, http.StatusOK, "restarted", "")
		return
	}
	if h.control.State().Stopping {
		h.respond(w, http.StatusConflict, "stopping", "a graceful stop is pending, retry after it completes or use restart=true")
		return
	}
	h.respond(w, http.StatusOK, "started", "")
}

func (h *PollingHandler) stop(w http.ResponseWriter, r *http.Request) {
	cancel, err := boolQuery(r, "cancel")
	if err != nil {
		h.respond(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = defaultStopReason
	}

	ctx := r.Context()
	if h.stopTimeout > 0 {
		var done context.CancelFunc
		ctx, done = context.WithTimeout(ctx, h.stopTimeout)
		defer done()
	}
	err = h.control.StopWith(ctx, polling.StopOptions{Cancel: cancel, Reason: reason})
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.respond(w, http.StatusAccepted, "stopping", "")
	case err != nil:
		h.log.Error("Polling stop request failed", "error", err)
		h.respond(w, http.StatusInternalServerError, "error", err.Error())
	default:
		h.respond(w, http.StatusOK, "stopped", "")
	}
}

func (h *PollingHandler) respond(w http.ResponseWriter, statusCode int, status, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(PollingResponse{Status: status, State: h.control.State(), Error: errMsg})
}

func boolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return value, nil
}
