package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/emberkv/internal/server/kvserver"
	"github.com/yndnr/emberkv/internal/telemetry/logger"
)

// InfoSource provides server statistics. It must be safe for concurrent
// use.
type InfoSource interface {
	Info() kvserver.Info
}

// Handler serves the JSON admin endpoints.
type Handler struct {
	info    InfoSource
	logger  *slog.Logger
	mux     *http.ServeMux
	started time.Time
}

// New creates a Handler. info may be nil, in which case /info reports 503.
func New(info InfoSource, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		info:    info,
		logger:  log,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /info", h.handleInfo)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
