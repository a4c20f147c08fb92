package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/emberkv/internal/server/httpserver/handler"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
)

// RouterConfig holds configuration for the admin router.
type RouterConfig struct {
	// Metrics is exposed on /metrics. Nil serves an empty registry.
	Metrics *metric.Registry

	// Info backs /info.
	Info handler.InfoSource

	// AllowList restricts every endpoint to these IPs or CIDRs.
	AllowList []string

	Logger *slog.Logger
}

// NewRouter creates the admin router with all routes and middleware.
//
// Order: Recover -> RequestID -> AccessLog -> NetworkACL -> Handler
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	h := handler.New(cfg.Info, log)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", cfg.Metrics.Handler())
	mux.Handle("GET /healthz", h)
	mux.Handle("GET /info", h)

	return Chain(mux,
		Recover(log),
		RequestID(),
		AccessLog(log),
		NetworkACL(cfg.AllowList, log),
	)
}
