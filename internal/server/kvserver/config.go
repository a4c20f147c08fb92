package kvserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/emberkv/internal/core/eventloop"
	"github.com/yndnr/emberkv/internal/server/config"
	"github.com/yndnr/emberkv/internal/storage"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
)

// Protocol limits.
const (
	// MaxArgs caps the arguments kept from one header line.
	MaxArgs = 16

	// MaxBulkBytes caps a single bulk payload.
	MaxBulkBytes = 512 << 20

	readChunk         = 16 << 10
	maxAcceptsPerCall = 16
	replyShrinkBytes  = 64 << 10
	statsEveryLoops   = 5
)

// Config holds the protocol server configuration.
type Config struct {
	Bind      string
	Port      int
	Databases int

	// IdleTimeout closes clients without traffic for this long. 0 disables.
	IdleTimeout time.Duration
	// MaxClients caps connected clients. 0 disables the cap.
	MaxClients int
	// AcceptRate limits accepted connections per second. 0 disables.
	AcceptRate float64

	CronInterval  time.Duration
	MaxQueryBytes int
	MaxReplyBytes int

	SaveRules      []config.SaveRule
	SaveOnShutdown bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Bind:          config.DefaultBind,
		Port:          config.DefaultPort,
		Databases:     config.DefaultDatabases,
		IdleTimeout:   config.DefaultIdleTimeout,
		MaxClients:    config.DefaultMaxClients,
		CronInterval:  config.DefaultCronInterval,
		MaxQueryBytes: config.DefaultMaxQueryBytes,
		MaxReplyBytes: config.DefaultMaxReplyBytes,
	}
}

// ConfigFrom derives the protocol server configuration from a verified
// server configuration.
func ConfigFrom(sc *config.ServerConfig) (Config, error) {
	rules, err := config.ParseSaveRules(sc.Storage.SaveRules)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Bind:           sc.Server.Bind,
		Port:           sc.Server.Port,
		Databases:      sc.Server.Databases,
		IdleTimeout:    sc.Server.IdleTimeout,
		MaxClients:     sc.Server.MaxClients,
		AcceptRate:     sc.Server.AcceptRate,
		CronInterval:   sc.Server.CronInterval,
		MaxQueryBytes:  sc.Server.MaxQueryBytes,
		MaxReplyBytes:  sc.Server.MaxReplyBytes,
		SaveRules:      rules,
		SaveOnShutdown: sc.Storage.SaveOnShutdown,
	}, nil
}

func (c *Config) validate() error {
	switch {
	case c.Databases < 1:
		return fmt.Errorf("kvserver: databases must be at least 1, got %d", c.Databases)
	case c.CronInterval <= 0:
		return fmt.Errorf("kvserver: cron interval must be positive, got %v", c.CronInterval)
	case c.MaxQueryBytes <= 0:
		return fmt.Errorf("kvserver: max query bytes must be positive, got %d", c.MaxQueryBytes)
	case c.MaxReplyBytes <= 0:
		return fmt.Errorf("kvserver: max reply bytes must be positive, got %d", c.MaxReplyBytes)
	case c.IdleTimeout < 0 || c.MaxClients < 0 || c.AcceptRate < 0:
		return fmt.Errorf("kvserver: negative limit")
	}
	return nil
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPersister enables SAVE, BGSAVE, save rules and Load.
func WithPersister(p storage.Persister) Option {
	return func(s *Server) { s.persister = p }
}

// WithMetrics exports server metrics to r.
func WithMetrics(r *metric.Registry) Option {
	return func(s *Server) { s.metrics = r }
}

// WithLoopOptions passes options to the underlying event loop.
func WithLoopOptions(opts ...eventloop.Option) Option {
	return func(s *Server) { s.loopOpts = append(s.loopOpts, opts...) }
}

// WithOnShutdown registers fn to run on the loop goroutine after the
// SHUTDOWN command stopped the server.
func WithOnShutdown(fn func()) Option {
	return func(s *Server) { s.onShutdown = fn }
}
