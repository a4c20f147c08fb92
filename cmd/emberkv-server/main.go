// Package main provides the entry point for emberkv-server.
//
// emberkv-server is a single-threaded, event-driven in-memory key/value
// server speaking a line-oriented text protocol.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/emberkv/internal/infra/buildinfo"
	"github.com/yndnr/emberkv/internal/infra/confloader"
	"github.com/yndnr/emberkv/internal/infra/shutdown"
	"github.com/yndnr/emberkv/internal/server/config"
	"github.com/yndnr/emberkv/internal/server/httpserver"
	"github.com/yndnr/emberkv/internal/server/kvserver"
	"github.com/yndnr/emberkv/internal/storage"
	"github.com/yndnr/emberkv/internal/storage/snapshot"
	"github.com/yndnr/emberkv/internal/telemetry/logger"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
)

const (
	shutdownTimeout       = 30 * time.Second
	badgerMetricsInterval = 15 * time.Second
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "emberkv-server",
		Usage:   "In-memory key/value server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"EMBERKV_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override server.port",
			},
			&cli.StringFlag{
				Name:  "bind",
				Usage: "Override server.bind",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")

	cfg, err := loadConfig(configFile, func(cfg *config.ServerConfig) {
		if c.IsSet("port") {
			cfg.Server.Port = c.Int("port")
		}
		if c.IsSet("bind") {
			cfg.Server.Bind = c.String("bind")
		}
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Install(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting emberkv-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Get().Commit,
		"config", configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	var metrics *metric.Registry
	if cfg.Metrics.Enabled {
		metrics = metric.NewRegistry()
	}

	persister, err := initPersister(cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	kvCfg, err := kvserver.ConfigFrom(cfg)
	if err != nil {
		closePersister(persister, log)
		return err
	}

	shutdownHandler := shutdown.NewHandler(shutdownTimeout)

	srv, err := kvserver.New(kvCfg,
		kvserver.WithLogger(log),
		kvserver.WithPersister(persister),
		kvserver.WithMetrics(metrics),
		kvserver.WithOnShutdown(func() { shutdownHandler.Trigger("shutdown command") }),
	)
	if err != nil {
		closePersister(persister, log)
		return fmt.Errorf("init server: %w", err)
	}

	loadStart := time.Now()
	if err := srv.Load(context.Background()); err != nil {
		srv.Close()
		closePersister(persister, log)
		return fmt.Errorf("load data: %w", err)
	}
	log.Info("data loaded", "duration", time.Since(loadStart))

	if err := srv.Listen(); err != nil {
		srv.Close()
		closePersister(persister, log)
		return fmt.Errorf("listen: %w", err)
	}

	var admin *httpserver.Server
	if cfg.Metrics.Enabled {
		admin = httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics:   metrics,
			Info:      srv,
			AllowList: cfg.Metrics.AllowList,
			Logger:    log,
		}))
		if err := admin.Listen(); err != nil {
			srv.Close()
			closePersister(persister, log)
			return fmt.Errorf("admin listen: %w", err)
		}
	}

	// Hooks run in reverse order: admin endpoint, then the server, then
	// the persister.
	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("closing storage")
		return closePersister(persister, log)
	})

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve()
		shutdownHandler.Trigger("server stopped")
	}()

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("stopping server")
		srv.Shutdown()
		var serveErr error
		select {
		case serveErr = <-serveDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := srv.Close(); err != nil {
			return err
		}
		return serveErr
	})

	if admin != nil {
		go func() {
			log.Info("admin endpoint listening", "addr", admin.Addr())
			if err := admin.Serve(); err != nil {
				log.Error("admin endpoint error", "error", err)
			}
		}()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down admin endpoint")
			return admin.Shutdown(ctx)
		})
	}

	if cfg.Log.Watch && configFile != "" {
		stop, err := watchLogLevel(configFile, log)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(context.Context) error { return stop() })
		}
	}

	log.Info("server started", "addr", srv.Addr())
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "reason", shutdownHandler.Reason(), "error", err)
		return err
	}

	log.Info("server stopped gracefully", "reason", shutdownHandler.Reason())
	return nil
}

// loadConfig loads configuration from file and environment. override runs
// after loading and before validation.
func loadConfig(configFile string, override func(*config.ServerConfig)) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initPersister builds the persister selected by storage.engine. It
// returns nil for the "none" engine.
func initPersister(cfg *config.ServerConfig, metrics *metric.Registry, log *slog.Logger) (storage.Persister, error) {
	sc := cfg.Storage
	switch sc.Engine {
	case config.EngineFile:
		var passphrase []byte
		if sc.EncryptionKey != "" {
			passphrase = []byte(sc.EncryptionKey)
		}
		m, err := snapshot.NewManager(snapshot.Config{
			Dir:        sc.Dir,
			Filename:   sc.DBFilename,
			Keep:       sc.SnapshotKeep,
			Passphrase: passphrase,
		}, log.With("component", "snapshot"))
		if err != nil {
			return nil, err
		}
		return m, nil

	case config.EngineBadger:
		engine, err := storage.NewBadgerEngine(storage.DefaultBadgerConfig(sc.Dir), log.With("component", "badger"))
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			if err := engine.RegisterMetrics(metrics.Registerer(), badgerMetricsInterval); err != nil {
				engine.Close()
				return nil, err
			}
		}
		return engine, nil

	case config.EngineNone:
		log.Warn("persistence disabled")
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown storage engine %q", sc.Engine)
	}
}

func closePersister(p storage.Persister, log *slog.Logger) error {
	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		log.Error("close storage", "error", err)
		return err
	}
	return nil
}

// watchLogLevel re-reads the config file on change and applies its log
// level. Other settings need a restart.
func watchLogLevel(path string, log *slog.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := loadConfig(path, nil)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level == logger.GetLevel() {
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("log level not changed", "level", cfg.Log.Level, "error", err)
			return
		}
		log.Info("log level changed", "level", cfg.Log.Level)
	})
	w.StartAsync()
	return w.Stop, nil
}
