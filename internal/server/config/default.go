package config

import "time"

// Default configuration values.
const (
	DefaultBind          = "127.0.0.1"
	DefaultPort          = 6379
	DefaultDatabases     = 16
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultMaxClients    = 10000
	DefaultCronInterval  = time.Second
	DefaultMaxQueryBytes = 1024
	DefaultMaxReplyBytes = 64 << 20

	DefaultEngine       = EngineFile
	DefaultDir          = "/var/lib/emberkv"
	DefaultDBFilename   = "dump.ekv"
	DefaultSnapshotKeep = 3

	DefaultMetricsAddr = "127.0.0.1:9121"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Storage engine names.
const (
	EngineFile   = "file"
	EngineBadger = "badger"
	EngineNone   = "none"
)

// DefaultSaveRules mirrors the classic save schedule.
var DefaultSaveRules = []string{"3600 1", "300 100", "60 10000"}

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Bind:          DefaultBind,
			Port:          DefaultPort,
			Databases:     DefaultDatabases,
			IdleTimeout:   DefaultIdleTimeout,
			MaxClients:    DefaultMaxClients,
			CronInterval:  DefaultCronInterval,
			MaxQueryBytes: DefaultMaxQueryBytes,
			MaxReplyBytes: DefaultMaxReplyBytes,
		},
		Storage: StorageSection{
			Engine:         DefaultEngine,
			Dir:            DefaultDir,
			DBFilename:     DefaultDBFilename,
			SnapshotKeep:   DefaultSnapshotKeep,
			SaveRules:      append([]string(nil), DefaultSaveRules...),
			SaveOnShutdown: true,
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
