package config

import "time"

// ServerConfig is the root configuration for emberkv-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the protocol listener and client limits.
type ServerSection struct {
	Bind string `koanf:"bind"`
	Port int    `koanf:"port"`

	// Databases is the number of selectable keyspaces.
	Databases int `koanf:"databases"`

	// IdleTimeout closes clients without traffic for this long. 0 disables.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// MaxClients caps concurrently connected clients. 0 disables the cap.
	MaxClients int `koanf:"max_clients"`

	// AcceptRate limits accepted connections per second. 0 disables.
	AcceptRate float64 `koanf:"accept_rate"`

	// CronInterval is the period of the housekeeping timer.
	CronInterval time.Duration `koanf:"cron_interval"`

	// MaxQueryBytes bounds an unterminated header line.
	MaxQueryBytes int `koanf:"max_query_bytes"`

	// MaxReplyBytes bounds a client's pending output.
	MaxReplyBytes int `koanf:"max_reply_bytes"`
}

// StorageSection configures persistence.
type StorageSection struct {
	// Engine selects the persister: "file", "badger" or "none".
	Engine string `koanf:"engine"`

	Dir        string `koanf:"dir"`
	DBFilename string `koanf:"dbfilename"`

	// SnapshotKeep is the number of rotated snapshot files kept.
	SnapshotKeep int `koanf:"snapshot_keep"`

	// EncryptionKey enables snapshot encryption when non-empty.
	EncryptionKey string `koanf:"encryption_key"`

	// SaveRules are "<seconds> <changes>" pairs: save when at least
	// <changes> writes happened within <seconds> of the last save.
	SaveRules []string `koanf:"save_rules"`

	SaveOnShutdown bool `koanf:"save_on_shutdown"`
}

// MetricsSection configures the admin HTTP endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`

	// AllowList restricts the endpoint to these IPs or CIDRs. Empty
	// allows every client.
	AllowList []string `koanf:"allow_list"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`

	// Watch reloads the log level when the config file changes.
	Watch bool `koanf:"watch"`
}

// SaveRule is a parsed entry of StorageSection.SaveRules.
type SaveRule struct {
	Seconds int
	Changes int
}
