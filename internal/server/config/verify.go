package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Bind != "" && net.ParseIP(cfg.Bind) == nil {
		return fmt.Errorf("server.bind %q is not an IP address", cfg.Bind)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1..65535", cfg.Port)
	}
	if cfg.Databases < 1 {
		return errors.New("server.databases must be at least 1")
	}
	if cfg.IdleTimeout < 0 {
		return errors.New("server.idle_timeout must not be negative")
	}
	if cfg.MaxClients < 0 {
		return errors.New("server.max_clients must not be negative")
	}
	if cfg.AcceptRate < 0 {
		return errors.New("server.accept_rate must not be negative")
	}
	if cfg.CronInterval <= 0 {
		return errors.New("server.cron_interval must be positive")
	}
	if cfg.MaxQueryBytes < 64 {
		return errors.New("server.max_query_bytes must be at least 64")
	}
	if cfg.MaxReplyBytes < 1024 {
		return errors.New("server.max_reply_bytes must be at least 1024")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case EngineNone:
		return nil
	case EngineFile, EngineBadger:
	default:
		return fmt.Errorf("storage.engine %q must be one of file, badger, none", cfg.Engine)
	}

	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	if cfg.Engine == EngineFile {
		if cfg.DBFilename == "" || strings.ContainsRune(cfg.DBFilename, os.PathSeparator) {
			return fmt.Errorf("storage.dbfilename %q must be a plain file name", cfg.DBFilename)
		}
		if cfg.SnapshotKeep < 1 {
			return errors.New("storage.snapshot_keep must be at least 1")
		}
	}
	if _, err := ParseSaveRules(cfg.SaveRules); err != nil {
		return err
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr %q: %w", cfg.Addr, err)
	}
	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("metrics.allow_list entry %q: %w", entry, err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("metrics.allow_list entry %q is not an IP", entry)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
	return nil
}

// ParseSaveRules parses "<seconds> <changes>" entries.
func ParseSaveRules(rules []string) ([]SaveRule, error) {
	out := make([]SaveRule, 0, len(rules))
	for _, r := range rules {
		fields := strings.Fields(r)
		if len(fields) != 2 {
			return nil, fmt.Errorf("storage.save_rules entry %q: want \"<seconds> <changes>\"", r)
		}
		secs, err := strconv.Atoi(fields[0])
		if err != nil || secs < 1 {
			return nil, fmt.Errorf("storage.save_rules entry %q: invalid seconds", r)
		}
		changes, err := strconv.Atoi(fields[1])
		if err != nil || changes < 1 {
			return nil, fmt.Errorf("storage.save_rules entry %q: invalid changes", r)
		}
		out = append(out, SaveRule{Seconds: secs, Changes: changes})
	}
	return out, nil
}
