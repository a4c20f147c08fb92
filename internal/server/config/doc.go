// Package config provides server configuration for emberkv.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Range and syntax validation
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded once at startup via internal/infra/confloader,
// from a YAML file and EMBERKV_ environment variables.
package config
