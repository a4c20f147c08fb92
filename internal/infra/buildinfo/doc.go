// Package buildinfo provides build information for emberkv.
//
// This package exposes build-time information injected via ldflags:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version, read from the binary when not set
//
// Usage:
//
//	go build -ldflags "-X github.com/yndnr/emberkv/internal/infra/buildinfo.Version=1.0.0"
package buildinfo
