// Package confloader provides configuration loading mechanism.
//
// This package implements a configuration loader built on koanf and a
// file watcher built on fsnotify.
//
// Priority (highest to lowest):
//
//  1. Environment variables (EMBERKV_<SECTION>_<KEY>)
//  2. Configuration file (YAML)
//  3. Values already present in the target struct
//
// Keys absent from every source keep the target's value, so callers
// unmarshal into a struct pre-filled with defaults.
package confloader
