// Package command provides the dispatch table that maps command names to
// handlers.
//
// The table is generic over the client type handed to handlers, so the core
// knows nothing about what a command does. Names are matched
// case-insensitively. A table is filled once at startup and only read
// afterwards.
package command
