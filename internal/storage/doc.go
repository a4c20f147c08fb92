// Package storage defines how the keyspace is persisted.
//
// The server captures a Snapshot of every database on the event loop
// thread and hands it to a Persister, possibly from a background
// goroutine. Two persisters exist: the snapshot file manager in
// storage/snapshot and BadgerEngine in this package.
package storage
