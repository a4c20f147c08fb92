// Package kvserver implements the emberkv protocol server.
//
// A Server owns one event loop and runs every client, command and
// housekeeping task on the goroutine that calls Serve. Clients speak a
// line-oriented protocol: a header line of space separated arguments
// terminated by LF (an optional preceding CR is stripped), optionally
// followed by a length-prefixed payload for bulk commands:
//
//	SET mykey 5\r\n
//	hello\r\n
//
// Replies use the usual status (+), error (-), integer (:), bulk ($) and
// multi-bulk (*) framings.
//
// Background saves capture the keyspace on the loop goroutine and hand the
// snapshot to a storage.Persister on a separate goroutine. Shutdown is the
// only method safe to call from other goroutines while Serve runs.
package kvserver
