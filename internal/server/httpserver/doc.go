// Package httpserver provides the admin HTTP endpoint of emberkv-server.
//
// The endpoint runs on its own goroutine, apart from the protocol event
// loop, and serves Prometheus metrics, a liveness probe and a JSON view of
// the server statistics:
//
//	GET /metrics   Prometheus exposition format
//	GET /healthz   liveness probe
//	GET /info      statistics published by the protocol server
package httpserver
