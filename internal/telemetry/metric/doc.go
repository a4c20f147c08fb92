// Package metric exposes server metrics in Prometheus format.
//
// Registry owns a private prometheus.Registry with the server's counters,
// gauges and the loop iteration histogram, plus the Go runtime, process
// and build info collectors. Every Registry method is safe on a nil
// receiver so metrics can be switched off without guarding call sites.
package metric
