package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "emberkv"

// Rejection reasons for ConnectionRejected.
const (
	ReasonMaxClients = "max_clients"
	ReasonRateLimit  = "rate_limit"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	connectedClients    prometheus.Gauge
	connectionsTotal    prometheus.Counter
	commandsTotal       *prometheus.CounterVec
	rejectedConnections *prometheus.CounterVec
	keys                *prometheus.GaugeVec
	dictRehashes        prometheus.Counter
	loopIteration       prometheus.Histogram
	lastSave            prometheus.Gauge

	// lastRehashes is the cumulative total last passed to SetRehashes.
	lastRehashes int64
}

// NewRegistry creates a registry with every server metric registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connected_clients",
			Help:      "Number of client connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted client connections.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of executed commands by name.",
		}, []string{"command"}),
		rejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rejected_connections_total",
			Help:      "Total number of connections closed right after accept.",
		}, []string{"reason"}),
		keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "keys",
			Help:      "Number of keys per database.",
		}, []string{"db"}),
		dictRehashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dict_rehashes_total",
			Help:      "Total number of hash table resizes across databases.",
		}),
		loopIteration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "loop_iteration_seconds",
			Help:      "Time spent dispatching events in one loop iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		lastSave: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_save_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot.",
		}),
	}

	r.reg.MustRegister(
		r.connectedClients,
		r.connectionsTotal,
		r.commandsTotal,
		r.rejectedConnections,
		r.keys,
		r.dictRehashes,
		r.loopIteration,
		r.lastSave,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewBuildCollector(),
	)
	return r
}

// Registerer exposes the underlying registry for additional collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return nil
	}
	return r.reg
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ClientConnected records an accepted connection.
func (r *Registry) ClientConnected() {
	if r == nil {
		return
	}
	r.connectedClients.Inc()
	r.connectionsTotal.Inc()
}

// ClientDisconnected records a closed connection.
func (r *Registry) ClientDisconnected() {
	if r == nil {
		return
	}
	r.connectedClients.Dec()
}

// ConnectionRejected records a connection closed right after accept.
func (r *Registry) ConnectionRejected(reason string) {
	if r == nil {
		return
	}
	r.rejectedConnections.WithLabelValues(reason).Inc()
}

// CommandProcessed counts one execution of the named command.
func (r *Registry) CommandProcessed(name string) {
	if r == nil {
		return
	}
	r.commandsTotal.WithLabelValues(name).Inc()
}

// SetKeys records the key count of database db.
func (r *Registry) SetKeys(db, n int) {
	if r == nil {
		return
	}
	r.keys.WithLabelValues(strconv.Itoa(db)).Set(float64(n))
}

// SetRehashes feeds the cumulative resize count of all databases. Only the
// increase since the previous call is added to the counter; a smaller
// total (after FLUSHALL replaced the tables) restarts the baseline.
func (r *Registry) SetRehashes(total int64) {
	if r == nil {
		return
	}
	if total > r.lastRehashes {
		r.dictRehashes.Add(float64(total - r.lastRehashes))
	}
	r.lastRehashes = total
}

// ObserveIteration records the busy time of one loop iteration.
func (r *Registry) ObserveIteration(d time.Duration) {
	if r == nil {
		return
	}
	r.loopIteration.Observe(d.Seconds())
}

// SetLastSave records the time of the last successful snapshot.
func (r *Registry) SetLastSave(t time.Time) {
	if r == nil || t.IsZero() {
		return
	}
	r.lastSave.Set(float64(t.Unix()))
}
