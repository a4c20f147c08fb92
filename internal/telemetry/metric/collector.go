package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/emberkv/internal/infra/buildinfo"
)

// BuildCollector exports the binary's build information as a constant
// gauge labelled with version, commit and Go version.
type BuildCollector struct {
	desc *prometheus.Desc
	info buildinfo.Info
}

// NewBuildCollector creates a collector for the running binary.
func NewBuildCollector() *BuildCollector {
	return &BuildCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "build_info"),
			"Build information of the running server.",
			[]string{"version", "commit", "go_version"},
			nil,
		),
		info: buildinfo.Get(),
	}
}

// Describe implements prometheus.Collector.
func (c *BuildCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *BuildCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, 1,
		c.info.Version, c.info.Commit, c.info.GoVersion)
}
