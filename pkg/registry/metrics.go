package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "promptreg"

type metrics struct {
	installs      *prometheus.CounterVec
	uninstalls    *prometheus.CounterVec
	conflicts     prometheus.Counter
	sourceSyncs   *prometheus.CounterVec
	cachedBundles prometheus.Gauge
	invalidations prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &metrics{
		installs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "installs_total",
			Help:      "Total number of bundle installs by scope",
		}, []string{"scope"}),

		uninstalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "uninstalls_total",
			Help:      "Total number of bundle uninstalls by scope",
		}, []string{"scope"}),

		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "scope_conflicts_total",
			Help:      "Total number of installs refused because the bundle lives in another scope",
		}),

		sourceSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "source_syncs_total",
			Help:      "Total number of source catalog refreshes",
		}, []string{"source", "status"}),

		cachedBundles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "cached_bundles",
			Help:      "Number of bundles in the merged catalog cache",
		}),

		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "cache_invalidations_total",
			Help:      "Total number of merged catalog cache invalidations",
		}),
	}
}
