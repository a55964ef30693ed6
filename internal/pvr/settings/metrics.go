package settings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/pvrsettings/internal/config/registry"
)

// Lookup results recorded by Metrics.
const (
	resultHit       = "hit"
	resultMissing   = "missing"
	resultWrongType = "wrong_type"
)

// Metrics holds the Prometheus metrics of a settings cache.
// A nil *Metrics records nothing.
type Metrics struct {
	Lookups *prometheus.CounterVec
	Entries prometheus.Gauge
	Reloads prometheus.Counter
	Changes prometheus.Counter
}

// NewMetrics creates cache metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pvrsettings",
				Name:      "cache_lookups_total",
				Help:      "Total number of cached setting lookups",
			},
			[]string{"type", "result"},
		),
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pvrsettings",
			Name:      "cache_entries",
			Help:      "Number of cached settings",
		}),
		Reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pvrsettings",
			Name:      "cache_reloads_total",
			Help:      "Total number of bulk reloads",
		}),
		Changes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pvrsettings",
			Name:      "cache_changes_total",
			Help:      "Total number of single setting changes",
		}),
	}
}

func (m *Metrics) lookup(typ registry.SettingType, result string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(typ.String(), result).Inc()
}

func (m *Metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(n))
}

func (m *Metrics) reloaded() {
	if m == nil {
		return
	}
	m.Reloads.Inc()
}

func (m *Metrics) changed() {
	if m == nil {
		return
	}
	m.Changes.Inc()
}
