package enhancer

import (
	"github.com/prometheus/client_golang/prometheus"

	"OrderLens/internal/orders"
	"OrderLens/internal/render"
)

const (
	labelOutcome = "outcome"
	labelKind    = "kind"
)

type Metrics struct {
	Refreshes      *prometheus.CounterVec
	CacheRows      prometheus.Gauge
	Enhancements   *prometheus.CounterVec
	AttachAttempts prometheus.Counter
	Attached       prometheus.Gauge
	Abandoned      prometheus.Gauge
	Publishes      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderlens_refresh_total",
				Help: "Order cache refreshes by outcome",
			},
			[]string{labelOutcome},
		),
		CacheRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderlens_cache_rows",
			Help: "Rows in the current order cache snapshot",
		}),
		Enhancements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderlens_enhance_total",
				Help: "Card enhancement attempts by outcome",
			},
			[]string{labelOutcome},
		),
		AttachAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderlens_attach_retries_total",
			Help: "Watcher attach retries",
		}),
		Attached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderlens_attached",
			Help: "1 when the watcher observes the order list",
		}),
		Abandoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderlens_attach_abandoned",
			Help: "1 when attach retries ran out",
		}),
		Publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderlens_publish_total",
				Help: "Proxied HTML documents by kind and outcome",
			},
			[]string{labelKind, labelOutcome},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Refreshes, m.CacheRows, m.Enhancements, m.AttachAttempts, m.Attached, m.Abandoned, m.Publishes)
	}
	return m
}

func (m *Metrics) refresh(res orders.Result) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(string(res.Outcome)).Inc()
	m.CacheRows.Set(float64(res.Rows))
}

func (m *Metrics) enhance(o render.Outcome) {
	if m == nil {
		return
	}
	m.Enhancements.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) attachRetry() {
	if m == nil {
		return
	}
	m.AttachAttempts.Inc()
}

func (m *Metrics) state(attached, abandoned bool) {
	if m == nil {
		return
	}
	m.Attached.Set(boolGauge(attached))
	m.Abandoned.Set(boolGauge(abandoned))
}

func (m *Metrics) publish(kind, outcome string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(kind, outcome).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
