package metrics

import "github.com/prometheus/client_golang/prometheus"

// BrokerMetrics exposes the broker's shared counters. Prometheus vectors are
// internally synchronized, so this is the process-wide metrics surface.
type BrokerMetrics struct {
	duplicateTotal          *prometheus.CounterVec
	atomicUpdateFailedTotal *prometheus.CounterVec
	windowClosedTotal       *prometheus.CounterVec
	templateTotal           *prometheus.CounterVec
	webhookLatency          *prometheus.HistogramVec
}

func NewBrokerMetrics(reg prometheus.Registerer) *BrokerMetrics {
	m := &BrokerMetrics{
		duplicateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "duplicate_total",
			Help:      "Idempotency hits by provider",
		}, []string{"provider"}),
		atomicUpdateFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "atomic_update_failed_total",
			Help:      "Conditional updates that lost the race",
		}, []string{"op"}),
		windowClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "window_closed_total",
			Help:      "Sends attempted outside the 24h window",
		}, []string{"intent"}),
		templateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "template_total",
			Help:      "Template send outcomes",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.duplicateTotal, m.atomicUpdateFailedTotal, m.windowClosedTotal, m.templateTotal, m.webhookLatency)
	return m
}

// NewForTest returns metrics on a private registry so tests never collide.
func NewForTest() *BrokerMetrics {
	return NewBrokerMetrics(prometheus.NewRegistry())
}

func (m *BrokerMetrics) ObserveDuplicate(provider string) {
	if m == nil {
		return
	}
	m.duplicateTotal.WithLabelValues(provider).Inc()
}

func (m *BrokerMetrics) ObserveAtomicUpdateFailed(op string) {
	if m == nil {
		return
	}
	m.atomicUpdateFailedTotal.WithLabelValues(op).Inc()
}

func (m *BrokerMetrics) ObserveWindowClosed(intent string) {
	if m == nil {
		return
	}
	m.windowClosedTotal.WithLabelValues(intent).Inc()
}

func (m *BrokerMetrics) ObserveTemplate(result string) {
	if m == nil {
		return
	}
	m.templateTotal.WithLabelValues(result).Inc()
}

func (m *BrokerMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}
