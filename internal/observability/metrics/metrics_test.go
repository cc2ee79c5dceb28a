package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestBrokerMetricsObserve(t *testing.T) {
	m := NewForTest()
	m.ObserveDuplicate("whatsapp")
	m.ObserveAtomicUpdateFailed("deposit_paid")
	m.ObserveWindowClosed("qualifying_question")
	m.ObserveTemplate("used")
	m.ObserveWebhookLatency("stripe", 0.05)
}

func TestBrokerMetricsCounterValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBrokerMetrics(reg)
	m.ObserveDuplicate("whatsapp")
	m.ObserveDuplicate("whatsapp")
	m.ObserveDuplicate("stripe")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var dupes *dto.MetricFamily
	for _, fam := range families {
		if fam.GetName() == "broker_duplicate_total" {
			dupes = fam
		}
	}
	if dupes == nil {
		t.Fatal("broker_duplicate_total not registered")
	}
	byProvider := map[string]float64{}
	for _, metric := range dupes.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "provider" {
				byProvider[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if byProvider["whatsapp"] != 2 || byProvider["stripe"] != 1 {
		t.Fatalf("unexpected counts: %v", byProvider)
	}
}

func TestBrokerMetricsNilSafe(t *testing.T) {
	var m *BrokerMetrics
	m.ObserveDuplicate("whatsapp")
	m.ObserveAtomicUpdateFailed("op")
	m.ObserveWindowClosed("intent")
	m.ObserveTemplate("blocked")
	m.ObserveWebhookLatency("whatsapp", 0.1)
}
