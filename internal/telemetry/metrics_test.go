package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wisbric/argusd/pkg/alert"
)

func TestAllReturnsEveryCollector(t *testing.T) {
	m := New()
	if len(m.All()) == 0 {
		t.Fatalf("expected at least one collector")
	}
}

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.IncReceived()
	m.IncFiltered()
	m.IncCreated()
	m.IncNocDecision(alert.HandleCreate)

	if v := counterValue(t, m.received); v != 1 {
		t.Fatalf("expected received=1, got %v", v)
	}
	if v := counterVecValue(t, m.nocByKind, alert.HandleCreate.String()); v != 1 {
		t.Fatalf("expected HandleCreate decision count 1, got %v", v)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func counterVecValue(t *testing.T, cv *prometheus.CounterVec, label string) float64 {
	t.Helper()
	var m dto.Metric
	if err := cv.WithLabelValues(label).Write(&m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
