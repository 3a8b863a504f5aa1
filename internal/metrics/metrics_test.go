package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	m.ConnectionsTotal.WithLabelValues(KindConnect).Inc()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "linerelay_connections_total" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected linerelay_connections_total in gathered metrics")
	}
}

func TestDialResult(t *testing.T) {
	m := New()

	m.DialResult(nil)
	m.DialResult(nil)
	m.DialResult(errors.New("refused"))

	if got := testutil.ToFloat64(m.UpstreamDials.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok dials = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UpstreamDials.WithLabelValues("error")); got != 1 {
		t.Errorf("error dials = %v, want 1", got)
	}
}

func TestAddBytes(t *testing.T) {
	m := New()

	m.AddBytes(DirectionUpstream, 10)
	m.AddBytes(DirectionUpstream, 0)
	m.AddBytes(DirectionDownstream, 5)

	if got := testutil.ToFloat64(m.BytesRelayed.WithLabelValues(DirectionUpstream)); got != 10 {
		t.Errorf("upstream bytes = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.BytesRelayed.WithLabelValues(DirectionDownstream)); got != 5 {
		t.Errorf("downstream bytes = %v, want 5", got)
	}
}
