package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.Messages.WithLabelValues("classic_binary").Inc()
	m.Messages.WithLabelValues("classic_binary").Inc()
	m.Messages.WithLabelValues("circulars").Inc()
	m.Packets.WithLabelValues("SWIFT_BAT_GRB_ALERT").Inc()
	m.DecodeErrors.Inc()

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"gcn_messages_total", map[string]string{"kind": "classic_binary"}, 2},
		{"gcn_messages_total", map[string]string{"kind": "circulars"}, 1},
		{"gcn_packets_decoded_total", map[string]string{"pkt_type_name": "SWIFT_BAT_GRB_ALERT"}, 1},
		{"gcn_packet_decode_errors_total", nil, 1},
	}

	for _, tt := range tests {
		if got := counterValue(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.NewTriggers.Inc()

	if got := counterValue(t, b, "gcn_triggers_new_total", nil); got != 0 {
		t.Errorf("second instance saw %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.APIDecodes.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `gcn_api_decodes_total{result="ok"} 1`) {
		t.Errorf("metrics output missing api decode counter:\n%s", body)
	}
}
