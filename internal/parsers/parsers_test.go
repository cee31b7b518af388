package parsers

import (
	"testing"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/registry"
)

func TestDefaultRegistryRouting(t *testing.T) {
	reg := registry.Default()
	reg.Sort()

	var s packet.Slots
	s[packet.SlotType] = 110
	binMsg := gcn.NewMessage("gcn.classic.binary.FERMI_GBM_ALERT", "", packet.Encode(s), time.Time{})
	textMsg := gcn.NewMessage("gcn.circulars", "", []byte("{}"), time.Time{})

	tests := []struct {
		name string
		msg  *gcn.Message
		want string
	}{
		{"binary", binMsg, "binary_packet"},
		{"circular", textMsg, "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := reg.Dispatch(tt.msg)
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			if results[0].Type() != tt.want {
				t.Errorf("Type = %q, want %q", results[0].Type(), tt.want)
			}
		})
	}

	if got := reg.ParserCount(); got != 2 {
		t.Errorf("ParserCount = %d, want 2", got)
	}
}
