package raw

import (
	"testing"
	"time"

	"gcn_parser/internal/gcn"
)

func TestParser(t *testing.T) {
	testCases := []struct {
		topic string
		value string
		kind  gcn.Kind
	}{
		{"gcn.circulars", `{"subject":"GRB 240101A"}`, gcn.KindCirculars},
		{"gcn.classic.voevent.SWIFT_BAT_GRB_POS_ACK", "<voe:VOEvent/>", gcn.KindClassicVOEvent},
		{"gcn.heartbeat", "", gcn.KindHeartbeat},
		{"something.else", "x", gcn.KindUnknown},
	}

	p := &Parser{}

	for _, tc := range testCases {
		t.Run(tc.topic, func(t *testing.T) {
			msg := gcn.NewMessage(tc.topic, "", []byte(tc.value), time.Time{})
			result := p.Parse(msg)
			if result == nil {
				t.Fatalf("expected result, got nil")
			}
			r, ok := result.(*Result)
			if !ok {
				t.Fatalf("expected *Result, got %T", result)
			}
			if r.Kind != tc.kind {
				t.Errorf("Kind: got %q, want %q", r.Kind, tc.kind)
			}
			if r.Size != len(tc.value) {
				t.Errorf("Size: got %d, want %d", r.Size, len(tc.value))
			}
			if r.Type() != "raw" {
				t.Errorf("Type: got %q", r.Type())
			}
		})
	}

	if p.Parse(nil) != nil {
		t.Error("Parse(nil) should return nil")
	}
}
