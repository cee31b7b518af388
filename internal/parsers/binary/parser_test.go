package binary

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
)

func swiftAlert() []byte {
	var s packet.Slots
	s[packet.SlotType] = 60
	s[packet.SlotSerial] = 12345
	s[packet.SlotTrigNum] = 67890
	s[packet.SlotBurstTJD] = 20000
	s[packet.SlotBurstSOD] = 4320000
	s[packet.SlotBurstRA] = 18000
	s[packet.SlotBurstDec] = 4500
	s[packet.SlotBurstErr] = 100
	s[packet.SlotTerm] = 10
	return packet.Encode(s)
}

func packetOfType(code int32) []byte {
	var s packet.Slots
	s[packet.SlotType] = code
	s[packet.SlotTrigNum] = 1001
	return packet.Encode(s)
}

func TestTopicAliasesMatch(t *testing.T) {
	tests := []struct {
		topic        string
		code         int32
		wantMismatch bool
	}{
		{"gcn.classic.binary.SWIFT_BAT_GRB_POS_ACK", 61, false},
		{"gcn.classic.binary.SWIFT_BAT_QL_POS", 97, false},
		{"gcn.classic.binary.SWIFT_UVOT_POS", 81, false},
		{"gcn.classic.binary.FERMI_GBM_FLT_POS", 111, false},
		{"gcn.classic.binary.FERMI_GBM_FIN_POS", 115, false},
		{"gcn.classic.binary.FERMI_LAT_POS_UPD", 121, false},
		{"gcn.classic.binary.LVC_PRELIMINARY", 150, false},
		{"gcn.classic.binary.SWIFT_BAT_GRB_POS_ACK", 60, true},
		{"gcn.classic.binary.SWIFT_UVOT_POS", 61, true},
		{"gcn.classic.binary.SOMETHING_NEW", 61, false},
	}

	p := &Parser{}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			r := p.Parse(gcn.NewMessage(tt.topic, "", packetOfType(tt.code), time.Time{})).(*Result)
			if !r.OK() {
				t.Fatalf("unexpected parse error: %s", r.ParseError)
			}
			if r.TopicMismatch != tt.wantMismatch {
				t.Errorf("TopicMismatch(%s, %d) = %v, want %v", tt.topic, tt.code, r.TopicMismatch, tt.wantMismatch)
			}
		})
	}
}

func TestParser(t *testing.T) {
	testCases := []struct {
		name         string
		topic        string
		value        []byte
		wantType     string
		wantError    string
		wantMismatch bool
	}{
		{
			name:     "matching topic",
			topic:    "gcn.classic.binary.SWIFT_BAT_GRB_ALERT",
			value:    swiftAlert(),
			wantType: "SWIFT_BAT_GRB_ALERT",
		},
		{
			name:         "topic names another type",
			topic:        "gcn.classic.binary.FERMI_GBM_ALERT",
			value:        swiftAlert(),
			wantType:     "SWIFT_BAT_GRB_ALERT",
			wantMismatch: true,
		},
		{
			name:      "short payload",
			topic:     "gcn.classic.binary.SWIFT_BAT_GRB_ALERT",
			value:     []byte("too short"),
			wantError: "invalid packet size: 9 bytes",
		},
		{
			name:      "empty payload",
			topic:     "gcn.classic.binary.SWIFT_BAT_GRB_ALERT",
			value:     nil,
			wantError: "null input",
		},
	}

	p := &Parser{}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := gcn.NewMessage(tc.topic, "k", tc.value, time.Time{})
			if !p.QuickCheck(msg) {
				t.Fatal("QuickCheck rejected a binary message")
			}

			result := p.Parse(msg)
			if result == nil {
				t.Fatalf("expected result, got nil")
			}
			r, ok := result.(*Result)
			if !ok {
				t.Fatalf("expected *Result, got %T", result)
			}

			if r.MessageID() != msg.ID {
				t.Errorf("MessageID: got %q, want %q", r.MessageID(), msg.ID)
			}
			if tc.wantError != "" {
				if !strings.Contains(r.ParseError, tc.wantError) {
					t.Errorf("ParseError: got %q, want substring %q", r.ParseError, tc.wantError)
				}
				if r.TopicMismatch {
					t.Error("failed packets must not report a topic mismatch")
				}
				return
			}
			if r.Name() != tc.wantType {
				t.Errorf("TypeName: got %q, want %q", r.Name(), tc.wantType)
			}
			if r.TopicMismatch != tc.wantMismatch {
				t.Errorf("TopicMismatch: got %v, want %v", r.TopicMismatch, tc.wantMismatch)
			}
		})
	}
}

func TestQuickCheckRejectsOtherKinds(t *testing.T) {
	p := &Parser{}
	msg := gcn.NewMessage("gcn.classic.text.SWIFT_BAT_GRB_ALERT", "", swiftAlert(), time.Time{})
	if p.QuickCheck(msg) {
		t.Error("QuickCheck accepted a text message")
	}
	if p.QuickCheck(nil) {
		t.Error("QuickCheck accepted nil")
	}
}

func TestResultJSONFlattensPacket(t *testing.T) {
	msg := gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_ALERT", "", swiftAlert(), time.Time{})
	data, err := json.Marshal((&Parser{}).Parse(msg))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["pkt_type_name"] != "SWIFT_BAT_GRB_ALERT" {
		t.Errorf("pkt_type_name = %v", m["pkt_type_name"])
	}
	if m["burst_ra_deg"] != 180.0 {
		t.Errorf("burst_ra_deg = %v", m["burst_ra_deg"])
	}
	if m["topic"] != msg.Topic {
		t.Errorf("topic = %v", m["topic"])
	}
	if _, ok := m["topic_mismatch"]; ok {
		t.Error("topic_mismatch present for a matching topic")
	}
}

func TestParseWithTrace(t *testing.T) {
	p := &Parser{}

	var s packet.Slots
	s[packet.SlotType] = 111
	s[packet.SlotBurstRA] = 3600000
	s[packet.SlotBurstDec] = 100000
	msg := gcn.NewMessage("gcn.classic.binary.FERMI_GBM_FLT_POS", "", packet.Encode(s), time.Time{})

	trace := p.ParseWithTrace(msg)
	if !trace.Matched || !trace.QuickCheck.Passed {
		t.Fatalf("trace did not match: %+v", trace)
	}
	if len(trace.Slots) != len(packet.SlotNames) {
		t.Errorf("got %d slot traces, want %d", len(trace.Slots), len(packet.SlotNames))
	}
	if trace.Slots[0].Name != "pkt_type" || trace.Slots[0].Value != 111 {
		t.Errorf("first slot = %+v", trace.Slots[0])
	}

	fields := make(map[string]bool)
	for _, f := range trace.Fields {
		fields[f.Name] = f.Present
	}
	want := map[string]bool{
		"trig_num":        false,
		"burst_time":      false,
		"burst_ra_deg":    false,
		"burst_dec_deg":   true,
		"burst_error_deg": true,
	}
	for name, present := range want {
		if fields[name] != present {
			t.Errorf("%s present = %v, want %v", name, fields[name], present)
		}
	}

	bad := p.ParseWithTrace(gcn.NewMessage("gcn.classic.binary.X", "", []byte{1, 2}, time.Time{}))
	if !bad.Matched || bad.QuickCheck.Reason == "" || len(bad.Slots) != 0 {
		t.Errorf("malformed packet trace = %+v", bad)
	}
}
