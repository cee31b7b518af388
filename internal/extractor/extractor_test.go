package extractor

import (
	"testing"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/parsers/binary"
	"gcn_parser/internal/parsers/raw"
	"gcn_parser/internal/registry"
)

func TestFamily(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SWIFT_BAT_GRB_ALERT", "SWIFT"},
		{"SWIFT_BAT_QUICKLOOK_POSITION", "SWIFT"},
		{"FERMI_GBM_FLT_POS", "FERMI_GBM"},
		{"FERMI_GBM_SUBTHRESHOLD", "FERMI_GBM"},
		{"FERMI_LAT_GRB_POS_UPD", "FERMI_LAT"},
		{"FERMI_POINTDIR", "FERMI"},
		{"IMALIVE", "IMALIVE"},
		{"  lvc_initial ", "LVC"},
		{"swift", "SWIFT"},
		{"FERMI_GBM", "FERMI_GBM"},
		{"UNKNOWN_999", "UNKNOWN_999"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Family(tt.input); got != tt.want {
				t.Errorf("Family(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		code int32
		want string
	}{
		{60, "SWIFT"},
		{61, "SWIFT"},
		{110, "FERMI_GBM"},
		{121, "FERMI_LAT"},
		{173, "ICECUBE"},
		{999, "UNKNOWN_999"},
		{998, "UNKNOWN_998"},
	}

	for _, tt := range tests {
		if got := FamilyOf(tt.code); got != tt.want {
			t.Errorf("FamilyOf(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
	if FamilyOf(111) == FamilyOf(121) {
		t.Error("GBM and LAT triggers must not share a family")
	}
}

func binaryMessage(s packet.Slots) (*gcn.Message, []registry.Result) {
	msg := gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_POS_ACK", "", packet.Encode(s), time.Time{})
	return msg, []registry.Result{(&binary.Parser{}).Parse(msg)}
}

func TestExtractDecodedPacket(t *testing.T) {
	var s packet.Slots
	s[packet.SlotType] = 61
	s[packet.SlotSerial] = 7
	s[packet.SlotTrigNum] = 1234
	s[packet.SlotBurstTJD] = 20000
	s[packet.SlotBurstRA] = 18000
	s[packet.SlotBurstDec] = -4500
	s[packet.SlotBurstErr] = 5

	msg, results := binaryMessage(s)
	data := Extract(msg, results)

	if data.Raw == nil || data.Raw.ID != msg.ID || data.Raw.Size != packet.Size {
		t.Fatalf("raw row = %+v", data.Raw)
	}
	if len(data.Quarantine) != 0 {
		t.Errorf("unexpected quarantine rows: %+v", data.Quarantine)
	}
	if len(data.Packets) != 1 {
		t.Fatalf("got %d packet rows, want 1", len(data.Packets))
	}

	row := data.Packets[0]
	if row.PktType != 61 || row.PktTypeName != "SWIFT_BAT_GRB_POSITION" {
		t.Errorf("type = %d %q", row.PktType, row.PktTypeName)
	}
	if row.Serial != 7 || row.BurstTJD != 20000 {
		t.Errorf("serial/tjd = %d/%d", row.Serial, row.BurstTJD)
	}
	if row.TrigNum == nil || *row.TrigNum != 1234 {
		t.Errorf("TrigNum = %v", row.TrigNum)
	}
	if row.ErrorDeg != 0.05 {
		t.Errorf("ErrorDeg = %v, want 0.05", row.ErrorDeg)
	}
	if row.TopicMismatch {
		t.Error("TopicMismatch set for matching topic")
	}

	if len(data.Triggers) != 1 {
		t.Fatalf("got %d trigger updates, want 1", len(data.Triggers))
	}
	u := data.Triggers[0]
	if u.Family != "SWIFT" || u.TrigNum != 1234 {
		t.Errorf("trigger key = %s/%d", u.Family, u.TrigNum)
	}
	if !u.HasPosition() || *u.Dec != -45.0 || *u.ErrorDeg != 0.05 {
		t.Errorf("position = %v %v %v", u.RA, u.Dec, u.ErrorDeg)
	}
}

func TestExtractTriggerWithoutPosition(t *testing.T) {
	var s packet.Slots
	s[packet.SlotType] = 61
	s[packet.SlotTrigNum] = 99
	s[packet.SlotBurstRA] = 18000
	s[packet.SlotBurstDec] = 950000 // beyond the pole at either scale

	msg, results := binaryMessage(s)
	data := Extract(msg, results)

	if len(data.Triggers) != 1 {
		t.Fatalf("got %d trigger updates, want 1", len(data.Triggers))
	}
	if u := data.Triggers[0]; u.HasPosition() || u.ErrorDeg != nil {
		t.Errorf("expected no position, got %+v", u)
	}
}

func TestExtractNoTrigger(t *testing.T) {
	var s packet.Slots
	s[packet.SlotType] = 3

	msg, results := binaryMessage(s)
	data := Extract(msg, results)

	if len(data.Packets) != 1 {
		t.Fatalf("got %d packet rows, want 1", len(data.Packets))
	}
	if data.Packets[0].TrigNum != nil {
		t.Errorf("TrigNum = %d, want nil", *data.Packets[0].TrigNum)
	}
	if len(data.Triggers) != 0 {
		t.Errorf("got %d trigger updates, want 0", len(data.Triggers))
	}
}

func TestExtractQuarantine(t *testing.T) {
	msg := gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_ALERT", "", []byte("short"), time.Time{})
	data := Extract(msg, []registry.Result{(&binary.Parser{}).Parse(msg)})

	if len(data.Packets) != 0 || len(data.Triggers) != 0 {
		t.Errorf("malformed packet produced rows: %+v", data)
	}
	if len(data.Quarantine) != 1 {
		t.Fatalf("got %d quarantine rows, want 1", len(data.Quarantine))
	}
	q := data.Quarantine[0]
	if q.Size != 5 || q.Reason == "" || string(q.Payload) != "short" {
		t.Errorf("quarantine row = %+v", q)
	}
}

func TestExtractRawOnly(t *testing.T) {
	msg := gcn.NewMessage("gcn.circulars", "", []byte(`{"circularId":1}`), time.Time{})
	data := Extract(msg, []registry.Result{(&raw.Parser{}).Parse(msg)})

	if data.Raw == nil || data.Raw.Kind != gcn.KindCirculars {
		t.Fatalf("raw row = %+v", data.Raw)
	}
	if len(data.Packets)+len(data.Quarantine)+len(data.Triggers) != 0 {
		t.Errorf("non-binary message produced packet rows: %+v", data)
	}
}
