// Package extractor maps parsed GCN messages to storage rows.
// This package is database-agnostic and can be used with any storage backend.
package extractor

import (
	"strings"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/parsers/binary"
	"gcn_parser/internal/registry"
)

// RawRow is the verbatim record of every received message.
type RawRow struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Kind       gcn.Kind  `json:"kind"`
	Key        string    `json:"key,omitempty"`
	Payload    []byte    `json:"payload"`
	Size       int       `json:"size"`
	BrokerTime time.Time `json:"broker_time"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PacketRow is one successfully decoded binary packet.
type PacketRow struct {
	MessageID     string     `json:"message_id"`
	Topic         string     `json:"topic"`
	BrokerTime    time.Time  `json:"broker_time"`
	PktType       int32      `json:"pkt_type"`
	PktTypeName   string     `json:"pkt_type_name"`
	Serial        int32      `json:"pkt_sernum"`
	TrigNum       *int32     `json:"trig_num,omitempty"`
	BurstTJD      int32      `json:"burst_tjd"`
	BurstSODCenti int32      `json:"burst_sod_centi"`
	BurstTime     *time.Time `json:"burst_time,omitempty"`
	RA            *float64   `json:"burst_ra_deg,omitempty"`
	Dec           *float64   `json:"burst_dec_deg,omitempty"`
	ErrorDeg      float64    `json:"burst_error_deg"`
	TriggerID     int32      `json:"trigger_id"`
	Misc          int32      `json:"misc"`
	TopicMismatch bool       `json:"topic_mismatch"`
}

// QuarantineRow is a binary payload that could not be decoded.
type QuarantineRow struct {
	MessageID  string    `json:"message_id"`
	Topic      string    `json:"topic"`
	Reason     string    `json:"reason"`
	Payload    []byte    `json:"payload"`
	Size       int       `json:"size"`
	BrokerTime time.Time `json:"broker_time"`
}

// TriggerUpdate is the trigger-level state carried by one packet.
type TriggerUpdate struct {
	Family      string     `json:"family"`
	TrigNum     int32      `json:"trig_num"`
	PktType     int32      `json:"pkt_type"`
	PktTypeName string     `json:"pkt_type_name"`
	MessageID   string     `json:"message_id"`
	BurstTime   *time.Time `json:"burst_time,omitempty"`
	RA          *float64   `json:"ra_deg,omitempty"`
	Dec         *float64   `json:"dec_deg,omitempty"`
	ErrorDeg    *float64   `json:"error_deg,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
}

// HasPosition reports whether the update carries a usable sky position.
func (u *TriggerUpdate) HasPosition() bool {
	return u.RA != nil && u.Dec != nil
}

// ExtractedData is a container for all rows derived from a message.
type ExtractedData struct {
	Raw        *RawRow          `json:"raw,omitempty"`
	Packets    []*PacketRow     `json:"packets,omitempty"`
	Quarantine []*QuarantineRow `json:"quarantine,omitempty"`
	Triggers   []*TriggerUpdate `json:"triggers,omitempty"`
}

// Extract derives storage rows from a message and its parsed results.
func Extract(msg *gcn.Message, results []registry.Result) ExtractedData {
	data := ExtractedData{
		Raw: &RawRow{
			ID:         msg.ID,
			Topic:      msg.Topic,
			Kind:       msg.Kind,
			Key:        msg.Key,
			Payload:    msg.Value,
			Size:       len(msg.Value),
			BrokerTime: msg.BrokerTime,
			IngestedAt: msg.IngestedAt,
		},
	}

	for _, result := range results {
		r, ok := result.(*binary.Result)
		if !ok {
			continue
		}
		if !r.OK() {
			data.Quarantine = append(data.Quarantine, &QuarantineRow{
				MessageID:  r.MsgID,
				Topic:      r.Topic,
				Reason:     r.ParseError,
				Payload:    msg.Value,
				Size:       len(msg.Value),
				BrokerTime: r.BrokerTime,
			})
			continue
		}

		data.Packets = append(data.Packets, packetRow(r))
		if u := triggerUpdate(r, msg.IngestedAt); u != nil {
			data.Triggers = append(data.Triggers, u)
		}
	}

	return data
}

func packetRow(r *binary.Result) *PacketRow {
	row := &PacketRow{
		MessageID:     r.MsgID,
		Topic:         r.Topic,
		BrokerTime:    r.BrokerTime,
		PktTypeName:   r.Name(),
		TrigNum:       r.TriggerNum,
		BurstTime:     r.Time,
		RA:            r.RA,
		Dec:           r.Dec,
		TopicMismatch: r.TopicMismatch,
	}
	row.PktType = deref(r.Decoded.Type)
	row.Serial = deref(r.Serial)
	row.BurstTJD = deref(r.TJD)
	row.BurstSODCenti = deref(r.SODCenti)
	row.ErrorDeg = deref(r.ErrorRadius)
	row.TriggerID = deref(r.TriggerID)
	row.Misc = deref(r.Misc)
	return row
}

func triggerUpdate(r *binary.Result, receivedAt time.Time) *TriggerUpdate {
	if r.TriggerNum == nil {
		return nil
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	u := &TriggerUpdate{
		Family:      FamilyOf(*r.Decoded.Type),
		TrigNum:     *r.TriggerNum,
		PktType:     deref(r.Decoded.Type),
		PktTypeName: r.Name(),
		MessageID:   r.MsgID,
		BurstTime:   r.Time,
		ReceivedAt:  receivedAt,
	}
	if r.RA != nil && r.Dec != nil {
		u.RA = r.RA
		u.Dec = r.Dec
		u.ErrorDeg = r.ErrorRadius
	}
	return u
}

// familyOverrides splits missions whose instruments number triggers
// independently.
var familyOverrides = map[int32]string{
	110: "FERMI_GBM", 111: "FERMI_GBM", 112: "FERMI_GBM", 114: "FERMI_GBM",
	115: "FERMI_GBM", 116: "FERMI_GBM", 117: "FERMI_GBM", 119: "FERMI_GBM",
	131: "FERMI_GBM", 146: "FERMI_GBM",
	120: "FERMI_LAT", 121: "FERMI_LAT", 122: "FERMI_LAT", 123: "FERMI_LAT",
	124: "FERMI_LAT", 125: "FERMI_LAT", 127: "FERMI_LAT", 128: "FERMI_LAT",
}

// FamilyOf returns the trigger-numbering family of a packet type. Packets of
// one family share trigger numbers, e.g. SWIFT_BAT_GRB_ALERT and
// SWIFT_BAT_GRB_POSITION both describe Swift trigger N. Unknown codes each
// form their own family.
func FamilyOf(code int32) string {
	if f, ok := familyOverrides[code]; ok {
		return f
	}
	name := packet.TypeName(code)
	if _, known := packet.TypeCode(name); !known {
		return name
	}
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return name
}

// Family resolves a packet mnemonic to its family. Anything that is not a
// known mnemonic is taken to be a family name already.
func Family(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if code, ok := packet.TypeCode(name); ok {
		return FamilyOf(code)
	}
	return name
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
