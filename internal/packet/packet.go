// Package packet decodes the legacy GCN 160-byte binary socket packet.
//
// A packet is 40 big-endian signed 32-bit slots. The layout depends on the
// packet type, but most types share a common header and burst position block
// which is what Decode extracts. Type-specific slots beyond that block are
// not interpreted.
package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// Size is the fixed length of a binary packet in bytes.
	Size = 160
	// NumSlots is the number of 32-bit fields in a packet.
	NumSlots = Size / 4
)

// Slot positions of the common fields.
const (
	SlotType      = 0
	SlotSerial    = 1
	SlotHopCount  = 2
	SlotPktSOD    = 3
	SlotTrigNum   = 4
	SlotBurstTJD  = 5
	SlotBurstSOD  = 6
	SlotBurstRA   = 7
	SlotBurstDec  = 8
	SlotBurstErr  = 11
	SlotTriggerID = 18
	SlotMisc      = 19
	SlotTerm      = 39
)

// SlotNames labels the common slots for diagnostics.
var SlotNames = map[int]string{
	SlotType:      "pkt_type",
	SlotSerial:    "pkt_sernum",
	SlotHopCount:  "pkt_hop_cnt",
	SlotPktSOD:    "pkt_sod",
	SlotTrigNum:   "trig_num",
	SlotBurstTJD:  "burst_tjd",
	SlotBurstSOD:  "burst_sod",
	SlotBurstRA:   "burst_ra",
	SlotBurstDec:  "burst_dec",
	SlotBurstErr:  "burst_error",
	SlotTriggerID: "trigger_id",
	SlotMisc:      "misc",
	SlotTerm:      "pkt_term",
}

// Slots is the unpacked form of a packet.
type Slots [NumSlots]int32

// Decoded is the result of decoding one packet. Every field other than
// ParseError is nil when it does not apply to the packet or could not be
// derived; when ParseError is set, all other fields are nil.
type Decoded struct {
	Type        *int32     `json:"pkt_type,omitempty"`
	TypeName    *string    `json:"pkt_type_name,omitempty"`
	Serial      *int32     `json:"pkt_sernum,omitempty"`
	TriggerNum  *int32     `json:"trig_num,omitempty"`
	TJD         *int32     `json:"burst_tjd,omitempty"`
	SODCenti    *int32     `json:"burst_sod_centi,omitempty"`
	Time        *time.Time `json:"burst_time,omitempty"`
	RA          *float64   `json:"burst_ra_deg,omitempty"`
	Dec         *float64   `json:"burst_dec_deg,omitempty"`
	ErrorRadius *float64   `json:"burst_error_deg,omitempty"`
	TriggerID   *int32     `json:"trigger_id,omitempty"`
	Misc        *int32     `json:"misc,omitempty"`
	ParseError  string     `json:"parse_error,omitempty"`
}

// OK reports whether the packet decoded without error.
func (d *Decoded) OK() bool {
	return d.ParseError == ""
}

// Name returns the type mnemonic, or "" for a failed decode.
func (d *Decoded) Name() string {
	if d.TypeName == nil {
		return ""
	}
	return *d.TypeName
}

// Decode interprets a 160-byte packet. It never panics and never returns an
// error value: failures are reported through ParseError.
func Decode(data []byte) (d Decoded) {
	if data == nil {
		return failed("packet data is nil (null input)")
	}
	if len(data) != Size {
		return failed(fmt.Sprintf("invalid packet size: %d bytes (expected %d)", len(data), Size))
	}

	defer func() {
		if r := recover(); r != nil {
			d = failed(fmt.Sprintf("unexpected decode error: %v", r))
		}
	}()

	slots, err := Unpack(data)
	if err != nil {
		return failed(fmt.Sprintf("unpack error: %v", err))
	}
	return decodeSlots(&slots)
}

// Unpack reads the 40 big-endian slots of a packet.
func Unpack(data []byte) (Slots, error) {
	var s Slots
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &s); err != nil {
		return Slots{}, err
	}
	return s, nil
}

// Encode packs slots back into wire form.
func Encode(s Slots) []byte {
	buf := make([]byte, Size)
	for i, v := range s {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func decodeSlots(s *Slots) Decoded {
	pktType := s[SlotType]
	d := Decoded{
		Type:      ptr(pktType),
		TypeName:  ptr(TypeName(pktType)),
		Serial:    ptr(s[SlotSerial]),
		TJD:       ptr(s[SlotBurstTJD]),
		SODCenti:  ptr(s[SlotBurstSOD]),
		TriggerID: ptr(s[SlotTriggerID]),
		Misc:      ptr(s[SlotMisc]),
	}

	// Zero or negative means the type carries no trigger number.
	if trig := s[SlotTrigNum]; trig > 0 {
		d.TriggerNum = ptr(trig)
	}

	if t, ok := TJDToTime(s[SlotBurstTJD], s[SlotBurstSOD]); ok {
		d.Time = &t
	}

	rawRA, rawDec := s[SlotBurstRA], s[SlotBurstDec]
	scale := InferScale(rawRA, rawDec)

	// A wrong scale guess yields impossible coordinates; omit them rather
	// than report a bad number.
	if ra := ToDegrees(int64(rawRA), scale); ra >= 0 && ra < 360 {
		d.RA = ptr(ra)
	}
	if dec := ToDegrees(int64(rawDec), scale); dec >= -90 && dec <= 90 {
		d.Dec = ptr(dec)
	}

	// The sign of the error radius carries no meaning.
	errRadius := int64(s[SlotBurstErr])
	if errRadius < 0 {
		errRadius = -errRadius
	}
	d.ErrorRadius = ptr(ToDegrees(errRadius, scale))

	return d
}

func failed(msg string) Decoded {
	return Decoded{ParseError: msg}
}

func ptr[T any](v T) *T {
	return &v
}
