// Package binary parses legacy 160-byte GCN socket packets received on the
// gcn.classic.binary.* topics.
package binary

import (
	"fmt"
	"sort"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/registry"
)

// Result is a decoded binary packet with its transport metadata.
// Packet fields are flattened into the JSON object.
type Result struct {
	MsgID         string    `json:"message_id"`
	Topic         string    `json:"topic"`
	Key           string    `json:"key,omitempty"`
	BrokerTime    time.Time `json:"broker_time"`
	TopicMnemonic string    `json:"topic_mnemonic,omitempty"`
	// TopicMismatch is set when the topic names a different packet type
	// than the one carried in slot 0. Unrecognised topic names never match.
	TopicMismatch bool `json:"topic_mismatch,omitempty"`

	packet.Decoded
}

func (r *Result) Type() string      { return "binary_packet" }
func (r *Result) MessageID() string { return r.MsgID }

// Parser decodes classic binary packets. Every payload on a binary topic
// yields a result; malformed ones carry ParseError so they can be
// quarantined instead of dropped.
type Parser struct{}

func init() {
	registry.Register(&Parser{})
}

func (p *Parser) Name() string      { return "binary" }
func (p *Parser) Kinds() []gcn.Kind { return []gcn.Kind{gcn.KindClassicBinary} }
func (p *Parser) Priority() int     { return 10 }

func (p *Parser) QuickCheck(msg *gcn.Message) bool {
	return msg != nil && msg.Kind == gcn.KindClassicBinary
}

func (p *Parser) Parse(msg *gcn.Message) registry.Result {
	if msg == nil {
		return nil
	}

	result := &Result{
		MsgID:         msg.ID,
		Topic:         msg.Topic,
		Key:           msg.Key,
		BrokerTime:    msg.BrokerTime,
		TopicMnemonic: gcn.TopicMnemonic(msg.Topic),
		Decoded:       packet.Decode(msg.Value),
	}

	if result.OK() {
		if code, ok := gcn.TopicTypeCode(msg.Topic); ok && code != *result.Decoded.Type {
			result.TopicMismatch = true
		}
	}

	return result
}

// ParseWithTrace decodes the packet and reports the raw slots and the
// reason each derived field was or was not emitted.
func (p *Parser) ParseWithTrace(msg *gcn.Message) *registry.TraceResult {
	trace := &registry.TraceResult{ParserName: p.Name()}

	passed := p.QuickCheck(msg)
	trace.QuickCheck = &registry.QuickCheck{Passed: passed}
	if !passed {
		trace.QuickCheck.Reason = "not a classic binary message"
		return trace
	}

	result, _ := p.Parse(msg).(*Result)
	trace.Matched = result != nil
	if result == nil {
		return trace
	}
	if !result.OK() {
		trace.QuickCheck.Reason = result.ParseError
		return trace
	}

	slots, err := packet.Unpack(msg.Value)
	if err != nil {
		trace.QuickCheck.Reason = err.Error()
		return trace
	}

	indices := make([]int, 0, len(packet.SlotNames))
	for i := range packet.SlotNames {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		trace.Slots = append(trace.Slots, registry.SlotTrace{
			Index: i,
			Name:  packet.SlotNames[i],
			Value: slots[i],
		})
	}

	d := result.Decoded
	scale := packet.InferScale(slots[packet.SlotBurstRA], slots[packet.SlotBurstDec])
	trace.Fields = []registry.FieldTrace{
		field("trig_num", d.TriggerNum, "trigger slot is zero or negative"),
		field("burst_time", d.Time, "TJD not positive, SOD negative, or beyond year 9999"),
		field("burst_ra_deg", d.RA, fmt.Sprintf("outside [0, 360) at scale 1/%d", scale)),
		field("burst_dec_deg", d.Dec, fmt.Sprintf("outside [-90, 90] at scale 1/%d", scale)),
		field("burst_error_deg", d.ErrorRadius, ""),
	}
	if result.TopicMismatch {
		trace.Fields = append(trace.Fields, registry.FieldTrace{
			Name:    "topic_mnemonic",
			Present: true,
			Value:   result.TopicMnemonic,
			Reason:  "differs from packet type " + result.Name(),
		})
	}

	return trace
}

func field[T any](name string, v *T, reason string) registry.FieldTrace {
	if v == nil {
		return registry.FieldTrace{Name: name, Reason: reason}
	}
	return registry.FieldTrace{Name: name, Present: true, Value: fmt.Sprint(*v)}
}
