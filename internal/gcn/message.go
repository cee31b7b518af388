// Package gcn provides the inbound GCN message types and topic routing.
package gcn

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Kind identifies the stream a message arrived on.
type Kind string

const (
	KindClassicText    Kind = "classic_text"
	KindClassicVOEvent Kind = "classic_voevent"
	KindClassicBinary  Kind = "classic_binary"
	KindNotices        Kind = "notices"
	KindCirculars      Kind = "circulars"
	KindGWAlert        Kind = "igwn_gwalert"
	KindHeartbeat      Kind = "heartbeat"
	KindUnknown        Kind = "unknown"
)

// Kinds lists every known kind in routing order.
var Kinds = []Kind{
	KindClassicText,
	KindClassicVOEvent,
	KindClassicBinary,
	KindNotices,
	KindCirculars,
	KindGWAlert,
	KindHeartbeat,
}

// Topic names and prefixes published by the network.
const (
	PrefixClassicText    = "gcn.classic.text."
	PrefixClassicVOEvent = "gcn.classic.voevent."
	PrefixClassicBinary  = "gcn.classic.binary."
	PrefixNotices        = "gcn.notices."
	TopicCirculars       = "gcn.circulars"
	TopicGWAlert         = "igwn.gwalert"
	TopicHeartbeat       = "gcn.heartbeat"
)

// Classify maps a topic name to its stream kind.
func Classify(topic string) Kind {
	switch {
	case strings.HasPrefix(topic, PrefixClassicText):
		return KindClassicText
	case strings.HasPrefix(topic, PrefixClassicVOEvent):
		return KindClassicVOEvent
	case strings.HasPrefix(topic, PrefixClassicBinary):
		return KindClassicBinary
	case strings.HasPrefix(topic, PrefixNotices):
		return KindNotices
	case topic == TopicCirculars:
		return KindCirculars
	case topic == TopicGWAlert:
		return KindGWAlert
	case topic == TopicHeartbeat:
		return KindHeartbeat
	}
	return KindUnknown
}

// Subjects returns the NATS subjects covering every GCN stream.
func Subjects(includeHeartbeat bool) []string {
	subjects := []string{
		PrefixClassicText + ">",
		PrefixClassicVOEvent + ">",
		PrefixClassicBinary + ">",
		PrefixNotices + ">",
		TopicCirculars,
		TopicGWAlert,
	}
	if includeHeartbeat {
		subjects = append([]string{TopicHeartbeat}, subjects...)
	}
	return subjects
}

// TopicMnemonic returns the packet mnemonic carried in a classic binary
// topic name (gcn.classic.binary.<MNEMONIC>), or "" for other topics.
func TopicMnemonic(topic string) string {
	if !strings.HasPrefix(topic, PrefixClassicBinary) {
		return ""
	}
	return strings.TrimPrefix(topic, PrefixClassicBinary)
}

// Message is a single record received from the network.
type Message struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Key        string    `json:"key,omitempty"`
	Value      []byte    `json:"value"`
	Kind       Kind      `json:"kind"`
	BrokerTime time.Time `json:"broker_time"`
	IngestedAt time.Time `json:"ingested_at"`
}

// NewMessage builds a message, classifying the topic and assigning an ID.
func NewMessage(topic, key string, value []byte, brokerTime time.Time) *Message {
	now := time.Now().UTC()
	if brokerTime.IsZero() {
		brokerTime = now
	}
	return &Message{
		ID:         uuid.NewString(),
		Topic:      topic,
		Key:        key,
		Value:      value,
		Kind:       Classify(topic),
		BrokerTime: brokerTime.UTC(),
		IngestedAt: now,
	}
}

// NATS headers set by the bridge that republishes broker records.
const (
	HeaderKey       = "Gcn-Key"
	HeaderTimestamp = "Gcn-Timestamp"
)

// FromNATS converts a NATS message into a Message. The subject is the
// original topic name.
func FromNATS(m *nats.Msg) *Message {
	var key string
	var ts time.Time
	if m.Header != nil {
		key = m.Header.Get(HeaderKey)
		ts, _ = ParseTimestamp(m.Header.Get(HeaderTimestamp))
	}
	return NewMessage(m.Subject, key, m.Data, ts)
}

// ParseTimestamp accepts either unix milliseconds or an RFC 3339 string.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FlexTime handles JSON timestamps that can be either unix milliseconds or
// an RFC 3339 string.
type FlexTime time.Time

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FlexTime(time.Time{})
		return nil
	}

	// Try as number first
	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil {
		*f = FlexTime(time.UnixMilli(ms).UTC())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t, _ := ParseTimestamp(s)
		*f = FlexTime(t)
		return nil
	}

	*f = FlexTime(time.Time{})
	return nil // Silently ignore unparseable timestamps
}

// Record is one line of a JSONL archive of broker records, as written by
// the bridge when replaying history. Value is base64 in JSON.
type Record struct {
	Topic     string   `json:"topic"`
	Key       string   `json:"key,omitempty"`
	Value     []byte   `json:"value"`
	Timestamp FlexTime `json:"timestamp"`
}

// ToMessage converts an archived record into a Message.
func (r *Record) ToMessage() *Message {
	if r.Topic == "" {
		return nil
	}
	return NewMessage(r.Topic, r.Key, r.Value, time.Time(r.Timestamp))
}
