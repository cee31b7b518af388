// Package raw records messages that no content parser handles.
package raw

import (
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/registry"
)

// Result describes an uninterpreted message.
type Result struct {
	MsgID      string    `json:"message_id"`
	Topic      string    `json:"topic"`
	Kind       gcn.Kind  `json:"kind"`
	Key        string    `json:"key,omitempty"`
	Size       int       `json:"size"`
	BrokerTime time.Time `json:"broker_time"`
}

func (r *Result) Type() string      { return "raw" }
func (r *Result) MessageID() string { return r.MsgID }

// Parser is the catch-all parser.
type Parser struct{}

func init() {
	registry.RegisterCatchAll(&Parser{})
}

func (p *Parser) Name() string                     { return "raw" }
func (p *Parser) Kinds() []gcn.Kind                { return nil }
func (p *Parser) Priority() int                    { return 1000 }
func (p *Parser) QuickCheck(msg *gcn.Message) bool { return msg != nil }

func (p *Parser) Parse(msg *gcn.Message) registry.Result {
	if msg == nil {
		return nil
	}
	return &Result{
		MsgID:      msg.ID,
		Topic:      msg.Topic,
		Kind:       msg.Kind,
		Key:        msg.Key,
		Size:       len(msg.Value),
		BrokerTime: msg.BrokerTime,
	}
}
