// Package registry provides tracing interfaces for parser debugging.
package registry

import "gcn_parser/internal/gcn"

// TraceResult contains trace information from a parser's attempt to parse a message.
type TraceResult struct {
	ParserName string       `json:"parser_name"`           // Name of the parser.
	QuickCheck *QuickCheck  `json:"quick_check,omitempty"` // QuickCheck result (nil if not applicable).
	Slots      []SlotTrace  `json:"slots,omitempty"`       // Raw slot values consulted by the parser.
	Fields     []FieldTrace `json:"fields,omitempty"`      // Derived field decisions.
	Matched    bool         `json:"matched"`               // Whether the parser produced a result.
}

// QuickCheck contains the result of a parser's quick check.
type QuickCheck struct {
	Passed bool   `json:"passed"`           // Whether the quick check passed.
	Reason string `json:"reason,omitempty"` // Optional reason for the result.
}

// SlotTrace is one raw integer read from a packet.
type SlotTrace struct {
	Index int    `json:"index"` // Slot index (0..39).
	Name  string `json:"name"`  // Slot name (e.g., "burst_ra").
	Value int32  `json:"value"` // Raw signed value.
}

// FieldTrace records whether a derived field was emitted and why.
type FieldTrace struct {
	Name    string `json:"name"`             // Output field name (e.g., "burst_ra_deg").
	Present bool   `json:"present"`          // Whether the field appears in the result.
	Value   string `json:"value,omitempty"`  // Formatted value when present.
	Reason  string `json:"reason,omitempty"` // Why the field was omitted, if it was.
}

// Traceable is implemented by parsers that support debug tracing.
type Traceable interface {
	// ParseWithTrace parses the message and returns the decisions taken.
	ParseWithTrace(msg *gcn.Message) *TraceResult
}
