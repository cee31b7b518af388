package state

import (
	"fmt"
	"time"
)

// TriggerState is the accumulated view of one trigger.
type TriggerState struct {
	Family        string     `json:"family"`
	TrigNum       int32      `json:"trig_num"`
	FirstType     string     `json:"first_type"`
	LastType      string     `json:"last_type"`
	PacketCount   int        `json:"packet_count"`
	BurstTime     *time.Time `json:"burst_time,omitempty"`
	RA            *float64   `json:"ra_deg,omitempty"`
	Dec           *float64   `json:"dec_deg,omitempty"`
	ErrorDeg      *float64   `json:"error_deg,omitempty"`
	BestMessageID string     `json:"best_message_id,omitempty"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastSeen      time.Time  `json:"last_seen"`
}

// HasPosition reports whether a position has been recorded.
func (s *TriggerState) HasPosition() bool {
	return s.RA != nil && s.Dec != nil
}

func triggerKey(family string, trigNum int32) string {
	return fmt.Sprintf("%s/%d", family, trigNum)
}

// Key returns the tracker key for the trigger.
func (s *TriggerState) Key() string {
	return triggerKey(s.Family, s.TrigNum)
}
