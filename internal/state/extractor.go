package state

import (
	"gcn_parser/internal/extractor"
)

// Apply folds extracted trigger updates into the tracker and returns the
// resulting states.
func Apply(t *Tracker, updates []*extractor.TriggerUpdate) []*TriggerState {
	var states []*TriggerState
	for _, u := range updates {
		if ts, _ := t.Update(u); ts != nil {
			states = append(states, ts)
		}
	}
	return states
}
