package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gcn_parser/internal/state"
)

// FromTracker serves trigger lookups from an in-process tracker.
func FromTracker(t *state.Tracker) TriggerStore {
	return trackerStore{t}
}

type trackerStore struct {
	t *state.Tracker
}

func (s trackerStore) GetTrigger(_ context.Context, family string, trigNum int32) (*state.TriggerState, error) {
	return s.t.Get(family, trigNum), nil
}

func (s trackerStore) ListTriggers(_ context.Context, since time.Time, limit int) ([]*state.TriggerState, error) {
	var out []*state.TriggerState
	for _, ts := range s.t.All() {
		if ts.LastSeen.Before(since) {
			break
		}
		out = append(out, ts)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
