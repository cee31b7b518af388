package state

import (
	"database/sql"
	"sort"
	"sync"

	"gcn_parser/internal/extractor"

	_ "modernc.org/sqlite"
)

// Tracker manages trigger state.
type Tracker struct {
	db *sql.DB
	mu sync.RWMutex

	// In-memory trigger state cache for fast access.
	triggers map[string]*TriggerState

	// Callbacks for change notifications.
	onTriggerNew       func(*TriggerState)
	onPositionImproved func(*TriggerState)
}

// NewTracker creates a new state tracker with the given database path.
// If dbPath is empty or ":memory:", uses an in-memory database.
func NewTracker(dbPath string) (*Tracker, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// An in-memory database only lives as long as its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	t := &Tracker{
		db:       db,
		triggers: make(map[string]*TriggerState),
	}

	if err := t.loadTriggerStates(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return t, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// OnTriggerNew sets a callback for the first packet of a trigger.
func (t *Tracker) OnTriggerNew(fn func(*TriggerState)) {
	t.onTriggerNew = fn
}

// OnPositionImproved sets a callback for when a known trigger gains its first
// position or a strictly smaller error radius.
func (t *Tracker) OnPositionImproved(fn func(*TriggerState)) {
	t.onPositionImproved = fn
}

func (t *Tracker) loadTriggerStates() error {
	rows, err := t.db.Query(selectTriggerState)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		ts, err := scanTriggerState(rows)
		if err != nil {
			continue
		}
		t.triggers[ts.Key()] = ts
	}

	return rows.Err()
}

// Update folds a trigger update into the tracked state. It returns a copy
// of the resulting state and whether the trigger was new.
func (t *Tracker) Update(u *extractor.TriggerUpdate) (*TriggerState, bool) {
	if u == nil || u.TrigNum <= 0 {
		return nil, false
	}

	t.mu.Lock()

	key := triggerKey(u.Family, u.TrigNum)
	ts, exists := t.triggers[key]
	if !exists {
		ts = &TriggerState{
			Family:    u.Family,
			TrigNum:   u.TrigNum,
			FirstType: u.PktTypeName,
			FirstSeen: u.ReceivedAt,
		}
		t.triggers[key] = ts
	}

	ts.LastType = u.PktTypeName
	ts.LastSeen = u.ReceivedAt
	ts.PacketCount++
	if u.BurstTime != nil {
		bt := *u.BurstTime
		ts.BurstTime = &bt
	}

	improved := false
	if u.HasPosition() && betterPosition(ts, u) {
		ra, dec := *u.RA, *u.Dec
		ts.RA, ts.Dec = &ra, &dec
		if u.ErrorDeg != nil {
			e := *u.ErrorDeg
			ts.ErrorDeg = &e
		}
		ts.BestMessageID = u.MessageID
		improved = exists
	}

	t.saveTriggerState(ts)
	snapshot := copyState(ts)

	t.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the tracker.
	if !exists && t.onTriggerNew != nil {
		t.onTriggerNew(copyState(snapshot))
	}
	if improved && t.onPositionImproved != nil {
		t.onPositionImproved(copyState(snapshot))
	}

	return snapshot, !exists
}

// betterPosition reports whether u should replace the stored position.
func betterPosition(ts *TriggerState, u *extractor.TriggerUpdate) bool {
	if !ts.HasPosition() {
		return true
	}
	if u.ErrorDeg == nil {
		return false
	}
	if ts.ErrorDeg == nil {
		return true
	}
	return *u.ErrorDeg < *ts.ErrorDeg
}

// saveTriggerState persists a trigger state to the database.
func (t *Tracker) saveTriggerState(ts *TriggerState) {
	_, err := t.db.Exec(`
		INSERT INTO trigger_state (family, trig_num, first_type, last_type, packet_count,
		                           burst_time, ra_deg, dec_deg, error_deg, best_message_id,
		                           first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(family, trig_num) DO UPDATE SET
			last_type = excluded.last_type,
			packet_count = excluded.packet_count,
			burst_time = excluded.burst_time,
			ra_deg = excluded.ra_deg,
			dec_deg = excluded.dec_deg,
			error_deg = excluded.error_deg,
			best_message_id = excluded.best_message_id,
			last_seen = excluded.last_seen
	`,
		ts.Family, ts.TrigNum, ts.FirstType, ts.LastType, ts.PacketCount,
		ts.BurstTime, ts.RA, ts.Dec, ts.ErrorDeg, ts.BestMessageID,
		ts.FirstSeen, ts.LastSeen,
	)
	// Silently ignore errors - persistence is best-effort, memory is authoritative.
	_ = err
}

// Get returns a copy of the state for one trigger, or nil if unknown.
func (t *Tracker) Get(family string, trigNum int32) *TriggerState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ts, ok := t.triggers[triggerKey(family, trigNum)]
	if !ok {
		return nil
	}
	return copyState(ts)
}

// All returns copies of every tracked trigger, most recently seen first.
func (t *Tracker) All() []*TriggerState {
	t.mu.RLock()
	out := make([]*TriggerState, 0, len(t.triggers))
	for _, ts := range t.triggers {
		out = append(out, copyState(ts))
	}
	t.mu.RUnlock()

	sortByLastSeen(out)
	return out
}

// Count returns the number of tracked triggers.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.triggers)
}

func sortByLastSeen(states []*TriggerState) {
	sort.Slice(states, func(i, j int) bool {
		if !states[i].LastSeen.Equal(states[j].LastSeen) {
			return states[i].LastSeen.After(states[j].LastSeen)
		}
		return states[i].Key() < states[j].Key()
	})
}

func copyState(ts *TriggerState) *TriggerState {
	c := *ts
	if ts.BurstTime != nil {
		bt := *ts.BurstTime
		c.BurstTime = &bt
	}
	if ts.RA != nil {
		v := *ts.RA
		c.RA = &v
	}
	if ts.Dec != nil {
		v := *ts.Dec
		c.Dec = &v
	}
	if ts.ErrorDeg != nil {
		v := *ts.ErrorDeg
		c.ErrorDeg = &v
	}
	return &c
}
