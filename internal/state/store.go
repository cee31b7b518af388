package state

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

const selectTriggerState = `
	SELECT family, trig_num, first_type, last_type, packet_count,
	       burst_time, ra_deg, dec_deg, error_deg, best_message_id,
	       first_seen, last_seen
	FROM trigger_state`

// Store reads trigger state directly from a tracker database on every call,
// so a process serving the file sees what a separate ingest process writes.
type Store struct {
	db *sql.DB
}

// OpenStore opens the tracker database at path for reading.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetTrigger returns the state of one trigger, or nil if it is unknown.
func (s *Store) GetTrigger(ctx context.Context, family string, trigNum int32) (*TriggerState, error) {
	rows, err := s.db.QueryContext(ctx, selectTriggerState+` WHERE family = ? AND trig_num = ?`, family, trigNum)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanTriggerState(rows)
}

// ListTriggers returns triggers seen at or after since, most recent first.
// A limit of zero or less means no limit.
func (s *Store) ListTriggers(ctx context.Context, since time.Time, limit int) ([]*TriggerState, error) {
	rows, err := s.db.QueryContext(ctx, selectTriggerState)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var all []*TriggerState
	for rows.Next() {
		ts, err := scanTriggerState(rows)
		if err != nil {
			return nil, err
		}
		if ts.LastSeen.Before(since) {
			continue
		}
		all = append(all, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Timestamps are stored as text, so ordering happens here rather than
	// in SQL.
	sortByLastSeen(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func scanTriggerState(rows *sql.Rows) (*TriggerState, error) {
	var ts TriggerState
	var burstTime sql.NullTime
	var ra, dec, errDeg sql.NullFloat64
	var bestID sql.NullString

	err := rows.Scan(
		&ts.Family, &ts.TrigNum, &ts.FirstType, &ts.LastType, &ts.PacketCount,
		&burstTime, &ra, &dec, &errDeg, &bestID,
		&ts.FirstSeen, &ts.LastSeen,
	)
	if err != nil {
		return nil, err
	}

	if burstTime.Valid {
		bt := burstTime.Time.UTC()
		ts.BurstTime = &bt
	}
	if ra.Valid && dec.Valid {
		ts.RA = &ra.Float64
		ts.Dec = &dec.Float64
	}
	if errDeg.Valid {
		ts.ErrorDeg = &errDeg.Float64
	}
	ts.BestMessageID = bestID.String
	return &ts, nil
}
