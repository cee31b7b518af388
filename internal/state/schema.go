// Package state tracks per-trigger burst state across packets.
package state

// schema contains the SQLite table definitions for state tracking.
const schema = `
-- One row per (family, trigger number), holding the best position seen.
CREATE TABLE IF NOT EXISTS trigger_state (
	family          TEXT NOT NULL,
	trig_num        INTEGER NOT NULL,
	first_type      TEXT NOT NULL,
	last_type       TEXT NOT NULL,
	packet_count    INTEGER NOT NULL DEFAULT 1,
	burst_time      DATETIME,
	ra_deg          REAL,
	dec_deg         REAL,
	error_deg       REAL,
	best_message_id TEXT,
	first_seen      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (family, trig_num)
);

CREATE INDEX IF NOT EXISTS idx_trigger_state_last_seen ON trigger_state(last_seen);
`
