package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gcn_parser/internal/extractor"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/state"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PostgresDB wraps a PostgreSQL connection pool for trigger state storage.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	-- Reference data: packet type table
	CREATE TABLE IF NOT EXISTS packet_types (
		code            INTEGER PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE
	);

	-- Per-trigger state with the best position seen so far
	CREATE TABLE IF NOT EXISTS trigger_state (
		family          TEXT NOT NULL,
		trig_num        INTEGER NOT NULL,
		first_type      TEXT NOT NULL,
		last_type       TEXT NOT NULL,
		packet_count    INTEGER NOT NULL DEFAULT 1,
		burst_time      TIMESTAMPTZ,
		ra_deg          DOUBLE PRECISION,
		dec_deg         DOUBLE PRECISION,
		error_deg       DOUBLE PRECISION,
		best_message_id TEXT,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (family, trig_num)
	);

	CREATE INDEX IF NOT EXISTS idx_trigger_state_last_seen ON trigger_state(last_seen);
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SeedPacketTypes writes the packet type table, replacing stale names.
func (d *PostgresDB) SeedPacketTypes(ctx context.Context, types []packet.TypeEntry) error {
	batch := &pgx.Batch{}
	for _, t := range types {
		batch.Queue(`
			INSERT INTO packet_types (code, name) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		`, t.Code, t.Name)
	}

	br := d.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	for range types {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seed packet types: %w", err)
		}
	}
	return nil
}

// UpsertTrigger folds a trigger update into trigger_state. The stored position
// is replaced only when the update has one and it is the first, or its error
// radius is strictly smaller. Returns true if the row was inserted.
func (d *PostgresDB) UpsertTrigger(ctx context.Context, u *extractor.TriggerUpdate) (bool, error) {
	var bestID *string
	if u.HasPosition() {
		bestID = &u.MessageID
	}

	var inserted bool
	err := d.pool.QueryRow(ctx, `
		INSERT INTO trigger_state (family, trig_num, first_type, last_type, packet_count,
			burst_time, ra_deg, dec_deg, error_deg, best_message_id, first_seen, last_seen)
		VALUES ($1, $2, $3, $3, 1, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (family, trig_num) DO UPDATE SET
			last_type = EXCLUDED.last_type,
			packet_count = trigger_state.packet_count + 1,
			burst_time = COALESCE(EXCLUDED.burst_time, trigger_state.burst_time),
			ra_deg = CASE WHEN `+betterPosition+` THEN EXCLUDED.ra_deg ELSE trigger_state.ra_deg END,
			dec_deg = CASE WHEN `+betterPosition+` THEN EXCLUDED.dec_deg ELSE trigger_state.dec_deg END,
			error_deg = CASE WHEN `+betterPosition+` THEN EXCLUDED.error_deg ELSE trigger_state.error_deg END,
			best_message_id = CASE WHEN `+betterPosition+` THEN EXCLUDED.best_message_id ELSE trigger_state.best_message_id END,
			last_seen = GREATEST(trigger_state.last_seen, EXCLUDED.last_seen)
		RETURNING (xmax = 0)
	`, u.Family, u.TrigNum, u.PktTypeName, u.BurstTime, u.RA, u.Dec, u.ErrorDeg, bestID, u.ReceivedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert trigger: %w", err)
	}
	return inserted, nil
}

const betterPosition = `(EXCLUDED.ra_deg IS NOT NULL AND (trigger_state.ra_deg IS NULL OR
	(EXCLUDED.error_deg IS NOT NULL AND (trigger_state.error_deg IS NULL OR EXCLUDED.error_deg < trigger_state.error_deg))))`

const triggerColumns = `family, trig_num, first_type, last_type, packet_count,
	burst_time, ra_deg, dec_deg, error_deg, COALESCE(best_message_id, ''), first_seen, last_seen`

func scanTrigger(row pgx.Row) (*state.TriggerState, error) {
	var ts state.TriggerState
	err := row.Scan(&ts.Family, &ts.TrigNum, &ts.FirstType, &ts.LastType, &ts.PacketCount,
		&ts.BurstTime, &ts.RA, &ts.Dec, &ts.ErrorDeg, &ts.BestMessageID, &ts.FirstSeen, &ts.LastSeen)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// GetTrigger returns the state for one trigger, or nil if unknown.
func (d *PostgresDB) GetTrigger(ctx context.Context, family string, trigNum int32) (*state.TriggerState, error) {
	ts, err := scanTrigger(d.pool.QueryRow(ctx, `
		SELECT `+triggerColumns+`
		FROM trigger_state WHERE family = $1 AND trig_num = $2
	`, family, trigNum))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}
	return ts, nil
}

// ListTriggers returns triggers seen since the given time, most recent first.
func (d *PostgresDB) ListTriggers(ctx context.Context, since time.Time, limit int) ([]*state.TriggerState, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.pool.Query(ctx, `
		SELECT `+triggerColumns+`
		FROM trigger_state
		WHERE last_seen >= $1
		ORDER BY last_seen DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*state.TriggerState
	for rows.Next() {
		ts, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		triggers = append(triggers, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}
