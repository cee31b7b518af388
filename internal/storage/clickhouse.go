// Package storage provides persistent storage for received GCN messages and
// decoded packets.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"gcn_parser/internal/extractor"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouseDB wraps a ClickHouse connection for message storage.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS raw_messages (
			id              String,
			topic           LowCardinality(String),
			kind            LowCardinality(String),
			key             String,
			payload         String,
			size            UInt32,
			broker_time     DateTime64(3, 'UTC'),
			ingested_at     DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(broker_time)
		ORDER BY (kind, topic, broker_time)`,

		`CREATE TABLE IF NOT EXISTS binary_packets (
			message_id      String,
			topic           LowCardinality(String),
			broker_time     DateTime64(3, 'UTC'),
			pkt_type        Int32,
			pkt_type_name   LowCardinality(String),
			pkt_sernum      Int32,
			trig_num        Nullable(Int32),
			burst_tjd       Int32,
			burst_sod_centi Int32,
			burst_time      Nullable(DateTime64(3, 'UTC')),
			burst_ra_deg    Nullable(Float64),
			burst_dec_deg   Nullable(Float64),
			burst_error_deg Float64,
			trigger_id      Int32,
			misc            Int32,
			topic_mismatch  Bool
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(broker_time)
		ORDER BY (pkt_type_name, broker_time)`,

		`CREATE TABLE IF NOT EXISTS quarantine (
			message_id      String,
			topic           LowCardinality(String),
			reason          String,
			payload         String,
			size            UInt32,
			broker_time     DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree()
		ORDER BY (topic, broker_time)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// InsertRaw stores raw message rows in one batch.
func (d *ClickHouseDB) InsertRaw(ctx context.Context, rows []*extractor.RawRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO raw_messages (id, topic, kind, key, payload, size, broker_time, ingested_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err := batch.Append(r.ID, r.Topic, string(r.Kind), r.Key, string(r.Payload), uint32(r.Size), r.BrokerTime, r.IngestedAt)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertPackets stores decoded packet rows in one batch.
func (d *ClickHouseDB) InsertPackets(ctx context.Context, rows []*extractor.PacketRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO binary_packets (message_id, topic, broker_time, pkt_type, pkt_type_name, pkt_sernum,
			trig_num, burst_tjd, burst_sod_centi, burst_time, burst_ra_deg, burst_dec_deg,
			burst_error_deg, trigger_id, misc, topic_mismatch)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range rows {
		err := batch.Append(p.MessageID, p.Topic, p.BrokerTime, p.PktType, p.PktTypeName, p.Serial,
			p.TrigNum, p.BurstTJD, p.BurstSODCenti, p.BurstTime, p.RA, p.Dec,
			p.ErrorDeg, p.TriggerID, p.Misc, p.TopicMismatch)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// InsertQuarantine stores undecodable payloads in one batch.
func (d *ClickHouseDB) InsertQuarantine(ctx context.Context, rows []*extractor.QuarantineRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO quarantine (message_id, topic, reason, payload, size, broker_time)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, q := range rows {
		if err := batch.Append(q.MessageID, q.Topic, q.Reason, string(q.Payload), uint32(q.Size), q.BrokerTime); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CHQueryParams contains filtering options for querying packets.
type CHQueryParams struct {
	MessageID   string
	PktTypeName string
	TrigNum     int32
	Since       time.Time
	Limit       int
	Offset      int
	OrderDesc   bool
}

// QueryPackets retrieves decoded packets matching the given parameters.
func (d *ClickHouseDB) QueryPackets(ctx context.Context, p CHQueryParams) ([]extractor.PacketRow, error) {
	var conditions []string
	var args []interface{}

	if p.MessageID != "" {
		conditions = append(conditions, "message_id = ?")
		args = append(args, p.MessageID)
	}
	if p.PktTypeName != "" {
		conditions = append(conditions, "pkt_type_name = ?")
		args = append(args, p.PktTypeName)
	}
	if p.TrigNum > 0 {
		conditions = append(conditions, "trig_num = ?")
		args = append(args, p.TrigNum)
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "broker_time >= ?")
		args = append(args, p.Since)
	}

	query := `SELECT message_id, topic, broker_time, pkt_type, pkt_type_name, pkt_sernum,
		trig_num, burst_tjd, burst_sod_centi, burst_time, burst_ra_deg, burst_dec_deg,
		burst_error_deg, trigger_id, misc, topic_mismatch FROM binary_packets`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY broker_time %s", direction)

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer rows.Close()

	var packets []extractor.PacketRow
	for rows.Next() {
		var r extractor.PacketRow
		err := rows.Scan(&r.MessageID, &r.Topic, &r.BrokerTime, &r.PktType, &r.PktTypeName, &r.Serial,
			&r.TrigNum, &r.BurstTJD, &r.BurstSODCenti, &r.BurstTime, &r.RA, &r.Dec,
			&r.ErrorDeg, &r.TriggerID, &r.Misc, &r.TopicMismatch)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		packets = append(packets, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return packets, nil
}

// GetPacket retrieves the packet decoded from one message.
func (d *ClickHouseDB) GetPacket(ctx context.Context, messageID string) (*extractor.PacketRow, error) {
	packets, err := d.QueryPackets(ctx, CHQueryParams{MessageID: messageID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, nil
	}
	return &packets[0], nil
}

// CHStats contains aggregate statistics about stored data.
type CHStats struct {
	RawMessages   uint64            `json:"raw_messages"`
	Packets       uint64            `json:"packets"`
	Quarantined   uint64            `json:"quarantined"`
	TopicMismatch uint64            `json:"topic_mismatch"`
	ByKind        map[string]uint64 `json:"by_kind"`
	ByPacketType  map[string]uint64 `json:"by_packet_type"`
	ByReason      map[string]uint64 `json:"by_reason"`
}

// GetStats returns statistics about stored data.
func (d *ClickHouseDB) GetStats(ctx context.Context) (*CHStats, error) {
	stats := &CHStats{}

	counts := []struct {
		query string
		dest  *uint64
	}{
		{"SELECT count() FROM raw_messages", &stats.RawMessages},
		{"SELECT count() FROM binary_packets", &stats.Packets},
		{"SELECT count() FROM quarantine", &stats.Quarantined},
		{"SELECT count() FROM binary_packets WHERE topic_mismatch", &stats.TopicMismatch},
	}
	for _, c := range counts {
		if err := d.conn.QueryRow(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
	}

	var err error
	if stats.ByKind, err = d.groupCount(ctx, "SELECT kind, count() FROM raw_messages GROUP BY kind"); err != nil {
		return nil, fmt.Errorf("kind stats: %w", err)
	}
	if stats.ByPacketType, err = d.groupCount(ctx, "SELECT pkt_type_name, count() FROM binary_packets GROUP BY pkt_type_name"); err != nil {
		return nil, fmt.Errorf("packet type stats: %w", err)
	}
	if stats.ByReason, err = d.groupCount(ctx, "SELECT reason, count() FROM quarantine GROUP BY reason ORDER BY count() DESC LIMIT 20"); err != nil {
		return nil, fmt.Errorf("quarantine stats: %w", err)
	}

	return stats, nil
}

// Count returns the number of packets, optionally filtered by type mnemonic.
func (d *ClickHouseDB) Count(ctx context.Context, pktTypeName string) (uint64, error) {
	var count uint64
	var err error
	if pktTypeName != "" {
		err = d.conn.QueryRow(ctx, "SELECT count() FROM binary_packets WHERE pkt_type_name = ?", pktTypeName).Scan(&count)
	} else {
		err = d.conn.QueryRow(ctx, "SELECT count() FROM binary_packets").Scan(&count)
	}
	return count, err
}

func (d *ClickHouseDB) groupCount(ctx context.Context, query string) (map[string]uint64, error) {
	counts := make(map[string]uint64)
	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count uint64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		counts[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group count: %w", err)
	}
	return counts, nil
}
