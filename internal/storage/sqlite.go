package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gcn_parser/internal/packet"
)

// StoredPacket is a decoded packet kept in the local store.
type StoredPacket struct {
	ID          int64
	Source      string
	ReceivedAt  time.Time
	PktType     *int32
	PktTypeName string
	TrigNum     *int32
	ParseError  string
	Raw         []byte
	DecodedJSON string
}

// Decoded returns the stored decode result.
func (p *StoredPacket) Decoded() (packet.Decoded, error) {
	var d packet.Decoded
	if err := json.Unmarshal([]byte(p.DecodedJSON), &d); err != nil {
		return packet.Decoded{}, fmt.Errorf("unmarshal decoded packet: %w", err)
	}
	return d, nil
}

// SQLiteDB wraps a SQLite database connection for local packet storage.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS packets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		received_at TEXT NOT NULL,
		pkt_type INTEGER,
		pkt_type_name TEXT NOT NULL DEFAULT '',
		trig_num INTEGER,
		parse_error TEXT NOT NULL DEFAULT '',
		raw BLOB,
		decoded_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_packets_type_name ON packets(pkt_type_name);
	CREATE INDEX IF NOT EXISTS idx_packets_trig_num ON packets(trig_num);
	CREATE INDEX IF NOT EXISTS idx_packets_received ON packets(received_at);
	`

	_, err := db.Exec(schema)
	return err
}

// InsertParams contains the parameters for inserting a packet.
type InsertParams struct {
	Source     string
	ReceivedAt time.Time
	Raw        []byte
	Decoded    packet.Decoded
}

// Insert stores a decoded packet in the database.
func (d *SQLiteDB) Insert(p InsertParams) (int64, error) {
	decodedJSON, err := json.Marshal(p.Decoded)
	if err != nil {
		return 0, fmt.Errorf("marshal decoded packet: %w", err)
	}

	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now()
	}

	result, err := d.db.Exec(`
		INSERT INTO packets (source, received_at, pkt_type, pkt_type_name, trig_num, parse_error, raw, decoded_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Source, p.ReceivedAt.UTC().Format(time.RFC3339Nano), p.Decoded.Type, p.Decoded.Name(),
		p.Decoded.TriggerNum, p.Decoded.ParseError, p.Raw, string(decodedJSON))
	if err != nil {
		return 0, fmt.Errorf("insert packet: %w", err)
	}

	return result.LastInsertId()
}

// QueryParams contains filtering options for querying packets.
type QueryParams struct {
	ID          int64  // Filter by specific row ID.
	Source      string // Filter by source (exact match).
	PktTypeName string // Filter by type mnemonic (exact match).
	TrigNum     int32  // Filter by trigger number.
	ErrorsOnly  bool   // Only rows that failed to decode.
	Limit       int    // Max results (default 100).
	Offset      int    // Pagination offset.
	OrderDesc   bool   // Newest first.
}

// Query retrieves packets matching the given parameters.
func (d *SQLiteDB) Query(p QueryParams) ([]StoredPacket, error) {
	var conditions []string
	var args []interface{}

	if p.ID != 0 {
		conditions = append(conditions, "id = ?")
		args = append(args, p.ID)
	}
	if p.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, p.Source)
	}
	if p.PktTypeName != "" {
		conditions = append(conditions, "pkt_type_name = ?")
		args = append(args, p.PktTypeName)
	}
	if p.TrigNum > 0 {
		conditions = append(conditions, "trig_num = ?")
		args = append(args, p.TrigNum)
	}
	if p.ErrorsOnly {
		conditions = append(conditions, "parse_error != ''")
	}

	query := `SELECT id, source, received_at, pkt_type, pkt_type_name, trig_num, parse_error, raw, decoded_json FROM packets`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += " ORDER BY id " + direction

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var packets []StoredPacket
	for rows.Next() {
		var sp StoredPacket
		var receivedAt string
		var pktType, trigNum sql.NullInt32

		err := rows.Scan(&sp.ID, &sp.Source, &receivedAt, &pktType, &sp.PktTypeName,
			&trigNum, &sp.ParseError, &sp.Raw, &sp.DecodedJSON)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		sp.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		if pktType.Valid {
			sp.PktType = &pktType.Int32
		}
		if trigNum.Valid {
			sp.TrigNum = &trigNum.Int32
		}
		packets = append(packets, sp)
	}

	return packets, rows.Err()
}

// GetByID retrieves a single packet by row ID.
func (d *SQLiteDB) GetByID(id int64) (*StoredPacket, error) {
	packets, err := d.Query(QueryParams{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, nil
	}
	return &packets[0], nil
}

// Stats contains aggregate statistics about stored packets.
type Stats struct {
	TotalPackets int            `json:"total_packets"`
	Errors       int            `json:"errors"`
	ByType       map[string]int `json:"by_type"`
	ByError      map[string]int `json:"by_error"`
}

// GetStats returns statistics about the stored packets.
func (d *SQLiteDB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM packets").Scan(&stats.TotalPackets); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM packets WHERE parse_error != ''").Scan(&stats.Errors); err != nil {
		return nil, err
	}

	var err error
	stats.ByType, err = d.groupCount("SELECT pkt_type_name, COUNT(*) FROM packets WHERE parse_error = '' GROUP BY pkt_type_name")
	if err != nil {
		return nil, err
	}
	stats.ByError, err = d.groupCount("SELECT parse_error, COUNT(*) FROM packets WHERE parse_error != '' GROUP BY parse_error ORDER BY COUNT(*) DESC LIMIT 20")
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// CountByType returns decoded packet counts grouped by type mnemonic.
func (d *SQLiteDB) CountByType() (map[string]int, error) {
	return d.groupCount("SELECT pkt_type_name, COUNT(*) FROM packets WHERE parse_error = '' GROUP BY pkt_type_name")
}

func (d *SQLiteDB) groupCount(query string) (map[string]int, error) {
	counts := make(map[string]int)
	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}
