package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gcn_parser/internal/packet"
	"gcn_parser/internal/storage"
)

// QueryOut is one stored packet with its decode result.
type QueryOut struct {
	ID         int64          `json:"id"`
	Source     string         `json:"source"`
	ReceivedAt time.Time      `json:"received_at"`
	Raw        string         `json:"raw_hex"`
	Packet     packet.Decoded `json:"packet"`
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", "", "SQLite packet store written by decode -db")
	id := fs.Int64("id", 0, "Fetch a single row by ID")
	source := fs.String("source", "", "Filter by source")
	pktType := fs.String("type", "", "Filter by type mnemonic")
	trig := fs.Int("trig", 0, "Filter by trigger number")
	errorsOnly := fs.Bool("errors", false, "Only packets that failed to decode")
	limit := fs.Int("limit", 100, "Maximum rows")
	offset := fs.Int("offset", 0, "Pagination offset")
	desc := fs.Bool("desc", false, "Newest first")
	counts := fs.Bool("counts", false, "Print decoded packet counts by type instead of rows")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "query: -db is required")
		os.Exit(2)
	}

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *counts {
		byType, err := db.CountByType()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		printCounts("by type", toUint(byType))
		return
	}

	var rows []storage.StoredPacket
	if *id > 0 {
		p, err := db.GetByID(*id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		if p == nil {
			fmt.Fprintf(os.Stderr, "No packet with id %d\n", *id)
			os.Exit(1)
		}
		rows = append(rows, *p)
	} else {
		rows, err = db.Query(storage.QueryParams{
			Source:      *source,
			PktTypeName: strings.ToUpper(*pktType),
			TrigNum:     int32(*trig),
			ErrorsOnly:  *errorsOnly,
			Limit:       *limit,
			Offset:      *offset,
			OrderDesc:   *desc,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
	}

	out := make([]QueryOut, 0, len(rows))
	for i := range rows {
		o, err := toQueryOut(&rows[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Row %d: %v\n", rows[i].ID, err)
			continue
		}
		out = append(out, o)
	}

	data, err := marshalJSON(out, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	writeOutput("", data)
}

func toQueryOut(p *storage.StoredPacket) (QueryOut, error) {
	d, err := p.Decoded()
	if err != nil {
		return QueryOut{}, err
	}
	return QueryOut{
		ID:         p.ID,
		Source:     p.Source,
		ReceivedAt: p.ReceivedAt,
		Raw:        fmt.Sprintf("%x", p.Raw),
		Packet:     d,
	}, nil
}
