package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gcn_parser/internal/gcn"
	"gcn_parser/internal/packet"
	"gcn_parser/internal/parsers/binary"
	"gcn_parser/internal/registry"
	"gcn_parser/internal/storage"
)

// DecodeOut is one decoded input record.
type DecodeOut struct {
	Record int                   `json:"record"`
	Packet *packet.Decoded       `json:"packet,omitempty"`
	Trace  *registry.TraceResult `json:"trace,omitempty"`
	Error  string                `json:"error,omitempty"` // input could not be read as a packet
}

type inputRecord struct {
	data []byte
	err  error
}

func runDecode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	inPath := fs.String("input", "", "Input file (default: stdin)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	hexInput := fs.Bool("hex", false, "Input is hex text, one packet per line")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	trace := fs.Bool("trace", false, "Include raw slots and field decisions")
	topic := fs.String("topic", "", "Topic the packets arrived on, for mismatch checks in -trace")
	dbPath := fs.String("db", "", "Also store decoded packets in this SQLite file")
	showStats := fs.Bool("stats", false, "Print counts by type to stderr")
	_ = fs.Parse(args)

	var r io.Reader = os.Stdin
	source := "stdin"
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
		source = *inPath
	}

	var records []inputRecord
	var err error
	if *hexInput {
		records, err = readHexRecords(r)
	} else {
		records, err = readBinaryRecords(r)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}

	var db *storage.SQLiteDB
	if *dbPath != "" {
		db, err = storage.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	traceTopic := *topic
	if traceTopic == "" {
		traceTopic = gcn.PrefixClassicBinary
	}

	out := decodeRecords(records, *trace, traceTopic)
	counts := make(map[string]int)
	receivedAt := time.Now().UTC()
	for i, o := range out {
		if o.Packet == nil {
			counts["(unreadable)"]++
			continue
		}
		if o.Packet.OK() {
			counts[o.Packet.Name()]++
		} else {
			counts["(error)"]++
		}
		if db != nil {
			if _, err := db.Insert(storage.InsertParams{
				Source:     source,
				ReceivedAt: receivedAt,
				Raw:        records[i].data,
				Decoded:    *o.Packet,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to store record %d: %v\n", o.Record, err)
				os.Exit(1)
			}
		}
	}

	data, err := marshalJSON(out, *pretty)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	writeOutput(*outPath, data)

	if *showStats {
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(os.Stderr, "stats: records=%d\n", len(out))
		for _, name := range names {
			fmt.Fprintf(os.Stderr, "  %-32s %d\n", name, counts[name])
		}
	}
}

func decodeRecords(records []inputRecord, trace bool, topic string) []DecodeOut {
	parser := &binary.Parser{}
	out := make([]DecodeOut, 0, len(records))
	for i, rec := range records {
		o := DecodeOut{Record: i + 1}
		if rec.err != nil {
			o.Error = rec.err.Error()
			out = append(out, o)
			continue
		}
		d := packet.Decode(rec.data)
		o.Packet = &d
		if trace {
			o.Trace = parser.ParseWithTrace(gcn.NewMessage(topic, "", rec.data, time.Time{}))
		}
		out = append(out, o)
	}
	return out
}

// readBinaryRecords splits a stream into 160-byte records.
func readBinaryRecords(r io.Reader) ([]inputRecord, error) {
	var records []inputRecord
	br := bufio.NewReader(r)
	for {
		buf := make([]byte, packet.Size)
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			records = append(records, inputRecord{data: buf[:n]})
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
	}
}

// readHexRecords reads one hex packet per line.
func readHexRecords(r io.Reader) ([]inputRecord, error) {
	var records []inputRecord
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s := strings.Join(strings.Fields(line), "")
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		data, err := hex.DecodeString(s)
		if err != nil {
			records = append(records, inputRecord{err: fmt.Errorf("invalid hex: %w", err)})
			continue
		}
		records = append(records, inputRecord{data: data})
	}
	return records, scanner.Err()
}

func runTypes(args []string) {
	fs := flag.NewFlagSet("types", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Output JSON")
	_ = fs.Parse(args)

	entries := packet.Types()
	if *asJSON {
		data, err := marshalJSON(entries, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
			os.Exit(1)
		}
		writeOutput("", data)
		return
	}
	for _, e := range entries {
		fmt.Printf("%4d  %s\n", e.Code, e.Name)
	}
}
