// Command-line entry point for the GCN parser.
//
// Input formats for decode
// ------------------------
// Classic binary notices are fixed 160-byte records. decode reads either:
//  1. A raw binary stream: consecutive 160-byte records (default).
//  2. Hex text: one packet per line (-hex), whitespace and a 0x prefix allowed,
//     lines starting with # ignored.
//
// A trailing partial record is still decoded so its size error is reported.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "gcn_parser - commands:")
	fmt.Fprintln(w, "  decode   - decode classic binary packets and output JSON")
	fmt.Fprintln(w, "  types    - list the packet type table")
	fmt.Fprintln(w, "  ingest   - run the NATS ingest pipeline (or replay a JSONL archive)")
	fmt.Fprintln(w, "  stats    - print stored row counts")
	fmt.Fprintln(w, "  kml      - export trigger positions as sky KML")
	fmt.Fprintln(w, "  query    - query a local SQLite packet store")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  gcn_parser decode -input packets.bin [-hex] [-output out.json] [-pretty] [-trace] [-db packets.db] [-stats]")
	fmt.Fprintln(w, "  gcn_parser types [-json]")
	fmt.Fprintln(w, "  gcn_parser ingest -config gcn.yaml [-replay archive.jsonl]")
	fmt.Fprintln(w, "  gcn_parser stats -config gcn.yaml [-db packets.db] [-type NAME] [-json]")
	fmt.Fprintln(w, "  gcn_parser query -db packets.db [-id N] [-type NAME] [-trig N] [-errors] [-limit N] [-counts]")
	fmt.Fprintln(w, "  gcn_parser kml [-config gcn.yaml | -state triggers.db] [-since 24h] [-output triggers.kml]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - decode reads stdin when -input is omitted.")
	fmt.Fprintln(w, "  - Environment variables (NATS_URL, CLICKHOUSE_HOST, POSTGRES_HOST, ...) override the config file.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "decode":
		runDecode(os.Args[2:])
	case "types":
		runTypes(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "kml":
		runKML(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func writeOutput(path string, data []byte) {
	data = append(data, '\n')
	if path == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}
