// Package main provides the gcn-api server for packet decoding and trigger state.
//
// This is a standalone REST API server. Trigger state is read from PostgreSQL,
// or from a local tracker SQLite file written by the ingest service when
// -state is given. The SQLite file is queried on every request.
//
// Usage:
//
//	gcn-api [options]
//
// Options:
//
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: gcn_state, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: gcn, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: gcn, env: POSTGRES_PASSWORD)
//	-state PATH         Serve triggers from a tracker SQLite file instead of PostgreSQL
//	-ch-host HOST       ClickHouse host for packet queries (env: CLICKHOUSE_HOST; disabled when empty)
//	-ch-port PORT       ClickHouse native port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB     ClickHouse database (default: gcn, env: CLICKHOUSE_DATABASE)
//	-ch-user USER       ClickHouse user (default: default, env: CLICKHOUSE_USER)
//	-ch-password PASS   ClickHouse password (env: CLICKHOUSE_PASSWORD)
//	-listen ADDR        HTTP listen address (default: :8081, env: GCN_API_LISTEN)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys
//	-metrics            Serve Prometheus metrics at /metrics
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	POST /api/v1/decode[?trace=true&topic=...]
//	    Decode one packet. Body: raw 160 bytes (application/octet-stream) or hex.
//
//	GET /api/v1/types
//	GET /api/v1/types/{code}
//	    Packet type table; {code} may be a number or a mnemonic.
//
//	GET /api/v1/triggers[?since=RFC3339&limit=N]
//	GET /api/v1/triggers/{type_name}/{trig_num}
//	    Trigger state by mnemonic (or mission family) and trigger number.
//
//	GET /api/v1/packets[?type=NAME&trig_num=N&since=RFC3339&limit=N&order=asc]
//	GET /api/v1/packets/{message_id}
//	    Decoded packet rows. Returns 503 unless ClickHouse is configured.
//
// Authentication:
//
//	When -auth is enabled, requests must include an API key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gcn_parser/internal/api"
	"gcn_parser/internal/config"
	_ "gcn_parser/internal/parsers"
	"gcn_parser/internal/state"
	"gcn_parser/internal/storage"
)

func main() {
	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", "gcn"), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "gcn"), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", "gcn_state"), "PostgreSQL database")
	statePath := flag.String("state", "", "Tracker SQLite file to serve triggers from instead of PostgreSQL")

	// ClickHouse connection flags.
	chHost := flag.String("ch-host", os.Getenv("CLICKHOUSE_HOST"), "ClickHouse host for packet queries")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse native port")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "gcn"), "ClickHouse database")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := flag.String("ch-password", os.Getenv("CLICKHOUSE_PASSWORD"), "ClickHouse password")

	// API server flags.
	listen := flag.String("listen", envOrDefault("GCN_API_LISTEN", ":8081"), "HTTP listen address")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", "", "Comma-separated list of valid API keys (when auth enabled)")
	serveMetrics := flag.Bool("metrics", true, "Serve Prometheus metrics at /metrics")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store api.TriggerStore
	if *statePath != "" {
		st, err := state.OpenStore(*statePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening tracker state: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()
		store = st
	} else {
		pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host:     *pgHost,
			Port:     *pgPort,
			Database: *pgDB,
			User:     *pgUser,
			Password: *pgPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	}

	// Create and run server.
	server := api.NewServer(store, nil, api.Config{
		Listen:      *listen,
		AuthEnabled: *authEnabled,
		APIKeys:     config.SplitList(*apiKeys),
		Metrics:     *serveMetrics,
	})

	if *chHost != "" {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer ch.Close()
		server.SetPacketStore(ch)
	}

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
