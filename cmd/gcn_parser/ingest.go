package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"gcn_parser/internal/api"
	"gcn_parser/internal/config"
	"gcn_parser/internal/ingest"
	"gcn_parser/internal/metrics"
	"gcn_parser/internal/notify"
	"gcn_parser/internal/packet"
	_ "gcn_parser/internal/parsers" // register all parsers via init()
	"gcn_parser/internal/registry"
	"gcn_parser/internal/state"
	"gcn_parser/internal/storage"
)

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (YAML)")
	replayPath := fs.String("replay", "", "Replay a JSONL archive of broker records instead of subscribing")
	_ = fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ingestMain(ctx, cfg, *replayPath, logger); err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func ingestMain(ctx context.Context, cfg *config.Config, replayPath string, logger *slog.Logger) error {
	// Ensure parsers priority ordering is stable.
	registry.Default().Sort()

	m := metrics.New(nil)
	opts := ingest.Options{
		Metrics:         m,
		Logger:          logger,
		BatchSize:       cfg.Ingest.BatchSize,
		StoreHeartbeats: cfg.Ingest.StoreHeartbeats,
	}

	tracker, err := state.NewTracker(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("opening trigger tracker: %w", err)
	}
	defer tracker.Close()
	opts.Tracker = tracker
	var triggerStore api.TriggerStore = api.FromTracker(tracker)
	var packetStore api.PacketStore

	if cfg.Storage.Enabled {
		db, err := storage.Open(ctx, cfg.Storage.Config)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.CreateSchemas(ctx); err != nil {
			return err
		}
		if err := db.PG.SeedPacketTypes(ctx, packet.Types()); err != nil {
			return err
		}
		opts.Sink = db.CH
		opts.Triggers = db.PG
		triggerStore = db.PG
		packetStore = db.CH
		logger.Info("storage enabled",
			"clickhouse", cfg.Storage.ClickHouse.Host, "postgres", cfg.Storage.Postgres.Host)
	}

	if cfg.MQTT.Enabled {
		pub, err := notify.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts.Notifier = pub
	}

	pipeline := ingest.NewPipeline(opts)

	if replayPath != "" {
		f, err := os.Open(replayPath)
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer f.Close()

		stats, err := ingest.Replay(ctx, f, pipeline)
		logger.Info("replay finished",
			"lines", stats.Lines, "messages", stats.Messages, "skipped", stats.Skipped,
			"triggers", tracker.Count())
		return err
	}

	var wg sync.WaitGroup
	if cfg.API.Listen != "" {
		server := api.NewServer(triggerStore, m, api.Config{
			Listen:      cfg.API.Listen,
			AuthEnabled: cfg.API.AuthEnabled,
			APIKeys:     cfg.API.APIKeys,
			Metrics:     cfg.API.Metrics,
		})
		if packetStore != nil {
			server.SetPacketStore(packetStore)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(ctx); err != nil {
				logger.Error("api server stopped", "error", err)
			}
		}()
	}

	sub := ingest.NewSubscriber(cfg.NATS, cfg.Ingest, pipeline, logger)
	err = sub.Run(ctx)
	wg.Wait()
	return err
}

// newLogger builds the structured logger for long-running services.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (YAML)")
	dbPath := fs.String("db", "", "Report on a local SQLite packet store instead of ClickHouse")
	pktType := fs.String("type", "", "Only print the packet count for this type mnemonic")
	asJSON := fs.Bool("json", false, "Output JSON")
	_ = fs.Parse(args)

	if *dbPath != "" {
		db, err := storage.OpenSQLite(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		stats, err := db.GetStats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stats: %v\n", err)
			os.Exit(1)
		}
		if *asJSON {
			printJSON(stats)
			return
		}
		fmt.Printf("packets: %d (errors: %d)\n", stats.TotalPackets, stats.Errors)
		printCounts("by type", toUint(stats.ByType))
		printCounts("by error", toUint(stats.ByError))
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ch, err := storage.OpenClickHouse(ctx, cfg.Storage.ClickHouse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()

	if *pktType != "" {
		name := strings.ToUpper(*pktType)
		count, err := ch.Count(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to count packets: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d\n", name, count)
		return
	}

	stats, err := ch.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read stats: %v\n", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(stats)
		return
	}
	fmt.Printf("raw messages:   %d\n", stats.RawMessages)
	fmt.Printf("packets:        %d (topic mismatch: %d)\n", stats.Packets, stats.TopicMismatch)
	fmt.Printf("quarantined:    %d\n", stats.Quarantined)
	printCounts("by kind", stats.ByKind)
	printCounts("by packet type", stats.ByPacketType)
	printCounts("quarantine reasons", stats.ByReason)
}

func printJSON(v any) {
	data, err := marshalJSON(v, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	writeOutput("", data)
}

func printCounts(title string, counts map[string]uint64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-32s %d\n", k, counts[k])
	}
}

func toUint(m map[string]int) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = uint64(v)
	}
	return out
}
