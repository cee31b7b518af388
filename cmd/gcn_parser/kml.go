package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gcn_parser/internal/api"
	"gcn_parser/internal/config"
	"gcn_parser/internal/export"
	"gcn_parser/internal/state"
	"gcn_parser/internal/storage"
)

func runKML(args []string) {
	fs := flag.NewFlagSet("kml", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (YAML); triggers are read from PostgreSQL")
	statePath := fs.String("state", "", "Read triggers from a tracker SQLite file instead of PostgreSQL")
	since := fs.Duration("since", 24*time.Hour, "Only triggers seen within this window")
	limit := fs.Int("limit", 1000, "Maximum number of triggers")
	output := fs.String("output", "", "Output KML file (default: stdout)")
	verbose := fs.Bool("v", false, "Verbose output")
	_ = fs.Parse(args)

	ctx := context.Background()

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
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
		pg, err := storage.OpenPostgres(ctx, cfg.Storage.Postgres)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	}

	now := time.Now().UTC()
	triggers, err := store.ListTriggers(ctx, now.Add(-*since), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying triggers: %v\n", err)
		os.Exit(1)
	}

	doc := export.Generate(triggers, now)
	if *verbose {
		fmt.Fprintf(os.Stderr, "Exporting %d of %d triggers (with position) to KML\n",
			len(doc.Document.Placemarks), len(triggers))
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, doc); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating KML: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", *output)
	}
}
