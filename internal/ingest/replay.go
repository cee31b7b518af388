package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gcn_parser/internal/gcn"
)

// ReplayStats summarises a replay run.
type ReplayStats struct {
	Lines    int `json:"lines"`
	Messages int `json:"messages"`
	Skipped  int `json:"skipped"`
}

// Replay feeds a JSONL archive of broker records (one gcn.Record per line)
// through the pipeline and flushes at the end. Malformed lines are skipped.
func Replay(ctx context.Context, r io.Reader, p *Pipeline) (ReplayStats, error) {
	var stats ReplayStats

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			p.Flush(context.WithoutCancel(ctx))
			return stats, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var rec gcn.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.Skipped++
			p.log.Warn("skipping malformed record", "line", stats.Lines, "error", err)
			continue
		}
		msg := rec.ToMessage()
		if msg == nil {
			stats.Skipped++
			p.log.Warn("skipping record without topic", "line", stats.Lines)
			continue
		}

		p.Handle(ctx, msg)
		stats.Messages++
	}

	p.Flush(ctx)

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading replay input: %w", err)
	}
	return stats, nil
}
