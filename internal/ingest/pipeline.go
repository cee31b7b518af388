// Package ingest routes GCN messages through the decoder registry into the
// analytics store, the trigger state store and the alert publisher.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gcn_parser/internal/extractor"
	"gcn_parser/internal/gcn"
	"gcn_parser/internal/metrics"
	"gcn_parser/internal/notify"
	"gcn_parser/internal/parsers/binary"
	"gcn_parser/internal/registry"
	"gcn_parser/internal/state"
)

// PacketSink receives batched rows. Implemented by storage.ClickHouseDB.
type PacketSink interface {
	InsertRaw(ctx context.Context, rows []*extractor.RawRow) error
	InsertPackets(ctx context.Context, rows []*extractor.PacketRow) error
	InsertQuarantine(ctx context.Context, rows []*extractor.QuarantineRow) error
}

// TriggerStore receives per-trigger upserts. Implemented by storage.PostgresDB.
type TriggerStore interface {
	UpsertTrigger(ctx context.Context, u *extractor.TriggerUpdate) (bool, error)
}

// Notifier publishes trigger alerts. Implemented by notify.MQTTPublisher.
type Notifier interface {
	Publish(event string, ts *state.TriggerState) error
}

// Options configures a Pipeline. Every sink is optional.
type Options struct {
	Registry        *registry.Registry // nil = registry.Default()
	Sink            PacketSink
	Triggers        TriggerStore
	Tracker         *state.Tracker
	Notifier        Notifier
	Metrics         *metrics.Metrics // nil = a private registry
	Logger          *slog.Logger     // nil = slog.Default()
	BatchSize       int
	StoreHeartbeats bool
}

// Pipeline turns messages into rows and routes them to the sinks. Sink
// failures are logged and counted, never returned to the caller.
type Pipeline struct {
	reg             *registry.Registry
	sink            PacketSink
	triggers        TriggerStore
	tracker         *state.Tracker
	notifier        Notifier
	metrics         *metrics.Metrics
	log             *slog.Logger
	batchSize       int
	storeHeartbeats bool

	mu         sync.Mutex
	raw        []*extractor.RawRow
	packets    []*extractor.PacketRow
	quarantine []*extractor.QuarantineRow

	flushMu sync.Mutex
}

// NewPipeline builds a pipeline and hooks the tracker callbacks to the
// notifier.
func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		reg:             opts.Registry,
		sink:            opts.Sink,
		triggers:        opts.Triggers,
		tracker:         opts.Tracker,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		log:             opts.Logger,
		batchSize:       opts.BatchSize,
		storeHeartbeats: opts.StoreHeartbeats,
	}
	if p.reg == nil {
		p.reg = registry.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.batchSize < 1 {
		p.batchSize = 500
	}

	if p.tracker != nil {
		p.tracker.OnTriggerNew(func(ts *state.TriggerState) {
			p.metrics.NewTriggers.Inc()
			p.log.Info("new trigger",
				"family", ts.Family, "trig_num", ts.TrigNum, "pkt_type_name", ts.LastType)
			p.publish(notify.EventTriggerNew, ts)
		})
		p.tracker.OnPositionImproved(func(ts *state.TriggerState) {
			p.metrics.PositionUpdates.Inc()
			p.log.Info("trigger position improved",
				"family", ts.Family, "trig_num", ts.TrigNum,
				"ra", deref(ts.RA), "dec", deref(ts.Dec), "error_deg", deref(ts.ErrorDeg))
			p.publish(notify.EventPositionImproved, ts)
		})
	}

	return p
}

// Metrics returns the collectors the pipeline reports to.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Handle processes one message. It flushes the buffered rows once a batch
// is full.
func (p *Pipeline) Handle(ctx context.Context, msg *gcn.Message) {
	if msg == nil {
		return
	}
	start := time.Now()
	defer func() { p.metrics.HandleSeconds.Observe(time.Since(start).Seconds()) }()

	p.metrics.Messages.WithLabelValues(string(msg.Kind)).Inc()

	results := p.reg.Dispatch(msg)
	data := extractor.Extract(msg, results)

	for _, r := range results {
		br, ok := r.(*binary.Result)
		if !ok {
			continue
		}
		if !br.OK() {
			p.metrics.DecodeErrors.Inc()
			p.log.Warn("binary packet quarantined",
				"topic", msg.Topic, "message_id", msg.ID, "size", len(msg.Value), "reason", br.ParseError)
			continue
		}
		p.metrics.Packets.WithLabelValues(br.Name()).Inc()
		if br.TopicMismatch {
			p.metrics.TopicMismatches.Inc()
			p.log.Info("packet type differs from topic",
				"topic", msg.Topic, "pkt_type_name", br.Name())
		}
		p.log.Debug("packet decoded",
			"topic", msg.Topic, "kind", msg.Kind, "pkt_type_name", br.Name())
	}

	if msg.Kind == gcn.KindHeartbeat && !p.storeHeartbeats {
		data.Raw = nil
	}

	for _, u := range data.Triggers {
		p.upsertTrigger(ctx, u)
	}
	if p.tracker != nil {
		state.Apply(p.tracker, data.Triggers)
	}

	if p.buffer(data) {
		p.Flush(ctx)
	}
}

// buffer queues rows for the packet sink and reports whether a batch is full.
func (p *Pipeline) buffer(data extractor.ExtractedData) bool {
	if p.sink == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if data.Raw != nil {
		p.raw = append(p.raw, data.Raw)
	}
	p.packets = append(p.packets, data.Packets...)
	p.quarantine = append(p.quarantine, data.Quarantine...)

	return len(p.raw)+len(p.packets)+len(p.quarantine) >= p.batchSize
}

// Pending returns the number of rows waiting for the next flush.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.raw) + len(p.packets) + len(p.quarantine)
}

// Flush writes every buffered row to the packet sink. Rows from a failed
// insert are dropped after the failure is logged.
func (p *Pipeline) Flush(ctx context.Context) {
	if p.sink == nil {
		return
	}
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	raw, packets, quarantine := p.raw, p.packets, p.quarantine
	p.raw, p.packets, p.quarantine = nil, nil, nil
	p.mu.Unlock()

	if len(raw) > 0 {
		p.record(ctx, "raw_messages", len(raw), p.sink.InsertRaw(ctx, raw))
	}
	if len(packets) > 0 {
		p.record(ctx, "binary_packets", len(packets), p.sink.InsertPackets(ctx, packets))
	}
	if len(quarantine) > 0 {
		p.record(ctx, "quarantine", len(quarantine), p.sink.InsertQuarantine(ctx, quarantine))
	}
}

func (p *Pipeline) record(ctx context.Context, table string, n int, err error) {
	if err != nil {
		p.metrics.SinkErrors.WithLabelValues("clickhouse").Inc()
		p.log.ErrorContext(ctx, "insert failed", "table", table, "rows", n, "error", err)
		return
	}
	p.metrics.RowsWritten.WithLabelValues(table).Add(float64(n))
}

// RunFlusher flushes on every tick until ctx is cancelled, then flushes once
// more with a fresh context so buffered rows are not lost on shutdown.
func (p *Pipeline) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			p.Flush(flushCtx)
			cancel()
			return
		}
	}
}

func (p *Pipeline) upsertTrigger(ctx context.Context, u *extractor.TriggerUpdate) {
	if p.triggers == nil {
		return
	}
	if _, err := p.triggers.UpsertTrigger(ctx, u); err != nil {
		p.metrics.SinkErrors.WithLabelValues("postgres").Inc()
		p.log.ErrorContext(ctx, "trigger upsert failed",
			"family", u.Family, "trig_num", u.TrigNum, "error", err)
	}
}

func (p *Pipeline) publish(event string, ts *state.TriggerState) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(event, ts); err != nil {
		p.metrics.Notifications.WithLabelValues("error").Inc()
		p.log.Error("publish failed", "event", event, "family", ts.Family, "trig_num", ts.TrigNum, "error", err)
		return
	}
	p.metrics.Notifications.WithLabelValues("ok").Inc()
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
