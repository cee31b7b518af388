package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"gcn_parser/internal/config"
	"gcn_parser/internal/extractor"
	"gcn_parser/internal/gcn"
	"gcn_parser/internal/metrics"
	"gcn_parser/internal/notify"
	"gcn_parser/internal/packet"
	_ "gcn_parser/internal/parsers"
	"gcn_parser/internal/state"
)

type fakeSink struct {
	mu         sync.Mutex
	raw        []*extractor.RawRow
	packets    []*extractor.PacketRow
	quarantine []*extractor.QuarantineRow
	flushes    int
	err        error
}

func (f *fakeSink) InsertRaw(_ context.Context, rows []*extractor.RawRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	if f.err != nil {
		return f.err
	}
	f.raw = append(f.raw, rows...)
	return nil
}

func (f *fakeSink) InsertPackets(_ context.Context, rows []*extractor.PacketRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.packets = append(f.packets, rows...)
	return nil
}

func (f *fakeSink) InsertQuarantine(_ context.Context, rows []*extractor.QuarantineRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.quarantine = append(f.quarantine, rows...)
	return nil
}

type fakeTriggers struct {
	mu      sync.Mutex
	updates []*extractor.TriggerUpdate
	err     error
}

func (f *fakeTriggers) UpsertTrigger(_ context.Context, u *extractor.TriggerUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.updates = append(f.updates, u)
	return len(f.updates) == 1, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Publish(event string, _ *state.TriggerState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func batPacket(trig, errCenti int32) []byte {
	var s packet.Slots
	s[packet.SlotType] = 61
	s[packet.SlotTrigNum] = trig
	s[packet.SlotBurstTJD] = 20000
	s[packet.SlotBurstSOD] = 4320000
	s[packet.SlotBurstRA] = 18000
	s[packet.SlotBurstDec] = 4500
	s[packet.SlotBurstErr] = errCenti
	return packet.Encode(s)
}

type harness struct {
	pipeline *Pipeline
	sink     *fakeSink
	triggers *fakeTriggers
	notifier *fakeNotifier
	tracker  *state.Tracker
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T, batchSize int) *harness {
	t.Helper()
	tracker, err := state.NewTracker("")
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	t.Cleanup(func() { _ = tracker.Close() })

	h := &harness{
		sink:     &fakeSink{},
		triggers: &fakeTriggers{},
		notifier: &fakeNotifier{},
		tracker:  tracker,
		metrics:  metrics.New(nil),
	}
	h.pipeline = NewPipeline(Options{
		Sink:      h.sink,
		Triggers:  h.triggers,
		Tracker:   tracker,
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Logger:    discardLogger(),
		BatchSize: batchSize,
	})
	return h
}

func TestPipelineRoutesPackets(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()

	h.pipeline.Handle(ctx, gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_POSITION", "", batPacket(1234, 300), time.Time{}))
	h.pipeline.Handle(ctx, gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_POSITION", "", batPacket(1234, 100), time.Time{}))
	h.pipeline.Handle(ctx, gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_POSITION", "", []byte("short"), time.Time{}))
	h.pipeline.Handle(ctx, gcn.NewMessage("gcn.circulars", "", []byte(`{"subject":"x"}`), time.Time{}))

	if got := h.pipeline.Pending(); got != 4+2+1 {
		t.Errorf("Pending = %d, want 7", got)
	}
	h.pipeline.Flush(ctx)
	if h.pipeline.Pending() != 0 {
		t.Errorf("Pending after flush = %d", h.pipeline.Pending())
	}

	if len(h.sink.raw) != 4 {
		t.Errorf("raw rows = %d, want 4", len(h.sink.raw))
	}
	if len(h.sink.packets) != 2 {
		t.Errorf("packet rows = %d, want 2", len(h.sink.packets))
	}
	if len(h.sink.quarantine) != 1 || !strings.Contains(h.sink.quarantine[0].Reason, "invalid packet size") {
		t.Errorf("quarantine = %+v", h.sink.quarantine)
	}
	if len(h.triggers.updates) != 2 {
		t.Errorf("trigger upserts = %d, want 2", len(h.triggers.updates))
	}

	want := []string{notify.EventTriggerNew, notify.EventPositionImproved}
	if strings.Join(h.notifier.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", h.notifier.events, want)
	}

	ts := h.tracker.Get("SWIFT", 1234)
	if ts == nil || ts.PacketCount != 2 || ts.ErrorDeg == nil || *ts.ErrorDeg != 1.0 {
		t.Errorf("tracker state = %+v", ts)
	}

	if got := value(t, h.metrics.DecodeErrors); got != 1 {
		t.Errorf("decode errors = %v, want 1", got)
	}
	if got := value(t, h.metrics.Packets.WithLabelValues("SWIFT_BAT_GRB_POSITION")); got != 2 {
		t.Errorf("packets = %v, want 2", got)
	}
	if got := value(t, h.metrics.Messages.WithLabelValues(string(gcn.KindCirculars))); got != 1 {
		t.Errorf("circulars = %v, want 1", got)
	}
	if got := value(t, h.metrics.NewTriggers); got != 1 {
		t.Errorf("new triggers = %v, want 1", got)
	}
	if got := value(t, h.metrics.RowsWritten.WithLabelValues("binary_packets")); got != 2 {
		t.Errorf("rows written = %v, want 2", got)
	}
}

func TestPipelineFlushesFullBatch(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	msg := func() *gcn.Message {
		return gcn.NewMessage("gcn.classic.text.FERMI_GBM_ALERT", "", []byte("TITLE: GCN"), time.Time{})
	}
	h.pipeline.Handle(ctx, msg())
	h.pipeline.Handle(ctx, msg())
	if len(h.sink.raw) != 0 {
		t.Fatalf("flushed before batch was full")
	}
	h.pipeline.Handle(ctx, msg())
	if len(h.sink.raw) != 3 {
		t.Errorf("raw rows = %d, want 3 after full batch", len(h.sink.raw))
	}
}

func TestPipelineHeartbeats(t *testing.T) {
	for _, store := range []bool{false, true} {
		h := newHarness(t, 100)
		h.pipeline.storeHeartbeats = store
		h.pipeline.Handle(context.Background(), gcn.NewMessage(gcn.TopicHeartbeat, "", []byte(`{}`), time.Time{}))
		h.pipeline.Flush(context.Background())

		want := 0
		if store {
			want = 1
		}
		if len(h.sink.raw) != want {
			t.Errorf("store=%v: raw rows = %d, want %d", store, len(h.sink.raw), want)
		}
	}
}

func TestPipelineSinkErrorsAreCounted(t *testing.T) {
	h := newHarness(t, 100)
	h.sink.err = errors.New("clickhouse down")
	h.triggers.err = errors.New("postgres down")
	ctx := context.Background()

	h.pipeline.Handle(ctx, gcn.NewMessage("gcn.classic.binary.SWIFT_BAT_GRB_POSITION", "", batPacket(77, 100), time.Time{}))
	h.pipeline.Flush(ctx)

	if got := value(t, h.metrics.SinkErrors.WithLabelValues("postgres")); got != 1 {
		t.Errorf("postgres errors = %v, want 1", got)
	}
	if got := value(t, h.metrics.SinkErrors.WithLabelValues("clickhouse")); got != 2 {
		t.Errorf("clickhouse errors = %v, want 2", got)
	}
	// The tracker still sees the trigger.
	if h.tracker.Get("SWIFT", 77) == nil {
		t.Error("tracker missed trigger after sink failure")
	}
	if h.pipeline.Pending() != 0 {
		t.Error("failed rows should not be retained")
	}
}

func TestPipelineWithoutSinks(t *testing.T) {
	p := NewPipeline(Options{Logger: discardLogger()})
	p.Handle(context.Background(), gcn.NewMessage("gcn.classic.binary.X", "", batPacket(1, 100), time.Time{}))
	p.Handle(context.Background(), nil)
	p.Flush(context.Background())
	if p.Pending() != 0 {
		t.Errorf("Pending = %d without a sink", p.Pending())
	}
}

func TestReplay(t *testing.T) {
	h := newHarness(t, 1000)

	input := strings.Join([]string{
		`{"topic":"gcn.classic.binary.SWIFT_BAT_GRB_POSITION","value":"` + b64(batPacket(42, 200)) + `","timestamp":1700000000000}`,
		``,
		`not json`,
		`{"topic":"","value":"AAAA"}`,
		`{"topic":"gcn.circulars","value":"e30=","timestamp":"2023-11-14T22:13:20Z"}`,
	}, "\n")

	stats, err := Replay(context.Background(), strings.NewReader(input), h.pipeline)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if stats.Lines != 4 || stats.Messages != 2 || stats.Skipped != 2 {
		t.Errorf("stats = %+v, want 4 lines, 2 messages, 2 skipped", stats)
	}
	if len(h.sink.raw) != 2 || len(h.sink.packets) != 1 {
		t.Fatalf("rows: raw=%d packets=%d", len(h.sink.raw), len(h.sink.packets))
	}
	want := time.UnixMilli(1700000000000).UTC()
	if !h.sink.raw[0].BrokerTime.Equal(want) {
		t.Errorf("broker time = %s, want %s", h.sink.raw[0].BrokerTime, want)
	}
}

func TestReplayCancelled(t *testing.T) {
	h := newHarness(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Replay(ctx, strings.NewReader(`{"topic":"gcn.circulars","value":"e30="}`), h.pipeline)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSubscriberWorkersDrainQueue(t *testing.T) {
	h := newHarness(t, 1000)
	s := NewSubscriber(gcnNATSConfig(), ingestConfig(3), h.pipeline, discardLogger())

	queue := make(chan *nats.Msg, 10)
	for i := int32(1); i <= 5; i++ {
		m := nats.NewMsg("gcn.classic.binary.SWIFT_BAT_GRB_POSITION")
		m.Data = batPacket(i, 100)
		m.Header.Set(gcn.HeaderKey, "k")
		queue <- m
	}

	stop := make(chan struct{})
	close(stop)
	wg := s.startWorkers(context.Background(), queue, stop)
	wg.Wait()

	if len(queue) != 0 {
		t.Errorf("queue still holds %d messages", len(queue))
	}
	if h.tracker.Count() != 5 {
		t.Errorf("tracked triggers = %d, want 5", h.tracker.Count())
	}
	h.pipeline.Flush(context.Background())
	if len(h.sink.raw) != 5 || h.sink.raw[0].Key != "k" {
		t.Errorf("raw rows = %+v", h.sink.raw)
	}
}

func TestSubscriberSubjects(t *testing.T) {
	nc := gcnNATSConfig()
	s := NewSubscriber(nc, ingestConfig(1), nil, nil)
	if got := s.Subjects(); len(got) != len(gcn.Subjects(false)) {
		t.Errorf("default subjects = %v", got)
	}

	nc.Subjects = []string{"gcn.classic.binary.>"}
	s = NewSubscriber(nc, ingestConfig(0), nil, nil)
	if got := s.Subjects(); len(got) != 1 || got[0] != "gcn.classic.binary.>" {
		t.Errorf("explicit subjects = %v", got)
	}
	if s.workers != 1 {
		t.Errorf("workers = %d, want at least 1", s.workers)
	}
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gcnNATSConfig() config.NATSConfig {
	return config.NATSConfig{URL: "nats://localhost:4222", Name: "test"}
}

func ingestConfig(workers int) config.IngestConfig {
	return config.IngestConfig{Workers: workers, QueueSize: 10, BatchSize: 100, FlushInterval: time.Second}
}
