package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"gcn_parser/internal/config"
	"gcn_parser/internal/gcn"
)

// Subscriber feeds NATS messages to a Pipeline through a bounded queue and
// a fixed pool of workers.
type Subscriber struct {
	nats     config.NATSConfig
	workers  int
	queue    int
	interval time.Duration
	pipeline *Pipeline
	log      *slog.Logger
}

// NewSubscriber builds a subscriber for the given bus and worker settings.
func NewSubscriber(nc config.NATSConfig, ic config.IngestConfig, p *Pipeline, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		nats:     nc,
		workers:  max(ic.Workers, 1),
		queue:    max(ic.QueueSize, 1),
		interval: ic.FlushInterval,
		pipeline: p,
		log:      logger,
	}
}

// Subjects returns the subjects the subscriber listens on.
func (s *Subscriber) Subjects() []string {
	if len(s.nats.Subjects) > 0 {
		return s.nats.Subjects
	}
	return gcn.Subjects(s.nats.IncludeHeartbeat)
}

// Run connects, subscribes and processes messages until ctx is cancelled.
// On cancellation the connection is drained and queued messages are
// handled before Run returns.
func (s *Subscriber) Run(ctx context.Context) error {
	closed := make(chan struct{})

	nc, err := nats.Connect(s.nats.URL,
		nats.Name(s.nats.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}

	queue := make(chan *nats.Msg, s.queue)
	stop := make(chan struct{})

	handler := func(m *nats.Msg) {
		select {
		case queue <- m:
			s.pipeline.metrics.QueueDepth.Set(float64(len(queue)))
		case <-stop:
		}
	}

	for _, subject := range s.Subjects() {
		var err error
		if s.nats.QueueGroup != "" {
			_, err = nc.QueueSubscribe(subject, s.nats.QueueGroup, handler)
		} else {
			_, err = nc.Subscribe(subject, handler)
		}
		if err != nil {
			nc.Close()
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
	}
	s.log.Info("subscribed", "url", nc.ConnectedUrl(), "subjects", s.Subjects(),
		"queue_group", s.nats.QueueGroup, "workers", s.workers)

	flushCtx, cancelFlush := context.WithCancel(context.Background())
	var flushWG sync.WaitGroup
	if s.interval > 0 {
		flushWG.Add(1)
		go func() {
			defer flushWG.Done()
			s.pipeline.RunFlusher(flushCtx, s.interval)
		}()
	}

	workCtx := context.WithoutCancel(ctx)
	wg := s.startWorkers(workCtx, queue, stop)

	<-ctx.Done()
	s.log.Info("draining nats connection")
	if err := nc.Drain(); err != nil {
		s.log.Warn("drain failed", "error", err)
		nc.Close()
	}
	select {
	case <-closed:
	case <-time.After(30 * time.Second):
		s.log.Warn("drain timed out")
		nc.Close()
	}

	close(stop)
	wg.Wait()

	cancelFlush()
	flushWG.Wait()
	if s.interval <= 0 {
		s.pipeline.Flush(workCtx)
	}
	return nil
}

// startWorkers runs the worker pool. Workers exit once stop is closed and
// the queue is empty.
func (s *Subscriber) startWorkers(ctx context.Context, queue chan *nats.Msg, stop <-chan struct{}) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case m := <-queue:
					s.handle(ctx, m, len(queue))
				case <-stop:
					for {
						select {
						case m := <-queue:
							s.handle(ctx, m, len(queue))
						default:
							return
						}
					}
				}
			}
		}()
	}
	return &wg
}

func (s *Subscriber) handle(ctx context.Context, m *nats.Msg, depth int) {
	s.pipeline.metrics.QueueDepth.Set(float64(depth))
	s.pipeline.Handle(ctx, gcn.FromNATS(m))
}
