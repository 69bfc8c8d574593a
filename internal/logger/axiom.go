package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomQueueSize = 1000
	axiomBatchSize = 200
)

// axiomSink is a zerolog.LevelWriter that batches events into an Axiom dataset.
type axiomSink struct {
	client  *axiom.Client
	dataset string
	min     zerolog.Level
	events  chan axiom.Event
	dropped atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

func newAxiomSink(service string, opts AxiomOptions) (*axiomSink, error) {
	clientOpts := []axiom.Option{axiom.SetToken(opts.APIKey)}
	if opts.OrgID != "" {
		clientOpts = append(clientOpts, axiom.SetOrganizationID(opts.OrgID))
	}
	client, err := axiom.NewClient(clientOpts...)
	if err != nil {
		return nil, err
	}
	dataset := opts.Dataset
	if dataset == "" {
		dataset = service
	}
	flush := opts.FlushInterval
	if flush <= 0 {
		flush = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &axiomSink{
		client:  client,
		dataset: dataset,
		min:     parseLevel(opts.MinLevel, zerolog.InfoLevel),
		events:  make(chan axiom.Event, axiomQueueSize),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, flush)
	return s, nil
}

func (s *axiomSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel queues the event unless it is below the sink's level or the
// queue is full. It never blocks the caller.
func (s *axiomSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < s.min {
		return len(p), nil
	}
	var ev axiom.Event
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{zerolog.MessageFieldName: string(p)}
	}
	if t, ok := ev[zerolog.TimestampFieldName]; ok {
		ev[ingest.TimestampField] = t
		delete(ev, zerolog.TimestampFieldName)
	} else {
		ev[ingest.TimestampField] = time.Now()
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

func (s *axiomSink) run(ctx context.Context, every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ictx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := s.client.IngestEvents(ictx, s.dataset, batch); err != nil {
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= axiomBatchSize {
				flush()
			}
		}
	}
}

func (s *axiomSink) Close() error {
	s.cancel()
	<-s.done
	if n := s.dropped.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "axiom queue full, dropped %d events\n", n)
	}
	return nil
}
