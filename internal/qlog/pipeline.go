package qlog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the pipeline's event buffer capacity when none is
// configured.
const DefaultBufferSize = 1024

// Pipeline decouples the serving path from event delivery: Publish enqueues
// onto a bounded buffer and returns immediately, a single worker drains the
// buffer into the sink. A full buffer drops the event and counts it; the
// query path never waits on a slow sink.
type Pipeline struct {
	sink   Sink
	logger *slog.Logger
	size   int

	inbox   chan Event
	done    chan struct{}
	dropped atomic.Int64

	mu       sync.Mutex
	closed   bool
	closeErr error
}

// PipelineOption configures the Pipeline.
type PipelineOption func(*Pipeline)

// WithBufferSize sets the event buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithPipelineLogger sets the logger for delivery failures.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline over the sink and starts its delivery
// worker. Callers must Close it to drain buffered events.
func NewPipeline(sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		sink:   sink,
		logger: slog.Default(),
		size:   DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.inbox = make(chan Event, p.size)
	p.done = make(chan struct{})
	go p.run()
	return p
}

// Publish enqueues the event, dropping it when the buffer is full or the
// pipeline is closed.
func (p *Pipeline) Publish(_ context.Context, e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.inbox <- e:
	default:
		p.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded instead of delivered.
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Pipeline) run() {
	defer close(p.done)
	for e := range p.inbox {
		if err := p.sink.Write(context.Background(), e); err != nil {
			p.logger.Warn("query log delivery failed", "error", err, "id", e.ID)
		}
	}
}

// Close stops intake, drains buffered events into the sink, and closes the
// sink. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.closeErr
	}
	p.closed = true
	close(p.inbox)
	<-p.done

	p.closeErr = p.sink.Close()
	if n := p.dropped.Load(); n > 0 {
		p.logger.Warn("query log dropped events", "count", n)
	}
	return p.closeErr
}
