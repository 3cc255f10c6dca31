package qlog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func testEvent(kind, key string, outcome Outcome) Event {
	return Event{
		ID:         uuid.New(),
		Time:       time.Now().UTC(),
		Kind:       kind,
		Key:        key,
		Outcome:    outcome,
		DurationMS: 3,
		ClientIP:   "192.0.2.10",
		UserAgent:  "rdap-client/1.0",
	}
}

type fakeSink struct {
	mu       sync.Mutex
	events   []Event
	closed   bool
	closeErr error
}

func (f *fakeSink) Write(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeSink) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

// gatedSink blocks every Write until released, so tests can hold the
// delivery worker mid-flight and fill the buffer deterministically.
type gatedSink struct {
	fakeSink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSink) Write(ctx context.Context, e Event) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.fakeSink.Write(ctx, e)
}

func TestPipelineDeliversInOrder(t *testing.T) {
	sink := &fakeSink{}
	p := NewPipeline(sink, WithBufferSize(8))

	events := []Event{
		testEvent("domain", "example.com", OutcomeFound),
		testEvent("entity", "FOO123-ABC", OutcomeRedirect),
		testEvent("autnum", "64500", OutcomeNotFound),
	}
	ctx := context.Background()
	for _, e := range events {
		p.Publish(ctx, e)
	}
	require.NoError(t, p.Close())

	got := sink.received()
	require.Len(t, got, len(events))
	for i := range events {
		assert.Equal(t, events[i].ID, got[i].ID)
	}
	assert.Zero(t, p.Dropped())
	assert.True(t, sink.closed)
}

func TestPipelineDropsWhenFull(t *testing.T) {
	sink := &gatedSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p := NewPipeline(sink, WithPipelineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithBufferSize(2))

	ctx := context.Background()
	p.Publish(ctx, testEvent("domain", "a.example", OutcomeFound))
	<-sink.started // worker is now blocked inside Write, buffer empty

	p.Publish(ctx, testEvent("domain", "b.example", OutcomeFound))
	p.Publish(ctx, testEvent("domain", "c.example", OutcomeFound))

	// Buffer full: these two must be dropped, not waited on.
	p.Publish(ctx, testEvent("domain", "d.example", OutcomeFound))
	p.Publish(ctx, testEvent("domain", "e.example", OutcomeFound))
	assert.Equal(t, int64(2), p.Dropped())

	close(sink.release)
	require.NoError(t, p.Close())
	assert.Len(t, sink.received(), 3)
}

func TestPipelineClose(t *testing.T) {
	t.Run("idempotent and propagates sink error", func(t *testing.T) {
		sink := &fakeSink{closeErr: errors.New("broker gone")}
		p := NewPipeline(sink, WithPipelineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

		require.Error(t, p.Close())
		require.Error(t, p.Close())
	})

	t.Run("publish after close drops", func(t *testing.T) {
		sink := &fakeSink{}
		p := NewPipeline(sink)
		require.NoError(t, p.Close())

		p.Publish(context.Background(), testEvent("domain", "late.example", OutcomeFound))
		assert.Equal(t, int64(1), p.Dropped())
		assert.Empty(t, sink.received())
	})
}

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	flushed bool
	closed  bool
}

func (f *fakeProducer) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.records = append(f.records, r)
	f.mu.Unlock()
	if promise != nil {
		promise(r, f.err)
	}
}

func (f *fakeProducer) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = true
	return nil
}

func (f *fakeProducer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestKafkaSinkWritesKeyedRecord(t *testing.T) {
	prod := &fakeProducer{}
	sink := &KafkaSink{client: prod, topic: "rdap.queries", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	e := testEvent("domain", "example.com", OutcomeFound)
	require.NoError(t, sink.Write(context.Background(), e))

	require.Len(t, prod.records, 1)
	rec := prod.records[0]
	assert.Equal(t, "domain", string(rec.Key))
	assert.Contains(t, string(rec.Value), e.ID.String())
	assert.Contains(t, string(rec.Value), `"outcome":"found"`)
}

func TestKafkaSinkLogsProduceFailure(t *testing.T) {
	var buf bytes.Buffer
	prod := &fakeProducer{err: errors.New("leader not available")}
	sink := &KafkaSink{client: prod, topic: "rdap.queries", logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, sink.Write(context.Background(), testEvent("entity", "X-ARIN", OutcomeRedirect)))
	assert.Contains(t, buf.String(), "kafka produce failed")
}

func TestKafkaSinkCloseFlushes(t *testing.T) {
	prod := &fakeProducer{}
	sink := &KafkaSink{client: prod, topic: "rdap.queries", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, sink.Close())
	assert.True(t, prod.flushed)
	assert.True(t, prod.closed)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(nil, "rdap.queries")
	require.Error(t, err)

	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	require.Error(t, err)
}

func TestLogSinkWritesFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	e := testEvent("domain", "example.com", OutcomeFound)
	require.NoError(t, sink.Write(context.Background(), e))
	require.NoError(t, sink.Close())

	out := buf.String()
	assert.Contains(t, out, "rdap query")
	assert.Contains(t, out, "kind=domain")
	assert.Contains(t, out, "key=example.com")
	assert.Contains(t, out, "outcome=found")
}
