package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai_voice_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	records []models.LatencyRecord
	err     error
	block   chan struct{}
}

func (s *memorySink) RecordMetrics(ctx context.Context, rec models.LatencyRecord) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestReporter_DeliversInOrder(t *testing.T) {
	sink := &memorySink{}
	r := NewReporter(sink, 8, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	for _, id := range []string{"a", "b", "c"} {
		r.Emit(models.LatencyRecord{CallID: id, TotalMs: models.Millis(120 * time.Millisecond)})
	}

	require.Eventually(t, func() bool { return sink.len() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-r.Done()

	assert.Equal(t, "a", sink.records[0].CallID)
	assert.Equal(t, "c", sink.records[2].CallID)
}

func TestReporter_EmitNeverBlocks(t *testing.T) {
	sink := &memorySink{block: make(chan struct{})}
	r := NewReporter(sink, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	start := time.Now()
	for i := 0; i < 10; i++ {
		r.Emit(models.LatencyRecord{CallID: "slow"})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Greater(t, r.Dropped(), int64(0))

	close(sink.block)
	cancel()
	<-r.Done()
}

func TestReporter_SinkErrorIsSwallowed(t *testing.T) {
	sink := &memorySink{err: errors.New("db down")}
	r := NewReporter(sink, 4, time.Second)

	r.Emit(models.LatencyRecord{CallID: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	assert.Equal(t, 1, sink.len())
}

func TestReporter_NilSink(t *testing.T) {
	r := NewReporter(nil, 0, 0)
	r.Emit(models.LatencyRecord{CallID: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	assert.Equal(t, int64(0), r.Dropped())
}
