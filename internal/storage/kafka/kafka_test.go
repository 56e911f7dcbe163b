package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishArchive(t *testing.T) {
	w := &fakeWriter{}
	s := newStorage(w, time.Second, zap.NewNop().Sugar(), observability.NewMetricsForTesting())

	at := time.Date(2024, 6, 15, 12, 5, 0, 0, time.UTC)
	p := types.NewArchivePacket(at, 5)
	p.Set(types.OutTemp, 71.5)

	require.NoError(t, s.Publish(context.Background(), storage.Observation{Station: "backyard", Archive: &p}))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "backyard", string(msg.Key))
	assert.Equal(t, "kind", msg.Headers[0].Key)
	assert.Equal(t, KindArchive, string(msg.Headers[0].Value))
	assert.Equal(t, "2024-06-15T12:05:00Z", string(msg.Headers[1].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, 71.5, body["outTemp"])
	assert.NotContains(t, body, "windGust")
}

func TestPublishEmpty(t *testing.T) {
	s := newStorage(&fakeWriter{}, 0, zap.NewNop().Sugar(), observability.NewMetricsForTesting())
	assert.Error(t, s.Publish(context.Background(), storage.Observation{}))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := newStorage(w, time.Second, zap.NewNop().Sugar(), observability.NewMetricsForTesting())
	loop := types.NewLoopPacket(time.Now())
	o := storage.Observation{Station: "backyard", Loop: &loop}

	// gobreaker's default ReadyToTrip opens after more than five consecutive failures.
	for i := 0; i < 6; i++ {
		assert.Error(t, s.Publish(context.Background(), o))
	}
	assert.Equal(t, storage.StatusUnhealthy, s.CheckHealth(context.Background()).Status)

	w.err = nil
	err := s.Publish(context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dropped")
	assert.Empty(t, w.msgs)
}
