// Package kafka publishes observations to a Kafka topic behind a circuit
// breaker, so a dead broker costs one fast failure per observation instead
// of a write timeout.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
)

// Message kinds carried in the "kind" header.
const (
	KindLoop    = "loop"
	KindArchive = "archive"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Storage is the Kafka storage engine.
type Storage struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

// Config selects the brokers and topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// New creates a producer for cfg.Topic.
func New(cfg Config, logger *zap.SugaredLogger, metrics *observability.Metrics) *Storage {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newStorage(w, cfg.WriteTimeout, logger, metrics)
}

func newStorage(w messageWriter, timeout time.Duration, logger *zap.SugaredLogger, metrics *observability.Metrics) *Storage {
	s := &Storage{writer: w, timeout: timeout, logger: logger, metrics: metrics}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("%s circuit breaker: %s -> %s", name, from, to)
		},
	})
	return s
}

// StartStorageEngine starts the publishing goroutine.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.Observation {
	s.logger.Info("starting Kafka storage engine...")
	c := make(chan storage.Observation, 32)
	wg.Add(1)
	go func() {
		storage.ProcessObservations(ctx, wg, c, s.Publish, "kafka", s.logger, s.metrics)
		if err := s.writer.Close(); err != nil {
			s.logger.Warnf("closing Kafka writer: %v", err)
		}
	}()
	return c
}

// Publish writes one observation.
func (s *Storage) Publish(ctx context.Context, o storage.Observation) error {
	msg, err := toMessage(o)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (any, error) {
		wctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return nil, s.writer.WriteMessages(wctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kafka unavailable, observation dropped: %w", err)
	}
	return err
}

// CheckHealth reports the breaker state.
func (s *Storage) CheckHealth(context.Context) *storage.HealthData {
	st := s.breaker.State()
	if st == gobreaker.StateOpen {
		return storage.CreateHealthData(storage.StatusUnhealthy, "circuit breaker open", nil)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "circuit breaker "+st.String(), nil)
}

func toMessage(o storage.Observation) (kafkago.Message, error) {
	var (
		kind string
		at   time.Time
		v    any
	)
	switch {
	case o.Archive != nil:
		kind, at, v = KindArchive, o.Archive.DateTime, o.Archive.ToMap()
	case o.Loop != nil:
		kind, at, v = KindLoop, o.Loop.Timestamp, o.Loop
	default:
		return kafkago.Message{}, errors.New("empty observation")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s observation: %w", kind, err)
	}
	return kafkago.Message{
		Key:   []byte(o.Station),
		Value: data,
		Time:  at,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "observed_at", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}, nil
}
