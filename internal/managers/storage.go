package managers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/storage/kafka"
	"github.com/chrissnell/vantaged/internal/storage/timescaledb"
	"github.com/chrissnell/vantaged/internal/storage/valkey"
	"github.com/chrissnell/vantaged/pkg/config"
)

const healthInterval = time.Minute

// StorageManager holds our active storage backends
type StorageManager struct {
	mu                     sync.RWMutex
	Engines                []StorageEngine
	ObservationDistributor chan storage.Observation
	Health                 *storage.HealthManager

	logger  *zap.SugaredLogger
	metrics *observability.Metrics
	// Valkey is kept for latest-conditions reads.
	Valkey *valkey.Storage
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing observations to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- storage.Observation
}

// NewStorageManager creates a StorageManager object, populated with all configured StorageEngines
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c *config.StorageConfig, logger *zap.SugaredLogger, metrics *observability.Metrics) (*StorageManager, error) {
	s := &StorageManager{
		ObservationDistributor: make(chan storage.Observation, 20),
		Health:                 storage.NewHealthManager(),
		logger:                 logger,
		metrics:                metrics,
	}

	if c.TimescaleDB.ConnectionString != "" {
		t, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, logger, metrics)
		if err != nil {
			return s, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "timescaledb", t)
	}

	if len(c.Kafka.Brokers) > 0 {
		k := kafka.New(kafka.Config{
			Brokers:      c.Kafka.Brokers,
			Topic:        c.Kafka.Topic,
			WriteTimeout: c.Kafka.WriteTimeout,
		}, logger, metrics)
		s.AddEngine(ctx, wg, "kafka", k)
	}

	if c.Valkey.Address != "" {
		v, err := valkey.New(ctx, valkey.Config{
			Address:  c.Valkey.Address,
			Username: c.Valkey.Username,
			Password: c.Valkey.Password,
			Prefix:   c.Valkey.Prefix,
			TTL:      c.Valkey.TTL,
		}, logger, metrics)
		if err != nil {
			return s, fmt.Errorf("could not add Valkey storage backend: %w", err)
		}
		s.Valkey = v
		s.AddEngine(ctx, wg, "valkey", v)
	}

	wg.Add(1)
	go s.startObservationDistributor(ctx, wg)

	return s, nil
}

// AddEngine starts engine and adds it to the fan-out. Engines that can
// check their own health are monitored.
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, name string, engine storage.StorageEngineInterface) {
	se := StorageEngine{Name: name, Engine: engine}
	se.C = engine.StartStorageEngine(ctx, wg)
	s.mu.Lock()
	s.Engines = append(s.Engines, se)
	s.mu.Unlock()

	if hc, ok := engine.(storage.HealthChecker); ok {
		storage.StartHealthMonitor(ctx, s.Health, name, hc, healthInterval, s.logger)
	}
}

// Distribute queues o for every engine without blocking the caller for
// longer than ctx allows.
func (s *StorageManager) Distribute(ctx context.Context, o storage.Observation) {
	select {
	case s.ObservationDistributor <- o:
	case <-ctx.Done():
	}
}

// startObservationDistributor fans observations out to the storage
// backends. An engine whose queue is full misses the observation rather
// than stalling the others.
func (s *StorageManager) startObservationDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case o := <-s.ObservationDistributor:
			s.mu.RLock()
			engines := s.Engines
			s.mu.RUnlock()
			for _, e := range engines {
				select {
				case e.C <- o:
				default:
					s.logger.Warnf("%s storage queue full, observation dropped", e.Name)
					s.metrics.StorageWrites.WithLabelValues(e.Name, "dropped").Inc()
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
