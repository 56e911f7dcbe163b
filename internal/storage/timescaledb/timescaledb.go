// Package timescaledb stores archive records in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chrissnell/vantaged/internal/database"
	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
	metrics         *observability.Metrics
}

// StartStorageEngine creates a goroutine loop to receive archive records and
// send them off to TimescaleDB. LOOP snapshots are ignored.
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.Observation {
	t.logger.Info("starting TimescaleDB storage engine...")
	c := make(chan storage.Observation, 10)
	wg.Add(1)
	go storage.ProcessObservations(ctx, wg, c, t.process, "timescaledb", t.logger, t.metrics)
	return c
}

func (t *Storage) process(ctx context.Context, o storage.Observation) error {
	if o.Archive == nil {
		return nil
	}
	return t.StoreReading(ctx, types.NewReading(o.Station, *o.Archive))
}

// StoreReading stores a reading, ignoring one already present.
func (t *Storage) StoreReading(ctx context.Context, r types.Reading) error {
	err := t.TimescaleDBConn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&r).Error
	if err != nil {
		return fmt.Errorf("could not store reading: %w", err)
	}
	return nil
}

// CheckHealth pings the database.
func (t *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Failed to get underlying database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Database ping failed", err)
	}
	var result int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Database query test failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "TimescaleDB operational", nil)
}

// New connects to TimescaleDB and creates the archive hypertable and its
// hourly and daily rollups.
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger, metrics *observability.Metrics) (*Storage, error) {
	conn, err := database.CreateConnection(connectionString, logger)
	if err != nil {
		return nil, err
	}
	t := &Storage{TimescaleDBConn: conn, logger: logger, metrics: metrics}

	steps := []struct {
		what     string
		sql      string
		optional bool
	}{
		{"creating archive table", createTableSQL, false},
		{"creating TimescaleDB extension", createExtensionSQL, false},
		{"creating hypertable", createHypertableSQL, false},
		// Postgres has no CREATE TYPE IF NOT EXISTS, so this fails on every
		// start after the first.
		{"creating circular average type", createCircAvgStateTypeSQL, true},
		{"creating circular average accumulator", createCircAvgStateFunctionSQL, false},
		{"creating circular average combiner", createCircAvgCombinerFunctionSQL, false},
		{"creating circular average finalizer", createCircAvgFinalizerFunctionSQL, false},
		{"creating circular average aggregate", createCircAvgAggregateFunctionSQL, false},
		{"creating 1h view", create1hViewSQL, false},
		{"creating 1d view", create1dViewSQL, false},
		{"adding 1h aggregation policy", addAggregationPolicy1hSQL, false},
		{"adding 1d aggregation policy", addAggregationPolicy1dSQL, false},
	}
	for _, step := range steps {
		logger.Infof("%s...", step.what)
		if err := conn.WithContext(ctx).Exec(step.sql).Error; err != nil {
			if step.optional {
				logger.Infof("%s: %v (safe to ignore if it already exists)", step.what, err)
				continue
			}
			return nil, fmt.Errorf("%s: %w", step.what, err)
		}
	}

	return t, nil
}
