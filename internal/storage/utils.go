package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
)

// HealthChecker defines the interface for storage backends to implement health checks
type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthData
}

// StartHealthMonitor starts a generic health monitoring goroutine for any storage backend
func StartHealthMonitor(ctx context.Context, hm *HealthManager, storageType string, checker HealthChecker, interval time.Duration, logger *zap.SugaredLogger) {
	go func() {
		updateHealth := func() {
			health := checker.CheckHealth(ctx)
			hm.UpdateHealth(storageType, health)
			logger.Debugf("updated %s health status: %s", storageType, health.Status)
		}

		updateHealth()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				updateHealth()
			case <-ctx.Done():
				logger.Infof("stopping %s health monitor", storageType)
				return
			}
		}
	}()
}

// ProcessObservations provides a standard pattern for draining an engine's
// channel into processor, counting outcomes in metrics.
func ProcessObservations(ctx context.Context, wg *sync.WaitGroup, c <-chan Observation, processor func(context.Context, Observation) error, name string, logger *zap.SugaredLogger, metrics *observability.Metrics) {
	defer wg.Done()

	for {
		select {
		case o := <-c:
			if err := processor(ctx, o); err != nil {
				logger.Errorf("%s observation processor error: %v", name, err)
				metrics.StorageWrites.WithLabelValues(name, "error").Inc()
				continue
			}
			metrics.StorageWrites.WithLabelValues(name, "ok").Inc()
		case <-ctx.Done():
			logger.Infof("cancellation request received. Cancelling %s observation processor", name)
			return
		}
	}
}

// CreateHealthData creates a basic health data structure
func CreateHealthData(status, message string, err error) *HealthData {
	health := &HealthData{
		LastCheck: time.Now(),
		Status:    status,
		Message:   message,
	}

	if err != nil {
		health.Error = err.Error()
	}

	return health
}
