package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/backup"
	grpcctl "github.com/chrissnell/vantaged/internal/controllers/grpc"
	"github.com/chrissnell/vantaged/internal/controllers/restserver"
	"github.com/chrissnell/vantaged/internal/datafeed"
	"github.com/chrissnell/vantaged/internal/managers"
	"github.com/chrissnell/vantaged/internal/medium"
	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/scheduler"
	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
	"github.com/chrissnell/vantaged/internal/wlk"
	"github.com/chrissnell/vantaged/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.Config, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// schedulerStarter starts the scheduler on the first StationUp, once the
// console's archive interval is known.
type schedulerStarter struct {
	once   sync.Once
	sched  *scheduler.Scheduler
	logger *zap.SugaredLogger
}

func (s *schedulerStarter) StationUp(ctx context.Context, interval int) {
	s.once.Do(func() {
		if err := s.sched.Start(ctx, interval); err != nil {
			s.logger.Errorf("starting scheduler: %v", err)
		}
	})
}

func (s *schedulerStarter) StationDown() {}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.cfg
	loc, err := cfg.Archive.Location()
	if err != nil {
		return fmt.Errorf("loading time zone %q: %w", cfg.Archive.TimeZone, err)
	}
	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	files := wlk.New(cfg.Archive.Dir, a.logger)
	files.SetLocation(loc)

	archiveDB, err := sqlite.OpenArchive(ctx, cfg.Archive.Database, a.logger)
	if err != nil {
		return err
	}
	defer archiveDB.Close()
	archiveDB.SetLocation(loc)

	hilowDB, err := sqlite.OpenHiLow(ctx, cfg.Archive.HiLowDatabase, a.logger)
	if err != nil {
		return err
	}
	defer hilowDB.Close()
	hilowDB.SetLocation(loc)

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, &wg, &cfg.Storage, a.logger, metrics)
	if err != nil {
		return err
	}

	if cfg.Datafeed.Enabled {
		feed := datafeed.NewServer(cfg.Datafeed.Listen, archiveDB, a.logger, metrics)
		storageManager.AddEngine(ctx, &wg, "datafeed", feed)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.Run(ctx); err != nil {
				a.logger.Errorf("datafeed: %v", err)
			}
		}()
	}

	m, err := medium.New(cfg.Station.Medium, clock, a.logger)
	if err != nil {
		return err
	}
	station := davis.NewStation(cfg.Station, m, davis.Deps{
		Files:    files,
		Archive:  archiveDB,
		HiLow:    hilowDB,
		Clock:    clock,
		Logger:   a.logger,
		Metrics:  metrics,
		Location: loc,
	})

	var nightly scheduler.Backup
	if cfg.Backup.Endpoint != "" {
		client, err := backup.NewClient(cfg.Backup)
		if err != nil {
			return err
		}
		b := backup.New(client, cfg.Backup, cfg.Archive.Dir, map[string]backup.Snapshotter{
			"archive.sdb": archiveDB,
			"hilow.sdb":   hilowDB,
		}, a.logger)
		nightly = scheduler.BackupFunc(func(ctx context.Context) error {
			_, err := b.Run(ctx)
			return err
		})
	}
	sched := scheduler.New(station, cfg.Schedule, nightly, cfg.Backup.At, loc, a.logger)
	defer sched.Stop()

	// Initialize the controllers
	health := grpcctl.NewController(ctx, &wg, cfg.Health, a.logger)
	deps := restserver.Deps{
		Station:  station,
		Files:    files,
		Archive:  archiveDB,
		HiLow:    hilowDB,
		Health:   storageManager.Health,
		Gatherer: prometheus.DefaultGatherer,
		Location: loc,
		Clock:    clock,
	}
	if storageManager.Valkey != nil {
		deps.Cache = storageManager.Valkey
	}
	rest, err := restserver.NewController(ctx, &wg, cfg.REST, deps, a.logger)
	if err != nil {
		return err
	}
	if err := managers.NewControllerManager(a.logger, rest, health).StartControllers(); err != nil {
		return err
	}

	// Start the station last so nothing it emits is missed.
	wsm := managers.NewWeatherStationManager(station, archiveDB, hilowDB, storageManager, a.logger,
		health, &schedulerStarter{sched: sched, logger: a.logger})
	if err := wsm.StartWeatherStation(ctx, &wg); err != nil {
		return err
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
