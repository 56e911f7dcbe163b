// Package scheduler drives the station's periodic work: readings polls,
// archive downloads, the daily clock sync and the nightly backup.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/pkg/config"
)

// Station is the driver surface the scheduler pokes.
type Station interface {
	GetReadings()
	GetArchive()
	SyncTime()
}

// Backup is run once a day.
type Backup interface {
	Run(ctx context.Context) error
}

// BackupFunc adapts a function to Backup.
type BackupFunc func(ctx context.Context) error

func (f BackupFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler periodically asks the station for readings and archive records.
type Scheduler struct {
	scheduler *gocron.Scheduler
	station   Station
	backup    Backup
	cfg       config.ScheduleConfig
	backupAt  string
	logger    *zap.SugaredLogger
}

// New creates a Scheduler running in loc. backup may be nil.
func New(station Station, cfg config.ScheduleConfig, backup Backup, backupAt string, loc *time.Location, logger *zap.SugaredLogger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		station:   station,
		backup:    backup,
		cfg:       cfg,
		backupAt:  backupAt,
		logger:    logger,
	}
}

// archiveCron returns a seconds-resolution cron spec that fires delay
// after every archive boundary of interval minutes.
func archiveCron(interval int, delay time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("scheduler: bad archive interval %d", interval)
	}
	sec := int(delay.Seconds()) % 60
	minute := int(delay.Minutes())
	switch {
	case interval < 60 && 60%interval == 0:
		if minute >= interval {
			return "", fmt.Errorf("scheduler: archive delay %s exceeds the %d minute interval", delay, interval)
		}
		return fmt.Sprintf("%d %d/%d * * * *", sec, minute, interval), nil
	case interval%60 == 0 && interval <= 24*60 && (24*60)%interval == 0:
		if minute >= 60 {
			return "", fmt.Errorf("scheduler: archive delay %s is over an hour", delay)
		}
		return fmt.Sprintf("%d %d */%d * * *", sec, minute, interval/60), nil
	}
	return "", fmt.Errorf("scheduler: archive interval %d does not divide the day evenly", interval)
}

// Start schedules the jobs for a console archiving every interval minutes
// and starts the underlying scheduler.
func (s *Scheduler) Start(ctx context.Context, interval int) error {
	spec, err := archiveCron(interval, s.cfg.ArchiveDelay)
	if err != nil {
		return err
	}

	if _, err := s.scheduler.Every(s.cfg.ReadingsInterval).Tag("readings").Do(s.station.GetReadings); err != nil {
		return fmt.Errorf("scheduling readings: %w", err)
	}
	if _, err := s.scheduler.CronWithSeconds(spec).Tag("archive").Do(s.station.GetArchive); err != nil {
		return fmt.Errorf("scheduling archive download: %w", err)
	}
	if s.cfg.ClockSync != "" {
		if _, err := s.scheduler.Every(1).Day().At(s.cfg.ClockSync).Tag("clock").Do(s.station.SyncTime); err != nil {
			return fmt.Errorf("scheduling clock sync: %w", err)
		}
	}
	if s.backup != nil && s.backupAt != "" {
		_, err := s.scheduler.Every(1).Day().At(s.backupAt).Tag("backup").Do(func() {
			bctx, cancel := context.WithTimeout(ctx, time.Hour)
			defer cancel()
			if err := s.backup.Run(bctx); err != nil {
				s.logger.Errorf("scheduler: backup failed: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("scheduling backup: %w", err)
		}
	}

	s.logger.Infof("scheduler: readings every %s, archive at %q, %d jobs", s.cfg.ReadingsInterval, spec, s.scheduler.Len())
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
