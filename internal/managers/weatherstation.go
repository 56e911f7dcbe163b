package managers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
)

// StationDriver is the console driver the manager runs.
type StationDriver interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	Exit() error
	Events() <-chan davis.Event
	StationName() string
	ArchiveInterval() int
}

// ArchiveRecorder persists archive records long term.
type ArchiveRecorder interface {
	StoreRecord(ctx context.Context, p types.ArchivePacket) (bool, error)
}

// SampleRecorder folds LOOP packets into the high/low store.
type SampleRecorder interface {
	StoreSample(ctx context.Context, p types.LoopPacket) error
}

// Distributor hands observations to the storage engines.
type Distributor interface {
	Distribute(ctx context.Context, o storage.Observation)
}

// StationListener is told when the console link comes and goes.
type StationListener interface {
	StationUp(ctx context.Context, archiveInterval int)
	StationDown()
}

// WeatherStationManager runs the console driver and routes its events to
// the local stores and the storage engines.
type WeatherStationManager struct {
	driver      StationDriver
	archive     ArchiveRecorder
	hilow       SampleRecorder
	distributor Distributor
	listeners   []StationListener
	logger      *zap.SugaredLogger
}

// NewWeatherStationManager wires a driver to its sinks. archive, hilow and
// distributor may be nil.
func NewWeatherStationManager(driver StationDriver, archive ArchiveRecorder, hilow SampleRecorder, distributor Distributor, logger *zap.SugaredLogger, listeners ...StationListener) *WeatherStationManager {
	return &WeatherStationManager{
		driver:      driver,
		archive:     archive,
		hilow:       hilow,
		distributor: distributor,
		listeners:   listeners,
		logger:      logger,
	}
}

// StartWeatherStation initializes the driver and starts its event loop and
// the event consumer.
func (w *WeatherStationManager) StartWeatherStation(ctx context.Context, wg *sync.WaitGroup) error {
	name := w.driver.StationName()
	w.logger.Infof("Starting weather station [%v]...", name)
	if err := w.driver.Init(ctx); err != nil {
		return fmt.Errorf("failed to start weather station [%s]: %w", name, err)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := w.driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Errorf("weather station [%s] stopped: %v", name, err)
		}
		if err := w.driver.Exit(); err != nil {
			w.logger.Warnf("closing weather station [%s]: %v", name, err)
		}
	}()
	go func() {
		defer wg.Done()
		w.consume(ctx)
	}()
	return nil
}

// consume handles events until the driver closes its channel.
func (w *WeatherStationManager) consume(ctx context.Context) {
	for ev := range w.driver.Events() {
		w.handle(ctx, ev)
	}
	w.logger.Infof("weather station [%s] event stream closed", w.driver.StationName())
}

func (w *WeatherStationManager) handle(ctx context.Context, ev davis.Event) {
	name := w.driver.StationName()
	switch ev.Type {
	case davis.EventStationUp:
		w.logger.Infof("weather station [%s] is up", name)
		for _, l := range w.listeners {
			l.StationUp(ctx, w.driver.ArchiveInterval())
		}
		w.handleLoop(ctx, ev.Loop)

	case davis.EventReadingsDone:
		w.handleLoop(ctx, ev.Loop)

	case davis.EventArchiveRecord:
		if ev.Archive == nil {
			return
		}
		if w.archive != nil {
			stored, err := w.archive.StoreRecord(ctx, *ev.Archive)
			switch {
			case err != nil:
				w.logger.Errorf("storing archive record %s: %v", ev.Archive.DateTime, err)
			case !stored:
				w.logger.Debugf("archive record %s already stored", ev.Archive.DateTime)
				return
			}
		}
		w.distribute(ctx, storage.Observation{Station: name, Archive: ev.Archive})

	case davis.EventStationError:
		w.logger.Warnf("weather station [%s] reported an error; restarting", name)
		for _, l := range w.listeners {
			l.StationDown()
		}
	}
}

func (w *WeatherStationManager) handleLoop(ctx context.Context, p *types.LoopPacket) {
	if p == nil {
		return
	}
	if w.hilow != nil {
		if err := w.hilow.StoreSample(ctx, *p); err != nil {
			w.logger.Errorf("storing LOOP sample: %v", err)
		}
	}
	w.distribute(ctx, storage.Observation{Station: w.driver.StationName(), Loop: p})
}

func (w *WeatherStationManager) distribute(ctx context.Context, o storage.Observation) {
	if w.distributor != nil {
		w.distributor.Distribute(ctx, o)
	}
}
