package restserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/log"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
	"github.com/chrissnell/vantaged/internal/wlk"
	"github.com/chrissnell/vantaged/pkg/config"
)

// Station is the live driver state the API reports.
type Station interface {
	StationName() string
	LatestLoop() (types.LoopPacket, bool)
	Position() davis.Position
	ArchiveInterval() int
}

// ArchiveReader is the long-term archive database.
type ArchiveReader interface {
	GetNewestTime(ctx context.Context) (time.Time, error)
	GetRecord(ctx context.Context, at time.Time) (types.ArchivePacket, error)
	GetRange(ctx context.Context, from, to time.Time) ([]types.ArchivePacket, error)
}

// HiLowReader is the hourly high/low database.
type HiLowReader interface {
	GetHighLow(ctx context.Context, sensor sqlite.Sensor, from, to time.Time) (sqlite.HighLow, error)
}

// MonthFiles is the .wlk month-file store.
type MonthFiles interface {
	GetAverages(start time.Time, samples, interval int, units wlk.Units) (*wlk.PeriodAverages, error)
	GetNoaaDay(year, month, day int, units wlk.Units) (wlk.NoaaDay, error)
	WriteArchive(w io.Writer, start, stop wlk.MonthTag) error
	WriteDailySummaries(w io.Writer, start, stop wlk.MonthTag) error
}

// LoopCache holds the last LOOP packet across restarts.
type LoopCache interface {
	LatestLoop(ctx context.Context, station string) (types.LoopPacket, bool, error)
}

// Deps are the stores and services behind the API. Archive, HiLow, Cache
// and Health may be nil.
type Deps struct {
	Station  Station
	Files    MonthFiles
	Archive  ArchiveReader
	HiLow    HiLowReader
	Cache    LoopCache
	Health   *storage.HealthManager
	Gatherer prometheus.Gatherer
	Location *time.Location
	Clock    clockwork.Clock
}

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	Server   http.Server
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, rc config.RESTConfig, deps Deps, logger *zap.SugaredLogger) (*Controller, error) {
	if deps.Station == nil || deps.Files == nil {
		return nil, errors.New("REST server needs a station and the month-file store")
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	ctrl := &Controller{
		ctx:    ctx,
		wg:     wg,
		logger: logger,
	}
	ctrl.handlers = NewHandlers(deps, logger)

	if rc.Listen == "" {
		logger.Info("rest.listen not provided; defaulting to :8080")
		rc.Listen = ":8080"
	}
	ctrl.Server.Addr = rc.Listen
	ctrl.Server.Handler = ctrl.setupRouter(deps.Gatherer)
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// Handler returns the routed API, for embedding or tests.
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter(g prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger))

	api := router.PathPrefix("/api/v1").Methods(http.MethodGet).Subrouter()
	api.HandleFunc("/loop/latest", c.handlers.GetLatestLoop)
	api.HandleFunc("/archive/newest", c.handlers.GetNewestArchive)
	api.HandleFunc("/archive", c.handlers.GetArchiveRange)
	api.HandleFunc("/noaa/{year:[0-9]{4}}/{month:[0-9]{1,2}}/{day:[0-9]{1,2}}", c.handlers.GetNoaaDay)
	api.HandleFunc("/averages", c.handlers.GetAverages)
	api.HandleFunc("/export/archive", c.handlers.ExportArchive)
	api.HandleFunc("/export/summaries", c.handlers.ExportSummaries)
	api.HandleFunc("/almanac", c.handlers.GetAlmanac)
	api.HandleFunc("/hilow/{sensor}", c.handlers.GetHighLow)
	api.HandleFunc("/storage/health", c.handlers.GetStorageHealth)

	router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return router
}
