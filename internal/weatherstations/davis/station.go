// Package davis drives a Davis VantagePro console: it keeps the console's
// archive memory mirrored into the local stores and answers LOOP requests,
// reacting to one stimulus at a time.
package davis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/medium"
	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wlk"
	"github.com/chrissnell/vantaged/internal/wxcalc"
)

// ErrBusy is returned by console queries made while a transfer is running.
var ErrBusy = errors.New("davis: console is busy")

const (
	defaultErrorBackoff = 30 * time.Second
	eventBuffer         = 256
)

// Config holds the settings of one VantagePro console.
type Config struct {
	Name   string        `yaml:"name" validate:"required"`
	Medium medium.Config `yaml:"medium"`
	// IsIP selects the longer timeouts a WeatherLinkIP needs.
	IsIP bool `yaml:"isIP"`
	// RxCheck runs RXCHECK after every archive download.
	RxCheck bool `yaml:"rxCheck"`
	// LoopOnly skips archive downloads for consoles without a data logger.
	LoopOnly bool `yaml:"loopOnly"`
	// AlignStart delays startup away from the top of the minute, when the
	// console is busy writing its archive record.
	AlignStart   bool                `yaml:"alignStart"`
	ErrorBackoff time.Duration       `yaml:"errorBackoff"`
	Calibration  vantage.Calibration `yaml:"calibration"`
}

// Position is the station location stored in the console.
type Position struct {
	Latitude  int `json:"latitude"`  // tenths of a degree, negative south
	Longitude int `json:"longitude"` // tenths of a degree, negative west
	Elevation int `json:"elevation"` // feet
}

// FileStore is the month-file archive.
type FileStore interface {
	AppendArchiveRecord(rec vantage.ArchiveRecord, interval int, collector uint16) error
	GetNewestArchiveTime() (wlk.ArchiveEntry, error)
}

// ArchiveStore is the long-term archive database.
type ArchiveStore interface {
	GetNewestTime(ctx context.Context) (time.Time, error)
	GetRecord(ctx context.Context, at time.Time) (types.ArchivePacket, error)
	GetRange(ctx context.Context, from, to time.Time) ([]types.ArchivePacket, error)
}

// HiLowStore keeps per-interval extremes.
type HiLowStore interface {
	StoreArchive(ctx context.Context, p types.ArchivePacket) error
	UpdateArchive(ctx context.Context, p types.ArchivePacket) error
}

// Deps are the collaborators of a Station. Nil stores are skipped.
type Deps struct {
	Files   FileStore
	Archive ArchiveStore
	HiLow   HiLowStore
	Clock   clockwork.Clock
	Logger  *zap.SugaredLogger
	Metrics *observability.Metrics
	// Location is the console's time zone; nil selects time.Local.
	Location *time.Location
}

// Station holds one console session. Every entry point serializes on mu and
// drives the state machine synchronously.
type Station struct {
	cfg     Config
	medium  medium.Medium
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
	loc     *time.Location
	files   FileStore
	archive ArchiveStore
	hilow   HiLowStore

	events    chan Event
	quit      chan struct{}
	sendMu    sync.Mutex
	timeSync  atomic.Bool
	sessionID string

	mu            sync.Mutex
	ctx           context.Context
	closed        bool
	outbox        []Event
	state         state
	timer         clockwork.Timer
	timerArmed    bool
	timerDeadline time.Time

	running       bool
	errorReported bool
	doLoop        bool
	archiveRetry  bool
	recoverTries  int

	interval  int
	collector vantage.RainCollector
	position  Position

	markDate, markTime uint16
	pages, currentPage int
	firstRecord        int

	tempAvg     *wxcalc.Accumulator
	windDirs    *wxcalc.Accumulator
	rx          rxStats
	sampleRain  int
	sampleET    int
	archiveGust float64
	lastGood    lastGood
	lastLoop    types.LoopPacket
	haveLoop    bool
}

// NewStation returns an unstarted driver for the console behind m.
func NewStation(cfg Config, m medium.Medium, deps Deps) *Station {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetricsForTesting()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	cfg.Calibration.Normalize()

	timer := deps.Clock.NewTimer(time.Hour)
	timer.Stop()

	return &Station{
		cfg:        cfg,
		medium:     m,
		clock:      deps.Clock,
		logger:     deps.Logger.With("station", cfg.Name),
		metrics:    deps.Metrics,
		loc:        deps.Location,
		files:      deps.Files,
		archive:    deps.Archive,
		hilow:      deps.HiLow,
		events:     make(chan Event, eventBuffer),
		quit:       make(chan struct{}),
		ctx:        context.Background(),
		timer:      timer,
		collector:  vantage.DefaultRainCollector,
		tempAvg:    wxcalc.NewAccumulator(12 * time.Hour),
		windDirs:   wxcalc.NewAccumulator(10 * time.Minute),
		rx:         newRxStats(),
		sampleRain: -1,
		sampleET:   -1,
		lastGood:   newLastGood(),
	}
}

// StationName returns the configured name of the station.
func (s *Station) StationName() string {
	return s.cfg.Name
}

// Events delivers completion events. It is closed by Exit.
func (s *Station) Events() <-chan Event {
	return s.events
}

// emit queues ev for delivery once s.mu is released. Callers hold s.mu.
func (s *Station) emit(ev Event) {
	s.outbox = append(s.outbox, ev)
}

// flush delivers queued events in order without holding s.mu, so queries
// such as LatestLoop are not held up by a slow consumer. Only one goroutine
// delivers at a time; any other caller leaves its events to that one, which
// lets a consumer call back into the driver while a delivery is blocked.
func (s *Station) flush() {
	for {
		if !s.sendMu.TryLock() {
			return
		}
		stopped := s.deliver()
		s.sendMu.Unlock()
		if stopped {
			return
		}

		s.mu.Lock()
		more := !s.closed && len(s.outbox) > 0
		s.mu.Unlock()
		if !more {
			return
		}
	}
}

// deliver sends the outbox until it is empty. It reports true when the
// session context ended or Exit was called first. Callers hold s.sendMu.
func (s *Station) deliver() bool {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return true
		}
		if len(s.outbox) == 0 {
			s.mu.Unlock()
			return false
		}
		ev := s.outbox[0]
		s.outbox = s.outbox[1:]
		ctx := s.ctx
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return true
		case <-s.quit:
			return true
		}
	}
}

// locked runs fn under s.mu and then delivers whatever it emitted.
func (s *Station) locked(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.flush()
}

// Init opens the medium, seeds the watermark and the 12-hour temperature
// average from the stores, reads the station position and starts the
// handshake. ctx bounds the whole session.
func (s *Station) Init(ctx context.Context) error {
	var err error
	s.locked(func() { err = s.init(ctx) })
	return err
}

func (s *Station) init(ctx context.Context) error {
	s.ctx = ctx
	s.sessionID = uuid.NewString()
	s.logger = s.logger.With("session", s.sessionID)

	if err := s.medium.Open(ctx); err != nil {
		return fmt.Errorf("davis: opening medium: %w", err)
	}
	s.logger.Infof("Vantage Pro on %s opened", s.mediumName())

	// The first wakeup after opening is usually lost.
	_ = s.wakeup()
	_ = s.wakeup()

	if pos, err := s.readPosition(); err != nil {
		s.logger.Warnf("reading station position: %v", err)
	} else {
		s.setPosition(pos)
	}

	s.seedWatermark(ctx)
	s.seedTemperatureAverage(ctx)

	s.logger.Info("starting station interface: VantagePro")
	s.dispatch(stimStart)
	return nil
}

func (s *Station) mediumName() string {
	if s.cfg.Medium.Type == "tcp" {
		return s.cfg.Medium.Address
	}
	return s.cfg.Medium.Device
}

// seedWatermark picks the newest stored record so DMPAFT only returns
// records we do not have yet.
func (s *Station) seedWatermark(ctx context.Context) {
	if s.archive != nil {
		if t, err := s.archive.GetNewestTime(ctx); err == nil {
			s.setWatermark(t)
			return
		}
	}
	if s.files != nil {
		if e, err := s.files.GetNewestArchiveTime(); err == nil {
			s.markDate, s.markTime = e.Date, e.Time
			s.logger.Infof("archive watermark from month files: %s", s.watermark().Format(time.DateTime))
			return
		}
	}
	s.logger.Info("no archive records found, fetching the last month from the console")
	s.setWatermark(s.clock.Now().AddDate(0, -1, 0))
}

func (s *Station) setWatermark(t time.Time) {
	s.markDate, s.markTime = vantage.PackDateTime(t.In(s.loc))
	s.logger.Infof("archive watermark: %s", s.watermark().Format(time.DateTime))
}

func (s *Station) watermark() time.Time {
	return vantage.UnpackDateTime(s.markDate, s.markTime, s.loc)
}

func (s *Station) seedTemperatureAverage(ctx context.Context) {
	if s.archive == nil {
		return
	}
	now := s.clock.Now()
	recs, err := s.archive.GetRange(ctx, now.Add(-12*time.Hour), now)
	if err != nil {
		s.logger.Warnf("loading 12 hours of temperatures: %v", err)
		return
	}
	for _, r := range recs {
		s.tempAvg.Add(r.DateTime, r.Value(types.OutTemp))
	}
	s.logger.Debugf("seeded temperature average with %d records", len(recs))
}

// verifyArchiveInterval rejects a console interval that differs from the
// newest stored record's.
func (s *Station) verifyArchiveInterval() error {
	if s.archive == nil {
		return nil
	}
	newest, err := s.archive.GetNewestTime(s.ctx)
	if err != nil {
		return nil
	}
	rec, err := s.archive.GetRecord(s.ctx, newest)
	if err != nil {
		return nil
	}
	if rec.Interval != s.interval {
		return fmt.Errorf("davis: station interval of %d does not match archive interval of %d", s.interval, rec.Interval)
	}
	return nil
}

// Exit stops the driver and closes the medium.
func (s *Station) Exit() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.outbox = nil
	s.stopTimer()
	close(s.quit)
	s.mu.Unlock()

	// Wait out a delivery in progress before closing the channel.
	s.sendMu.Lock()
	close(s.events)
	s.sendMu.Unlock()
	return s.medium.Close()
}

// GetPosition wakes the console and reads its stored location.
func (s *Station) GetPosition() (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRun {
		return Position{}, ErrBusy
	}
	if err := s.wakeup(); err != nil {
		return Position{}, err
	}
	pos, err := s.readPosition()
	if err != nil {
		return Position{}, err
	}
	s.setPosition(pos)
	return pos, nil
}

// ConsoleTime wakes the console and reads its clock.
func (s *Station) ConsoleTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRun {
		return time.Time{}, ErrBusy
	}
	if err := s.wakeup(); err != nil {
		return time.Time{}, err
	}
	return s.consoleTime()
}

func (s *Station) setPosition(pos Position) {
	s.position = pos
	ns, ew := 'N', 'E'
	if pos.Latitude < 0 {
		ns = 'S'
	}
	if pos.Longitude < 0 {
		ew = 'W'
	}
	s.logger.Infof("station location: elevation: %d feet", pos.Elevation)
	s.logger.Infof("station location: latitude: %3.1f %c  longitude: %3.1f %c",
		float64(abs(pos.Latitude))/10, ns, float64(abs(pos.Longitude))/10, ew)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Position returns the last location read from the console.
func (s *Station) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// ArchiveInterval returns the console's archive period in minutes.
func (s *Station) ArchiveInterval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// LatestLoop returns the most recent LOOP packet.
func (s *Station) LatestLoop() (types.LoopPacket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoop, s.haveLoop
}

// SyncTime asks for the console clock to be set after the next LOOP.
func (s *Station) SyncTime() {
	s.timeSync.Store(true)
}

// GetReadings requests a LOOP packet; completion is signalled by an
// EventReadingsDone.
func (s *Station) GetReadings() {
	s.process(stimReadings)
}

// GetArchive requests a download of new archive records.
func (s *Station) GetArchive() {
	s.process(stimArchive)
}

// DataIndicate tells the driver input is waiting on the medium.
func (s *Station) DataIndicate() {
	s.locked(func() {
		if s.closed || s.medium.Buffered() == 0 {
			return
		}
		s.dispatch(stimIO)
	})
}

// MessageIndicate accepts daemon messages; the VantagePro has none to handle.
func (s *Station) MessageIndicate(any) {}

// TimerExpiry delivers the interface timer. Expiries of a timer that was
// since stopped or restarted are dropped.
func (s *Station) TimerExpiry() {
	s.locked(func() {
		if s.closed || !s.timerArmed || s.clock.Now().Before(s.timerDeadline) {
			return
		}
		s.timerArmed = false
		s.dispatch(stimTimer)
	})
}

func (s *Station) process(st stimulus) {
	s.locked(func() {
		if s.closed {
			return
		}
		s.dispatch(st)
	})
}

func (s *Station) startTimer(d time.Duration) {
	s.timer.Reset(d)
	s.timerArmed = true
	s.timerDeadline = s.clock.Now().Add(d)
}

func (s *Station) stopTimer() {
	s.timer.Stop()
	s.timerArmed = false
}

// Run feeds medium input and timer expiries into the state machine until ctx
// is done.
func (s *Station) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.medium.Ready():
			s.DataIndicate()
		case <-s.timer.Chan():
			s.TimerExpiry()
		}
	}
}

// SessionID identifies the current Init in logs.
func (s *Station) SessionID() string {
	return s.sessionID
}
