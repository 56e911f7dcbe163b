package davis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/medium"
	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis/emulator"
	"github.com/chrissnell/vantaged/internal/wlk"
)

type harness struct {
	console *emulator.Console
	weather *emulator.Weather
	medium  *consoleMedium
	files   *wlk.Store
	metrics *observability.Metrics
	station *Station
}

func newHarness(t *testing.T, cfg Config, records int) *harness {
	t.Helper()
	clock := clockwork.NewRealClock()
	h := &harness{
		console: emulator.NewConsole(clock),
		weather: emulator.NewWeather(clock),
		files:   wlk.New(t.TempDir(), nil),
		metrics: observability.NewMetricsForTesting(),
	}
	h.console.SetPosition(452, -1223, 180)
	h.console.Backfill(h.weather, records)
	h.medium = newConsoleMedium(h.console)

	if cfg.Name == "" {
		cfg.Name = "test"
	}
	h.station = NewStation(cfg, h.medium, Deps{
		Files:    h.files,
		Metrics:  h.metrics,
		Location: time.Local,
	})
	t.Cleanup(func() { h.station.Exit() })
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.station.Init(ctx))
	h.pump(t)
}

// pump delivers input until the console has nothing more to say.
func (h *harness) pump(t *testing.T) {
	t.Helper()
	for i := 0; h.medium.Buffered() > 0; i++ {
		require.Less(t, i, 1000, "driver is not consuming input")
		h.station.DataIndicate()
	}
}

func (h *harness) fireTimer() {
	h.station.locked(func() {
		h.station.timerArmed = false
		h.station.dispatch(stimTimer)
	})
}

func (h *harness) state() state {
	h.station.mu.Lock()
	defer h.station.mu.Unlock()
	return h.station.state
}

func (h *harness) count(cmd string) int {
	n := 0
	for _, c := range h.console.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

func drainEvents(st *Station) []Event {
	var evs []Event
	for {
		select {
		case ev, ok := <-st.Events():
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func countEvents(evs []Event, typ EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestStartupDownloadsArchiveThenLoop(t *testing.T) {
	h := newHarness(t, Config{RxCheck: true}, 12)
	h.console.SetRx(emulator.RxCounters{Good: 90, Missed: 10})
	h.init(t)

	evs := drainEvents(h.station)
	require.Len(t, evs, 13)
	assert.Equal(t, 12, countEvents(evs, EventArchiveRecord))
	last := evs[len(evs)-1]
	require.Equal(t, EventStationUp, last.Type)
	require.NotNil(t, last.Loop)
	assert.Equal(t, 90.0, last.Loop.RxCheckPercent)

	assert.Equal(t, stateRun, h.state())
	assert.Equal(t, Position{Latitude: 452, Longitude: -1223, Elevation: 180}, h.station.Position())
	assert.Equal(t, 5, h.station.ArchiveInterval())
	assert.Equal(t, 1, h.count("DMPAFT"))
	assert.Equal(t, 1, h.count("RXCHECK"))
	assert.Equal(t, 1, h.count("LOOP 1"))

	loop, ok := h.station.LatestLoop()
	require.True(t, ok)
	assert.Greater(t, loop.Barometer, 28.0)

	// Archive events arrive oldest first and the watermark follows them.
	prev := time.Time{}
	for _, ev := range evs[:12] {
		require.NotNil(t, ev.Archive)
		assert.True(t, ev.Archive.DateTime.After(prev))
		prev = ev.Archive.DateTime
	}
	assert.True(t, prev.Equal(h.station.watermark()))

	newest, err := h.files.GetNewestArchiveTime()
	require.NoError(t, err)
	assert.Equal(t, h.station.markDate, newest.Date)
	assert.Equal(t, h.station.markTime, newest.Time)

	assert.Equal(t, 12.0, testutil.ToFloat64(h.metrics.ArchiveRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StationUp))
}

func TestArchiveRequest(t *testing.T) {
	h := newHarness(t, Config{}, 3)
	h.init(t)
	drainEvents(h.station)

	h.station.GetArchive()
	h.pump(t)
	assert.Empty(t, drainEvents(h.station))
	assert.Equal(t, stateRun, h.state())

	next := h.station.watermark().Add(5 * time.Minute)
	h.console.AddRecord(h.weather.Record(next, 5))
	h.station.GetArchive()
	h.pump(t)

	evs := drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventArchiveRecord, evs[0].Type)
	assert.True(t, next.Equal(evs[0].Archive.DateTime))
	assert.Equal(t, stateRun, h.state())
	assert.Equal(t, 1, h.count("LOOP 1"))
}

func TestWatermarkFromMonthFiles(t *testing.T) {
	h := newHarness(t, Config{}, 6)
	h.init(t)
	require.Equal(t, 6, countEvents(drainEvents(h.station), EventArchiveRecord))

	// A new session over the same files only asks for what it lacks.
	again := NewStation(Config{Name: "again"}, h.medium, Deps{Files: h.files, Location: time.Local})
	defer again.Exit()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, again.Init(ctx))
	for i := 0; h.medium.Buffered() > 0; i++ {
		require.Less(t, i, 1000)
		again.DataIndicate()
	}
	evs := drainEvents(again)
	require.Len(t, evs, 1)
	assert.Equal(t, EventStationUp, evs[0].Type)
}

func TestReadingsRequest(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	h.init(t)
	drainEvents(h.station)

	h.station.GetReadings()
	h.pump(t)
	evs := drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventReadingsDone, evs[0].Type)
	require.NotNil(t, evs[0].Loop)
	assert.False(t, types.IsNull(evs[0].Loop.OutTemp))
	assert.False(t, types.IsNull(evs[0].Loop.TenMinAvgWindDir))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.LoopPackets))
}

func TestLoopTimeoutResends(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	h.init(t)
	drainEvents(h.station)

	h.station.GetReadings()
	require.Equal(t, stateLoopRequest, h.state())
	h.medium.Flush()

	h.fireTimer()
	require.Equal(t, stateLoopRequest, h.state())
	h.pump(t)

	evs := drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventReadingsDone, evs[0].Type)
	assert.Equal(t, 3, h.count("LOOP 1"))
}

func TestCorruptLoopRecovers(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	h.init(t)
	drainEvents(h.station)

	h.medium.corruptNext(vantage.LoopSize)
	h.station.GetReadings()
	h.pump(t)
	assert.Equal(t, stateReadRecover, h.state())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CRCErrors))
	assert.Empty(t, drainEvents(h.station))

	h.fireTimer()
	assert.Equal(t, stateRun, h.state())
	assert.Zero(t, h.station.recoverTries)

	h.station.GetReadings()
	h.pump(t)
	assert.Equal(t, 1, countEvents(drainEvents(h.station), EventReadingsDone))
}

func TestRecoveryGivesUpAndRestarts(t *testing.T) {
	h := newHarness(t, Config{}, 2)
	h.init(t)
	drainEvents(h.station)

	h.medium.corruptNext(vantage.LoopSize)
	h.station.GetReadings()
	h.pump(t)
	require.Equal(t, stateReadRecover, h.state())

	h.medium.setDead(true)
	for i := 0; i < maxRecoverTries; i++ {
		h.fireTimer()
		require.Equal(t, stateReadRecover, h.state())
	}
	h.fireTimer()
	require.Equal(t, stateError, h.state())

	evs := drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventStationError, evs[0].Type)
	assert.Equal(t, maxRecoverTries+2, h.medium.restartCount())
	assert.Equal(t, float64(maxRecoverTries+1), testutil.ToFloat64(h.metrics.RecoverAttempts))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.StationUp))
	assert.True(t, h.station.timerArmed)

	// Input is discarded while waiting out the back-off.
	h.medium.setDead(false)
	h.station.DataIndicate()
	assert.Equal(t, stateError, h.state())

	h.fireTimer()
	h.pump(t)
	evs = drainEvents(h.station)
	require.NotEmpty(t, evs)
	assert.Equal(t, EventStationUp, evs[len(evs)-1].Type)
	assert.Equal(t, stateRun, h.state())
}

func TestLoopOnly(t *testing.T) {
	h := newHarness(t, Config{LoopOnly: true}, 4)
	h.init(t)

	evs := drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventStationUp, evs[0].Type)

	h.station.GetArchive()
	h.pump(t)
	assert.Empty(t, drainEvents(h.station))
	assert.Zero(t, h.count("DMPAFT"))
}

func TestSyncTime(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	h.init(t)
	drainEvents(h.station)

	h.console.SetClockSkew(-10 * time.Minute)
	h.station.SyncTime()
	h.station.GetReadings()
	h.pump(t)

	assert.False(t, h.station.timeSync.Load())
	assert.WithinDuration(t, time.Now(), h.console.Now(), 3*time.Second)

	_, offset := time.Now().Zone()
	assert.Equal(t, gmtOffsetBlock(offset/60), h.console.EEPROM(emulator.AddrGMTOffset, 5))

	got, err := h.station.ConsoleTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got, 3*time.Second)
}

func TestConsoleQueriesRefusedWhileBusy(t *testing.T) {
	h := newHarness(t, Config{}, 1)
	h.init(t)

	h.station.GetReadings()
	_, err := h.station.GetPosition()
	assert.ErrorIs(t, err, ErrBusy)
	h.pump(t)

	pos, err := h.station.GetPosition()
	require.NoError(t, err)
	assert.Equal(t, 180, pos.Elevation)
}

type staticArchive struct {
	newest   time.Time
	interval int
}

func (a staticArchive) GetNewestTime(context.Context) (time.Time, error) { return a.newest, nil }

func (a staticArchive) GetRecord(_ context.Context, at time.Time) (types.ArchivePacket, error) {
	return types.NewArchivePacket(at, a.interval), nil
}

func (a staticArchive) GetRange(context.Context, time.Time, time.Time) ([]types.ArchivePacket, error) {
	return nil, nil
}

func TestArchiveIntervalMismatch(t *testing.T) {
	clock := clockwork.NewRealClock()
	console := emulator.NewConsole(clock)
	m := newConsoleMedium(console)
	st := NewStation(Config{Name: "test"}, m, Deps{
		Archive:  staticArchive{newest: time.Now().Add(-time.Hour), interval: 10},
		Location: time.Local,
	})
	defer st.Exit()

	require.NoError(t, st.Init(context.Background()))
	assert.Equal(t, stateError, st.state)
	assert.Equal(t, 1, m.restartCount())
	assert.Zero(t, console.Records())
}

func TestRunOverTCP(t *testing.T) {
	clock := clockwork.NewRealClock()
	console := emulator.NewConsole(clock)
	weather := emulator.NewWeather(clock)
	console.Backfill(weather, 8)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emulator.NewServer(console, nil).Serve(ctx, l)

	logger := zap.NewNop().Sugar()
	m := medium.NewTCP(l.Addr().String(), clock, logger)
	st := NewStation(Config{Name: "tcp", IsIP: true}, m, Deps{Location: time.Local, Logger: logger})
	defer st.Exit()

	require.NoError(t, st.Init(ctx))
	go st.Run(ctx)

	archived := 0
	timeout := time.After(20 * time.Second)
	for up := false; !up; {
		select {
		case ev := <-st.Events():
			switch ev.Type {
			case EventArchiveRecord:
				archived++
			case EventStationUp:
				up = true
			}
		case <-timeout:
			t.Fatal("station did not come up")
		}
	}
	assert.Equal(t, 8, archived)

	st.GetReadings()
	select {
	case ev := <-st.Events():
		assert.Equal(t, EventReadingsDone, ev.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("no readings")
	}
}

func TestCalibratedSentinelsStayNull(t *testing.T) {
	cal := vantage.DefaultCalibration()
	cal.OutTemp = vantage.Linear{Multiplier: 1, Offset: 1}
	cal.OutHumidity = vantage.Linear{Multiplier: 1.1, Offset: 2}
	cal.InHumidity = vantage.Linear{Multiplier: 1.1, Offset: 2}
	st := NewStation(Config{Name: "cal", Calibration: cal}, nil, Deps{Location: time.UTC})

	date, tm := vantage.PackDateTime(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	rec := vantage.ArchiveRecord{
		Date: date, Time: tm,
		OutTemp: vantage.TempMissingHigh, HighOutTemp: vantage.TempMissingLow, LowOutTemp: vantage.TempMissingHigh,
		InTemp:      vantage.TempMissingHigh,
		OutHumidity: vantage.HumidityMissing, InHumidity: vantage.HumidityMissing,
		AvgWindSpeed: 0xFF, HighWindSpeed: 0xFF, PrevWindDir: 0xFF, HighWindDir: 0xFF,
		UV: 0xFF, ET: 0xFF, Radiation: 0x7FFF,
	}
	st.cfg.Calibration.ApplyArchive(&rec)
	p := st.archivePacket(rec)

	for _, idx := range []types.DataIndex{
		types.OutTemp, types.InTemp, types.OutHumidity, types.InHumidity,
		types.Dewpoint, types.Heatindex, types.Windchill,
	} {
		assert.True(t, types.IsNull(p.Value(idx)), "index %d", idx)
	}
}

func TestLineBytesBeforeAck(t *testing.T) {
	h := newHarness(t, Config{}, 4)
	h.console.SetAckPrefix([]byte{vantage.LF, vantage.CR})
	h.init(t)
	evs := drainEvents(h.station)
	assert.Equal(t, 4, countEvents(evs, EventArchiveRecord))
	assert.Equal(t, 1, countEvents(evs, EventStationUp))

	h.station.GetReadings()
	h.pump(t)
	evs = drainEvents(h.station)
	require.Len(t, evs, 1)
	assert.Equal(t, EventReadingsDone, evs[0].Type)
	assert.False(t, types.IsNull(evs[0].Loop.OutTemp))
	assert.Equal(t, stateRun, h.state())
}

// lineMedium answers every read with LF.
type lineMedium struct {
	consoleMedium
	reads int
}

func (m *lineMedium) Read(p []byte, _ time.Duration) (int, error) {
	m.reads++
	for i := range p {
		p[i] = vantage.LF
	}
	return len(p), nil
}

func TestAckGivesUpOnEndlessLineBytes(t *testing.T) {
	m := &lineMedium{}
	st := NewStation(Config{Name: "lines"}, m, Deps{})
	err := st.getAck(time.Second)
	assert.ErrorIs(t, err, ErrNoAck)
	assert.Equal(t, maxLineBytes+1, m.reads)
}

func TestQueriesAnswerWhileEventsBackUp(t *testing.T) {
	records := eventBuffer + 40
	h := newHarness(t, Config{}, records)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, h.station.Init(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; h.medium.Buffered() > 0 && i < 1000; i++ {
			h.station.DataIndicate()
		}
	}()

	// Nobody reads events yet, so delivery stalls on a full channel.
	require.Eventually(t, func() bool {
		return len(h.station.Events()) == eventBuffer
	}, 5*time.Second, 5*time.Millisecond)

	answered := make(chan int, 1)
	go func() { answered <- h.station.ArchiveInterval() }()
	select {
	case interval := <-answered:
		assert.Equal(t, 5, interval)
	case <-time.After(time.Second):
		t.Fatal("ArchiveInterval blocked behind event delivery")
	}
	_, _ = h.station.LatestLoop()

	var evs []Event
	for finished := false; !finished; {
		select {
		case ev := <-h.station.Events():
			evs = append(evs, ev)
		case <-done:
			finished = true
		}
	}
	evs = append(evs, drainEvents(h.station)...)
	assert.Equal(t, records, countEvents(evs, EventArchiveRecord))
	assert.Equal(t, 1, countEvents(evs, EventStationUp))
}
