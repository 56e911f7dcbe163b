package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
	"github.com/chrissnell/vantaged/internal/wlk"
	"github.com/chrissnell/vantaged/pkg/config"
)

var testNow = time.Date(2024, 6, 21, 15, 0, 0, 0, time.UTC)

type fakeStation struct {
	loop    *types.LoopPacket
	pos     davis.Position
	archive int
}

func (f *fakeStation) StationName() string { return "home" }
func (f *fakeStation) LatestLoop() (types.LoopPacket, bool) {
	if f.loop == nil {
		return types.LoopPacket{}, false
	}
	return *f.loop, true
}
func (f *fakeStation) Position() davis.Position { return f.pos }
func (f *fakeStation) ArchiveInterval() int     { return f.archive }

type fakeArchive struct {
	recs []types.ArchivePacket
}

func (f *fakeArchive) GetNewestTime(context.Context) (time.Time, error) {
	if len(f.recs) == 0 {
		return time.Time{}, sqlite.ErrNoRecords
	}
	return f.recs[len(f.recs)-1].DateTime, nil
}

func (f *fakeArchive) GetRecord(_ context.Context, at time.Time) (types.ArchivePacket, error) {
	for _, r := range f.recs {
		if r.DateTime.Equal(at) {
			return r, nil
		}
	}
	return types.ArchivePacket{}, sqlite.ErrNoRecords
}

func (f *fakeArchive) GetRange(_ context.Context, from, to time.Time) ([]types.ArchivePacket, error) {
	var out []types.ArchivePacket
	for _, r := range f.recs {
		if !r.DateTime.Before(from) && !r.DateTime.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeHiLow struct {
	from, to time.Time
}

func (f *fakeHiLow) GetHighLow(_ context.Context, s sqlite.Sensor, from, to time.Time) (sqlite.HighLow, error) {
	f.from, f.to = from, to
	if s == sqlite.SensorUV {
		return sqlite.HighLow{}, sqlite.ErrNoRecords
	}
	return sqlite.HighLow{Sensor: s, Low: 48, High: 77, Samples: 2, Cumulative: 125}, nil
}

type fakeFiles struct {
	units wlk.Units
}

func (f *fakeFiles) GetAverages(start time.Time, samples, interval int, units wlk.Units) (*wlk.PeriodAverages, error) {
	if start.Year() < 2000 {
		return nil, wlk.ErrNoRecords
	}
	avg := &wlk.PeriodAverages{Start: start, Minutes: samples * interval, Records: samples}
	avg.Sums[types.OutTemp] = 60 * float64(samples)
	avg.Samples[types.OutTemp] = samples
	avg.Sums[types.Rain] = 0.02
	avg.Samples[types.Rain] = samples
	avg.DirMinutes[4] = 30
	return avg, nil
}

func (f *fakeFiles) GetNoaaDay(year, month, day int, units wlk.Units) (wlk.NoaaDay, error) {
	f.units = units
	if year == 2030 {
		return wlk.NoaaDay{}, wlk.ErrFileMissing
	}
	return wlk.NoaaDay{Year: year, Month: month, Day: day, HighTemp: 80}, nil
}

func (f *fakeFiles) WriteArchive(w io.Writer, start, stop wlk.MonthTag) error {
	if start.Year == 2030 {
		fmt.Fprintln(w, "partial")
		return wlk.ErrFileMissing
	}
	_, err := fmt.Fprintf(w, "archive %s %s\n", start, stop)
	return err
}

func (f *fakeFiles) WriteDailySummaries(w io.Writer, start, stop wlk.MonthTag) error {
	_, err := fmt.Fprintf(w, "summaries %s %s\n", start, stop)
	return err
}

type fixture struct {
	handler http.Handler
	station *fakeStation
	archive *fakeArchive
	hilow   *fakeHiLow
	files   *fakeFiles
	health  *storage.HealthManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loop := types.NewLoopPacket(testNow)
	loop.OutTemp = 72.5

	rec := types.NewArchivePacket(testNow.Add(-5*time.Minute), 5)
	rec.Set(types.OutTemp, 71)

	f := &fixture{
		station: &fakeStation{loop: &loop, pos: davis.Position{Latitude: 400, Longitude: -1050, Elevation: 5280}, archive: 5},
		archive: &fakeArchive{recs: []types.ArchivePacket{rec}},
		hilow:   &fakeHiLow{},
		files:   &fakeFiles{},
		health:  storage.NewHealthManager(),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "vantaged_test_total"}))

	c, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTConfig{}, Deps{
		Station:  f.station,
		Files:    f.files,
		Archive:  f.archive,
		HiLow:    f.hilow,
		Health:   f.health,
		Gatherer: reg,
		Location: time.UTC,
		Clock:    clockwork.NewFakeClockAt(testNow),
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	f.handler = c.Handler()
	return f
}

func (f *fixture) get(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestNewControllerRequiresStation(t *testing.T) {
	_, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTConfig{}, Deps{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestStatusCodes(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		url  string
		code int
	}{
		{"/api/v1/loop/latest", http.StatusOK},
		{"/api/v1/archive/newest", http.StatusOK},
		{"/api/v1/archive?from=2024-06-21T14:00:00Z", http.StatusOK},
		{"/api/v1/archive?from=bogus", http.StatusBadRequest},
		{"/api/v1/archive?from=2024-01-01T00:00:00Z&to=2024-06-01T00:00:00Z", http.StatusBadRequest},
		{"/api/v1/noaa/2024/6/20", http.StatusOK},
		{"/api/v1/noaa/2024/13/20", http.StatusBadRequest},
		{"/api/v1/noaa/2030/1/1", http.StatusNotFound},
		{"/api/v1/noaa/24/1/1", http.StatusNotFound},
		{"/api/v1/averages?start=2024-06-21T12:00:00Z&samples=3", http.StatusOK},
		{"/api/v1/averages?start=2024-06-21T12:00:00Z&samples=0", http.StatusBadRequest},
		{"/api/v1/averages?start=1999-06-21T12:00:00Z&samples=3", http.StatusNotFound},
		{"/api/v1/export/archive?start=2024-05&stop=2024-06", http.StatusOK},
		{"/api/v1/export/archive?start=2024-06&stop=2024-05", http.StatusBadRequest},
		{"/api/v1/export/archive?start=2030-01", http.StatusNotFound},
		{"/api/v1/export/summaries?start=2024-05", http.StatusOK},
		{"/api/v1/almanac", http.StatusOK},
		{"/api/v1/almanac?date=21-06-2024", http.StatusBadRequest},
		{"/api/v1/hilow/outTemp", http.StatusOK},
		{"/api/v1/hilow/UV", http.StatusNotFound},
		{"/api/v1/hilow/snowDepth", http.StatusNotFound},
		{"/api/v1/storage/health", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.code, f.get(t, tt.url).Code)
		})
	}
}

func TestLatestLoop(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/loop/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 72.5, decode(t, rec)["outTemp"])

	rec = f.get(t, "/api/v1/loop/latest?format=msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))
	var p types.LoopPacket
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 72.5, p.OutTemp)

	f.station.loop = nil
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/loop/latest").Code)
}

type fakeCache struct{ p types.LoopPacket }

func (f fakeCache) LatestLoop(_ context.Context, station string) (types.LoopPacket, bool, error) {
	return f.p, station == "home", nil
}

func TestLatestLoopFromCache(t *testing.T) {
	cached := types.NewLoopPacket(testNow.Add(-time.Minute))
	cached.OutTemp = 55.5

	c, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTConfig{}, Deps{
		Station:  &fakeStation{},
		Files:    &fakeFiles{},
		Cache:    fakeCache{p: cached},
		Location: time.UTC,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/loop/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 55.5, decode(t, rec)["outTemp"])
}

func TestNewestArchive(t *testing.T) {
	f := newFixture(t)
	m := decode(t, f.get(t, "/api/v1/archive/newest"))
	assert.Equal(t, 71.0, m["outTemp"])

	f.archive.recs = nil
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/archive/newest").Code)
}

func TestAverages(t *testing.T) {
	f := newFixture(t)
	m := decode(t, f.get(t, "/api/v1/averages?start=2024-06-21T12:00:00Z&samples=3"))
	assert.EqualValues(t, 15, m["minutes"])
	values := m["values"].(map[string]any)
	assert.Equal(t, 60.0, values[types.OutTemp.String()])
	assert.Equal(t, 0.02, values[types.Rain.String()])
	assert.Equal(t, 90.0, values[types.WindDir.String()])
	assert.Equal(t, wlk.WindDirString(4), m["dominantWindDir"])

	f.station.archive = 0
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/averages?start=2024-06-21T12:00:00Z&samples=3").Code)
}

func TestNoaaUnits(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/noaa/2024/6/20?units=metric").Code)
	assert.Equal(t, wlk.Units{Metric: true, MetricMM: true}, f.files.units)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/v1/export/archive?start=2024-05&stop=2024-06")
	assert.Equal(t, "archive 2024-05 2024-06\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = f.get(t, "/api/v1/export/archive?start=2030-01")
	assert.NotContains(t, rec.Body.String(), "partial")
}

func TestHighLowDefaultsToToday(t *testing.T) {
	f := newFixture(t)
	m := decode(t, f.get(t, "/api/v1/hilow/outTemp"))
	assert.Equal(t, 77.0, m["high"])
	assert.True(t, f.hilow.from.Equal(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.hilow.to.Equal(testNow))
}

func TestAlmanac(t *testing.T) {
	f := newFixture(t)
	m := decode(t, f.get(t, "/api/v1/almanac?date=2024-06-21"))
	assert.Equal(t, "2024-06-21", m["date"])
	assert.Contains(t, m, "sunrise")
	assert.Contains(t, m, "moon")

	f.station.pos = davis.Position{}
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/v1/almanac").Code)
}

func TestStorageHealth(t *testing.T) {
	f := newFixture(t)
	f.health.UpdateHealth("kafka", storage.CreateHealthData(storage.StatusHealthy, "ok", nil))
	m := decode(t, f.get(t, "/api/v1/storage/health"))
	require.Contains(t, m, "kafka")
	assert.Equal(t, storage.StatusHealthy, m["kafka"].(map[string]any)["status"])
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/metrics")
	assert.Contains(t, rec.Body.String(), "vantaged_test_total")
}
