package restserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
	"github.com/chrissnell/vantaged/internal/wlk"
	"github.com/chrissnell/vantaged/pkg/almanac"
	"github.com/chrissnell/vantaged/pkg/responseformat"
)

// maxArchiveSpan bounds /archive range queries.
const maxArchiveSpan = 31 * 24 * time.Hour

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	deps      Deps
	logger    *zap.SugaredLogger
	formatter *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{
		deps:      deps,
		logger:    logger,
		formatter: responseformat.NewFormatter(),
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any, maxAge int) {
	headers := map[string]string{"Cache-Control": fmt.Sprintf("max-age=%d", maxAge)}
	if err := h.formatter.WriteResponse(w, req, data, headers); err != nil {
		h.logger.Errorf("error encoding %s response: %v", req.URL.Path, err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteError(w, req, status, msg); err != nil {
		h.logger.Errorf("error encoding %s error response: %v", req.URL.Path, err)
	}
}

// storeError maps store lookups that found nothing to 404.
func (h *Handlers) storeError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, wlk.ErrNoRecords), errors.Is(err, wlk.ErrFileMissing), errors.Is(err, sqlite.ErrNoRecords):
		h.fail(w, req, http.StatusNotFound, err.Error())
	default:
		h.logger.Errorf("%s: %v", req.URL.Path, err)
		h.fail(w, req, http.StatusInternalServerError, "error reading weather data")
	}
}

func unitsOf(req *http.Request) wlk.Units {
	switch req.URL.Query().Get("units") {
	case "metric":
		return wlk.Units{Metric: true, MetricMM: true}
	case "metric-cm":
		return wlk.Units{Metric: true}
	}
	return wlk.Units{}
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04", s, loc)
}

func (h *Handlers) now() time.Time {
	return h.deps.Clock.Now().In(h.deps.Location)
}

func (h *Handlers) reqContext(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), 10*time.Second)
}

// GetLatestLoop returns the most recent LOOP packet.
func (h *Handlers) GetLatestLoop(w http.ResponseWriter, req *http.Request) {
	p, ok := h.deps.Station.LatestLoop()
	if !ok && h.deps.Cache != nil {
		ctx, cancel := h.reqContext(req)
		defer cancel()
		var err error
		if p, ok, err = h.deps.Cache.LatestLoop(ctx, h.deps.Station.StationName()); err != nil {
			h.logger.Warnf("reading cached LOOP packet: %v", err)
		}
	}
	if !ok {
		h.fail(w, req, http.StatusServiceUnavailable, "no LOOP packet received yet")
		return
	}
	h.write(w, req, p, 2)
}

// GetNewestArchive returns the newest record of the archive database.
func (h *Handlers) GetNewestArchive(w http.ResponseWriter, req *http.Request) {
	if h.deps.Archive == nil {
		h.fail(w, req, http.StatusServiceUnavailable, "archive database not enabled")
		return
	}
	ctx, cancel := h.reqContext(req)
	defer cancel()

	newest, err := h.deps.Archive.GetNewestTime(ctx)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	rec, err := h.deps.Archive.GetRecord(ctx, newest)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	h.write(w, req, rec.ToMap(), 60)
}

// GetArchiveRange returns archive records between from and to inclusive.
func (h *Handlers) GetArchiveRange(w http.ResponseWriter, req *http.Request) {
	if h.deps.Archive == nil {
		h.fail(w, req, http.StatusServiceUnavailable, "archive database not enabled")
		return
	}
	q := req.URL.Query()
	from, err := parseTime(q.Get("from"), h.deps.Location)
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, "invalid from time")
		return
	}
	to := h.now()
	if s := q.Get("to"); s != "" {
		if to, err = parseTime(s, h.deps.Location); err != nil {
			h.fail(w, req, http.StatusBadRequest, "invalid to time")
			return
		}
	}
	if to.Before(from) || to.Sub(from) > maxArchiveSpan {
		h.fail(w, req, http.StatusBadRequest, "time range must be ordered and at most 31 days")
		return
	}

	ctx, cancel := h.reqContext(req)
	defer cancel()
	recs, err := h.deps.Archive.GetRange(ctx, from, to)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	out := make([]map[string]any, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToMap())
	}
	h.write(w, req, out, 60)
}

// GetNoaaDay returns the NOAA climatological summary of one day.
func (h *Handlers) GetNoaaDay(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	year, _ := strconv.Atoi(vars["year"])
	month, _ := strconv.Atoi(vars["month"])
	day, _ := strconv.Atoi(vars["day"])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		h.fail(w, req, http.StatusBadRequest, "invalid date")
		return
	}

	d, err := h.deps.Files.GetNoaaDay(year, month, day, unitsOf(req))
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	h.write(w, req, d, 300)
}

type averagesResponse struct {
	Start           time.Time          `json:"start"`
	Minutes         int                `json:"minutes"`
	Records         int                `json:"records"`
	Values          map[string]float64 `json:"values"`
	DominantWindDir string             `json:"dominantWindDir,omitempty"`
}

// GetAverages summarizes samples archive intervals starting at start.
func (h *Handlers) GetAverages(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	start, err := parseTime(q.Get("start"), h.deps.Location)
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, "invalid start time")
		return
	}
	samples, err := strconv.Atoi(q.Get("samples"))
	if err != nil || samples <= 0 {
		h.fail(w, req, http.StatusBadRequest, "samples must be a positive integer")
		return
	}
	interval := h.deps.Station.ArchiveInterval()
	if interval <= 0 {
		h.fail(w, req, http.StatusServiceUnavailable, "archive interval not known yet")
		return
	}

	avg, err := h.deps.Files.GetAverages(start, samples, interval, unitsOf(req))
	if err != nil {
		h.storeError(w, req, err)
		return
	}

	resp := averagesResponse{
		Start:   avg.Start,
		Minutes: avg.Minutes,
		Records: avg.Records,
		Values:  make(map[string]float64),
	}
	for idx := types.DataIndex(0); idx < types.DataIndexMax; idx++ {
		if v := avg.Value(idx); !types.IsNull(v) {
			resp.Values[idx.String()] = v
		}
	}
	if sector := avg.DominantSector(); sector >= 0 {
		resp.DominantWindDir = wlk.WindDirString(sector)
	}
	h.write(w, req, resp, 60)
}

func monthRange(req *http.Request) (wlk.MonthTag, wlk.MonthTag, error) {
	q := req.URL.Query()
	start, err := wlk.ParseMonthTag(q.Get("start"))
	if err != nil {
		return wlk.MonthTag{}, wlk.MonthTag{}, err
	}
	stop := start
	if s := q.Get("stop"); s != "" {
		if stop, err = wlk.ParseMonthTag(s); err != nil {
			return wlk.MonthTag{}, wlk.MonthTag{}, err
		}
	}
	if stop.Before(start) {
		return wlk.MonthTag{}, wlk.MonthTag{}, errors.New("stop is before start")
	}
	return start, stop, nil
}

// ExportArchive streams month-file records as text.
func (h *Handlers) ExportArchive(w http.ResponseWriter, req *http.Request) {
	h.export(w, req, "archive", h.deps.Files.WriteArchive)
}

// ExportSummaries streams month-file daily summaries as text.
func (h *Handlers) ExportSummaries(w http.ResponseWriter, req *http.Request) {
	h.export(w, req, "summaries", h.deps.Files.WriteDailySummaries)
}

func (h *Handlers) export(w http.ResponseWriter, req *http.Request, what string, write func(io.Writer, wlk.MonthTag, wlk.MonthTag) error) {
	start, stop, err := monthRange(req)
	if err != nil {
		h.fail(w, req, http.StatusBadRequest, "start and stop must be YYYY-MM months: "+err.Error())
		return
	}

	// Buffered so a missing month still yields a clean error status.
	var buf bytes.Buffer
	if err := write(&buf, start, stop); err != nil {
		h.storeError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s-%s.txt", what, start, stop))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debugf("export %s: %v", what, err)
	}
}

// GetAlmanac returns sun and moon events for the station position.
func (h *Handlers) GetAlmanac(w http.ResponseWriter, req *http.Request) {
	pos := h.deps.Station.Position()
	if pos == (davis.Position{}) {
		h.fail(w, req, http.StatusServiceUnavailable, "station position not known yet")
		return
	}

	at := h.now()
	if s := req.URL.Query().Get("date"); s != "" {
		d, err := time.ParseInLocation(time.DateOnly, s, h.deps.Location)
		if err != nil {
			h.fail(w, req, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		at = d.Add(12 * time.Hour)
	}

	a := almanac.Compute(at, float64(pos.Latitude)/10, float64(pos.Longitude)/10, float64(pos.Elevation), h.deps.Location)
	h.write(w, req, a, 300)
}

// GetHighLow returns one sensor's extremes between from and to, which
// default to local midnight and now.
func (h *Handlers) GetHighLow(w http.ResponseWriter, req *http.Request) {
	if h.deps.HiLow == nil {
		h.fail(w, req, http.StatusServiceUnavailable, "high/low database not enabled")
		return
	}
	sensor := sqlite.Sensor(mux.Vars(req)["sensor"])
	if !slices.Contains(sqlite.Sensors, sensor) {
		h.fail(w, req, http.StatusNotFound, "unknown sensor "+string(sensor))
		return
	}

	now := h.now()
	y, m, d := now.Date()
	from, to := time.Date(y, m, d, 0, 0, 0, 0, h.deps.Location), now
	q := req.URL.Query()
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = parseTime(s, h.deps.Location); err != nil {
			h.fail(w, req, http.StatusBadRequest, "invalid from time")
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = parseTime(s, h.deps.Location); err != nil {
			h.fail(w, req, http.StatusBadRequest, "invalid to time")
			return
		}
	}

	ctx, cancel := h.reqContext(req)
	defer cancel()
	hl, err := h.deps.HiLow.GetHighLow(ctx, sensor, from, to)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	h.write(w, req, hl, 30)
}

// GetStorageHealth reports every storage engine's last health check.
func (h *Handlers) GetStorageHealth(w http.ResponseWriter, req *http.Request) {
	if h.deps.Health == nil {
		h.write(w, req, map[string]any{}, 0)
		return
	}
	h.write(w, req, h.deps.Health.GetAllHealth(), 0)
}
