package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/types"
)

// Sensor names one hi-low series.
type Sensor string

const (
	SensorInTemp     Sensor = "inTemp"
	SensorOutTemp    Sensor = "outTemp"
	SensorInHumidity Sensor = "inHumidity"
	SensorOutHumid   Sensor = "outHumidity"
	SensorBarometer  Sensor = "baromPressure"
	SensorWindSpeed  Sensor = "windSpeed"
	SensorWindGust   Sensor = "windGust"
	SensorDewpoint   Sensor = "dewPoint"
	SensorRain       Sensor = "rain"
	SensorRainRate   Sensor = "rainRate"
	SensorWindchill  Sensor = "windChill"
	SensorHeatindex  Sensor = "heatIndex"
	SensorET         Sensor = "ET"
	SensorUV         Sensor = "UV"
	SensorRadiation  Sensor = "solarRadiation"
)

// Sensors lists every tracked series.
var Sensors = []Sensor{
	SensorInTemp, SensorOutTemp, SensorInHumidity, SensorOutHumid, SensorBarometer,
	SensorWindSpeed, SensorWindGust, SensorDewpoint, SensorRain, SensorRainRate,
	SensorWindchill, SensorHeatindex, SensorET, SensorUV, SensorRadiation,
}

// cumulative sensors are summed from LOOP samples while the station runs, so
// archive updates must not count them again.
func (s Sensor) cumulative() bool {
	return s == SensorRain || s == SensorET
}

// reading is one value offered to a sensor series.
type reading struct {
	value    float64
	whenHigh float64
}

// plausible drops readings outside a sensor's physical range.
func plausible(s Sensor, v float64) bool {
	if types.IsNull(v) {
		return false
	}
	switch s {
	case SensorInTemp:
		return v > -500 && v < 500
	case SensorInHumidity:
		return v >= 0 && v <= 100
	case SensorET, SensorUV:
		return v >= 0 && v < 100
	case SensorRadiation:
		return v >= 0 && v < 10000
	}
	return true
}

func archiveReading(s Sensor, p *types.ArchivePacket) reading {
	var idx types.DataIndex
	r := reading{}
	switch s {
	case SensorInTemp:
		idx = types.InTemp
	case SensorOutTemp:
		idx = types.OutTemp
	case SensorInHumidity:
		idx = types.InHumidity
	case SensorOutHumid:
		idx = types.OutHumidity
	case SensorBarometer:
		idx = types.Barometer
	case SensorWindSpeed:
		idx = types.WindSpeed
	case SensorWindGust:
		idx = types.WindGust
		r.whenHigh = p.Value(types.WindGustDir)
	case SensorDewpoint:
		idx = types.Dewpoint
	case SensorRain:
		idx = types.Rain
	case SensorRainRate:
		idx = types.RainRate
	case SensorWindchill:
		idx = types.Windchill
	case SensorHeatindex:
		idx = types.Heatindex
	case SensorET:
		idx = types.ET
	case SensorUV:
		idx = types.UV
	case SensorRadiation:
		idx = types.Radiation
	}
	r.value = p.Value(idx)
	if types.IsNull(r.whenHigh) {
		r.whenHigh = 0
	}
	return r
}

func sampleReading(s Sensor, p *types.LoopPacket) reading {
	switch s {
	case SensorInTemp:
		return reading{value: p.InTemp}
	case SensorOutTemp:
		return reading{value: p.OutTemp}
	case SensorInHumidity:
		return reading{value: p.InHumidity}
	case SensorOutHumid:
		return reading{value: p.OutHumidity}
	case SensorBarometer:
		return reading{value: p.Barometer}
	case SensorWindSpeed:
		return reading{value: p.WindSpeed}
	case SensorWindGust:
		r := reading{value: p.WindGust, whenHigh: p.WindGustDir}
		if types.IsNull(r.whenHigh) {
			r.whenHigh = 0
		}
		return r
	case SensorDewpoint:
		return reading{value: p.Dewpoint}
	case SensorRain:
		return reading{value: p.SampleRain}
	case SensorRainRate:
		return reading{value: p.RainRate}
	case SensorWindchill:
		return reading{value: p.Windchill}
	case SensorHeatindex:
		return reading{value: p.Heatindex}
	case SensorET:
		return reading{value: p.SampleET}
	case SensorUV:
		return reading{value: p.UV}
	case SensorRadiation:
		return reading{value: p.Radiation}
	}
	return reading{value: types.Null}
}

// HighLow is the aggregate of one sensor over a time frame.
type HighLow struct {
	Sensor     Sensor    `json:"sensor"`
	Low        float64   `json:"low"`
	TimeLow    time.Time `json:"timeLow"`
	High       float64   `json:"high"`
	TimeHigh   time.Time `json:"timeHigh"`
	WhenHigh   float64   `json:"whenHigh"`
	Cumulative float64   `json:"cumulative"`
	Samples    int       `json:"samples"`
}

// Average is the mean of every sample, or Null without samples.
func (h HighLow) Average() float64 {
	if h.Samples == 0 {
		return types.Null
	}
	return h.Cumulative / float64(h.Samples)
}

// HiLowStore keeps hourly high, low and cumulative values per sensor, fed by
// LOOP samples while the station runs and by archive records otherwise.
type HiLowStore struct {
	db     *sql.DB
	loc    *time.Location
	logger *zap.SugaredLogger
}

// OpenHiLow opens (creating if needed) the hi-low database at path.
func OpenHiLow(ctx context.Context, path string, logger *zap.SugaredLogger) (*HiLowStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := open(ctx, path, "hilow", logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("hi-low database %s opened", path)
	return &HiLowStore{db: db, loc: time.Local, logger: logger}, nil
}

// SetLocation sets the zone hourly buckets are aligned in.
func (h *HiLowStore) SetLocation(loc *time.Location) {
	h.loc = loc
}

// Close closes the database.
func (h *HiLowStore) Close() error {
	return h.db.Close()
}

func (h *HiLowStore) hourOf(t time.Time) time.Time {
	t = t.In(h.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, h.loc)
}

// StoreSample folds one LOOP packet into the current hour.
func (h *HiLowStore) StoreSample(ctx context.Context, p types.LoopPacket) error {
	return h.update(ctx, p.Timestamp, p.WindDir, func(s Sensor) (reading, bool) {
		return sampleReading(s, &p), true
	})
}

// StoreArchive folds an archive record into the hour its interval started
// in. Used while no LOOP samples are being stored.
func (h *HiLowStore) StoreArchive(ctx context.Context, p types.ArchivePacket) error {
	return h.storeArchive(ctx, p, true)
}

// UpdateArchive is StoreArchive without the cumulative sensors, which LOOP
// samples already account for.
func (h *HiLowStore) UpdateArchive(ctx context.Context, p types.ArchivePacket) error {
	return h.storeArchive(ctx, p, false)
}

func (h *HiLowStore) storeArchive(ctx context.Context, p types.ArchivePacket, withCumulative bool) error {
	at := p.DateTime.Add(-time.Duration(p.Interval) * time.Minute)
	return h.update(ctx, at, p.Value(types.WindDir), func(s Sensor) (reading, bool) {
		if s.cumulative() && !withCumulative {
			return reading{}, false
		}
		return archiveReading(s, &p), true
	})
}

func (h *HiLowStore) update(ctx context.Context, at time.Time, windDir float64, get func(Sensor) (reading, bool)) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("hi-low: begin: %w", err)
	}
	defer tx.Rollback()

	hour := h.hourOf(at).Unix()
	for _, s := range Sensors {
		r, ok := get(s)
		if !ok || !plausible(s, r.value) {
			continue
		}
		if err := insertData(ctx, tx, s, hour, at.Unix(), r); err != nil {
			return err
		}
	}

	if !types.IsNull(windDir) && windDir >= 0 {
		sector := int(math.Round(windDir/22.5)) % 16
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO windDir (dateTime, sector, samples) VALUES (?, ?, 1)
			ON CONFLICT (dateTime, sector) DO UPDATE SET samples = samples + 1`, hour, sector); err != nil {
			return fmt.Errorf("hi-low: wind direction: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE metadata SET value = ? WHERE name = 'lastUpdate'", at.Unix()); err != nil {
		return fmt.Errorf("hi-low: last update: %w", err)
	}
	return tx.Commit()
}

func insertData(ctx context.Context, tx *sql.Tx, s Sensor, hour, at int64, r reading) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hilow (sensor, dateTime, low, timeLow, high, timeHigh, whenHigh, cumulative, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (sensor, dateTime) DO UPDATE SET
			timeLow = CASE WHEN excluded.low < low THEN excluded.timeLow ELSE timeLow END,
			low = MIN(low, excluded.low),
			timeHigh = CASE WHEN excluded.high > high THEN excluded.timeHigh ELSE timeHigh END,
			whenHigh = CASE WHEN excluded.high > high THEN excluded.whenHigh ELSE whenHigh END,
			high = MAX(high, excluded.high),
			cumulative = cumulative + excluded.cumulative,
			samples = samples + 1`,
		string(s), hour, r.value, at, r.value, at, r.whenHigh, r.value)
	if err != nil {
		return fmt.Errorf("hi-low: storing %s: %w", s, err)
	}
	return nil
}

// LastUpdate returns the time of the newest value folded in.
func (h *HiLowStore) LastUpdate(ctx context.Context) (time.Time, error) {
	var v int64
	if err := h.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE name = 'lastUpdate'").Scan(&v); err != nil {
		return time.Time{}, fmt.Errorf("hi-low: last update: %w", err)
	}
	return time.Unix(v, 0).In(h.loc), nil
}

// GetHighLow aggregates sensor over the hours starting in [from, to).
func (h *HiLowStore) GetHighLow(ctx context.Context, sensor Sensor, from, to time.Time) (HighLow, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT low, timeLow, high, timeHigh, whenHigh, cumulative, samples
		FROM hilow WHERE sensor = ? AND dateTime >= ? AND dateTime < ?
		ORDER BY dateTime ASC`, string(sensor), h.hourOf(from).Unix(), to.Unix())
	if err != nil {
		return HighLow{}, fmt.Errorf("hi-low: querying %s: %w", sensor, err)
	}
	defer rows.Close()

	out := HighLow{Sensor: sensor}
	for rows.Next() {
		var (
			low, high, whenHigh, cumulative float64
			timeLow, timeHigh               int64
			samples                         int
		)
		if err := rows.Scan(&low, &timeLow, &high, &timeHigh, &whenHigh, &cumulative, &samples); err != nil {
			return HighLow{}, fmt.Errorf("hi-low: reading %s: %w", sensor, err)
		}
		if out.Samples == 0 || low < out.Low {
			out.Low, out.TimeLow = low, time.Unix(timeLow, 0).In(h.loc)
		}
		if out.Samples == 0 || high > out.High {
			out.High, out.TimeHigh, out.WhenHigh = high, time.Unix(timeHigh, 0).In(h.loc), whenHigh
		}
		out.Cumulative += cumulative
		out.Samples += samples
	}
	if err := rows.Err(); err != nil {
		return HighLow{}, err
	}
	if out.Samples == 0 {
		return out, ErrNoRecords
	}
	return out, nil
}

// DominantWindSector returns the most frequent 16-point wind sector over
// [from, to), or -1 without samples.
func (h *HiLowStore) DominantWindSector(ctx context.Context, from, to time.Time) (int, error) {
	var sector sql.NullInt64
	err := h.db.QueryRowContext(ctx, `
		SELECT sector FROM windDir WHERE dateTime >= ? AND dateTime < ?
		GROUP BY sector ORDER BY SUM(samples) DESC, sector ASC LIMIT 1`,
		h.hourOf(from).Unix(), to.Unix()).Scan(&sector)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("hi-low: wind direction: %w", err)
	}
	return int(sector.Int64), nil
}

// Snapshot writes a consistent copy of the database to path.
func (h *HiLowStore) Snapshot(ctx context.Context, path string) error {
	return snapshot(ctx, h.db, path)
}
