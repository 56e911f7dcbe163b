package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantaged/internal/types"
)

func newHiLow(t *testing.T) *HiLowStore {
	t.Helper()
	h, err := OpenHiLow(context.Background(), filepath.Join(t.TempDir(), "hilow.sdb"), nil)
	require.NoError(t, err)
	h.SetLocation(time.UTC)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHiLowSamples(t *testing.T) {
	ctx := context.Background()
	h := newHiLow(t)
	base := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	temps := []float64{70, 68, 75, 72}
	for i, temp := range temps {
		p := types.NewLoopPacket(base.Add(time.Duration(i*10) * time.Minute))
		p.OutTemp = temp
		p.SampleRain = 0.01
		p.WindGust = float64(i * 3)
		p.WindGustDir = 90
		p.WindDir = 180
		require.NoError(t, h.StoreSample(ctx, p))
	}

	hl, err := h.GetHighLow(ctx, SensorOutTemp, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 68.0, hl.Low)
	assert.True(t, hl.TimeLow.Equal(base.Add(10*time.Minute)))
	assert.Equal(t, 75.0, hl.High)
	assert.True(t, hl.TimeHigh.Equal(base.Add(20*time.Minute)))
	assert.Equal(t, 4, hl.Samples)
	assert.InDelta(t, 71.25, hl.Average(), 1e-9)

	rain, err := h.GetHighLow(ctx, SensorRain, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.04, rain.Cumulative, 1e-9)

	gust, err := h.GetHighLow(ctx, SensorWindGust, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 9.0, gust.High)
	assert.Equal(t, 90.0, gust.WhenHigh)

	sector, err := h.DominantWindSector(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 8, sector)

	_, err = h.GetHighLow(ctx, SensorUV, base, base.Add(time.Hour))
	require.ErrorIs(t, err, ErrNoRecords)

	last, err := h.LastUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(base.Add(30*time.Minute)))
}

func TestHiLowArchiveUpdateSkipsCumulative(t *testing.T) {
	ctx := context.Background()
	h := newHiLow(t)
	end := time.Date(2024, 6, 15, 13, 5, 0, 0, time.UTC)

	p := types.NewArchivePacket(end, 5)
	p.Set(types.OutTemp, 60)
	p.Set(types.Rain, 0.1)
	p.Set(types.ET, 0.02)
	p.Set(types.InHumidity, 140) // implausible, dropped

	require.NoError(t, h.StoreArchive(ctx, p))

	p.DateTime = end.Add(5 * time.Minute)
	p.Set(types.OutTemp, 58)
	require.NoError(t, h.UpdateArchive(ctx, p))

	// The first record started at 13:00, so both land in the 13:00 hour.
	hour := time.Date(2024, 6, 15, 13, 0, 0, 0, time.UTC)
	temp, err := h.GetHighLow(ctx, SensorOutTemp, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, temp.Samples)
	assert.Equal(t, 58.0, temp.Low)
	assert.Equal(t, 60.0, temp.High)

	rain, err := h.GetHighLow(ctx, SensorRain, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rain.Samples)
	assert.InDelta(t, 0.1, rain.Cumulative, 1e-9)

	_, err = h.GetHighLow(ctx, SensorInHumidity, hour, hour.Add(time.Hour))
	require.ErrorIs(t, err, ErrNoRecords)

	sector, err := h.DominantWindSector(ctx, hour, hour.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, -1, sector)
}
