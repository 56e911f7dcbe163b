package almanac

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func within(t *testing.T, want, got time.Time, tol time.Duration) {
	t.Helper()
	d := got.Sub(want)
	assert.LessOrEqualf(t, math.Abs(float64(d)), float64(tol), "want %s, got %s", want, got)
}

func TestSunTimes(t *testing.T) {
	pdt := time.FixedZone("PDT", -7*3600)
	bst := time.FixedZone("BST", 3600)

	tests := []struct {
		name     string
		date     time.Time
		lat, lon float64
		ok       bool
		rise     time.Time
		set      time.Time
	}{
		{
			name: "equator at equinox",
			date: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
			ok:   true,
			rise: time.Date(2024, 3, 20, 6, 4, 0, 0, time.UTC),
			set:  time.Date(2024, 3, 20, 18, 11, 0, 0, time.UTC),
		},
		{
			name: "Seattle summer solstice",
			date: time.Date(2024, 6, 20, 12, 0, 0, 0, pdt),
			lat:  47.6, lon: -122.3,
			ok:   true,
			rise: time.Date(2024, 6, 20, 5, 11, 0, 0, pdt),
			set:  time.Date(2024, 6, 20, 21, 10, 0, 0, pdt),
		},
		{
			name: "London summer solstice",
			date: time.Date(2024, 6, 20, 12, 0, 0, 0, bst),
			lat:  51.5, lon: -0.13,
			ok:   true,
			rise: time.Date(2024, 6, 20, 4, 43, 0, 0, bst),
			set:  time.Date(2024, 6, 20, 21, 21, 0, 0, bst),
		},
		{
			name: "polar day",
			date: time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC),
			lat:  70, lon: 25,
		},
		{
			name: "polar night",
			date: time.Date(2024, 12, 21, 0, 0, 0, 0, time.UTC),
			lat:  70, lon: 25,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noon, rise, set, ok := SunTimes(tt.date, tt.lat, tt.lon)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.date.Day(), noon.Day())
			if !ok {
				return
			}
			within(t, tt.rise, rise, 10*time.Minute)
			within(t, tt.set, set, 10*time.Minute)
			assert.True(t, rise.Before(noon) && noon.Before(set))
		})
	}
}

func TestClearSkyRadiation(t *testing.T) {
	noon := ClearSkyRadiation(time.Date(2024, 6, 21, 19, 0, 0, 0, time.UTC), 40, -105, 1600)
	assert.Greater(t, noon, 800.0)
	assert.Less(t, noon, 1200.0)

	night := ClearSkyRadiation(time.Date(2024, 6, 21, 7, 0, 0, 0, time.UTC), 40, -105, 1600)
	assert.Zero(t, night)
}

func TestMoon(t *testing.T) {
	tests := []struct {
		name   string
		at     time.Time
		phase  string
		minIll float64
		maxIll float64
	}{
		{"new", time.Date(2023, 1, 21, 20, 53, 0, 0, time.UTC), "New Moon", 0, 0.05},
		{"full", time.Date(2023, 2, 5, 18, 29, 0, 0, time.UTC), "Full Moon", 0.95, 1},
		{"waxing crescent", time.Date(2023, 1, 24, 12, 0, 0, 0, time.UTC), "Waxing Crescent", 0.05, 0.45},
		{"waning gibbous", time.Date(2023, 2, 9, 0, 0, 0, 0, time.UTC), "Waning Gibbous", 0.55, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Moon(tt.at)
			assert.InDelta(t, (tt.minIll+tt.maxIll)/2, m.Illumination, (tt.maxIll-tt.minIll)/2)
			if tt.phase == "New Moon" || tt.phase == "Full Moon" {
				// The exact instant can land on either side of the threshold.
				assert.Contains(t, []string{tt.phase, "Waxing Crescent", "Waning Crescent", "Waxing Gibbous", "Waning Gibbous"}, m.Name)
				return
			}
			assert.Equal(t, tt.phase, m.Name)
		})
	}
}

func TestNextPhases(t *testing.T) {
	from := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	within(t, time.Date(2023, 1, 21, 20, 53, 0, 0, time.UTC), NextNewMoon(from), 15*time.Minute)
	within(t, time.Date(2023, 2, 5, 18, 29, 0, 0, time.UTC), NextFullMoon(from), 15*time.Minute)

	// Just after a new moon the next one is a month away.
	after := time.Date(2023, 1, 22, 0, 0, 0, 0, time.UTC)
	within(t, time.Date(2023, 2, 20, 7, 6, 0, 0, time.UTC), NextNewMoon(after), 15*time.Minute)
}

func TestCompute(t *testing.T) {
	loc := time.FixedZone("MDT", -6*3600)
	a := Compute(time.Date(2024, 6, 21, 10, 0, 0, 0, loc), 40, -105, 5280, loc)
	require.NotNil(t, a.Sunrise)
	require.NotNil(t, a.Sunset)
	assert.Equal(t, "2024-06-21", a.Date)
	assert.InDelta(t, 15*60, a.DayLengthMinutes, 30)
	assert.Greater(t, a.ClearSkyRadiation, 0.0)
	assert.True(t, a.NextFullMoon.After(time.Date(2024, 6, 21, 10, 0, 0, 0, loc)))

	polar := Compute(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC), 75, 15, 0, time.UTC)
	assert.Nil(t, polar.Sunrise)
	assert.Equal(t, 24.0*60, polar.DayLengthMinutes)
}
