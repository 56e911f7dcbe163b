package wxcalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chrissnell/vantaged/internal/types"
)

func TestDerived(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"heat index", HeatIndex(90, 60), 99.6777},
		{"heat index below threshold", HeatIndex(70, 90), 70},
		{"wind chill", WindChill(20, 15), 6.2189},
		{"wind chill warm", WindChill(55, 20), 55},
		{"wind chill calm", WindChill(20, 3), 20},
		{"dew point", Dewpoint(70, 50), 50.4926},
		{"station pressure", SeaLevelToStation(30, 59, 1000), 28.9349},
		{"sea level pressure", StationToSeaLevel(28.934942452326275, 59, 1000), 30},
		{"altimeter", Altimeter(28.934942452326275, 1000), 29.9942},
		{"f to c", FToC(212), 100},
		{"c to f", CToF(-40), -40},
		{"inHg to hPa", InHgToHPa(29.92), 1013.21},
		{"in to mm", InToMM(1), 25.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.got, 0.01)
		})
	}
}

func TestNullPassThrough(t *testing.T) {
	assert.Equal(t, types.Null, HeatIndex(types.Null, 50))
	assert.Equal(t, types.Null, WindChill(20, types.Null))
	assert.Equal(t, types.Null, Dewpoint(types.Null, types.Null))
	assert.Equal(t, types.Null, FToC(types.Null))
	assert.Equal(t, types.Null, SeaLevelToStation(30, types.Null, 100))
}

func TestWindAverage(t *testing.T) {
	tests := []struct {
		name string
		dirs []int
		want float64
	}{
		{"empty", nil, types.Null},
		{"north", []int{0, 0, 0}, 0},
		{"east", []int{90, 90}, 90},
		{"wraps through north", []int{350, 10}, 0},
		{"quantized to bin centre", []int{225, 225, 225}, 234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w WindAverage
			for _, d := range tt.dirs {
				w.Add(d)
			}
			assert.Equal(t, tt.want, w.Compute())
		})
	}
}

func TestConsensusDirection(t *testing.T) {
	assert.Equal(t, types.Null, ConsensusDirection(nil))
	assert.Equal(t, 0.0, ConsensusDirection([]float64{350, 10, 0}))

	acc := NewAccumulator(10 * time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acc.Add(start, 270)
	acc.Add(start.Add(11*time.Minute), 90)
	acc.Add(start.Add(12*time.Minute), 90)
	assert.Equal(t, []float64{90, 90}, acc.Values())
	assert.Equal(t, 90.0, ConsensusDirection(acc.Values()))
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator(12 * time.Hour)
	assert.Equal(t, types.Null, acc.Mean())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acc.Add(start, 40)
	acc.Add(start.Add(6*time.Hour), 50)
	acc.Add(start.Add(6*time.Hour), types.Null)
	assert.Equal(t, 2, acc.Len())
	assert.InDelta(t, 45, acc.Mean(), 1e-9)

	acc.Add(start.Add(13*time.Hour), 60)
	assert.Equal(t, 2, acc.Len())
	assert.InDelta(t, 55, acc.Mean(), 1e-9)
}
