package vantage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackDateRoundTrip(t *testing.T) {
	tests := []struct {
		year, month, day int
		want             uint16
	}{
		{2000, 1, 1, 0x0021},
		{2024, 12, 31, 24<<9 | 12<<5 | 31},
		{2025, 1, 1, 25<<9 | 1<<5 | 1},
	}
	for _, tt := range tests {
		got := PackDate(tt.year, tt.month, tt.day)
		assert.Equal(t, tt.want, got)
		y, m, d := UnpackDate(got)
		assert.Equal(t, []int{tt.year, tt.month, tt.day}, []int{y, m, d})
	}
}

func TestPackTime(t *testing.T) {
	assert.Equal(t, uint16(1435), PackTime(14, 35))
	h, m := UnpackTime(2359)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)
}

func TestPackedDelta(t *testing.T) {
	d1 := PackDate(2024, 3, 1)
	d2 := PackDate(2024, 3, 2)
	assert.Equal(t, 5, PackedDelta(d1, PackTime(10, 0), d1, PackTime(10, 5)))
	assert.Equal(t, 30, PackedDelta(d1, PackTime(23, 45), d2, PackTime(0, 15)))
	assert.Equal(t, -5, PackedDelta(d1, PackTime(10, 5), d1, PackTime(10, 0)))
}

func TestPackDateTime(t *testing.T) {
	ts := time.Date(2023, 7, 4, 18, 30, 0, 0, time.UTC)
	date, tm := PackDateTime(ts)
	require.Equal(t, PackDate(2023, 7, 4), date)
	require.Equal(t, uint16(1830), tm)
	assert.True(t, ts.Equal(UnpackDateTime(date, tm, time.UTC)))
}

func TestPackedAfter(t *testing.T) {
	d := PackDate(2024, 5, 5)
	assert.True(t, PackedAfter(d, 1005, d, 1000))
	assert.False(t, PackedAfter(d, 1000, d, 1000))
	assert.True(t, PackedAfter(d+1, 0, d, 2355))
	assert.False(t, PackedAfter(d-1, 2355, d, 0))
}

func TestIncrementPacked(t *testing.T) {
	date, tm := IncrementPacked(PackDate(2024, 12, 31), PackTime(23, 55), 10)
	assert.Equal(t, PackDate(2025, 1, 1), date)
	assert.Equal(t, PackTime(0, 5), tm)

	date, tm = IncrementPacked(PackDate(2024, 2, 28), PackTime(12, 0), 24*60)
	assert.Equal(t, PackDate(2024, 2, 29), date)
	assert.Equal(t, PackTime(12, 0), tm)
}
