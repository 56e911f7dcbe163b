package wlk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthArithmetic(t *testing.T) {
	tests := []struct {
		in         MonthTag
		next, prev MonthTag
	}{
		{MonthTag{2024, 12}, MonthTag{2025, 1}, MonthTag{2024, 11}},
		{MonthTag{2025, 1}, MonthTag{2025, 2}, MonthTag{2024, 12}},
		{MonthTag{2024, 6}, MonthTag{2024, 7}, MonthTag{2024, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.next, tt.in.Next())
			assert.Equal(t, tt.prev, tt.in.Prev())
			assert.True(t, tt.in.Before(tt.next))
			assert.True(t, tt.in.After(tt.prev))
		})
	}
}

func TestMonthFileName(t *testing.T) {
	assert.Equal(t, filepath.Join("archive", "2024-03.wlk"), MonthTag{2024, 3}.FileName("archive"))
	assert.Equal(t, MonthTag{2024, 3}, MonthOf(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)))
}

func TestParseMonthTag(t *testing.T) {
	m, err := ParseMonthTag("2025-01")
	require.NoError(t, err)
	assert.Equal(t, MonthTag{2025, 1}, m)

	_, err = ParseMonthTag("2025-13")
	assert.Error(t, err)
	_, err = ParseMonthTag("january")
	assert.Error(t, err)
}
