package davis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRxCheck(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    rxCounters
		wantErr bool
	}{
		{"console reply", " 21629 15 0 3204 128\n\r", rxCounters{good: 21629, missed: 15, crc: 128}, false},
		{"wrapped crc count", "10 2 0 5 -5\r", rxCounters{good: 10, missed: 2, crc: 65531}, false},
		{"too few fields", "1 2 3\r", rxCounters{}, true},
		{"not numbers", "a b c d e\r", rxCounters{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRxCheck(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRxStats(t *testing.T) {
	r := newRxStats()
	assert.Equal(t, -1.0, r.percent)

	steps := []struct {
		counters rxCounters
		want     float64
	}{
		{rxCounters{good: 90, missed: 10}, 90},
		{rxCounters{good: 90, missed: 10}, 100},
		{rxCounters{good: 100, missed: 15, crc: 5}, 50},
		// The console was reset: keep the last percentage.
		{rxCounters{good: 3, missed: 1}, 50},
		{rxCounters{good: 6, missed: 1}, 100},
	}
	for _, s := range steps {
		r.update(s.counters)
		assert.Equal(t, s.want, r.percent, "after %+v", s.counters)
	}
}

func TestSampleDelta(t *testing.T) {
	prev := -1
	assert.Equal(t, 0.0, sampleDelta(10, &prev, 100))
	assert.Equal(t, 10, prev)
	assert.InDelta(t, 0.05, sampleDelta(15, &prev, 100), 1e-9)

	// Day rollover: the whole new total belongs to this sample.
	assert.InDelta(t, 0.03, sampleDelta(3, &prev, 100), 1e-9)

	assert.Equal(t, 0.0, sampleDelta(0xFFFF, &prev, 100))
	assert.Equal(t, 3, prev)
}

func TestGMTOffsetBlock(t *testing.T) {
	tests := []struct {
		minutes int
		want    []byte
	}{
		{0, []byte{1, 0, 0, 0, 1}},
		{-420, []byte{1, 0, 0x44, 0xFD, 1}},
		{330, []byte{1, 0, 0x12, 0x02, 1}},
		{-570, []byte{1, 0, 0x5E, 0xFC, 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gmtOffsetBlock(tt.minutes), "offset %d", tt.minutes)
	}
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "DumpAfterAck", stateDumpAfterAck.String())
	assert.Equal(t, "Error", stateError.String())
	assert.Equal(t, "timer", stimTimer.String())
	assert.Equal(t, "archive-record", EventArchiveRecord.String())
}
