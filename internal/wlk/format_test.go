package wlk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackedTimeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	buf := make([]byte, 27)
	for i := range buf {
		buf[i] = byte(rng.Intn(256))
	}
	for iter := 0; iter < 1000; iter++ {
		index := rng.Intn(18)
		value := uint16(rng.Intn(0x7FF))
		pair := index ^ 1
		before := ExtractTime(buf, pair)

		InsertTime(buf, index, value)

		assert.Equal(t, int(value), ExtractTime(buf, index))
		assert.Equal(t, before, ExtractTime(buf, pair), "paired index %d changed", pair)
	}
}

func TestExtractTimeSentinels(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF}
	assert.Equal(t, NoTime, ExtractTime(buf, 0))
	assert.Equal(t, NoTime, ExtractTime(buf, 1))

	InsertTime(buf, 0, 0x7FF)
	assert.Equal(t, NoTime, ExtractTime(buf, 0))
	assert.Equal(t, NoTime, ExtractTime(buf, 1))

	InsertTime(buf, 1, 1440)
	assert.Equal(t, 1440, ExtractTime(buf, 1))
	assert.Equal(t, []byte{0xFF, 0xA0, 0x57}, buf)
}

func TestDominantSector(t *testing.T) {
	tests := []struct {
		name    string
		minutes map[int]uint16
		want    int
	}{
		{"empty", nil, -1},
		{"single", map[int]uint16{7: 5}, 7},
		{"north wins", map[int]uint16{0: 60, 4: 55, 15: 59}, 0},
		{"first of ties", map[int]uint16{3: 20, 9: 20}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bins := make([]byte, 24)
			for i := range bins {
				bins[i] = 0xFF
			}
			for sector, m := range tt.minutes {
				InsertTime(bins, sector, m)
			}
			assert.Equal(t, tt.want, DominantSector(bins))
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader()
	h.Days[1] = DayIndex{RecordsInDay: 5, StartPos: 0}
	h.Days[2] = DayIndex{RecordsInDay: 4, StartPos: 5}
	h.TotalRecords = 9
	require.True(t, h.Valid())

	got, err := DecodeHeader(h.Encode())
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, "WDAT5.0", string(got.ID[:7]))
	assert.Equal(t, 3, got.Days[1].Samples())
	assert.Equal(t, 0, got.Days[3].Samples())

	h.TotalRecords++
	assert.False(t, h.Valid())
}

func TestSummaryAndRecordLayout(t *testing.T) {
	var s DailySummary
	s.DataType1 = SummaryStored
	s.HiOutTemp = 745
	s.DailyRainTotal = 480
	s.DataType2 = SummarySecond
	s.IntegratedCoolDD65 = -3
	s.SetTime2(TimeHighHeat, 600)

	b := s.Encode()
	require.Len(t, b, SummarySize)
	assert.Equal(t, byte(SummarySecond), b[RecordSize])
	got, err := DecodeSummary(b)
	require.NoError(t, err)
	assert.Equal(t, s, got)
	assert.Equal(t, 600, got.Time2(TimeHighHeat))

	r := NewFileRecord()
	assert.Equal(t, uint16(0xFFFF), r.Rain)
	r.PackedTime = 1440
	r.ExtraHum[6] = 12
	enc := r.Encode()
	require.Len(t, enc, RecordSize)
	assert.Equal(t, byte(12), enc[RecordSize-1])
	back, err := DecodeFileRecord(enc)
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestWindDirString(t *testing.T) {
	assert.Equal(t, "N", WindDirString(0))
	assert.Equal(t, "SSW", WindDirString(9))
	assert.Equal(t, "---", WindDirString(-1))
	assert.Equal(t, "---", WindDirString(255))
}
