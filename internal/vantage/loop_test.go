package vantage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRoundTrip(t *testing.T) {
	l := LoopData{
		BarTrend:        -20,
		NextRecord:      412,
		Barometer:       30012,
		InTemp:          702,
		InHumidity:      38,
		OutTemp:         -45,
		WindSpeed:       12,
		TenMinAvgWind:   9,
		WindDir:         270,
		ExtraTemp:       [7]uint8{150, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		OutHumidity:     81,
		RainRate:        0,
		UV:              0xFF,
		Radiation:       0x7FFF,
		DayRain:         14,
		DayET:           25,
		TxBattery:       0,
		ConsBattVoltage: 780,
		ForecastIcon:    6,
		ForecastRule:    45,
		Sunrise:         612,
		Sunset:          1844,
	}
	frame := l.Encode()
	require.Len(t, frame, LoopSize)
	assert.Equal(t, []byte("LOO"), frame[0:3])
	assert.Equal(t, LF, frame[95])
	assert.Equal(t, CR, frame[96])

	got, err := DecodeLoop(frame)
	require.NoError(t, err)
	assert.Equal(t, l, got)
}

func TestLoopRejectsBadTag(t *testing.T) {
	b := LoopData{}.Encode()
	payload := append([]byte("XYZ"), b[3:LoopSize-2]...)
	_, err := DecodeLoop(Frame(payload))
	assert.Error(t, err)
}

func TestConsoleTime(t *testing.T) {
	ct := ConsoleTime{Year: 2024, Month: 2, Day: 29, Hour: 23, Minute: 59, Second: 58}
	frame := ct.Encode()
	require.Len(t, frame, TimeBlockSize)
	got, err := DecodeConsoleTime(frame)
	require.NoError(t, err)
	assert.Equal(t, ct, got)
}
