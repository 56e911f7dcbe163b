package vantage

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRainCalibrationKeepsCollectorNibble(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	nibbles := []uint16{0x0000, 0x1000, 0x2000, 0x3000, 0x6000}
	for i := 0; i < 2000; i++ {
		cal := DefaultCalibration()
		cal.Rain = Linear{Multiplier: rng.Float64()*4 - 1, Offset: rng.Float64()*20 - 10}
		raw := nibbles[rng.Intn(len(nibbles))] | uint16(rng.Intn(0x1000))
		got := cal.ApplyRain(raw)
		assert.Equal(t, raw&0xF000, got&0xF000, "raw=0x%04x cal=%+v", raw, cal.Rain)
	}
}

func TestIdentityCalibration(t *testing.T) {
	cal := DefaultCalibration()
	rec := sampleRecord()
	want := rec
	cal.ApplyArchive(&rec)
	assert.Equal(t, want, rec)
}

func TestCalibrationApply(t *testing.T) {
	cal := DefaultCalibration()
	cal.OutTemp = Linear{Multiplier: 1, Offset: 1.5}
	cal.OutHumidity = Linear{Multiplier: 1.1}
	cal.Barometer = Linear{Multiplier: 1, Offset: 0.05}
	cal.WindDir = Linear{Multiplier: 1, Offset: 45}
	cal.Rain = Linear{Multiplier: 2}

	assert.Equal(t, int16(740), cal.ApplyOutTemp(725))
	assert.Equal(t, uint8(100), cal.ApplyOutHumidity(95))
	assert.Equal(t, uint16(29971), cal.ApplyBarometer(29921))
	assert.Equal(t, uint8(1), cal.ApplyWindDir(15))
	assert.Equal(t, uint8(0xFF), cal.ApplyWindDir(0xFF))
	assert.Equal(t, uint16(0x2000|10), cal.ApplyRain(0x2000|5))
}

func TestCalibrationKeepsSentinels(t *testing.T) {
	cal := Calibration{
		Barometer:   Linear{Multiplier: 1.01, Offset: 0.05},
		InTemp:      Linear{Multiplier: 1.1, Offset: -2},
		OutTemp:     Linear{Multiplier: 1, Offset: 1},
		InHumidity:  Linear{Multiplier: 1.2, Offset: 3},
		OutHumidity: Linear{Multiplier: 0.9, Offset: -5},
		WindSpeed:   Linear{Multiplier: 1.5, Offset: 2},
		WindDir:     Linear{Multiplier: 1, Offset: 45},
		Rain:        Identity,
		RainRate:    Identity,
	}

	tests := []struct {
		name string
		rec  ArchiveRecord
	}{
		{"high temperature sentinel", ArchiveRecord{
			Barometer: 0, InTemp: TempMissingHigh, OutTemp: TempMissingHigh,
			InHumidity: HumidityMissing, OutHumidity: HumidityMissing,
			AvgWindSpeed: 0xFF, PrevWindDir: 0xFF,
		}},
		{"low temperature sentinel", ArchiveRecord{
			Barometer: 0, InTemp: TempMissingLow, OutTemp: TempMissingLow,
			InHumidity: HumidityMissing, OutHumidity: HumidityMissing,
			AvgWindSpeed: 0xFF, PrevWindDir: 0xFF,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			cal.ApplyArchive(&rec)
			assert.Equal(t, tt.rec.Barometer, rec.Barometer)
			assert.Equal(t, tt.rec.InTemp, rec.InTemp)
			assert.Equal(t, tt.rec.OutTemp, rec.OutTemp)
			assert.Equal(t, HumidityMissing, rec.InHumidity)
			assert.Equal(t, HumidityMissing, rec.OutHumidity)
			assert.Equal(t, uint8(0xFF), rec.AvgWindSpeed)
			assert.Equal(t, uint8(0xFF), rec.PrevWindDir)
		})
	}
}

func TestCalibrationClampsTemperature(t *testing.T) {
	cal := DefaultCalibration()
	cal.OutTemp = Linear{Multiplier: 1, Offset: 10}
	assert.Equal(t, TempMissingHigh-1, cal.ApplyOutTemp(TempMissingHigh-5))

	cal.OutTemp = Linear{Multiplier: 1, Offset: -10}
	assert.Equal(t, TempMissingLow+1, cal.ApplyOutTemp(TempMissingLow+5))
	assert.Equal(t, int16(-100), cal.ApplyOutTemp(0))
}

func TestNormalize(t *testing.T) {
	var cal Calibration
	cal.Normalize()
	assert.Equal(t, DefaultCalibration(), cal)
}

func TestRainCollector(t *testing.T) {
	tests := []struct {
		setup byte
		want  RainCollector
	}{
		{0x00, RainCollector{100, CollectorHundredthInch}},
		{0x10, RainCollector{127, CollectorPointTwoMM}},
		{0x21, RainCollector{254, CollectorPointOneMM}},
		{0x30, RainCollector{100, CollectorHundredthInch}},
	}
	for _, tt := range tests {
		got := DecodeRainCollector(tt.setup)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, DecodeRainCollector(got.SetupByte()))
	}
	assert.InDelta(t, 0.05, RainInches(0x1000|5), 1e-9)
	assert.InDelta(t, 0.5, RainInches(0x0000|5), 1e-9)
	assert.InDelta(t, 10/25.4, RainInches(0x3000|10), 1e-9)
}
