package vantage

import "math"

// Linear is a multiplier/offset pair applied to a sensor in engineering units.
type Linear struct {
	Multiplier float64 `yaml:"multiplier"`
	Offset     float64 `yaml:"offset"`
}

// Apply returns x*Multiplier + Offset.
func (l Linear) Apply(x float64) float64 {
	return x*l.Multiplier + l.Offset
}

// Identity leaves a value unchanged.
var Identity = Linear{Multiplier: 1}

// Calibration holds the per-sensor corrections applied before storage.
type Calibration struct {
	Barometer   Linear `yaml:"barometer"`
	InTemp      Linear `yaml:"inTemp"`
	OutTemp     Linear `yaml:"outTemp"`
	InHumidity  Linear `yaml:"inHumidity"`
	OutHumidity Linear `yaml:"outHumidity"`
	WindSpeed   Linear `yaml:"windSpeed"`
	WindDir     Linear `yaml:"windDir"`
	Rain        Linear `yaml:"rain"`
	RainRate    Linear `yaml:"rainRate"`
}

// DefaultCalibration applies no correction.
func DefaultCalibration() Calibration {
	return Calibration{
		Barometer: Identity, InTemp: Identity, OutTemp: Identity,
		InHumidity: Identity, OutHumidity: Identity,
		WindSpeed: Identity, WindDir: Identity,
		Rain: Identity, RainRate: Identity,
	}
}

// Normalize replaces zero multipliers, as left by an empty config block,
// with the identity.
func (c *Calibration) Normalize() {
	for _, l := range []*Linear{
		&c.Barometer, &c.InTemp, &c.OutTemp, &c.InHumidity, &c.OutHumidity,
		&c.WindSpeed, &c.WindDir, &c.Rain, &c.RainRate,
	} {
		if l.Multiplier == 0 {
			l.Multiplier = 1
		}
	}
}

// ApplyBarometer calibrates a console barometer value in thousandths of inHg.
// A zero reading means no sensor and is kept.
func (c Calibration) ApplyBarometer(raw uint16) uint16 {
	if raw == 0 {
		return raw
	}
	v := floor(c.Barometer.Apply(float64(raw)/1000) * 1000)
	if v < 1 {
		return 1
	}
	if v > 0xFFFE {
		return 0xFFFE
	}
	return uint16(v)
}

// floor tolerates the representation error of scaling by a power of ten.
func floor(x float64) float64 {
	return math.Floor(x + 1e-7)
}

// Temperature sentinels reported by the console for a missing sensor.
const (
	TempMissingHigh int16 = 0x7FFF
	TempMissingLow  int16 = -0x8000
)

// applyTenths keeps both sentinels and clamps the result strictly between them.
func applyTenths(l Linear, raw int16) int16 {
	if raw == TempMissingHigh || raw == TempMissingLow {
		return raw
	}
	v := floor(l.Apply(float64(raw)/10) * 10)
	if v >= float64(TempMissingHigh) {
		return TempMissingHigh - 1
	}
	if v <= float64(TempMissingLow) {
		return TempMissingLow + 1
	}
	return int16(v)
}

// ApplyInTemp calibrates an inside temperature in tenths of a degree F.
func (c Calibration) ApplyInTemp(raw int16) int16 { return applyTenths(c.InTemp, raw) }

// ApplyOutTemp calibrates an outside temperature in tenths of a degree F.
func (c Calibration) ApplyOutTemp(raw int16) int16 { return applyTenths(c.OutTemp, raw) }

// HumidityMissing marks a missing humidity sensor.
const HumidityMissing uint8 = 0xFF

func applyHumidity(l Linear, raw uint8) uint8 {
	if raw == HumidityMissing {
		return raw
	}
	v := math.Floor(l.Apply(float64(raw)))
	switch {
	case v > 100:
		return 100
	case v < 0:
		return 0
	}
	return uint8(v)
}

// ApplyInHumidity calibrates inside humidity, clamped to 100. The 255
// sentinel is kept.
func (c Calibration) ApplyInHumidity(raw uint8) uint8 { return applyHumidity(c.InHumidity, raw) }

// ApplyOutHumidity calibrates outside humidity, clamped to 100. The 255
// sentinel is kept.
func (c Calibration) ApplyOutHumidity(raw uint8) uint8 { return applyHumidity(c.OutHumidity, raw) }

// ApplyWindSpeed calibrates a wind speed in mph. The 255 sentinel is kept.
func (c Calibration) ApplyWindSpeed(raw uint8) uint8 {
	if raw == 0xFF {
		return raw
	}
	v := math.Floor(c.WindSpeed.Apply(float64(raw)))
	if v < 0 {
		return 0
	}
	if v > 254 {
		return 254
	}
	return uint8(v)
}

// ApplyWindDir calibrates a 16-sector direction in degrees and re-quantizes
// the result. The 255 sentinel is kept.
func (c Calibration) ApplyWindDir(sector uint8) uint8 {
	if sector == 0xFF {
		return sector
	}
	v := int(math.Floor(c.WindDir.Apply(float64(sector)*22.5) / 22.5))
	v %= 16
	if v < 0 {
		v += 16
	}
	return uint8(v)
}

// ApplyRain scales the tip count in the low 12 bits and keeps the collector
// nibble.
func (c Calibration) ApplyRain(raw uint16) uint16 {
	return scaleClicks(c.Rain, raw&0x0FFF) | raw&0xF000
}

// ApplyRainRate scales a rain rate in clicks per hour.
func (c Calibration) ApplyRainRate(raw uint16) uint16 {
	v := math.Floor(c.RainRate.Apply(float64(raw)/100)*100 + 0.5)
	if v < 0 {
		return 0
	}
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}

func scaleClicks(l Linear, clicks uint16) uint16 {
	v := math.Floor(l.Apply(float64(clicks)/100)*100 + 0.5)
	if v < 0 {
		return 0
	}
	if v > 0x0FFF {
		return 0x0FFF
	}
	return uint16(v)
}

// ApplyArchive calibrates a console archive record in place.
func (c Calibration) ApplyArchive(r *ArchiveRecord) {
	r.Barometer = c.ApplyBarometer(r.Barometer)
	r.InTemp = c.ApplyInTemp(r.InTemp)
	r.OutTemp = c.ApplyOutTemp(r.OutTemp)
	r.InHumidity = c.ApplyInHumidity(r.InHumidity)
	r.OutHumidity = c.ApplyOutHumidity(r.OutHumidity)
	r.AvgWindSpeed = c.ApplyWindSpeed(r.AvgWindSpeed)
	r.PrevWindDir = c.ApplyWindDir(r.PrevWindDir)
	r.Rain = c.ApplyRain(r.Rain)
	r.HighRainRate = c.ApplyRainRate(r.HighRainRate)
}
