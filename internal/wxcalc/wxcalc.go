// Package wxcalc holds derived meteorological quantities and unit conversions.
// Every function passes Null through.
package wxcalc

import (
	"math"

	"github.com/chrissnell/vantaged/internal/types"
)

const null = types.Null

func valid(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -300 || v > 300 {
		return null
	}
	return v
}

// HeatIndex returns the Rothfusz heat index in degrees F. Below 75F the
// temperature is returned unchanged.
func HeatIndex(tempF, humidity float64) float64 {
	if types.IsNull(tempF) || types.IsNull(humidity) {
		return null
	}
	if tempF < 75 {
		return tempF
	}
	t, h := tempF, humidity
	return valid(-42.379 + 2.04901523*t + 10.14333127*h - 0.22475541*t*h -
		6.83783e-3*t*t - 5.481717e-2*h*h + 1.22874e-3*t*t*h +
		8.5282e-4*t*h*h - 1.99e-6*t*t*h*h)
}

// WindChill returns the NWS wind chill in degrees F. At or above 50F, or with
// wind of 3 mph or less, the temperature is returned unchanged.
func WindChill(tempF, windMPH float64) float64 {
	if types.IsNull(tempF) || types.IsNull(windMPH) {
		return null
	}
	if tempF >= 50 || windMPH <= 3 {
		return tempF
	}
	p := math.Pow(windMPH, 0.16)
	return valid(35.74 + 0.6215*tempF - 35.75*p + 0.4275*tempF*p)
}

// Dewpoint returns the Magnus dew point in degrees F.
func Dewpoint(tempF, humidity float64) float64 {
	if types.IsNull(tempF) || types.IsNull(humidity) {
		return null
	}
	tc := (5.0 / 9.0) * (tempF - 32)
	es := 6.11 * math.Pow(10, 7.5*tc/(237.7+tc))
	e := humidity * es / 100
	tdc := (-430.22 + 237.7*math.Log(e)) / (-math.Log(e) + 19.08)
	return valid(9.0/5.0*tdc + 32)
}

func pressureTerm(tempF, elevationFT float64) float64 {
	kelvin := FToC(tempF) + 273.15
	return math.Exp(-FeetToMeters(elevationFT) / (kelvin * 29.263))
}

// SeaLevelToStation reduces sea level pressure to station pressure using the
// mean temperature of the last 12 hours.
func SeaLevelToStation(slp, meanTempF, elevationFT float64) float64 {
	if types.IsNull(slp) || types.IsNull(meanTempF) || types.IsNull(elevationFT) {
		return null
	}
	return slp * pressureTerm(meanTempF, elevationFT)
}

// StationToSeaLevel is the inverse of SeaLevelToStation.
func StationToSeaLevel(sp, meanTempF, elevationFT float64) float64 {
	if types.IsNull(sp) || types.IsNull(meanTempF) || types.IsNull(elevationFT) {
		return null
	}
	pt := pressureTerm(meanTempF, elevationFT)
	if pt == 0 {
		return 0
	}
	return sp / pt
}

// Altimeter returns the altimeter setting in inHg for a station pressure in inHg.
func Altimeter(spInches, elevationFT float64) float64 {
	if types.IsNull(spInches) || types.IsNull(elevationFT) {
		return null
	}
	const n = 0.190284
	mb := InHgToHPa(spInches) - 0.3
	constant := math.Pow(1013.25, n) * 0.0065 / 288
	variable := FeetToMeters(elevationFT) / math.Pow(mb, n)
	return mb * math.Pow(1+constant*variable, 1/n) * 0.0295299
}

func conv(v float64, f func(float64) float64) float64 {
	if types.IsNull(v) {
		return null
	}
	return f(v)
}

// FToC converts degrees Fahrenheit to Celsius.
func FToC(f float64) float64 { return conv(f, func(v float64) float64 { return (v - 32) * 5 / 9 }) }

// CToF converts degrees Celsius to Fahrenheit.
func CToF(c float64) float64 { return conv(c, func(v float64) float64 { return v*9/5 + 32 }) }

// DeltaFToC converts a temperature difference.
func DeltaFToC(f float64) float64 { return conv(f, func(v float64) float64 { return v * 5 / 9 }) }

// InHgToHPa converts inches of mercury to hectopascals.
func InHgToHPa(in float64) float64 { return conv(in, func(v float64) float64 { return v / 0.0295299 }) }

// HPaToInHg converts hectopascals to inches of mercury.
func HPaToInHg(mb float64) float64 { return conv(mb, func(v float64) float64 { return v * 0.0295299 }) }

// InToMM converts inches to millimetres.
func InToMM(in float64) float64 { return conv(in, func(v float64) float64 { return v * 25.4 }) }

// InToCM converts inches to centimetres.
func InToCM(in float64) float64 { return conv(in, func(v float64) float64 { return v * 2.54 }) }

// MPHToKPH converts miles per hour to kilometres per hour.
func MPHToKPH(mph float64) float64 { return conv(mph, func(v float64) float64 { return v * 1.609 }) }

// FeetToMeters converts feet to metres.
func FeetToMeters(ft float64) float64 { return conv(ft, func(v float64) float64 { return v * 0.3048 }) }
