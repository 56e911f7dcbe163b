// Package almanac computes sun and moon events for the station's position.
package almanac

import "time"

// Almanac is the day's astronomical summary at a station.
type Almanac struct {
	Date              string     `json:"date"`
	SolarNoon         time.Time  `json:"solarNoon"`
	Sunrise           *time.Time `json:"sunrise,omitempty"`
	Sunset            *time.Time `json:"sunset,omitempty"`
	DayLengthMinutes  float64    `json:"dayLengthMinutes"`
	ClearSkyRadiation float64    `json:"clearSkyRadiation"`
	Moon              MoonPhase  `json:"moon"`
	NextNewMoon       time.Time  `json:"nextNewMoon"`
	NextFullMoon      time.Time  `json:"nextFullMoon"`
}

const feetToMeters = 0.3048

// Compute returns the almanac for now's local day. lat and lon are in
// degrees (east positive) and elevation is in feet.
func Compute(now time.Time, lat, lon, elevation float64, loc *time.Location) Almanac {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	noon, rise, set, ok := SunTimes(now, lat, lon)
	a := Almanac{
		Date:              now.Format(time.DateOnly),
		SolarNoon:         noon,
		ClearSkyRadiation: ClearSkyRadiation(now, lat, lon, elevation*feetToMeters),
		Moon:              Moon(now),
		NextNewMoon:       NextNewMoon(now).In(loc),
		NextFullMoon:      NextFullMoon(now).In(loc),
	}
	if ok {
		a.Sunrise, a.Sunset = &rise, &set
		a.DayLengthMinutes = set.Sub(rise).Minutes()
	} else if sunUp(noon, lat, lon) {
		// Polar day.
		a.DayLengthMinutes = 24 * 60
	}
	return a
}

func sunUp(t time.Time, lat, lon float64) bool {
	return ClearSkyRadiation(t, lat, lon, 0) > 0
}
