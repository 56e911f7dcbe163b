package almanac

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonphase"
)

// SynodicMonth is the mean length of the lunar cycle in days.
const SynodicMonth = 29.530588853

// MoonPhase describes the Moon at an instant.
type MoonPhase struct {
	Phase        float64 `json:"phase"`        // 0 new, 0.5 full
	Illumination float64 `json:"illumination"` // lit fraction
	AgeDays      float64 `json:"ageDays"`
	IsWaxing     bool    `json:"isWaxing"`
	Name         string  `json:"name"`
}

// Moon computes the phase at t from the ecliptic longitudes of the Sun
// and the Moon.
func Moon(t time.Time) MoonPhase {
	T := julianCenturies(t)
	elongation := normalizeAngle(moonEclipticLongitude(T) - sunEclipticLongitude(T))
	illumination := (1 - math.Cos(degToRad(elongation))) / 2
	waxing := elongation < 180
	return MoonPhase{
		Phase:        elongation / 360,
		Illumination: illumination,
		AgeDays:      elongation / 360 * SynodicMonth,
		IsWaxing:     waxing,
		Name:         phaseName(illumination, waxing),
	}
}

func phaseName(illumination float64, waxing bool) string {
	switch {
	case illumination < 0.01:
		return "New Moon"
	case illumination > 0.99:
		return "Full Moon"
	case illumination >= 0.49 && illumination <= 0.51:
		if waxing {
			return "First Quarter"
		}
		return "Third Quarter"
	case illumination < 0.50:
		if waxing {
			return "Waxing Crescent"
		}
		return "Waning Crescent"
	default:
		if waxing {
			return "Waxing Gibbous"
		}
		return "Waning Gibbous"
	}
}

func sunEclipticLongitude(T float64) float64 {
	L0 := 280.46646 + 36000.76983*T + 0.0003032*T*T
	M := degToRad(normalizeAngle(357.52911 + 35999.05029*T - 0.0001537*T*T))
	C := (1.914602-0.004817*T-0.000014*T*T)*math.Sin(M) +
		(0.019993-0.000101*T)*math.Sin(2*M) +
		0.000289*math.Sin(3*M)
	return normalizeAngle(L0 + C)
}

func moonEclipticLongitude(T float64) float64 {
	L := 218.3164477 + 481267.88123421*T - 0.0015786*T*T + T*T*T/538841 - T*T*T*T/65194000
	D := degToRad(normalizeAngle(297.8501921 + 445267.1114034*T - 0.0018819*T*T + T*T*T/545868 - T*T*T*T/113065000))
	Mp := degToRad(normalizeAngle(134.9633964 + 477198.8675055*T + 0.0087414*T*T + T*T*T/69699 - T*T*T*T/14712000))

	// Dominant periodic terms.
	return normalizeAngle(L +
		6.289*math.Sin(Mp) +
		1.274*math.Sin(2*D-Mp) +
		0.658*math.Sin(2*D) +
		0.214*math.Sin(2*Mp) +
		0.110*math.Sin(D))
}

func decimalYear(t time.Time) float64 {
	t = t.UTC()
	start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	return float64(t.Year()) + t.Sub(start).Hours()/end.Sub(start).Hours()
}

// nextPhase returns the first instant after t of the phase computed by
// f, which maps a decimal year to the nearest such phase as a JDE.
func nextPhase(t time.Time, f func(float64) float64) time.Time {
	jd := julian.TimeToJD(t.UTC())
	year := decimalYear(t)
	for i := 0; i < 3; i++ {
		if jde := f(year); jde > jd {
			return julian.JDToTime(jde)
		}
		year += SynodicMonth / 365.25
	}
	return julian.JDToTime(f(year))
}

// NextNewMoon returns the first new moon after t.
func NextNewMoon(t time.Time) time.Time { return nextPhase(t, moonphase.New) }

// NextFullMoon returns the first full moon after t.
func NextFullMoon(t time.Time) time.Time { return nextPhase(t, moonphase.Full) }
