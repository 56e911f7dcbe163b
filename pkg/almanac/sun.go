package almanac

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// Sun altitude at rise and set: refraction plus the solar semidiameter.
const horizonZenith = 90.833

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

func normalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	return angle
}

// julianCenturies returns Julian centuries since J2000.0.
func julianCenturies(t time.Time) float64 {
	return (julian.TimeToJD(t.UTC()) - 2451545.0) / 36525.0
}

// sunPosition returns the Sun's declination in degrees and the equation
// of time in minutes.
func sunPosition(T float64) (decl, eqTime float64) {
	L0 := normalizeAngle(280.46646 + T*(36000.76983+T*0.0003032))
	M := normalizeAngle(357.52911 + T*(35999.05029-T*0.0001537))
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)

	C := math.Sin(degToRad(M))*(1.914602-T*(0.004817+T*0.000014)) +
		math.Sin(degToRad(2*M))*(0.019993-T*0.000101) +
		math.Sin(degToRad(3*M))*0.000289
	omega := 125.04 - 1934.136*T
	lambda := L0 + C - 0.00569 - 0.00478*math.Sin(degToRad(omega))
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60
	eps := eps0 + 0.00256*math.Cos(degToRad(omega))
	decl = radToDeg(math.Asin(math.Sin(degToRad(eps)) * math.Sin(degToRad(lambda))))

	y := math.Tan(degToRad(eps)/2) * math.Tan(degToRad(eps)/2)
	eqTime = 4 * radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M)))
	return decl, eqTime
}

// SunTimes returns solar noon, sunrise and sunset for the calendar day of
// date in date's location. lon is east positive. ok is false during polar
// day or night, when only noon is meaningful.
func SunTimes(date time.Time, lat, lon float64) (noon, rise, set time.Time, ok bool) {
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	// Local noon is the best single instant for the day's solar position.
	approxNoon := midnight.Add(time.Duration((720 - 4*lon) * float64(time.Minute)))
	decl, eqTime := sunPosition(julianCenturies(approxNoon))

	noonMin := 720 - 4*lon - eqTime
	noon = midnight.Add(time.Duration(noonMin * float64(time.Minute))).In(date.Location())

	latRad := degToRad(lat)
	declRad := degToRad(decl)
	cosH := math.Cos(degToRad(horizonZenith))/(math.Cos(latRad)*math.Cos(declRad)) -
		math.Tan(latRad)*math.Tan(declRad)
	if cosH < -1 || cosH > 1 {
		return noon, time.Time{}, time.Time{}, false
	}

	haMin := 4 * radToDeg(math.Acos(cosH))
	rise = midnight.Add(time.Duration((noonMin - haMin) * float64(time.Minute))).In(date.Location())
	set = midnight.Add(time.Duration((noonMin + haMin) * float64(time.Minute))).In(date.Location())
	return noon, rise, set, true
}

// ClearSkyRadiation estimates global horizontal irradiance in W/m² under a
// clear sky with the Ineichen-Perez model. altitude is in meters.
func ClearSkyRadiation(t time.Time, lat, lon, altitude float64) float64 {
	const solarConstant = 1361.0

	t = t.UTC()
	N := t.YearDay()
	decl, eqTime := sunPosition(julianCenturies(t))

	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0
	H := (utcMin+4*lon+eqTime)/4 - 180

	latRad := degToRad(lat)
	declRad := degToRad(decl)
	cosZ := math.Sin(latRad)*math.Sin(declRad) + math.Cos(latRad)*math.Cos(declRad)*math.Cos(degToRad(H))
	zenith := radToDeg(math.Acos(cosZ))
	if zenith >= 90 {
		return 0
	}

	G0 := solarConstant * (1 + 0.033*math.Cos(degToRad(360.0*(float64(N)-3)/365.0)))

	// Linke turbidity 2 is typical of a clear sky.
	const TL = 2.0
	AM := 1.0 / (math.Cos(degToRad(zenith)) + 0.50572*math.Pow(96.07995-zenith, -1.6364))
	DNI := G0 * 0.7 * math.Exp(-0.027*AM*TL*math.Exp(-altitude/8000.0))
	fh := 0.1 + 0.05*math.Sin(math.Pi*float64(N-100)/365.0)
	DHI := fh * G0 * math.Sin(degToRad(zenith))
	return DNI*math.Cos(degToRad(zenith)) + DHI
}
