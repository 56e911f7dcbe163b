package wlk

import (
	"time"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wxcalc"
)

// Units selects the unit system of query results. MetricMM reports rain and
// ET in millimetres instead of centimetres when Metric is set.
type Units struct {
	Metric   bool
	MetricMM bool
}

func (u Units) temp(f float64) float64 {
	if u.Metric {
		return wxcalc.FToC(f)
	}
	return f
}

func (u Units) tempDelta(f float64) float64 {
	if u.Metric {
		return wxcalc.DeltaFToC(f)
	}
	return f
}

func (u Units) rain(in float64) float64 {
	switch {
	case !u.Metric:
		return in
	case u.MetricMM:
		return wxcalc.InToMM(in)
	}
	return wxcalc.InToCM(in)
}

func (u Units) speed(mph float64) float64 {
	if u.Metric {
		return wxcalc.MPHToKPH(mph)
	}
	return mph
}

func (u Units) pressure(inHg float64) float64 {
	if u.Metric {
		return wxcalc.InHgToHPa(inHg)
	}
	return inHg
}

func tenths16(v int16) float64 {
	if v == dash || v == 0x7FFF {
		return types.Null
	}
	return float64(v) / 10
}

func humidity16(v int16) float64 {
	if v == dash || v == 0x7FFF || v < 0 || v > 1000 {
		return types.Null
	}
	return float64(v) / 10
}

func offsetByte(v uint8) float64 {
	if v == 0xFF {
		return types.Null
	}
	return float64(v) - 90
}

func plainByte(v uint8) float64 {
	if v == 0xFF {
		return types.Null
	}
	return float64(v)
}

func sectorDegrees(sector uint8) float64 {
	if sector > 15 {
		return types.Null
	}
	return float64(sector) * 22.5
}

// WindSpeedMPH returns the average wind speed in mph, or Null when the stored
// value is implausible.
func (r *FileRecord) WindSpeedMPH() float64 {
	if r.WindSpeed < 0 || r.WindSpeed/10 > 200 {
		return types.Null
	}
	return float64(r.WindSpeed) / 10
}

func (r *FileRecord) gustMPH() float64 {
	if r.HiWindSpeed < 0 || r.HiWindSpeed/10 > 200 {
		return types.Null
	}
	return float64(r.HiWindSpeed) / 10
}

// ValidOutsideTemp reports whether the current, high and low outside
// temperatures all carry readings.
func (r *FileRecord) ValidOutsideTemp() bool {
	for _, v := range []int16{r.OutsideTemp, r.HiOutsideTemp, r.LowOutsideTemp} {
		if v == dash || v == 0x7FFF {
			return false
		}
	}
	return true
}

// Values converts a stored record to per-field readings in the requested
// units. Missing readings are Null.
func (r *FileRecord) Values(u Units) [types.DataIndexMax]float64 {
	var v [types.DataIndexMax]float64
	for i := range v {
		v[i] = types.Null
	}

	out := tenths16(r.OutsideTemp)
	hum := humidity16(r.OutsideHum)
	wind := r.WindSpeedMPH()

	v[types.OutTemp] = u.temp(out)
	v[types.InTemp] = u.temp(tenths16(r.InsideTemp))
	v[types.OutHumidity] = hum
	v[types.InHumidity] = humidity16(r.InsideHum)
	v[types.Dewpoint] = u.temp(wxcalc.Dewpoint(out, hum))
	v[types.Windchill] = u.temp(wxcalc.WindChill(out, wind))
	v[types.Heatindex] = u.temp(wxcalc.HeatIndex(out, hum))
	v[types.WindSpeed] = u.speed(wind)
	v[types.WindGust] = u.speed(r.gustMPH())
	v[types.WindDir] = sectorDegrees(r.WindDirection)
	v[types.WindGustDir] = sectorDegrees(r.HiWindDirection)
	if r.Barometer > 0 {
		v[types.Barometer] = u.pressure(float64(r.Barometer) / 1000)
	}
	if r.Rain != 0xFFFF {
		v[types.Rain] = u.rain(vantage.RainInches(r.Rain))
		if r.HiRainRate >= 0 {
			v[types.RainRate] = u.rain(float64(r.HiRainRate) / vantage.ClicksPerInch(r.Rain))
		}
	}
	if r.SolarRad >= 0 && r.SolarRad <= 1800 {
		v[types.Radiation] = float64(r.SolarRad)
	}
	if r.UV != 0xFF {
		v[types.UV] = float64(r.UV) / 10
	}
	if r.ET != 0xFF {
		v[types.ET] = u.rain(float64(r.ET) / 1000)
	}

	for i, idx := range []types.DataIndex{types.ExtraTemp1, types.ExtraTemp2, types.ExtraTemp3} {
		v[idx] = u.temp(offsetByte(r.ExtraTemp[i]))
	}
	for i, idx := range []types.DataIndex{types.SoilTemp1, types.SoilTemp2, types.SoilTemp3, types.SoilTemp4} {
		v[idx] = u.temp(offsetByte(r.SoilTemp[i]))
	}
	for i, idx := range []types.DataIndex{types.LeafTemp1, types.LeafTemp2} {
		v[idx] = u.temp(offsetByte(r.LeafTemp[i]))
	}
	for i, idx := range []types.DataIndex{types.ExtraHumid1, types.ExtraHumid2} {
		v[idx] = plainByte(r.ExtraHum[i])
	}
	for i, idx := range []types.DataIndex{types.SoilMoist1, types.SoilMoist2, types.SoilMoist3, types.SoilMoist4} {
		v[idx] = plainByte(r.SoilMoisture[i])
	}
	for i, idx := range []types.DataIndex{types.LeafWet1, types.LeafWet2} {
		v[idx] = plainByte(r.LeafWetness[i])
	}
	return v
}

// ArchivePacket converts a stored record to a packet stamped at.
func (r *FileRecord) ArchivePacket(at time.Time) types.ArchivePacket {
	p := types.NewArchivePacket(at, int(r.ArchiveInterval))
	p.Values = r.Values(Units{})
	return p
}

// ReadDayPackets returns the records of one day as archive packets stamped
// in the store's zone.
func (s *Store) ReadDayPackets(tag MonthTag, day int) ([]types.ArchivePacket, error) {
	recs, err := s.ReadDay(tag, day)
	if err != nil {
		return nil, err
	}
	out := make([]types.ArchivePacket, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ArchivePacket(recordTime(tag, day, &recs[i], s.loc)))
	}
	return out, nil
}

// recordTime returns the end of the interval a record covers. Minute 1440 is
// midnight of the following day.
func recordTime(tag MonthTag, day int, r *FileRecord, loc *time.Location) time.Time {
	return time.Date(tag.Year, time.Month(tag.Month), day, 0, int(r.PackedTime), 0, 0, loc)
}

// ToConsoleRecord projects a stored record back onto the console archive
// layout. Fields the month file does not keep are left zero.
func (r *FileRecord) ToConsoleRecord(date, tm uint16) vantage.ArchiveRecord {
	return vantage.ArchiveRecord{
		Date:          date,
		Time:          tm,
		OutTemp:       r.OutsideTemp,
		HighOutTemp:   r.HiOutsideTemp,
		LowOutTemp:    r.LowOutsideTemp,
		InTemp:        r.InsideTemp,
		Barometer:     uint16(r.Barometer),
		OutHumidity:   uint8(r.OutsideHum / 10),
		InHumidity:    uint8(r.InsideHum / 10),
		Rain:          r.Rain,
		HighRainRate:  uint16(r.HiRainRate),
		AvgWindSpeed:  uint8(r.WindSpeed / 10),
		HighWindSpeed: uint8(r.HiWindSpeed / 10),
		PrevWindDir:   r.WindDirection,
		HighWindDir:   r.HiWindDirection,
		WindSamples:   uint16(r.NumWindSamples),
	}
}
