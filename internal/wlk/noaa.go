package wlk

import (
	"fmt"
	"math"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
)

// NoaaDay is the one-day summary behind the monthly climatological report.
// Times are minutes of day, NoTime when unset.
type NoaaDay struct {
	Year         int
	Month        int
	Day          int
	MeanTemp     float64
	HighTemp     float64
	HighTempTime int
	LowTemp      float64
	LowTempTime  int
	HeatDegDays  float64
	CoolDegDays  float64
	Rain         float64
	AvgWind      float64
	HighWind     float64
	HighWindTime int
	DomWindDir   int
}

// FormatMinutes renders a minute of day as HH:MM, or "?????" for NoTime.
func FormatMinutes(m int) string {
	if m == NoTime {
		return "?????"
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// GetNoaaDay scans one day's records. Records with a missing outside
// temperature or an implausible wind speed are left out.
func (s *Store) GetNoaaDay(year, month, day int, units Units) (NoaaDay, error) {
	tag := MonthTag{Year: year, Month: month}
	if tag.After(s.currentMonth()) {
		return NoaaDay{}, fmt.Errorf("%w: %s is in the future", ErrNoRecords, tag)
	}
	if day < 1 || day >= dayIndexEntries {
		return NoaaDay{}, fmt.Errorf("wlk: bad day %d", day)
	}
	f, hdr, err := s.openMonth(tag)
	if err != nil {
		return NoaaDay{}, err
	}
	defer f.Close()

	recs, err := readDay(f, hdr, day)
	if err != nil {
		return NoaaDay{}, fmt.Errorf("wlk: %s: %w", tag, err)
	}

	nd := NoaaDay{
		Year: year, Month: month, Day: day,
		HighTempTime: NoTime, LowTempTime: NoTime, HighWindTime: NoTime,
		DomWindDir: -1,
	}
	var (
		n                int
		sumTemp, sumWind float64
	)
	hiTemp, loTemp, hiW := int16(math.MinInt16), int16(math.MaxInt16), int16(-1)
	for i := range recs {
		r := &recs[i]
		if types.IsNull(r.WindSpeedMPH()) || !r.ValidOutsideTemp() {
			continue
		}
		n++
		minutes := int(r.PackedTime)
		sumTemp += float64(r.OutsideTemp)
		sumWind += float64(r.WindSpeed)
		if r.HiOutsideTemp > hiTemp {
			hiTemp = r.HiOutsideTemp
			nd.HighTempTime = minutes
		}
		if r.LowOutsideTemp < loTemp {
			loTemp = r.LowOutsideTemp
			nd.LowTempTime = minutes
		}
		if r.HiWindSpeed > hiW {
			hiW = r.HiWindSpeed
			nd.HighWindTime = minutes
		}
		if r.Rain != 0xFFFF {
			nd.Rain += vantage.RainInches(r.Rain)
		}
	}
	if n == 0 {
		return NoaaDay{}, fmt.Errorf("%w: %s day %d", ErrNoRecords, tag, day)
	}

	mean := sumTemp / float64(n) / 10
	nd.HeatDegDays = math.Max(65-mean, 0)
	nd.CoolDegDays = math.Max(mean-65, 0)
	nd.MeanTemp = units.temp(mean)
	nd.HighTemp = units.temp(float64(hiTemp) / 10)
	nd.LowTemp = units.temp(float64(loTemp) / 10)
	nd.HeatDegDays = units.tempDelta(nd.HeatDegDays)
	nd.CoolDegDays = units.tempDelta(nd.CoolDegDays)
	nd.Rain = units.rain(nd.Rain)
	nd.AvgWind = units.speed(sumWind / float64(n) / 10)
	if hiW >= 0 {
		nd.HighWind = units.speed(float64(hiW) / 10)
	}
	sum, err := readSummary(f, hdr.Days[day].StartPos)
	if err != nil {
		return NoaaDay{}, fmt.Errorf("wlk: %s day %d: %w", tag, day, err)
	}
	nd.DomWindDir = sum.DominantDirection()
	return nd, nil
}
