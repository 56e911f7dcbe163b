package wlk

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/vantaged/internal/types"
)

// PeriodAverages holds the per-field sums of a run of interval records.
// Each field keeps its own sample count so missing readings do not drag the
// average toward zero. Wind direction is not summed; it is summarized by the
// minutes spent in each compass sector.
type PeriodAverages struct {
	Start      time.Time
	Minutes    int
	Records    int
	Sums       [types.DataIndexMax]float64
	Samples    [types.DataIndexMax]int
	DirMinutes [16]int
}

func newPeriodAverages(start time.Time, minutes int) *PeriodAverages {
	return &PeriodAverages{Start: start, Minutes: minutes}
}

func (p *PeriodAverages) add(r *FileRecord, u Units) {
	p.Records++
	for idx, v := range r.Values(u) {
		if types.IsNull(v) || types.DataIndex(idx) == types.WindDir {
			continue
		}
		p.Sums[idx] += v
		p.Samples[idx]++
	}
	if r.WindDirection < 16 {
		p.DirMinutes[r.WindDirection] += int(r.ArchiveInterval)
	}
}

// Average returns the mean of a field over its valid samples, or Null.
func (p *PeriodAverages) Average(idx types.DataIndex) float64 {
	if p.Samples[idx] == 0 {
		return types.Null
	}
	return p.Sums[idx] / float64(p.Samples[idx])
}

// Total returns the sum of a field over its valid samples, or Null.
func (p *PeriodAverages) Total(idx types.DataIndex) float64 {
	if p.Samples[idx] == 0 {
		return types.Null
	}
	return p.Sums[idx]
}

// Value returns the natural summary of a field: totals for rain and ET, the
// dominant sector in degrees for wind direction, averages for everything else.
func (p *PeriodAverages) Value(idx types.DataIndex) float64 {
	switch idx {
	case types.Rain, types.ET:
		return p.Total(idx)
	case types.WindDir:
		sector := p.DominantSector()
		if sector < 0 {
			return types.Null
		}
		return sectorDegrees(uint8(sector))
	}
	return p.Average(idx)
}

// DominantSector returns the compass sector with the most wind minutes, or -1.
func (p *PeriodAverages) DominantSector() int {
	best, index := 0, -1
	for i, m := range p.DirMinutes {
		if m > best {
			best, index = m, i
		}
	}
	return index
}

// GetAverages sums the records covering samples*interval minutes starting at
// start, crossing day and month boundaries as needed. A record stamped exactly
// at start is the first one included. Month files inside the window must
// exist; the walk never goes past the current month.
func (s *Store) GetAverages(start time.Time, samples, interval int, units Units) (*PeriodAverages, error) {
	if samples <= 0 || interval <= 0 {
		return nil, fmt.Errorf("wlk: bad averaging window %d x %d", samples, interval)
	}
	start = start.In(s.loc)
	minutes := samples * interval
	end := start.Add(time.Duration(minutes) * time.Minute)
	acc := newPeriodAverages(start, minutes)

	last := s.currentMonth()
	tag := MonthOf(start)
	// Minute 1440 of the last day of a month is stored in that month.
	if start.Equal(tag.Start(s.loc)) {
		err := s.rollMonth(tag.Prev(), start, end, units, acc)
		if err != nil && !errors.Is(err, ErrFileMissing) {
			return nil, err
		}
	}
	for ; !tag.After(last) && tag.Start(s.loc).Before(end); tag = tag.Next() {
		if err := s.rollMonth(tag, start, end, units, acc); err != nil {
			return nil, err
		}
	}

	if acc.Records == 0 {
		return nil, fmt.Errorf("%w: %s for %d minutes", ErrNoRecords, start.Format(time.RFC3339), minutes)
	}
	return acc, nil
}

func (s *Store) rollMonth(tag MonthTag, start, end time.Time, units Units, acc *PeriodAverages) error {
	f, hdr, err := s.openMonth(tag)
	if err != nil {
		return err
	}
	defer f.Close()

	for day := 1; day < dayIndexEntries; day++ {
		if hdr.Days[day].RecordsInDay == 0 {
			continue
		}
		dayStart := time.Date(tag.Year, time.Month(tag.Month), day, 0, 0, 0, 0, s.loc)
		if dayStart.AddDate(0, 0, 1).Before(start) {
			continue
		}
		if !dayStart.Before(end) {
			return nil
		}
		recs, err := readDay(f, hdr, day)
		if err != nil {
			return fmt.Errorf("wlk: %s: %w", tag, err)
		}
		for i := range recs {
			t := recordTime(tag, day, &recs[i], s.loc)
			if t.Before(start) {
				continue
			}
			if !t.Before(end) {
				return nil
			}
			acc.add(&recs[i], units)
		}
	}
	return nil
}
