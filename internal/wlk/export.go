package wlk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wxcalc"
)

// ExportArchive writes every interval record from start through stop
// (inclusive) to outputPath, one tab-separated line per record. Missing month
// files are skipped.
func (s *Store) ExportArchive(start, stop MonthTag, outputPath string) error {
	return s.exportToFile(outputPath, func(w io.Writer) error {
		return s.WriteArchive(w, start, stop)
	})
}

// ExportDailySummaries writes one line per stored day summary from start
// through stop (inclusive) to outputPath.
func (s *Store) ExportDailySummaries(start, stop MonthTag, outputPath string) error {
	return s.exportToFile(outputPath, func(w io.Writer) error {
		return s.WriteDailySummaries(w, start, stop)
	})
}

func (s *Store) exportToFile(path string, write func(io.Writer) error) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("wlk: creating %s: %w", path, err)
	}
	bw := bufio.NewWriter(out)
	if err := write(bw); err != nil {
		out.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("wlk: writing %s: %w", path, err)
	}
	return out.Close()
}

// eachMonth calls fn for every existing month file in the inclusive range.
func (s *Store) eachMonth(start, stop MonthTag, fn func(tag MonthTag, f *os.File, hdr Header) error) error {
	for tag := start; !tag.After(stop); tag = tag.Next() {
		f, hdr, err := s.openMonth(tag)
		if errors.Is(err, ErrFileMissing) {
			continue
		}
		if err != nil {
			return err
		}
		err = fn(tag, f, hdr)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteArchive streams the archive export lines for a month range to w.
func (s *Store) WriteArchive(w io.Writer, start, stop MonthTag) error {
	return s.eachMonth(start, stop, func(tag MonthTag, f *os.File, hdr Header) error {
		for day := 1; day < dayIndexEntries; day++ {
			recs, err := readDay(f, hdr, day)
			if err != nil {
				return fmt.Errorf("wlk: %s: %w", tag, err)
			}
			for i := range recs {
				if _, err := io.WriteString(w, archiveLine(tag, day, &recs[i])); err != nil {
					return fmt.Errorf("wlk: export: %w", err)
				}
			}
		}
		return nil
	})
}

func archiveLine(tag MonthTag, day int, r *FileRecord) string {
	wind := r.WindSpeed
	if wind/10 > 200 {
		wind = 0
	}
	out := float64(r.OutsideTemp) / 10
	hum := float64(r.OutsideHum) / 10
	return fmt.Sprintf("%02d/%02d/%04d\t%02d:%02d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%d\t%2.1f\t%.1f\t%.1f\t%s\t%.2f\t%.3f\t%.1f\t%d\t%d\n",
		tag.Month, day, tag.Year,
		r.PackedTime/60, r.PackedTime%60,
		out,
		wxcalc.HeatIndex(out, hum),
		wxcalc.WindChill(out, float64(wind)/10),
		float64(r.HiOutsideTemp)/10,
		float64(r.LowOutsideTemp)/10,
		r.OutsideHum/10,
		wxcalc.Dewpoint(out, hum),
		float64(wind)/10,
		float64(r.HiWindSpeed)/10,
		WindDirString(int(r.WindDirection)),
		vantage.RainInches(r.Rain),
		float64(r.Barometer)/1000,
		float64(r.InsideTemp)/10,
		r.InsideHum/10,
		r.ArchiveInterval)
}

// WriteDailySummaries streams the summary export lines for a month range to w.
func (s *Store) WriteDailySummaries(w io.Writer, start, stop MonthTag) error {
	return s.eachMonth(start, stop, func(tag MonthTag, f *os.File, hdr Header) error {
		for day := 1; day < dayIndexEntries; day++ {
			if hdr.Days[day].RecordsInDay == 0 {
				continue
			}
			sum, err := readSummary(f, hdr.Days[day].StartPos)
			if err != nil {
				return fmt.Errorf("wlk: %s day %d: %w", tag, day, err)
			}
			if _, err := io.WriteString(w, summaryLine(tag, day, &sum)); err != nil {
				return fmt.Errorf("wlk: export: %w", err)
			}
		}
		return nil
	})
}

// summaryField renders a summary value scaled down by div, or "---" when the
// day had no valid reading.
func summaryField(v int16, div float64, prec int) string {
	if v == dash {
		return "---"
	}
	return strconv.FormatFloat(float64(v)/div, 'f', prec, 64)
}

func summaryLine(tag MonthTag, day int, s *DailySummary) string {
	return fmt.Sprintf("%02d/%02d/%04d\t"+
		"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t"+
		"%.1f\t%.1f\t%s\t%s\t"+
		"%.2f\t%s\t%s\n",
		tag.Month, day, tag.Year,
		summaryField(s.AvgOutTemp, 10, 1),
		summaryField(s.HiOutTemp, 10, 1), FormatMinutes(s.Time1(TimeHighOutTemp)),
		summaryField(s.LowOutTemp, 10, 1), FormatMinutes(s.Time1(TimeLowOutTemp)),
		summaryField(s.HiHeat, 10, 1), FormatMinutes(s.Time2(TimeHighHeat)),
		summaryField(s.LowChill, 10, 1), FormatMinutes(s.Time1(TimeLowChill)),
		summaryField(s.HiOutHum, 10, 0), summaryField(s.LowOutHum, 10, 0),
		summaryField(s.HiDew, 10, 1), FormatMinutes(s.Time1(TimeHighDew)),
		summaryField(s.LowDew, 10, 1), FormatMinutes(s.Time1(TimeLowDew)),
		float64(s.AvgSpeed)/10,
		float64(s.HiSpeed)/10, FormatMinutes(s.Time1(TimeHighWindSpeed)),
		WindDirString(s.DominantDirection()),
		float64(s.DailyRainTotal)/1000,
		summaryField(s.HiBar, 1000, 3),
		summaryField(s.LowBar, 1000, 3))
}

// WriteDailyArchiveReport rebuilds filename from scratch with one line per
// archive interval of day. header, when non-nil, writes the column titles.
// Returns ErrNoRecords when no interval had data.
func (s *Store) WriteDailyArchiveReport(day time.Time, interval int, filename string, header func(io.Writer) error, units Units) error {
	if interval <= 0 {
		return fmt.Errorf("wlk: bad archive interval %d", interval)
	}
	day = day.In(s.loc)
	if err := os.Remove(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("wlk: removing %s: %w", filename, err)
	}
	if _, err := os.Stat(MonthOf(day).FileName(s.dir)); err != nil {
		return fmt.Errorf("%w: %s", ErrFileMissing, MonthOf(day))
	}

	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	written := 0
	for i := interval; i <= 24*60; i += interval {
		avg, err := s.GetAverages(midnight.Add(time.Duration(i)*time.Minute), 1, interval, units)
		if err != nil {
			continue
		}
		if err := UpdateDailyArchiveReport(filename, avg, header, units); err != nil {
			return err
		}
		written++
	}
	if written == 0 {
		return fmt.Errorf("%w: %s", ErrNoRecords, midnight.Format("2006-01-02"))
	}
	return nil
}

// UpdateDailyArchiveReport appends one interval line to filename, creating it
// with a header first if needed.
func UpdateDailyArchiveReport(filename string, avg *PeriodAverages, header func(io.Writer) error, units Units) error {
	_, statErr := os.Stat(filename)
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wlk: opening %s: %w", filename, err)
	}
	if errors.Is(statErr, os.ErrNotExist) && header != nil {
		if err := header(f); err != nil {
			f.Close()
			return fmt.Errorf("wlk: writing header to %s: %w", filename, err)
		}
	}
	if _, err := io.WriteString(f, reportLine(avg, units)); err != nil {
		f.Close()
		return fmt.Errorf("wlk: writing %s: %w", filename, err)
	}
	return f.Close()
}

func reportLine(a *PeriodAverages, units Units) string {
	format := "%s\t%.1f\t%.1f\t%.1f\t%.0f\t%.1f\t%.0f\t%.0f\t%.0f\t%.2f\t%.3f\t%.0f\t%.3f\t%.1f\n"
	if units.Metric {
		format = "%s\t%.1f\t%.1f\t%.1f\t%.0f\t%.1f\t%.0f\t%.0f\t%.0f\t%.1f\t%.1f\t%.0f\t%.3f\t%.1f\n"
	}
	return fmt.Sprintf(format,
		a.Start.Format("20060102 15:04"),
		a.Value(types.OutTemp),
		a.Value(types.Windchill),
		a.Value(types.Heatindex),
		a.Value(types.OutHumidity),
		a.Value(types.Dewpoint),
		a.Value(types.WindSpeed),
		a.Value(types.WindGust),
		a.Value(types.WindDir),
		a.Value(types.Rain),
		a.Value(types.Barometer),
		a.Value(types.Radiation),
		a.Value(types.ET),
		a.Value(types.UV))
}
