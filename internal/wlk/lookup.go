package wlk

import (
	"errors"
	"fmt"
	"os"

	"github.com/chrissnell/vantaged/internal/vantage"
)

// ArchiveEntry is a stored record together with the console date and time it
// was taken at.
type ArchiveEntry struct {
	Date   uint16
	Time   uint16
	Record FileRecord
}

// packedStamp converts a stored minute of day to console date/time, rolling
// minute 1440 over to 00:00 of the following day.
func (s *Store) packedStamp(tag MonthTag, day int, r *FileRecord) (uint16, uint16) {
	return vantage.PackDateTime(recordTime(tag, day, r, s.loc))
}

// GetNewestArchiveTime returns the newest stored record, looking back at most
// one year from the current month.
func (s *Store) GetNewestArchiveTime() (ArchiveEntry, error) {
	cur := s.currentMonth()
	stop := MonthTag{Year: cur.Year - 1, Month: cur.Month}
	for tag := cur; !tag.Before(stop); tag = tag.Prev() {
		f, hdr, err := s.openMonth(tag)
		if errors.Is(err, ErrFileMissing) {
			continue
		}
		if err != nil {
			return ArchiveEntry{}, err
		}
		entry, found, err := s.newestIn(tag, f, hdr)
		f.Close()
		if err != nil {
			return ArchiveEntry{}, err
		}
		if found {
			return entry, nil
		}
	}
	return ArchiveEntry{}, fmt.Errorf("%w: nothing since %s", ErrNoRecords, stop)
}

func (s *Store) newestIn(tag MonthTag, f *os.File, hdr Header) (ArchiveEntry, bool, error) {
	for day := dayIndexEntries - 1; day >= 1; day-- {
		recs, err := readDay(f, hdr, day)
		if err != nil {
			return ArchiveEntry{}, false, fmt.Errorf("wlk: %s: %w", tag, err)
		}
		if len(recs) == 0 {
			continue
		}
		r := recs[len(recs)-1]
		date, tm := s.packedStamp(tag, day, &r)
		return ArchiveEntry{Date: date, Time: tm, Record: r}, true, nil
	}
	return ArchiveEntry{}, false, nil
}

// GetNextArchiveRecord returns the first stored record strictly after the
// packed console date and time, walking forward through month files up to the
// current month.
func (s *Store) GetNextArchiveRecord(date, tm uint16) (ArchiveEntry, error) {
	year, month, _ := vantage.UnpackDate(date)
	tag := MonthTag{Year: max(year, 2000), Month: max(month, 1)}
	if tag.Month > 12 {
		tag.Month = 12
	}
	last := s.currentMonth()
	for ; !tag.After(last); tag = tag.Next() {
		f, hdr, err := s.openMonth(tag)
		if errors.Is(err, ErrFileMissing) {
			continue
		}
		if err != nil {
			return ArchiveEntry{}, err
		}
		entry, found, err := s.nextIn(tag, f, hdr, date, tm)
		f.Close()
		if err != nil {
			return ArchiveEntry{}, err
		}
		if found {
			return entry, nil
		}
	}
	return ArchiveEntry{}, fmt.Errorf("%w: after %04x %04d", ErrNoRecords, date, tm)
}

func (s *Store) nextIn(tag MonthTag, f *os.File, hdr Header, date, tm uint16) (ArchiveEntry, bool, error) {
	markYear, markMonth, markDay := vantage.UnpackDate(date)
	sameMonth := tag == MonthTag{Year: markYear, Month: markMonth}
	for day := 1; day < dayIndexEntries; day++ {
		if sameMonth && day < markDay {
			continue
		}
		recs, err := readDay(f, hdr, day)
		if err != nil {
			return ArchiveEntry{}, false, fmt.Errorf("wlk: %s: %w", tag, err)
		}
		for i := range recs {
			d, t := s.packedStamp(tag, day, &recs[i])
			if vantage.PackedAfter(d, t, date, tm) {
				return ArchiveEntry{Date: d, Time: t, Record: recs[i]}, true, nil
			}
		}
	}
	return ArchiveEntry{}, false, nil
}
