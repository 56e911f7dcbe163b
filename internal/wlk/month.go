package wlk

import (
	"fmt"
	"path/filepath"
	"time"
)

// MonthTag names one month file.
type MonthTag struct {
	Year  int
	Month int
}

// MonthOf returns the tag for the month containing t.
func MonthOf(t time.Time) MonthTag {
	return MonthTag{Year: t.Year(), Month: int(t.Month())}
}

// Next returns the following month.
func (m MonthTag) Next() MonthTag {
	if m.Month >= 12 {
		return MonthTag{Year: m.Year + 1, Month: 1}
	}
	return MonthTag{Year: m.Year, Month: m.Month + 1}
}

// Prev returns the preceding month.
func (m MonthTag) Prev() MonthTag {
	if m.Month <= 1 {
		return MonthTag{Year: m.Year - 1, Month: 12}
	}
	return MonthTag{Year: m.Year, Month: m.Month - 1}
}

// Before reports whether m is earlier than o.
func (m MonthTag) Before(o MonthTag) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}

// After reports whether m is later than o.
func (m MonthTag) After(o MonthTag) bool {
	return o.Before(m)
}

func (m MonthTag) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// FileName returns the path of the month file under dir.
func (m MonthTag) FileName(dir string) string {
	return filepath.Join(dir, m.String()+".wlk")
}

// ParseMonthTag accepts "YYYY-MM".
func ParseMonthTag(s string) (MonthTag, error) {
	var m MonthTag
	if _, err := fmt.Sscanf(s, "%4d-%2d", &m.Year, &m.Month); err != nil {
		return MonthTag{}, fmt.Errorf("wlk: bad month %q: %w", s, err)
	}
	if m.Month < 1 || m.Month > 12 {
		return MonthTag{}, fmt.Errorf("wlk: bad month %q", s)
	}
	return m, nil
}

// Start returns midnight of the first day of the month in loc.
func (m MonthTag) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, loc)
}
