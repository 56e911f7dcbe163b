package vantage

import "time"

// PackDate returns the console date encoding day | month<<5 | (year-2000)<<9.
func PackDate(year, month, day int) uint16 {
	return uint16(day&0x1F) | uint16(month&0x0F)<<5 | uint16((year-2000)&0x7F)<<9
}

// UnpackDate splits a packed console date.
func UnpackDate(date uint16) (year, month, day int) {
	return int(date>>9) + 2000, int(date>>5) & 0x0F, int(date) & 0x1F
}

// PackTime returns the console time encoding hour*100 + minute.
func PackTime(hour, minute int) uint16 {
	return uint16(hour*100 + minute)
}

// UnpackTime splits a packed console time.
func UnpackTime(t uint16) (hour, minute int) {
	return int(t) / 100, int(t) % 100
}

// PackDateTime packs t as seen in its own location.
func PackDateTime(t time.Time) (date, tm uint16) {
	return PackDate(t.Year(), int(t.Month()), t.Day()), PackTime(t.Hour(), t.Minute())
}

// UnpackDateTime builds a time in loc from a packed date and time.
func UnpackDateTime(date, tm uint16, loc *time.Location) time.Time {
	y, mo, d := UnpackDate(date)
	h, mi := UnpackTime(tm)
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, loc)
}

// PackedDelta returns the minutes from the old packed date/time to the new one,
// evaluated in local time.
func PackedDelta(oldDate, oldTime, newDate, newTime uint16) int {
	older := UnpackDateTime(oldDate, oldTime, time.Local)
	newer := UnpackDateTime(newDate, newTime, time.Local)
	return int(newer.Sub(older) / time.Minute)
}

// PackedAfter reports whether date/tm is strictly later than the watermark.
func PackedAfter(date, tm, markDate, markTime uint16) bool {
	if date != markDate {
		return date > markDate
	}
	return tm > markTime
}

// IncrementPacked advances a packed date/time by minutes in local time.
func IncrementPacked(date, tm uint16, minutes int) (uint16, uint16) {
	t := UnpackDateTime(date, tm, time.Local).Add(time.Duration(minutes) * time.Minute)
	return PackDateTime(t)
}
