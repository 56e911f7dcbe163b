// Package wlk reads and writes the per-month .wlk archive files: a day index
// header followed by fixed-size slots holding daily summaries and interval
// records.
package wlk

import (
	"encoding/binary"
	"fmt"
)

// Layout constants of a month file.
const (
	HeaderSize      = 212
	RecordSize      = 88
	SummarySize     = 2 * RecordSize
	SummarySlots    = 2
	FirstRecordInc  = SummarySlots + 1
	NoTime          = -1
	dayIndexEntries = 32
)

var idCode = [16]byte{'W', 'D', 'A', 'T', '5', '.', '0', 0, 0, 0, 0, 0, 0, 0, 5, 0}

// DayIndex locates one day's block of slots.
type DayIndex struct {
	RecordsInDay int16
	StartPos     int32
}

// Samples returns the number of interval records stored for the day.
func (d DayIndex) Samples() int {
	if d.RecordsInDay < FirstRecordInc {
		return 0
	}
	return int(d.RecordsInDay) - SummarySlots
}

// Header is the fixed block at the start of every month file. Days[0] is unused.
type Header struct {
	ID           [16]byte
	TotalRecords int32
	Days         [dayIndexEntries]DayIndex
}

// NewHeader returns an empty header carrying the file identification tag.
func NewHeader() Header {
	return Header{ID: idCode}
}

// Valid reports whether TotalRecords matches the sum of the day counts.
func (h Header) Valid() bool {
	var sum int32
	for _, d := range h.Days {
		sum += int32(d.RecordsInDay)
	}
	return sum == h.TotalRecords
}

// Encode returns the 212-byte header.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:16], h.ID[:])
	binary.LittleEndian.PutUint32(b[16:], uint32(h.TotalRecords))
	for i, d := range h.Days {
		off := 20 + 6*i
		binary.LittleEndian.PutUint16(b[off:], uint16(d.RecordsInDay))
		binary.LittleEndian.PutUint32(b[off+2:], uint32(d.StartPos))
	}
	return b
}

// DecodeHeader parses a header block.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("wlk: header is %d bytes", len(b))
	}
	var h Header
	copy(h.ID[:], b[0:16])
	h.TotalRecords = int32(binary.LittleEndian.Uint32(b[16:]))
	for i := range h.Days {
		off := 20 + 6*i
		h.Days[i].RecordsInDay = int16(binary.LittleEndian.Uint16(b[off:]))
		h.Days[i].StartPos = int32(binary.LittleEndian.Uint32(b[off+2:]))
	}
	return h, nil
}

func slotOffset(slot int32) int64 {
	return HeaderSize + RecordSize*int64(slot)
}

// ExtractTime reads the 12-bit value at index from a packed array. Two values
// share each 3-byte group. Returns NoTime for the 0xFFF and 0x7FF markers.
func ExtractTime(buf []byte, index int) int {
	f := (index / 2) * 3
	var v int
	if index%2 == 0 {
		v = int(buf[f]) + int(buf[f+2]&0x0F)<<8
	} else {
		v = int(buf[f+1]) + int(buf[f+2]&0xF0)<<4
	}
	if v == 0xFFF || v == 0x7FF {
		return NoTime
	}
	return v
}

// InsertTime writes a 12-bit value at index, leaving the paired value intact.
func InsertTime(buf []byte, index int, value uint16) {
	f := (index / 2) * 3
	if index%2 == 0 {
		buf[f] = byte(value)
		buf[f+2] = buf[f+2]&0xF0 | byte(value>>8)&0x0F
	} else {
		buf[f+1] = byte(value)
		buf[f+2] = buf[f+2]&0x0F | byte(value>>4)&0xF0
	}
}

// Indexes into DailySummary.TimeValues1.
const (
	TimeHighOutTemp = iota
	TimeLowOutTemp
	TimeHighInTemp
	TimeLowInTemp
	TimeHighChill
	TimeLowChill
	TimeHighDew
	TimeLowDew
	TimeHighOutHum
	TimeLowOutHum
	TimeHighInHum
	TimeLowInHum
	TimeHighBar
	TimeLowBar
	TimeHighWindSpeed
	TimeHighAvgWindSpeed
	TimeHighRainRate
	TimeHighUV
)

// Indexes into DailySummary.TimeValues2.
const (
	TimeHighSolar = iota
	TimeHighHeat
	TimeLowHeat
	TimeHighTHSW
	TimeLowTHSW
	TimeHighTHW
	TimeLowTHW
	TimeHighWetBulb
	TimeLowWetBulb
)

// Summary data type markers.
const (
	SummaryNew     = 0
	SummaryStored  = 2
	SummarySecond  = 3
	RecordDataType = 1
)

// DailySummary is the two-slot aggregate kept at the start of each day block.
// Temperatures are tenths of a degree F, humidities tenths of a percent,
// pressures thousandths of inHg and wind speeds tenths of mph.
type DailySummary struct {
	DataType1          uint8
	Reserved1          uint8
	DataSpan           int16
	HiOutTemp          int16
	LowOutTemp         int16
	HiInTemp           int16
	LowInTemp          int16
	AvgOutTemp         int16
	AvgInTemp          int16
	HiChill            int16
	LowChill           int16
	HiDew              int16
	LowDew             int16
	AvgChill           int16
	AvgDew             int16
	HiOutHum           int16
	LowOutHum          int16
	HiInHum            int16
	LowInHum           int16
	AvgOutHum          int16
	HiBar              int16
	LowBar             int16
	AvgBar             int16
	HiSpeed            int16
	AvgSpeed           int16
	DailyWindRunTotal  int16
	Hi10MinSpeed       int16
	DirHiSpeed         uint8
	Hi10MinDir         uint8
	DailyRainTotal     int16
	HiRainRate         int16
	DailyUVDose        int16
	HiUV               uint8
	TimeValues1        [27]byte
	DataType2          uint8
	Reserved2          uint8
	TodaysWeather      int16
	NumWindPackets     int16
	HiSolar            int16
	DailySolarEnergy   int16
	MinSunlight        int16
	DailyETTotal       int16
	HiHeat             int16
	LowHeat            int16
	AvgHeat            int16
	HiTHSW             int16
	LowTHSW            int16
	HiTHW              int16
	LowTHW             int16
	IntegratedHeatDD65 int16
	HiWetBulb          int16
	LowWetBulb         int16
	AvgWetBulb         int16
	DirBins            [24]byte
	TimeValues2        [15]byte
	IntegratedCoolDD65 int16
	Reserved3          [11]byte
}

// Time1 returns the minute of day stored at a TimeValues1 index.
func (s *DailySummary) Time1(index int) int { return ExtractTime(s.TimeValues1[:], index) }

// Time2 returns the minute of day stored at a TimeValues2 index.
func (s *DailySummary) Time2(index int) int { return ExtractTime(s.TimeValues2[:], index) }

// SetTime1 stores a minute of day at a TimeValues1 index.
func (s *DailySummary) SetTime1(index, minutes int) {
	InsertTime(s.TimeValues1[:], index, uint16(minutes))
}

// SetTime2 stores a minute of day at a TimeValues2 index.
func (s *DailySummary) SetTime2(index, minutes int) {
	InsertTime(s.TimeValues2[:], index, uint16(minutes))
}

// DirMinutes returns the minutes of wind recorded in a compass sector, or
// NoTime.
func (s *DailySummary) DirMinutes(sector int) int { return ExtractTime(s.DirBins[:], sector) }

// DominantDirection returns the sector with the most minutes, or -1 when no
// sector has any.
func (s *DailySummary) DominantDirection() int {
	return DominantSector(s.DirBins[:])
}

// DominantSector is the arg-max over the 16 packed direction bins.
func DominantSector(bins []byte) int {
	best, index := -1, -1
	for i := 0; i < 16; i++ {
		v := ExtractTime(bins, i)
		if v == NoTime {
			continue
		}
		if v > best {
			best, index = v, i
		}
	}
	return index
}

type fieldReader struct {
	b   []byte
	off int
}

func (c *fieldReader) u8(p *uint8) {
	*p = c.b[c.off]
	c.off++
}

func (c *fieldReader) i16(p *int16) {
	*p = int16(binary.LittleEndian.Uint16(c.b[c.off:]))
	c.off += 2
}

func (c *fieldReader) bytes(p []byte) {
	copy(p, c.b[c.off:c.off+len(p)])
	c.off += len(p)
}

type fieldWriter struct {
	b   []byte
	off int
}

func (w *fieldWriter) u8(v uint8) {
	w.b[w.off] = v
	w.off++
}

func (w *fieldWriter) i16(v int16) {
	binary.LittleEndian.PutUint16(w.b[w.off:], uint16(v))
	w.off += 2
}

func (w *fieldWriter) bytes(p []byte) {
	copy(w.b[w.off:], p)
	w.off += len(p)
}

// DecodeSummary parses a two-slot daily summary.
func DecodeSummary(b []byte) (DailySummary, error) {
	if len(b) < SummarySize {
		return DailySummary{}, fmt.Errorf("wlk: summary is %d bytes", len(b))
	}
	var s DailySummary
	c := &fieldReader{b: b}
	c.u8(&s.DataType1)
	c.u8(&s.Reserved1)
	for _, p := range []*int16{
		&s.DataSpan, &s.HiOutTemp, &s.LowOutTemp, &s.HiInTemp, &s.LowInTemp,
		&s.AvgOutTemp, &s.AvgInTemp, &s.HiChill, &s.LowChill, &s.HiDew, &s.LowDew,
		&s.AvgChill, &s.AvgDew, &s.HiOutHum, &s.LowOutHum, &s.HiInHum, &s.LowInHum,
		&s.AvgOutHum, &s.HiBar, &s.LowBar, &s.AvgBar, &s.HiSpeed, &s.AvgSpeed,
		&s.DailyWindRunTotal, &s.Hi10MinSpeed,
	} {
		c.i16(p)
	}
	c.u8(&s.DirHiSpeed)
	c.u8(&s.Hi10MinDir)
	c.i16(&s.DailyRainTotal)
	c.i16(&s.HiRainRate)
	c.i16(&s.DailyUVDose)
	c.u8(&s.HiUV)
	c.bytes(s.TimeValues1[:])
	c.u8(&s.DataType2)
	c.u8(&s.Reserved2)
	for _, p := range []*int16{
		&s.TodaysWeather, &s.NumWindPackets, &s.HiSolar, &s.DailySolarEnergy,
		&s.MinSunlight, &s.DailyETTotal, &s.HiHeat, &s.LowHeat, &s.AvgHeat,
		&s.HiTHSW, &s.LowTHSW, &s.HiTHW, &s.LowTHW, &s.IntegratedHeatDD65,
		&s.HiWetBulb, &s.LowWetBulb, &s.AvgWetBulb,
	} {
		c.i16(p)
	}
	c.bytes(s.DirBins[:])
	c.bytes(s.TimeValues2[:])
	c.i16(&s.IntegratedCoolDD65)
	c.bytes(s.Reserved3[:])
	return s, nil
}

// Encode returns the 176-byte summary.
func (s *DailySummary) Encode() []byte {
	w := &fieldWriter{b: make([]byte, SummarySize)}
	w.u8(s.DataType1)
	w.u8(s.Reserved1)
	for _, v := range []int16{
		s.DataSpan, s.HiOutTemp, s.LowOutTemp, s.HiInTemp, s.LowInTemp,
		s.AvgOutTemp, s.AvgInTemp, s.HiChill, s.LowChill, s.HiDew, s.LowDew,
		s.AvgChill, s.AvgDew, s.HiOutHum, s.LowOutHum, s.HiInHum, s.LowInHum,
		s.AvgOutHum, s.HiBar, s.LowBar, s.AvgBar, s.HiSpeed, s.AvgSpeed,
		s.DailyWindRunTotal, s.Hi10MinSpeed,
	} {
		w.i16(v)
	}
	w.u8(s.DirHiSpeed)
	w.u8(s.Hi10MinDir)
	w.i16(s.DailyRainTotal)
	w.i16(s.HiRainRate)
	w.i16(s.DailyUVDose)
	w.u8(s.HiUV)
	w.bytes(s.TimeValues1[:])
	w.u8(s.DataType2)
	w.u8(s.Reserved2)
	for _, v := range []int16{
		s.TodaysWeather, s.NumWindPackets, s.HiSolar, s.DailySolarEnergy,
		s.MinSunlight, s.DailyETTotal, s.HiHeat, s.LowHeat, s.AvgHeat,
		s.HiTHSW, s.LowTHSW, s.HiTHW, s.LowTHW, s.IntegratedHeatDD65,
		s.HiWetBulb, s.LowWetBulb, s.AvgWetBulb,
	} {
		w.i16(v)
	}
	w.bytes(s.DirBins[:])
	w.bytes(s.TimeValues2[:])
	w.i16(s.IntegratedCoolDD65)
	w.bytes(s.Reserved3[:])
	return w.b
}

// FileRecord is one interval sample as stored in a month file.
type FileRecord struct {
	DataType        uint8
	ArchiveInterval uint8
	IconFlags       uint8
	MoreFlags       uint8
	PackedTime      int16
	OutsideTemp     int16
	HiOutsideTemp   int16
	LowOutsideTemp  int16
	InsideTemp      int16
	Barometer       int16
	OutsideHum      int16
	InsideHum       int16
	Rain            uint16
	HiRainRate      int16
	WindSpeed       int16
	HiWindSpeed     int16
	WindDirection   uint8
	HiWindDirection uint8
	NumWindSamples  int16
	SolarRad        int16
	HiSolarRad      int16
	UV              uint8
	HiUV            uint8
	LeafTemp        [4]uint8
	NewSensors      [14]byte
	Forecast        uint8
	ET              uint8
	SoilTemp        [6]uint8
	SoilMoisture    [6]uint8
	LeafWetness     [4]uint8
	ExtraTemp       [7]uint8
	ExtraHum        [7]uint8
}

// NewFileRecord returns a record with every byte set to the 0xFF marker.
func NewFileRecord() FileRecord {
	blank := make([]byte, RecordSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	r, _ := DecodeFileRecord(blank)
	return r
}

// DecodeFileRecord parses one 88-byte slot.
func DecodeFileRecord(b []byte) (FileRecord, error) {
	if len(b) < RecordSize {
		return FileRecord{}, fmt.Errorf("wlk: record is %d bytes", len(b))
	}
	var r FileRecord
	c := &fieldReader{b: b}
	c.u8(&r.DataType)
	c.u8(&r.ArchiveInterval)
	c.u8(&r.IconFlags)
	c.u8(&r.MoreFlags)
	for _, p := range []*int16{
		&r.PackedTime, &r.OutsideTemp, &r.HiOutsideTemp, &r.LowOutsideTemp,
		&r.InsideTemp, &r.Barometer, &r.OutsideHum, &r.InsideHum,
	} {
		c.i16(p)
	}
	var rain int16
	c.i16(&rain)
	r.Rain = uint16(rain)
	c.i16(&r.HiRainRate)
	c.i16(&r.WindSpeed)
	c.i16(&r.HiWindSpeed)
	c.u8(&r.WindDirection)
	c.u8(&r.HiWindDirection)
	c.i16(&r.NumWindSamples)
	c.i16(&r.SolarRad)
	c.i16(&r.HiSolarRad)
	c.u8(&r.UV)
	c.u8(&r.HiUV)
	c.bytes(r.LeafTemp[:])
	c.bytes(r.NewSensors[:])
	c.u8(&r.Forecast)
	c.u8(&r.ET)
	c.bytes(r.SoilTemp[:])
	c.bytes(r.SoilMoisture[:])
	c.bytes(r.LeafWetness[:])
	c.bytes(r.ExtraTemp[:])
	c.bytes(r.ExtraHum[:])
	return r, nil
}

// Encode returns the 88-byte slot.
func (r *FileRecord) Encode() []byte {
	w := &fieldWriter{b: make([]byte, RecordSize)}
	w.u8(r.DataType)
	w.u8(r.ArchiveInterval)
	w.u8(r.IconFlags)
	w.u8(r.MoreFlags)
	for _, v := range []int16{
		r.PackedTime, r.OutsideTemp, r.HiOutsideTemp, r.LowOutsideTemp,
		r.InsideTemp, r.Barometer, r.OutsideHum, r.InsideHum, int16(r.Rain),
		r.HiRainRate, r.WindSpeed, r.HiWindSpeed,
	} {
		w.i16(v)
	}
	w.u8(r.WindDirection)
	w.u8(r.HiWindDirection)
	w.i16(r.NumWindSamples)
	w.i16(r.SolarRad)
	w.i16(r.HiSolarRad)
	w.u8(r.UV)
	w.u8(r.HiUV)
	w.bytes(r.LeafTemp[:])
	w.bytes(r.NewSensors[:])
	w.u8(r.Forecast)
	w.u8(r.ET)
	w.bytes(r.SoilTemp[:])
	w.bytes(r.SoilMoisture[:])
	w.bytes(r.LeafWetness[:])
	w.bytes(r.ExtraTemp[:])
	w.bytes(r.ExtraHum[:])
	return w.b
}

var windDirNames = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindDirString names a 16-point compass sector, or "---" when out of range.
func WindDirString(sector int) string {
	if sector < 0 || sector > 15 {
		return "---"
	}
	return windDirNames[sector]
}
