package wlk

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wxcalc"
)

var (
	// ErrFileMissing is returned when a required month file does not exist.
	ErrFileMissing = errors.New("wlk: month file missing")
	// ErrNoRecords is returned when a query finds nothing to report.
	ErrNoRecords = errors.New("wlk: no records")
	// ErrDayNotLast is returned when appending to a day whose block is not the
	// last block of its month file.
	ErrDayNotLast = errors.New("wlk: day block is not last in file")
)

// dash is the 16-bit "no value" marker used by summary fields.
const dash = math.MinInt16

// Store is a directory of month files. Writers are serialized; readers open
// one file at a time.
type Store struct {
	dir    string
	logger *zap.SugaredLogger
	clock  clockwork.Clock
	loc    *time.Location
	mu     sync.Mutex
}

// New returns a store rooted at dir.
func New(dir string, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		dir:    dir,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		loc:    time.Local,
	}
}

// SetClock swaps the time source used to find the current month. Pass nil to
// reset to real time.
func (s *Store) SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	s.clock = c
}

// SetLocation sets the zone used to interpret packed console dates.
func (s *Store) SetLocation(loc *time.Location) {
	s.loc = loc
}

// Dir returns the directory holding the month files.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) currentMonth() MonthTag {
	return MonthOf(s.clock.Now().In(s.loc))
}

// AppendArchiveRecord adds one console archive record to its month file and
// folds it into the day's summary. A record stamped 00:00 closes the previous
// day and is stored there as minute 1440.
func (s *Store) AppendArchiveRecord(rec vantage.ArchiveRecord, interval int, collector uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	year, month, day := vantage.UnpackDate(rec.Date)
	hour, minute := vantage.UnpackTime(rec.Time)
	if hour == 0 && minute == 0 {
		prev := time.Date(year, time.Month(month), day, 0, 5, 0, 0, s.loc).AddDate(0, 0, -1)
		year, month, day = prev.Year(), int(prev.Month()), prev.Day()
		hour = 24
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return fmt.Errorf("wlk: bad record date 0x%04x", rec.Date)
	}
	dayMinutes := minute + 60*hour

	if rec.AvgWindSpeed > 200 || rec.PrevWindDir > 15 {
		rec.AvgWindSpeed = 0
		rec.PrevWindDir = 0xFF
	}
	if rec.HighWindSpeed > 200 || rec.HighWindDir > 15 {
		rec.HighWindSpeed = 0
		rec.HighWindDir = 0xFF
	}
	if rec.Rain&0xF000 == 0 {
		rec.Rain |= collector
	}

	path := MonthTag{Year: year, Month: month}.FileName(s.dir)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("wlk: opening %s: %w", path, err)
	}
	defer f.Close()

	hdr, err := readOrInitHeader(f)
	if err != nil {
		return fmt.Errorf("wlk: %s: %w", path, err)
	}

	entry := &hdr.Days[day]
	d := deriveValues(rec)
	var sum DailySummary
	if entry.RecordsInDay == 0 {
		sum = newDaySummary(rec, d, interval, dayMinutes)
		entry.StartPos = hdr.TotalRecords
		entry.RecordsInDay = FirstRecordInc
		hdr.TotalRecords += FirstRecordInc
	} else {
		if entry.StartPos+int32(entry.RecordsInDay) != hdr.TotalRecords {
			return fmt.Errorf("%w: %s day %d", ErrDayNotLast, path, day)
		}
		sum, err = readSummary(f, entry.StartPos)
		if err != nil {
			return fmt.Errorf("wlk: %s day %d: %w", path, day, err)
		}
		recs, err := readDay(f, hdr, day)
		if err != nil {
			return fmt.Errorf("wlk: %s: %w", path, err)
		}
		entry.RecordsInDay++
		hdr.TotalRecords++
		updateDaySummary(&sum, rec, d, interval, dayMinutes, countSamples(recs).with(rec, d))
	}
	sum.DataType1 = SummaryStored

	fr := toFileRecord(rec, interval, dayMinutes)

	if _, err := f.WriteAt(hdr.Encode(), 0); err != nil {
		return fmt.Errorf("wlk: writing header of %s: %w", path, err)
	}
	if _, err := f.WriteAt(sum.Encode(), slotOffset(entry.StartPos)); err != nil {
		return fmt.Errorf("wlk: writing summary of %s: %w", path, err)
	}
	if _, err := f.WriteAt(fr.Encode(), slotOffset(hdr.TotalRecords-1)); err != nil {
		return fmt.Errorf("wlk: writing record to %s: %w", path, err)
	}
	s.logger.Debugf("wlk: stored %04d-%02d-%02d %02d:%02d in %s", year, month, day, dayMinutes/60, dayMinutes%60, path)
	return nil
}

func readOrInitHeader(f *os.File) (Header, error) {
	st, err := f.Stat()
	if err != nil {
		return Header{}, err
	}
	if st.Size() < HeaderSize {
		h := NewHeader()
		if _, err := f.WriteAt(h.Encode(), 0); err != nil {
			return Header{}, fmt.Errorf("writing header: %w", err)
		}
		return h, nil
	}
	return readHeader(f)
}

func readHeader(r io.ReaderAt) (Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := r.ReadAt(b, 0); err != nil {
		return Header{}, fmt.Errorf("reading header: %w", err)
	}
	return DecodeHeader(b)
}

func readSummary(r io.ReaderAt, startPos int32) (DailySummary, error) {
	b := make([]byte, SummarySize)
	if _, err := r.ReadAt(b, slotOffset(startPos)); err != nil {
		return DailySummary{}, fmt.Errorf("reading summary: %w", err)
	}
	return DecodeSummary(b)
}

// readDay returns the interval records of one day in file order.
func readDay(r io.ReaderAt, hdr Header, day int) ([]FileRecord, error) {
	entry := hdr.Days[day]
	n := entry.Samples()
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n*RecordSize)
	if _, err := r.ReadAt(b, slotOffset(entry.StartPos+SummarySlots)); err != nil {
		return nil, fmt.Errorf("reading day %d: %w", day, err)
	}
	recs := make([]FileRecord, n)
	for i := range recs {
		rec, err := DecodeFileRecord(b[i*RecordSize:])
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

// openMonth opens a month file read-only and parses its header.
func (s *Store) openMonth(tag MonthTag) (*os.File, Header, error) {
	path := tag.FileName(s.dir)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Header{}, fmt.Errorf("%w: %s", ErrFileMissing, path)
	}
	if err != nil {
		return nil, Header{}, fmt.Errorf("wlk: opening %s: %w", path, err)
	}
	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, Header{}, fmt.Errorf("wlk: %s: %w", path, err)
	}
	return f, hdr, nil
}

// ReadHeader returns the header of a month file.
func (s *Store) ReadHeader(tag MonthTag) (Header, error) {
	f, hdr, err := s.openMonth(tag)
	if err != nil {
		return Header{}, err
	}
	f.Close()
	return hdr, nil
}

// ReadSummary returns the daily summary of one day.
func (s *Store) ReadSummary(tag MonthTag, day int) (DailySummary, error) {
	f, hdr, err := s.openMonth(tag)
	if err != nil {
		return DailySummary{}, err
	}
	defer f.Close()
	if day < 1 || day > 31 || hdr.Days[day].RecordsInDay == 0 {
		return DailySummary{}, fmt.Errorf("%w: %s day %d", ErrNoRecords, tag, day)
	}
	return readSummary(f, hdr.Days[day].StartPos)
}

// ReadDay returns the interval records of one day.
func (s *Store) ReadDay(tag MonthTag, day int) ([]FileRecord, error) {
	f, hdr, err := s.openMonth(tag)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if day < 1 || day > 31 {
		return nil, fmt.Errorf("wlk: bad day %d", day)
	}
	return readDay(f, hdr, day)
}

// derived holds the computed values of one record in tenths of a degree.
type derived struct {
	chill, dew, heat int16
}

func tenthsOf(v float64) int16 {
	if types.IsNull(v) {
		return dash
	}
	return int16(v * 10)
}

func deriveValues(rec vantage.ArchiveRecord) derived {
	if !validTemp(rec.OutTemp) {
		return derived{dash, dash, dash}
	}
	out := float64(rec.OutTemp) / 10
	hum := float64(rec.OutHumidity)
	if !validHumidity(rec.OutHumidity) {
		hum = types.Null
	}
	return derived{
		chill: tenthsOf(wxcalc.WindChill(out, float64(rec.AvgWindSpeed))),
		dew:   tenthsOf(wxcalc.Dewpoint(out, hum)),
		heat:  tenthsOf(wxcalc.HeatIndex(out, hum)),
	}
}

func rainThousandths(rain uint16) int16 {
	return int16(math.Round(vantage.RainInches(rain) * 1000))
}

func validRadiation(v uint16) bool {
	return v <= 1800
}

func validTemp(v int16) bool {
	return v != dash && v != 0x7FFF
}

func validHumidity(v uint8) bool {
	return v <= 100
}

func validBarometer(v uint16) bool {
	return v != 0 && v != 0xFFFF
}

// sampleCounts is the number of valid readings of each averaged summary
// field for a day.
type sampleCounts struct {
	outTemp, inTemp, outHum, bar, speed int
	chill, dew, heat                    int
}

// countSamples counts the valid readings among a day's stored records.
func countSamples(recs []FileRecord) sampleCounts {
	var c sampleCounts
	for i := range recs {
		r := &recs[i]
		out := validTemp(r.OutsideTemp)
		hum := !types.IsNull(humidity16(r.OutsideHum))
		if out {
			c.outTemp++
			c.chill++
		}
		if out && hum {
			c.dew++
			c.heat++
		}
		if validTemp(r.InsideTemp) {
			c.inTemp++
		}
		if hum {
			c.outHum++
		}
		if validBarometer(uint16(r.Barometer)) {
			c.bar++
		}
		c.speed++
	}
	return c
}

// with adds the readings of one more record.
func (c sampleCounts) with(rec vantage.ArchiveRecord, d derived) sampleCounts {
	if validTemp(rec.OutTemp) {
		c.outTemp++
	}
	if validTemp(rec.InTemp) {
		c.inTemp++
	}
	if validHumidity(rec.OutHumidity) {
		c.outHum++
	}
	if validBarometer(rec.Barometer) {
		c.bar++
	}
	if d.chill != dash {
		c.chill++
	}
	if d.dew != dash {
		c.dew++
	}
	if d.heat != dash {
		c.heat++
	}
	c.speed++
	return c
}

func humidityTenths(v uint8) int16 {
	if !validHumidity(v) {
		return dash
	}
	return int16(v) * 10
}

func newDaySummary(rec vantage.ArchiveRecord, d derived, interval, minutes int) DailySummary {
	var s DailySummary
	for i := range s.TimeValues1 {
		s.TimeValues1[i] = 0xFF
	}
	for i := range s.TimeValues2 {
		s.TimeValues2[i] = 0xFF
	}
	for i := range s.DirBins {
		s.DirBins[i] = 0xFF
	}

	s.DataType1 = SummaryNew
	s.DataSpan = int16(interval)

	s.HiOutTemp, s.LowOutTemp, s.AvgOutTemp = dash, dash, dash
	if validTemp(rec.HighOutTemp) {
		s.HiOutTemp = rec.HighOutTemp
		s.SetTime1(TimeHighOutTemp, minutes)
	}
	if validTemp(rec.LowOutTemp) {
		s.LowOutTemp = rec.LowOutTemp
		s.SetTime1(TimeLowOutTemp, minutes)
	}
	if validTemp(rec.OutTemp) {
		s.AvgOutTemp = rec.OutTemp
	}
	s.HiInTemp, s.LowInTemp, s.AvgInTemp = dash, dash, dash
	if validTemp(rec.InTemp) {
		s.HiInTemp, s.LowInTemp, s.AvgInTemp = rec.InTemp, rec.InTemp, rec.InTemp
		s.SetTime1(TimeHighInTemp, minutes)
		s.SetTime1(TimeLowInTemp, minutes)
	}

	s.HiChill, s.LowChill, s.AvgChill = d.chill, d.chill, d.chill
	s.HiDew, s.LowDew, s.AvgDew = d.dew, d.dew, d.dew
	s.HiHeat, s.LowHeat, s.AvgHeat = d.heat, d.heat, d.heat
	if d.chill != dash {
		s.SetTime1(TimeHighChill, minutes)
		s.SetTime1(TimeLowChill, minutes)
	}
	if d.dew != dash {
		s.SetTime1(TimeHighDew, minutes)
		s.SetTime1(TimeLowDew, minutes)
	}
	if d.heat != dash {
		s.SetTime2(TimeHighHeat, minutes)
		s.SetTime2(TimeLowHeat, minutes)
	}

	outHum, inHum := humidityTenths(rec.OutHumidity), humidityTenths(rec.InHumidity)
	s.HiOutHum, s.LowOutHum, s.AvgOutHum = outHum, outHum, outHum
	if outHum != dash {
		s.SetTime1(TimeHighOutHum, minutes)
		s.SetTime1(TimeLowOutHum, minutes)
	}
	s.HiInHum, s.LowInHum = inHum, inHum
	if inHum != dash {
		s.SetTime1(TimeHighInHum, minutes)
		s.SetTime1(TimeLowInHum, minutes)
	}

	s.HiBar, s.LowBar, s.AvgBar = dash, dash, dash
	if validBarometer(rec.Barometer) {
		bar := int16(rec.Barometer)
		s.HiBar, s.LowBar, s.AvgBar = bar, bar, bar
		s.SetTime1(TimeHighBar, minutes)
		s.SetTime1(TimeLowBar, minutes)
	}

	s.HiSpeed = int16(rec.HighWindSpeed) * 10
	s.SetTime1(TimeHighWindSpeed, minutes)
	s.AvgSpeed = int16(rec.AvgWindSpeed) * 10
	if rec.PrevWindDir < 16 {
		InsertTime(s.DirBins[:], int(rec.PrevWindDir), uint16(interval))
	}
	s.DailyWindRunTotal = dash
	s.Hi10MinSpeed = dash
	s.DirHiSpeed = rec.HighWindDir
	s.Hi10MinDir = 0xFF

	s.DailyRainTotal = rainThousandths(rec.Rain)
	s.HiRainRate = int16(rec.HighRainRate)
	s.SetTime1(TimeHighRainRate, minutes)

	s.DailyUVDose = dash
	s.HiUV = rec.HighUV
	if rec.HighUV != 0xFF {
		s.SetTime1(TimeHighUV, minutes)
	}

	s.DataType2 = SummarySecond
	s.NumWindPackets = dash
	if validRadiation(rec.HighRadiation) {
		s.HiSolar = int16(rec.HighRadiation)
		s.SetTime2(TimeHighSolar, minutes)
	}
	s.DailySolarEnergy = dash
	s.MinSunlight = dash
	if rec.ET != 0xFF {
		s.DailyETTotal = int16(rec.ET)
	}
	return s
}

// runningAverage folds value into avg, which covers n-1 earlier samples. A
// dash average means there were none.
func runningAverage(avg int16, value int16, n int) int16 {
	if n <= 1 || avg == dash {
		return value
	}
	return int16(math.Round((float64(n-1)*float64(avg) + float64(value)) / float64(n)))
}

// foldHigh and foldLow update an extreme that may still be dash. They report
// whether the extreme moved.
func foldHigh(hi *int16, v int16) bool {
	if *hi == dash || v > *hi {
		*hi = v
		return true
	}
	return false
}

func foldLow(lo *int16, v int16) bool {
	if *lo == dash || v < *lo {
		*lo = v
		return true
	}
	return false
}

// updateDaySummary folds a record into an existing summary. n holds the
// valid samples of each averaged field for the day including this record.
// Missing readings leave their fields untouched.
func updateDaySummary(s *DailySummary, rec vantage.ArchiveRecord, d derived, interval, minutes int, n sampleCounts) {
	s.DataSpan += int16(interval)

	if validTemp(rec.HighOutTemp) && foldHigh(&s.HiOutTemp, rec.HighOutTemp) {
		s.SetTime1(TimeHighOutTemp, minutes)
	}
	if validTemp(rec.LowOutTemp) && foldLow(&s.LowOutTemp, rec.LowOutTemp) {
		s.SetTime1(TimeLowOutTemp, minutes)
	}
	if validTemp(rec.OutTemp) {
		s.AvgOutTemp = runningAverage(s.AvgOutTemp, rec.OutTemp, n.outTemp)
	}
	if validTemp(rec.InTemp) {
		if foldHigh(&s.HiInTemp, rec.InTemp) {
			s.SetTime1(TimeHighInTemp, minutes)
		}
		if foldLow(&s.LowInTemp, rec.InTemp) {
			s.SetTime1(TimeLowInTemp, minutes)
		}
		s.AvgInTemp = runningAverage(s.AvgInTemp, rec.InTemp, n.inTemp)
	}

	if d.chill != dash {
		if foldHigh(&s.HiChill, d.chill) {
			s.SetTime1(TimeHighChill, minutes)
		}
		if foldLow(&s.LowChill, d.chill) {
			s.SetTime1(TimeLowChill, minutes)
		}
		s.AvgChill = runningAverage(s.AvgChill, d.chill, n.chill)
	}
	if d.dew != dash {
		if foldHigh(&s.HiDew, d.dew) {
			s.SetTime1(TimeHighDew, minutes)
		}
		if foldLow(&s.LowDew, d.dew) {
			s.SetTime1(TimeLowDew, minutes)
		}
		s.AvgDew = runningAverage(s.AvgDew, d.dew, n.dew)
	}
	if d.heat != dash {
		if foldHigh(&s.HiHeat, d.heat) {
			s.SetTime2(TimeHighHeat, minutes)
		}
		if foldLow(&s.LowHeat, d.heat) {
			s.SetTime2(TimeLowHeat, minutes)
		}
		s.AvgHeat = runningAverage(s.AvgHeat, d.heat, n.heat)
	}

	if outHum := humidityTenths(rec.OutHumidity); outHum != dash {
		if foldHigh(&s.HiOutHum, outHum) {
			s.SetTime1(TimeHighOutHum, minutes)
		}
		if foldLow(&s.LowOutHum, outHum) {
			s.SetTime1(TimeLowOutHum, minutes)
		}
		s.AvgOutHum = runningAverage(s.AvgOutHum, outHum, n.outHum)
	}
	if inHum := humidityTenths(rec.InHumidity); inHum != dash {
		if foldHigh(&s.HiInHum, inHum) {
			s.SetTime1(TimeHighInHum, minutes)
		}
		if foldLow(&s.LowInHum, inHum) {
			s.SetTime1(TimeLowInHum, minutes)
		}
	}

	if validBarometer(rec.Barometer) {
		bar := int16(rec.Barometer)
		if foldHigh(&s.HiBar, bar) {
			s.SetTime1(TimeHighBar, minutes)
		}
		if foldLow(&s.LowBar, bar) {
			s.SetTime1(TimeLowBar, minutes)
		}
		s.AvgBar = runningAverage(s.AvgBar, bar, n.bar)
	}

	if rec.HighUV != 0xFF && (s.HiUV == 0xFF || rec.HighUV > s.HiUV) {
		s.HiUV = rec.HighUV
		s.SetTime1(TimeHighUV, minutes)
	}
	if validRadiation(rec.HighRadiation) && int16(rec.HighRadiation) > s.HiSolar {
		s.HiSolar = int16(rec.HighRadiation)
		s.SetTime2(TimeHighSolar, minutes)
	}
	if speed := int16(rec.HighWindSpeed) * 10; speed > s.HiSpeed {
		s.HiSpeed = speed
		s.DirHiSpeed = rec.HighWindDir
		s.SetTime1(TimeHighWindSpeed, minutes)
	}
	s.AvgSpeed = runningAverage(s.AvgSpeed, int16(rec.AvgWindSpeed)*10, n.speed)

	s.DailyRainTotal += rainThousandths(rec.Rain)
	if int16(rec.HighRainRate) > s.HiRainRate {
		s.HiRainRate = int16(rec.HighRainRate)
		s.SetTime1(TimeHighRainRate, minutes)
	}
	if rec.ET != 0xFF {
		s.DailyETTotal += int16(rec.ET)
	}

	if rec.PrevWindDir < 16 {
		sector := int(rec.PrevWindDir)
		v := ExtractTime(s.DirBins[:], sector)
		if v == NoTime {
			v = 0
		}
		InsertTime(s.DirBins[:], sector, uint16(v+interval))
	}
}

func toFileRecord(rec vantage.ArchiveRecord, interval, minutes int) FileRecord {
	r := NewFileRecord()
	r.DataType = RecordDataType
	r.ArchiveInterval = uint8(interval)
	r.PackedTime = int16(minutes)
	r.OutsideTemp = rec.OutTemp
	r.HiOutsideTemp = rec.HighOutTemp
	r.LowOutsideTemp = rec.LowOutTemp
	r.InsideTemp = rec.InTemp
	r.Barometer = int16(rec.Barometer)
	r.OutsideHum = int16(rec.OutHumidity) * 10
	r.InsideHum = int16(rec.InHumidity) * 10
	r.Rain = rec.Rain
	r.HiRainRate = int16(rec.HighRainRate)
	r.WindSpeed = int16(rec.AvgWindSpeed) * 10
	r.HiWindSpeed = int16(rec.HighWindSpeed) * 10
	r.WindDirection = rec.PrevWindDir
	r.HiWindDirection = rec.HighWindDir
	r.NumWindSamples = int16(rec.WindSamples)
	r.SolarRad = int16(rec.Radiation)
	r.HiSolarRad = int16(rec.HighRadiation)
	r.UV = rec.UV
	r.HiUV = rec.HighUV
	r.LeafTemp[0], r.LeafTemp[1] = rec.LeafTemp[0], rec.LeafTemp[1]
	r.Forecast = rec.ForecastRule
	r.ET = rec.ET
	copy(r.SoilTemp[:4], rec.SoilTemp[:])
	copy(r.SoilMoisture[:4], rec.SoilMoist[:])
	copy(r.LeafWetness[:2], rec.LeafWet[:])
	copy(r.ExtraTemp[:3], rec.ExtraTemp[:])
	copy(r.ExtraHum[:2], rec.ExtraHumid[:])
	return r
}
