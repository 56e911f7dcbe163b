package emulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chrissnell/vantaged/internal/vantage"
)

// Weather generates plausible readings: a seasonal and daily temperature
// cycle, humidity that tracks it inversely, a random-walk barometer and
// daytime solar radiation.
type Weather struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	rnd          *rand.Rand
	baseTemp     float64
	baseHumidity float64
	basePressure float64
	dayRain      uint16
	day          int
}

// NewWeather returns a generator seeded from the clock.
func NewWeather(clock clockwork.Clock) *Weather {
	return &Weather{
		clock:        clock,
		rnd:          rand.New(rand.NewSource(clock.Now().UnixNano())),
		baseTemp:     70.0,
		baseHumidity: 50.0,
		basePressure: 30.0,
	}
}

type sample struct {
	temp, humidity, pressure float64
	wind, windAvg            float64
	windDir                  uint16
	radiation                uint16
}

func (w *Weather) sample(now time.Time) sample {
	hourOfDay := float64(now.Hour()) + float64(now.Minute())/60.0
	dayOfYear := float64(now.YearDay())

	seasonal := 20.0 * math.Sin(2*math.Pi*(dayOfYear-80)/365.0)
	daily := 15.0 * math.Sin(2*math.Pi*(hourOfDay-6)/24.0)
	temp := w.baseTemp + seasonal + daily + (w.rnd.Float64()-0.5)*4.0

	humidity := w.baseHumidity + (w.baseTemp-temp)*0.8 + (w.rnd.Float64()-0.5)*10.0
	humidity = math.Min(math.Max(humidity, 10), 95)

	w.basePressure += (w.rnd.Float64() - 0.5) * 0.02
	w.basePressure = math.Min(math.Max(w.basePressure, 28.5), 31.5)

	base := 5.0 + w.rnd.Float64()*10.0
	s := sample{
		temp:     temp,
		humidity: humidity,
		pressure: w.basePressure,
		wind:     base + w.rnd.Float64()*8.0,
		windAvg:  base,
		windDir:  uint16(w.rnd.Float64() * 360),
	}
	if hourOfDay > 6 && hourOfDay < 18 {
		f := math.Sin(math.Pi * (hourOfDay - 6) / 12.0)
		s.radiation = uint16(1000 * f * (0.7 + w.rnd.Float64()*0.3))
	}
	return s
}

// Loop returns a LOOP snapshot for now.
func (w *Weather) Loop(now time.Time) vantage.LoopData {
	w.mu.Lock()
	defer w.mu.Unlock()

	if now.YearDay() != w.day {
		w.day, w.dayRain = now.YearDay(), 0
	}
	rainRate := uint16(w.rnd.Intn(3))
	if rainRate > 0 && w.rnd.Intn(10) == 0 {
		w.dayRain++
	}

	s := w.sample(now)
	l := vantage.LoopData{
		BarTrend:        int8((w.rnd.Intn(3) - 1) * 20),
		Barometer:       uint16(s.pressure * 1000),
		InTemp:          int16((s.temp + 2) * 10),
		InHumidity:      uint8(s.humidity - 5),
		OutTemp:         int16(s.temp * 10),
		WindSpeed:       uint8(s.wind),
		TenMinAvgWind:   uint8(s.windAvg),
		WindDir:         s.windDir,
		OutHumidity:     uint8(s.humidity),
		RainRate:        rainRate,
		UV:              uint8(s.radiation / 100),
		Radiation:       s.radiation,
		StormRain:       w.dayRain,
		StormStart:      0xFFFF,
		DayRain:         w.dayRain,
		MonthRain:       w.dayRain + 150,
		YearRain:        w.dayRain + 900,
		DayET:           uint16(w.rnd.Intn(300)),
		MonthET:         uint16(w.rnd.Intn(300)),
		YearET:          uint16(w.rnd.Intn(3600)),
		TxBattery:       0,
		ConsBattVoltage: 4050,
		ForecastIcon:    2,
		ForecastRule:    45,
		Sunrise:         630,
		Sunset:          1945,
	}
	for i := range l.ExtraTemp {
		l.ExtraTemp[i] = 0xFF
	}
	for i := range l.ExtraHumid {
		l.ExtraHumid[i] = 0xFF
	}
	l.SoilTemp = [4]uint8{uint8(s.temp + 90 - 5), 0xFF, 0xFF, 0xFF}
	l.LeafTemp = [4]uint8{uint8(s.temp + 90), 0xFF, 0xFF, 0xFF}
	l.SoilMoist = [4]uint8{uint8(30 + w.rnd.Intn(40)), 0xFF, 0xFF, 0xFF}
	l.LeafWet = [4]uint8{uint8(w.rnd.Intn(16)), 0xFF, 0xFF, 0xFF}
	return l
}

// Record returns an archive record for the interval ending at t.
func (w *Weather) Record(t time.Time, intervalMinutes int) vantage.ArchiveRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.sample(t)
	date, tm := vantage.PackDateTime(t)
	temp := int16(s.temp * 10)
	r := vantage.ArchiveRecord{
		Date:          date,
		Time:          tm,
		OutTemp:       temp,
		HighOutTemp:   temp + int16(w.rnd.Intn(10)),
		LowOutTemp:    temp - int16(w.rnd.Intn(10)),
		Rain:          vantage.CollectorHundredthInch | uint16(w.rnd.Intn(2)),
		HighRainRate:  uint16(w.rnd.Intn(3)),
		Barometer:     uint16(s.pressure * 1000),
		Radiation:     s.radiation,
		WindSamples:   uint16(intervalMinutes * 60 * 10 / 25),
		InTemp:        temp + 20,
		InHumidity:    uint8(s.humidity - 5),
		OutHumidity:   uint8(s.humidity),
		AvgWindSpeed:  uint8(s.windAvg),
		HighWindSpeed: uint8(s.wind),
		HighWindDir:   uint8(s.windDir * 16 / 360 % 16),
		PrevWindDir:   uint8(s.windDir * 16 / 360 % 16),
		UV:            uint8(s.radiation / 100),
		ET:            uint8(w.rnd.Intn(5)),
		HighRadiation: s.radiation,
		HighUV:        uint8(s.radiation / 100),
		ForecastRule:  45,
		RecordType:    0x00,
	}
	r.LeafTemp = [2]uint8{0xFF, 0xFF}
	r.LeafWet = [2]uint8{0xFF, 0xFF}
	r.SoilTemp = [4]uint8{0xFF, 0xFF, 0xFF, 0xFF}
	r.ExtraHumid = [2]uint8{0xFF, 0xFF}
	r.ExtraTemp = [3]uint8{0xFF, 0xFF, 0xFF}
	r.SoilMoist = [4]uint8{0xFF, 0xFF, 0xFF, 0xFF}
	return r
}

// Backfill fills the console archive with records ending at the last
// interval boundary before now.
func (c *Console) Backfill(w *Weather, n int) {
	interval := int(c.EEPROM(AddrInterval, 1)[0])
	if interval == 0 {
		interval = 5
	}
	step := time.Duration(interval) * time.Minute
	end := c.Now().Truncate(step)
	for i := n - 1; i >= 0; i-- {
		c.AddRecord(w.Record(end.Add(-time.Duration(i)*step), interval))
	}
}
