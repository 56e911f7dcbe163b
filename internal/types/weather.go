package types

import (
	"reflect"
	"time"
)

// Null marks a value the station did not report.
const Null = -100000.0

// IsNull reports whether v carries the Null marker.
func IsNull(v float64) bool {
	return v <= Null
}

// DataIndex names one value slot of an ArchivePacket.
type DataIndex int

const (
	Barometer DataIndex = iota
	Pressure
	Altimeter
	InTemp
	OutTemp
	InHumidity
	OutHumidity
	WindSpeed
	WindDir
	WindGust
	WindGustDir
	RainRate
	Rain
	Dewpoint
	Windchill
	Heatindex
	RxCheckPercent
	ET
	Radiation
	UV
	ExtraTemp1
	ExtraTemp2
	ExtraTemp3
	SoilTemp1
	SoilTemp2
	SoilTemp3
	SoilTemp4
	LeafTemp1
	LeafTemp2
	ExtraHumid1
	ExtraHumid2
	SoilMoist1
	SoilMoist2
	SoilMoist3
	SoilMoist4
	LeafWet1
	LeafWet2
	TxBatteryStatus
	ConsBatteryVoltage

	DataIndexMax
)

var dataIndexNames = [DataIndexMax]string{
	"barometer", "pressure", "altimeter", "inTemp", "outTemp", "inHumidity",
	"outHumidity", "windSpeed", "windDir", "windGust", "windGustDir", "rainRate",
	"rain", "dewpoint", "windchill", "heatindex", "rxCheckPercent", "ET",
	"radiation", "UV", "extraTemp1", "extraTemp2", "extraTemp3", "soilTemp1",
	"soilTemp2", "soilTemp3", "soilTemp4", "leafTemp1", "leafTemp2",
	"extraHumid1", "extraHumid2", "soilMoist1", "soilMoist2", "soilMoist3",
	"soilMoist4", "leafWet1", "leafWet2", "txBatteryStatus", "consBatteryVoltage",
}

func (d DataIndex) String() string {
	if d < 0 || d >= DataIndexMax {
		return "unknown"
	}
	return dataIndexNames[d]
}

// ParseDataIndex looks up a DataIndex by name.
func ParseDataIndex(name string) (DataIndex, bool) {
	for i, n := range dataIndexNames {
		if n == name {
			return DataIndex(i), true
		}
	}
	return 0, false
}

// USUnits identifies the US customary unit system in ArchivePacket.USUnits.
const USUnits = 1

// ArchivePacket is a decoded, calibrated archive record. Values are in US
// customary units; missing values hold Null.
type ArchivePacket struct {
	DateTime time.Time             `json:"dateTime" msgpack:"dateTime"`
	USUnits  int                   `json:"usUnits" msgpack:"usUnits"`
	Interval int                   `json:"interval" msgpack:"interval"`
	Values   [DataIndexMax]float64 `json:"-" msgpack:"values"`
}

// NewArchivePacket returns a packet with every value set to Null.
func NewArchivePacket(at time.Time, interval int) ArchivePacket {
	p := ArchivePacket{DateTime: at, USUnits: USUnits, Interval: interval}
	for i := range p.Values {
		p.Values[i] = Null
	}
	return p
}

// Value returns the value at idx.
func (p *ArchivePacket) Value(idx DataIndex) float64 {
	return p.Values[idx]
}

// Set stores v at idx.
func (p *ArchivePacket) Set(idx DataIndex, v float64) {
	p.Values[idx] = v
}

// ToMap returns the non-null values keyed by name.
func (p *ArchivePacket) ToMap() map[string]any {
	m := map[string]any{
		"dateTime": p.DateTime,
		"usUnits":  p.USUnits,
		"interval": p.Interval,
	}
	for i, v := range p.Values {
		if !IsNull(v) {
			m[DataIndex(i).String()] = v
		}
	}
	return m
}

// LoopPacket is a decoded LOOP snapshot in US customary units.
type LoopPacket struct {
	Timestamp          time.Time  `json:"timestamp" msgpack:"timestamp"`
	Barometer          float64    `json:"barometer" msgpack:"barometer"`
	StationPressure    float64    `json:"stationPressure" msgpack:"stationPressure"`
	Altimeter          float64    `json:"altimeter" msgpack:"altimeter"`
	InTemp             float64    `json:"inTemp" msgpack:"inTemp"`
	OutTemp            float64    `json:"outTemp" msgpack:"outTemp"`
	InHumidity         float64    `json:"inHumidity" msgpack:"inHumidity"`
	OutHumidity        float64    `json:"outHumidity" msgpack:"outHumidity"`
	WindSpeed          float64    `json:"windSpeed" msgpack:"windSpeed"`
	WindDir            float64    `json:"windDir" msgpack:"windDir"`
	WindGust           float64    `json:"windGust" msgpack:"windGust"`
	WindGustDir        float64    `json:"windGustDir" msgpack:"windGustDir"`
	TenMinAvgWindSpeed float64    `json:"tenMinAvgWindSpeed" msgpack:"tenMinAvgWindSpeed"`
	TenMinAvgWindDir   float64    `json:"tenMinAvgWindDir" msgpack:"tenMinAvgWindDir"`
	RainRate           float64    `json:"rainRate" msgpack:"rainRate"`
	SampleRain         float64    `json:"sampleRain" msgpack:"sampleRain"`
	SampleET           float64    `json:"sampleET" msgpack:"sampleET"`
	Radiation          float64    `json:"radiation" msgpack:"radiation"`
	UV                 float64    `json:"UV" msgpack:"UV"`
	Dewpoint           float64    `json:"dewpoint" msgpack:"dewpoint"`
	Windchill          float64    `json:"windchill" msgpack:"windchill"`
	Heatindex          float64    `json:"heatindex" msgpack:"heatindex"`
	StormRain          float64    `json:"stormRain" msgpack:"stormRain"`
	DayRain            float64    `json:"dayRain" msgpack:"dayRain"`
	MonthRain          float64    `json:"monthRain" msgpack:"monthRain"`
	YearRain           float64    `json:"yearRain" msgpack:"yearRain"`
	DayET              float64    `json:"dayET" msgpack:"dayET"`
	MonthET            float64    `json:"monthET" msgpack:"monthET"`
	YearET             float64    `json:"yearET" msgpack:"yearET"`
	RxCheckPercent     float64    `json:"rxCheckPercent" msgpack:"rxCheckPercent"`
	ForecastIcon       int        `json:"forecastIcon" msgpack:"forecastIcon"`
	ForecastRule       int        `json:"forecastRule" msgpack:"forecastRule"`
	TxBatteryStatus    int        `json:"txBatteryStatus" msgpack:"txBatteryStatus"`
	ConsBatteryVoltage float64    `json:"consBatteryVoltage" msgpack:"consBatteryVoltage"`
	ExtraTemp          [3]float64 `json:"extraTemp" msgpack:"extraTemp"`
	SoilTemp           [4]float64 `json:"soilTemp" msgpack:"soilTemp"`
	LeafTemp           [2]float64 `json:"leafTemp" msgpack:"leafTemp"`
	ExtraHumid         [2]float64 `json:"extraHumid" msgpack:"extraHumid"`
	SoilMoist          [2]float64 `json:"soilMoist" msgpack:"soilMoist"`
	LeafWet            [2]float64 `json:"leafWet" msgpack:"leafWet"`
}

// NewLoopPacket returns a packet with every optional value set to Null.
func NewLoopPacket(at time.Time) LoopPacket {
	p := LoopPacket{Timestamp: at}
	for _, f := range []*float64{
		&p.Barometer, &p.StationPressure, &p.Altimeter, &p.InTemp, &p.OutTemp,
		&p.InHumidity, &p.OutHumidity, &p.WindSpeed, &p.WindDir, &p.WindGust,
		&p.WindGustDir, &p.TenMinAvgWindSpeed, &p.TenMinAvgWindDir, &p.RainRate, &p.Radiation, &p.UV,
		&p.Dewpoint, &p.Windchill, &p.Heatindex, &p.StormRain, &p.DayRain,
		&p.MonthRain, &p.YearRain, &p.DayET, &p.MonthET, &p.YearET,
		&p.ConsBatteryVoltage,
	} {
		*f = Null
	}
	for _, arr := range [][]float64{
		p.ExtraTemp[:], p.SoilTemp[:], p.LeafTemp[:], p.ExtraHumid[:], p.SoilMoist[:], p.LeafWet[:],
	} {
		for i := range arr {
			arr[i] = Null
		}
	}
	return p
}

// Reading is one archive interval flattened into a table row. Missing values
// are NULL columns.
type Reading struct {
	Timestamp      time.Time `gorm:"column:time;primaryKey"`
	StationName    string    `gorm:"column:stationname;primaryKey"`
	Interval       int       `gorm:"column:interval"`
	Barometer      *float64  `gorm:"column:barometer"`
	Pressure       *float64  `gorm:"column:pressure"`
	Altimeter      *float64  `gorm:"column:altimeter"`
	InTemp         *float64  `gorm:"column:intemp"`
	OutTemp        *float64  `gorm:"column:outtemp"`
	InHumidity     *float64  `gorm:"column:inhumidity"`
	OutHumidity    *float64  `gorm:"column:outhumidity"`
	WindSpeed      *float64  `gorm:"column:windspeed"`
	WindDir        *float64  `gorm:"column:winddir"`
	WindGust       *float64  `gorm:"column:windgust"`
	WindGustDir    *float64  `gorm:"column:windgustdir"`
	RainRate       *float64  `gorm:"column:rainrate"`
	Rain           *float64  `gorm:"column:rain"`
	Dewpoint       *float64  `gorm:"column:dewpoint"`
	Windchill      *float64  `gorm:"column:windchill"`
	Heatindex      *float64  `gorm:"column:heatindex"`
	ET             *float64  `gorm:"column:et"`
	Radiation      *float64  `gorm:"column:radiation"`
	UV             *float64  `gorm:"column:uv"`
	ExtraTemp1     *float64  `gorm:"column:extratemp1"`
	SoilTemp1      *float64  `gorm:"column:soiltemp1"`
	LeafWet1       *float64  `gorm:"column:leafwet1"`
	RxCheckPercent *float64  `gorm:"column:rxcheckpercent"`
}

func nullable(v float64) *float64 {
	if IsNull(v) {
		return nil
	}
	return &v
}

// NewReading flattens an archive packet.
func NewReading(station string, p ArchivePacket) Reading {
	v := p.Values
	return Reading{
		Timestamp:      p.DateTime,
		StationName:    station,
		Interval:       p.Interval,
		Barometer:      nullable(v[Barometer]),
		Pressure:       nullable(v[Pressure]),
		Altimeter:      nullable(v[Altimeter]),
		InTemp:         nullable(v[InTemp]),
		OutTemp:        nullable(v[OutTemp]),
		InHumidity:     nullable(v[InHumidity]),
		OutHumidity:    nullable(v[OutHumidity]),
		WindSpeed:      nullable(v[WindSpeed]),
		WindDir:        nullable(v[WindDir]),
		WindGust:       nullable(v[WindGust]),
		WindGustDir:    nullable(v[WindGustDir]),
		RainRate:       nullable(v[RainRate]),
		Rain:           nullable(v[Rain]),
		Dewpoint:       nullable(v[Dewpoint]),
		Windchill:      nullable(v[Windchill]),
		Heatindex:      nullable(v[Heatindex]),
		ET:             nullable(v[ET]),
		Radiation:      nullable(v[Radiation]),
		UV:             nullable(v[UV]),
		ExtraTemp1:     nullable(v[ExtraTemp1]),
		SoilTemp1:      nullable(v[SoilTemp1]),
		LeafWet1:       nullable(v[LeafWet1]),
		RxCheckPercent: nullable(v[RxCheckPercent]),
	}
}

// ToMap converts the Reading struct to a map using reflection
func (r *Reading) ToMap() map[string]interface{} {
	m := make(map[string]interface{})
	v := reflect.ValueOf(r).Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		m[t.Field(i).Name] = f.Interface()
	}
	return m
}

// TableName implements the GORM Tabler interface for the Reading struct
func (Reading) TableName() string {
	return "archive"
}
