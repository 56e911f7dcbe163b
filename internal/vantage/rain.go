package vantage

// Rain collector type codes carried in the top nibble of archive rain fields.
const (
	CollectorTenthInch     uint16 = 0x0000
	CollectorHundredthInch uint16 = 0x1000
	CollectorPointTwoMM    uint16 = 0x2000
	CollectorOneMM         uint16 = 0x3000
	CollectorPointOneMM    uint16 = 0x6000
	collectorMask          uint16 = 0xF000
	clickMask              uint16 = 0x0FFF
)

// RainCollector describes the console's rain gauge.
type RainCollector struct {
	TicksPerInch float64
	TypeCode     uint16
}

// DefaultRainCollector is the 0.01 inch bucket.
var DefaultRainCollector = RainCollector{TicksPerInch: 100, TypeCode: CollectorHundredthInch}

// DecodeRainCollector interprets the setup byte at EEPROM address 0x2B.
func DecodeRainCollector(setup byte) RainCollector {
	switch setup & 0x30 {
	case 0x10:
		return RainCollector{TicksPerInch: 127, TypeCode: CollectorPointTwoMM}
	case 0x20:
		return RainCollector{TicksPerInch: 254, TypeCode: CollectorPointOneMM}
	}
	return DefaultRainCollector
}

// SetupByte is the inverse of DecodeRainCollector.
func (r RainCollector) SetupByte() byte {
	switch r.TypeCode {
	case CollectorPointTwoMM:
		return 0x10
	case CollectorPointOneMM:
		return 0x20
	}
	return 0x00
}

// ClicksPerInch returns the divisor that converts the click count of a packed
// rain field to inches.
func ClicksPerInch(rain uint16) float64 {
	switch rain & collectorMask {
	case CollectorTenthInch:
		return 10
	case CollectorPointTwoMM:
		return 127
	case CollectorOneMM:
		return 25.4
	case CollectorPointOneMM:
		return 254
	}
	return 100
}

// RainClicks returns the tip count of a packed rain field.
func RainClicks(rain uint16) uint16 {
	return rain & clickMask
}

// RainInches converts a packed rain field to inches.
func RainInches(rain uint16) float64 {
	return float64(RainClicks(rain)) / ClicksPerInch(rain)
}
