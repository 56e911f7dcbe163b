package vantage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// LoopData is the console's LOOP snapshot. Values are raw console units.
type LoopData struct {
	BarTrend        int8
	PacketType      uint8
	NextRecord      uint16
	Barometer       uint16
	InTemp          int16
	InHumidity      uint8
	OutTemp         int16
	WindSpeed       uint8
	TenMinAvgWind   uint8
	WindDir         uint16
	ExtraTemp       [7]uint8
	SoilTemp        [4]uint8
	LeafTemp        [4]uint8
	OutHumidity     uint8
	ExtraHumid      [7]uint8
	RainRate        uint16
	UV              uint8
	Radiation       uint16
	StormRain       uint16
	StormStart      uint16
	DayRain         uint16
	MonthRain       uint16
	YearRain        uint16
	DayET           uint16
	MonthET         uint16
	YearET          uint16
	SoilMoist       [4]uint8
	LeafWet         [4]uint8
	Alarms          [16]uint8
	TxBattery       uint8
	ConsBattVoltage uint16
	ForecastIcon    uint8
	ForecastRule    uint8
	Sunrise         uint16
	Sunset          uint16
}

var loopTag = []byte("LOO")

// DecodeLoop validates a 99-byte LOOP frame and decodes it.
func DecodeLoop(frame []byte) (LoopData, error) {
	payload, err := CheckFrame(frame, LoopSize)
	if err != nil {
		return LoopData{}, err
	}
	if !bytes.Equal(payload[0:3], loopTag) {
		return LoopData{}, fmt.Errorf("vantage: bad loop tag %q", payload[0:3])
	}
	le := binary.LittleEndian
	l := LoopData{
		BarTrend:        int8(payload[3]),
		PacketType:      payload[4],
		NextRecord:      le.Uint16(payload[5:]),
		Barometer:       le.Uint16(payload[7:]),
		InTemp:          int16(le.Uint16(payload[9:])),
		InHumidity:      payload[11],
		OutTemp:         int16(le.Uint16(payload[12:])),
		WindSpeed:       payload[14],
		TenMinAvgWind:   payload[15],
		WindDir:         le.Uint16(payload[16:]),
		OutHumidity:     payload[33],
		RainRate:        le.Uint16(payload[41:]),
		UV:              payload[43],
		Radiation:       le.Uint16(payload[44:]),
		StormRain:       le.Uint16(payload[46:]),
		StormStart:      le.Uint16(payload[48:]),
		DayRain:         le.Uint16(payload[50:]),
		MonthRain:       le.Uint16(payload[52:]),
		YearRain:        le.Uint16(payload[54:]),
		DayET:           le.Uint16(payload[56:]),
		MonthET:         le.Uint16(payload[58:]),
		YearET:          le.Uint16(payload[60:]),
		TxBattery:       payload[86],
		ConsBattVoltage: le.Uint16(payload[87:]),
		ForecastIcon:    payload[89],
		ForecastRule:    payload[90],
		Sunrise:         le.Uint16(payload[91:]),
		Sunset:          le.Uint16(payload[93:]),
	}
	copy(l.ExtraTemp[:], payload[18:25])
	copy(l.SoilTemp[:], payload[25:29])
	copy(l.LeafTemp[:], payload[29:33])
	copy(l.ExtraHumid[:], payload[34:41])
	copy(l.SoilMoist[:], payload[62:66])
	copy(l.LeafWet[:], payload[66:70])
	copy(l.Alarms[:], payload[70:86])
	return l, nil
}

// Encode returns the framed 99-byte LOOP packet.
func (l LoopData) Encode() []byte {
	le := binary.LittleEndian
	b := make([]byte, LoopSize-2)
	copy(b[0:3], loopTag)
	b[3] = byte(l.BarTrend)
	b[4] = l.PacketType
	le.PutUint16(b[5:], l.NextRecord)
	le.PutUint16(b[7:], l.Barometer)
	le.PutUint16(b[9:], uint16(l.InTemp))
	b[11] = l.InHumidity
	le.PutUint16(b[12:], uint16(l.OutTemp))
	b[14] = l.WindSpeed
	b[15] = l.TenMinAvgWind
	le.PutUint16(b[16:], l.WindDir)
	copy(b[18:25], l.ExtraTemp[:])
	copy(b[25:29], l.SoilTemp[:])
	copy(b[29:33], l.LeafTemp[:])
	b[33] = l.OutHumidity
	copy(b[34:41], l.ExtraHumid[:])
	le.PutUint16(b[41:], l.RainRate)
	b[43] = l.UV
	le.PutUint16(b[44:], l.Radiation)
	le.PutUint16(b[46:], l.StormRain)
	le.PutUint16(b[48:], l.StormStart)
	le.PutUint16(b[50:], l.DayRain)
	le.PutUint16(b[52:], l.MonthRain)
	le.PutUint16(b[54:], l.YearRain)
	le.PutUint16(b[56:], l.DayET)
	le.PutUint16(b[58:], l.MonthET)
	le.PutUint16(b[60:], l.YearET)
	copy(b[62:66], l.SoilMoist[:])
	copy(b[66:70], l.LeafWet[:])
	copy(b[70:86], l.Alarms[:])
	b[86] = l.TxBattery
	le.PutUint16(b[87:], l.ConsBattVoltage)
	b[89] = l.ForecastIcon
	b[90] = l.ForecastRule
	le.PutUint16(b[91:], l.Sunrise)
	le.PutUint16(b[93:], l.Sunset)
	b[95] = LF
	b[96] = CR
	return Frame(b)
}

// ConsoleTime is the 6-byte GETTIME/SETTIME payload.
type ConsoleTime struct {
	Year, Month, Day, Hour, Minute, Second int
}

// Encode returns the framed clock block.
func (c ConsoleTime) Encode() []byte {
	return Frame([]byte{
		byte(c.Second), byte(c.Minute), byte(c.Hour),
		byte(c.Day), byte(c.Month), byte(c.Year - 1900),
	})
}

// DecodeConsoleTime validates and decodes a GETTIME reply.
func DecodeConsoleTime(frame []byte) (ConsoleTime, error) {
	p, err := CheckFrame(frame, TimeBlockSize)
	if err != nil {
		return ConsoleTime{}, err
	}
	return ConsoleTime{
		Second: int(p[0]), Minute: int(p[1]), Hour: int(p[2]),
		Day: int(p[3]), Month: int(p[4]), Year: int(p[5]) + 1900,
	}, nil
}
