package vantage

import (
	"encoding/binary"
	"fmt"
)

// ArchiveRecordSize is the size of one console archive record.
const ArchiveRecordSize = 52

// ArchiveRecord is a console archive record in revision B layout. Revision A
// records are upgraded on decode.
type ArchiveRecord struct {
	Date          uint16
	Time          uint16
	OutTemp       int16
	HighOutTemp   int16
	LowOutTemp    int16
	Rain          uint16
	HighRainRate  uint16
	Barometer     uint16
	Radiation     uint16
	WindSamples   uint16
	InTemp        int16
	InHumidity    uint8
	OutHumidity   uint8
	AvgWindSpeed  uint8
	HighWindSpeed uint8
	HighWindDir   uint8
	PrevWindDir   uint8
	UV            uint8
	ET            uint8
	HighRadiation uint16
	HighUV        uint8
	ForecastRule  uint8
	LeafTemp      [2]uint8
	LeafWet       [2]uint8
	SoilTemp      [4]uint8
	RecordType    uint8
	ExtraHumid    [2]uint8
	ExtraTemp     [3]uint8
	SoilMoist     [4]uint8
}

// IsRevisionA reports whether a raw record uses the older A layout.
func IsRevisionA(b []byte) bool {
	return len(b) >= ArchiveRecordSize && b[42] == 0xFF
}

// DecodeArchiveRecord decodes a 52-byte record of either revision.
func DecodeArchiveRecord(b []byte) (ArchiveRecord, error) {
	if len(b) < ArchiveRecordSize {
		return ArchiveRecord{}, fmt.Errorf("%w: archive record is %d bytes", ErrShortFrame, len(b))
	}
	r := decodeCommon(b)
	if IsRevisionA(b) {
		decodeRevisionA(&r, b)
	} else {
		decodeRevisionB(&r, b)
	}
	return r, nil
}

func decodeCommon(b []byte) ArchiveRecord {
	le := binary.LittleEndian
	return ArchiveRecord{
		Date:          le.Uint16(b[0:]),
		Time:          le.Uint16(b[2:]),
		OutTemp:       int16(le.Uint16(b[4:])),
		HighOutTemp:   int16(le.Uint16(b[6:])),
		LowOutTemp:    int16(le.Uint16(b[8:])),
		Rain:          le.Uint16(b[10:]),
		HighRainRate:  le.Uint16(b[12:]),
		Barometer:     le.Uint16(b[14:]),
		Radiation:     le.Uint16(b[16:]),
		WindSamples:   le.Uint16(b[18:]),
		InTemp:        int16(le.Uint16(b[20:])),
		InHumidity:    b[22],
		OutHumidity:   b[23],
		AvgWindSpeed:  b[24],
		HighWindSpeed: b[25],
		HighWindDir:   b[26],
		PrevWindDir:   b[27],
		UV:            b[28],
		ET:            b[29],
	}
}

func decodeRevisionB(r *ArchiveRecord, b []byte) {
	r.HighRadiation = binary.LittleEndian.Uint16(b[30:])
	r.HighUV = b[32]
	r.ForecastRule = b[33]
	copy(r.LeafTemp[:], b[34:36])
	copy(r.LeafWet[:], b[36:38])
	copy(r.SoilTemp[:], b[38:42])
	r.RecordType = b[42]
	copy(r.ExtraHumid[:], b[43:45])
	copy(r.ExtraTemp[:], b[45:48])
	copy(r.SoilMoist[:], b[48:52])
}

// Revision A carries fewer channels at different offsets.
func decodeRevisionA(r *ArchiveRecord, b []byte) {
	r.HighRadiation = r.Radiation
	r.HighUV = r.UV
	r.ForecastRule = 0
	r.LeafTemp = [2]uint8{0xFF, 0xFF}
	copy(r.SoilMoist[:], b[31:35])
	copy(r.SoilTemp[:], b[35:39])
	copy(r.LeafWet[:], b[39:41])
	r.ExtraTemp = [3]uint8{b[43], b[44], 0xFF}
	copy(r.ExtraHumid[:], b[45:47])
	r.RecordType = 0
}

// Encode returns the record in revision B layout.
func (r ArchiveRecord) Encode() []byte {
	le := binary.LittleEndian
	b := make([]byte, ArchiveRecordSize)
	le.PutUint16(b[0:], r.Date)
	le.PutUint16(b[2:], r.Time)
	le.PutUint16(b[4:], uint16(r.OutTemp))
	le.PutUint16(b[6:], uint16(r.HighOutTemp))
	le.PutUint16(b[8:], uint16(r.LowOutTemp))
	le.PutUint16(b[10:], r.Rain)
	le.PutUint16(b[12:], r.HighRainRate)
	le.PutUint16(b[14:], r.Barometer)
	le.PutUint16(b[16:], r.Radiation)
	le.PutUint16(b[18:], r.WindSamples)
	le.PutUint16(b[20:], uint16(r.InTemp))
	b[22] = r.InHumidity
	b[23] = r.OutHumidity
	b[24] = r.AvgWindSpeed
	b[25] = r.HighWindSpeed
	b[26] = r.HighWindDir
	b[27] = r.PrevWindDir
	b[28] = r.UV
	b[29] = r.ET
	le.PutUint16(b[30:], r.HighRadiation)
	b[32] = r.HighUV
	b[33] = r.ForecastRule
	copy(b[34:36], r.LeafTemp[:])
	copy(b[36:38], r.LeafWet[:])
	copy(b[38:42], r.SoilTemp[:])
	b[42] = r.RecordType
	copy(b[43:45], r.ExtraHumid[:])
	copy(b[45:48], r.ExtraTemp[:])
	copy(b[48:52], r.SoilMoist[:])
	return b
}

// Empty reports whether the record slot has never been written.
func (r ArchiveRecord) Empty() bool {
	return r.Date == 0xFFFF || r.Time == 0xFFFF
}

// ArchivePage is one page of a DMPAFT transfer.
type ArchivePage struct {
	Sequence uint8
	Records  [RecordsPerPage][]byte
}

// DecodeArchivePage validates the CRC and splits a page into raw records.
func DecodeArchivePage(frame []byte) (ArchivePage, error) {
	payload, err := CheckFrame(frame, ArchivePageSize)
	if err != nil {
		return ArchivePage{}, err
	}
	p := ArchivePage{Sequence: payload[0]}
	for i := range p.Records {
		off := 1 + i*ArchiveRecordSize
		p.Records[i] = payload[off : off+ArchiveRecordSize]
	}
	return p, nil
}

// EncodeArchivePage builds a framed page. Missing records are filled with 0xFF.
func EncodeArchivePage(seq uint8, records []ArchiveRecord) []byte {
	b := make([]byte, ArchivePageSize-2)
	for i := range b {
		b[i] = 0xFF
	}
	b[0] = seq
	for i := 0; i < len(records) && i < RecordsPerPage; i++ {
		copy(b[1+i*ArchiveRecordSize:], records[i].Encode())
	}
	for i := 1 + RecordsPerPage*ArchiveRecordSize; i < len(b); i++ {
		b[i] = 0
	}
	return Frame(b)
}

// DumpHeader precedes the pages of a DMPAFT transfer.
type DumpHeader struct {
	Pages       uint16
	FirstRecord uint16
}

// DecodeDumpHeader validates and decodes a DMPAFT header.
func DecodeDumpHeader(frame []byte) (DumpHeader, error) {
	payload, err := CheckFrame(frame, DumpHeaderSize)
	if err != nil {
		return DumpHeader{}, err
	}
	return DumpHeader{
		Pages:       binary.LittleEndian.Uint16(payload[0:]),
		FirstRecord: binary.LittleEndian.Uint16(payload[2:]),
	}, nil
}

// Encode returns the framed header.
func (h DumpHeader) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:], h.Pages)
	binary.LittleEndian.PutUint16(b[2:], h.FirstRecord)
	return Frame(b)
}

// DumpStart is the framed date/time sent after DMPAFT is acknowledged.
func DumpStart(date, tm uint16) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:], date)
	binary.LittleEndian.PutUint16(b[2:], tm)
	return Frame(b)
}

// DecodeDumpStart is the console side of DumpStart.
func DecodeDumpStart(frame []byte) (date, tm uint16, err error) {
	payload, err := CheckFrame(frame, 6)
	if err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint16(payload[0:]), binary.LittleEndian.Uint16(payload[2:]), nil
}
