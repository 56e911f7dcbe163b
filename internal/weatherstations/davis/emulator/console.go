// Package emulator is a software VantagePro console. It answers the command
// set the driver uses, keeps an archive ring and an EEPROM image, and can be
// served over TCP in place of a terminal server.
package emulator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chrissnell/vantaged/internal/vantage"
)

const (
	// ArchivePages is the size of the console's archive ring.
	ArchivePages = 512
	ringSlots    = ArchivePages * vantage.RecordsPerPage
	eepromSize   = 4096
	maxLine      = 64
)

// EEPROM addresses.
const (
	AddrLatitude  = 0x0B
	AddrLongitude = 0x0D
	AddrElevation = 0x0F
	AddrGMTOffset = 0x12
	AddrSetup     = 0x2B
	AddrInterval  = 0x2D
)

type mode int

const (
	modeCommand mode = iota
	modeDumpStart
	modeDumpWait
	modeDumpPages
	modeSetTime
	modeEEPROMWrite
)

// Console holds the emulated console state. It is safe for concurrent use.
type Console struct {
	mu    sync.Mutex
	clock clockwork.Clock

	// LoopSource produces the readings of each LOOP packet.
	LoopSource func(time.Time) vantage.LoopData

	mode    mode
	line    []byte
	pending []byte
	want    int
	wrAddr  int

	eeprom   [eepromSize]byte
	skew     time.Duration
	records  []vantage.ArchiveRecord
	appended int

	dumpFirstPage int
	dumpPages     int
	dumpSent      int

	rx RxCounters

	ackPrefix []byte

	commands []string
}

// RxCounters are the reception statistics RXCHECK reports.
type RxCounters struct {
	Good, Missed, Resyncs, InRow, CRC int
}

// NewConsole returns a console with a 5-minute interval, a 0.01 inch rain
// collector and an empty archive.
func NewConsole(clock clockwork.Clock) *Console {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Console{clock: clock}
	c.eeprom[AddrInterval] = 5
	c.eeprom[AddrSetup] = vantage.DefaultRainCollector.SetupByte()
	c.LoopSource = NewWeather(clock).Loop
	return c
}

// SetPosition stores latitude and longitude in tenths of a degree and the
// elevation in feet.
func (c *Console) SetPosition(lat, lon, elev int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	binary.LittleEndian.PutUint16(c.eeprom[AddrLatitude:], uint16(int16(lat)))
	binary.LittleEndian.PutUint16(c.eeprom[AddrLongitude:], uint16(int16(lon)))
	binary.LittleEndian.PutUint16(c.eeprom[AddrElevation:], uint16(int16(elev)))
}

// SetInterval sets the archive period in minutes.
func (c *Console) SetInterval(minutes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eeprom[AddrInterval] = byte(minutes)
}

// SetRainCollector sets the collector bits of the setup byte.
func (c *Console) SetRainCollector(r vantage.RainCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eeprom[AddrSetup] = c.eeprom[AddrSetup]&^0x30 | r.SetupByte()
}

// SetRx sets the counters RXCHECK reports.
func (c *Console) SetRx(rx RxCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx = rx
}

// EEPROM returns a copy of n bytes at addr.
func (c *Console) EEPROM(addr, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.eeprom[addr : addr+n])
}

// Now is the console clock.
func (c *Console) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

func (c *Console) now() time.Time {
	return c.clock.Now().Add(c.skew)
}

// SetClockSkew offsets the console clock from the host clock.
func (c *Console) SetClockSkew(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skew = d
}

// AddRecord appends an archive record, overwriting the oldest once the ring
// is full.
func (c *Console) AddRecord(r vantage.ArchiveRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	if len(c.records) > ringSlots {
		c.records = c.records[1:]
	}
	c.appended++
}

// Records returns the number of records in the ring.
func (c *Console) Records() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Commands returns the command lines received so far.
func (c *Console) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

// slot is the ring position of chronological record i.
func (c *Console) slot(i int) int {
	base := c.appended - len(c.records)
	return (base + i) % ringSlots
}

// recordAt returns the record stored in ring slot s.
func (c *Console) recordAt(s int) (vantage.ArchiveRecord, bool) {
	base := (c.appended - len(c.records)) % ringSlots
	i := (s - base + ringSlots) % ringSlots
	if i >= len(c.records) {
		return vantage.ArchiveRecord{}, false
	}
	return c.records[i], true
}

// SetAckPrefix makes the console send p ahead of every command
// acknowledgement, as terminal servers that echo line endings do.
func (c *Console) SetAckPrefix(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackPrefix = append([]byte(nil), p...)
}

// acked prepends the configured prefix to a reply led by ACK.
func (c *Console) acked(out []byte) []byte {
	if len(c.ackPrefix) == 0 || len(out) == 0 || out[0] != vantage.ACK {
		return out
	}
	return append(append([]byte(nil), c.ackPrefix...), out...)
}

// Feed processes bytes written by the host and returns the console's reply.
func (c *Console) Feed(p []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []byte
	for _, b := range p {
		out = append(out, c.feedByte(b)...)
	}
	return out
}

func (c *Console) feedByte(b byte) []byte {
	switch c.mode {
	case modeDumpStart, modeSetTime, modeEEPROMWrite:
		c.pending = append(c.pending, b)
		if len(c.pending) < c.want {
			return nil
		}
		block := c.pending
		c.pending = nil
		switch c.mode {
		case modeDumpStart:
			return c.acked(c.dumpStart(block))
		case modeSetTime:
			return c.acked(c.setTime(block))
		default:
			return c.acked(c.writeEEPROM(block))
		}

	case modeDumpWait:
		if b == vantage.Cancel {
			c.mode = modeCommand
		}
		return nil

	case modeDumpPages:
		switch b {
		case vantage.ACK:
			if c.dumpSent >= c.dumpPages {
				return nil
			}
			c.dumpSent++
			return c.page(c.dumpSent - 1)
		case vantage.NAK:
			if c.dumpSent == 0 {
				return nil
			}
			return c.page(c.dumpSent - 1)
		case vantage.Cancel:
			c.mode = modeCommand
		}
		return nil
	}

	if b != vantage.LF && b != vantage.CR {
		if len(c.line) < maxLine {
			c.line = append(c.line, b)
		}
		return nil
	}
	line := strings.TrimSpace(string(c.line))
	c.line = c.line[:0]
	if line == "" {
		return []byte{vantage.LF, vantage.CR}
	}
	c.commands = append(c.commands, line)
	return c.acked(c.command(line))
}

func (c *Console) command(line string) []byte {
	fields := strings.Fields(line)
	switch strings.ToUpper(fields[0]) {
	case "LOOP":
		n := 1
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return []byte{vantage.NAK}
			}
			n = v
		}
		out := []byte{vantage.ACK}
		for i := 0; i < n; i++ {
			out = append(out, c.loop().Encode()...)
		}
		return out

	case "DMPAFT":
		c.mode, c.want = modeDumpStart, vantage.DumpHeaderSize
		return []byte{vantage.ACK}

	case "GETTIME":
		t := c.now()
		ct := vantage.ConsoleTime{
			Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
			Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
		}
		return append([]byte{vantage.ACK}, ct.Encode()...)

	case "SETTIME":
		c.mode, c.want = modeSetTime, vantage.TimeBlockSize
		return []byte{vantage.ACK}

	case "EEBRD":
		addr, n, ok := c.eepromArgs(fields)
		if !ok {
			return []byte{vantage.NAK}
		}
		return append([]byte{vantage.ACK}, vantage.Frame(c.eeprom[addr:addr+n])...)

	case "EEBWR":
		addr, n, ok := c.eepromArgs(fields)
		if !ok {
			return []byte{vantage.NAK}
		}
		c.mode, c.want, c.wrAddr = modeEEPROMWrite, n+2, addr
		return []byte{vantage.ACK}

	case "RXCHECK":
		out := []byte("\n\rOK\n\r")
		return append(out, fmt.Sprintf(" %d %d %d %d %d\n\r",
			c.rx.Good, c.rx.Missed, c.rx.Resyncs, c.rx.InRow, c.rx.CRC)...)

	case "TEST":
		return []byte("\n\rTEST\n\r")
	}
	return []byte("\n\r")
}

func (c *Console) eepromArgs(fields []string) (addr, n int, ok bool) {
	if len(fields) != 3 {
		return 0, 0, false
	}
	a, err := strconv.ParseUint(fields[1], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(fields[2], 16, 16)
	if err != nil {
		return 0, 0, false
	}
	addr, n = int(a), int(v)
	if n == 0 || addr+n > eepromSize {
		return 0, 0, false
	}
	return addr, n, true
}

func (c *Console) loop() vantage.LoopData {
	l := c.LoopSource(c.now())
	l.NextRecord = uint16(c.appended % ringSlots)
	return l
}

// dumpStart locates the first record after the host's date and answers with
// the dump header.
func (c *Console) dumpStart(block []byte) []byte {
	date, tm, err := vantage.DecodeDumpStart(block)
	if err != nil {
		c.mode = modeCommand
		return []byte{vantage.BadCRC}
	}

	first := len(c.records)
	for i, r := range c.records {
		if vantage.PackedAfter(r.Date, r.Time, date, tm) {
			first = i
			break
		}
	}
	if first == len(c.records) {
		c.mode = modeDumpWait
		return append([]byte{vantage.ACK}, vantage.DumpHeader{}.Encode()...)
	}

	firstSlot := c.slot(first)
	lastSlot := c.slot(len(c.records) - 1)
	c.dumpFirstPage = firstSlot / vantage.RecordsPerPage
	c.dumpPages = (lastSlot/vantage.RecordsPerPage-c.dumpFirstPage+ArchivePages)%ArchivePages + 1
	c.dumpSent = 0
	c.mode = modeDumpPages

	h := vantage.DumpHeader{
		Pages:       uint16(c.dumpPages),
		FirstRecord: uint16(firstSlot % vantage.RecordsPerPage),
	}
	return append([]byte{vantage.ACK}, h.Encode()...)
}

// page encodes dump page n. Unwritten slots are left as 0xFF.
func (c *Console) page(n int) []byte {
	b := make([]byte, vantage.ArchivePageSize-2)
	for i := range b {
		b[i] = 0xFF
	}
	b[0] = byte(n)
	pg := (c.dumpFirstPage + n) % ArchivePages
	for i := 0; i < vantage.RecordsPerPage; i++ {
		if r, ok := c.recordAt(pg*vantage.RecordsPerPage + i); ok {
			copy(b[1+i*vantage.ArchiveRecordSize:], r.Encode())
		}
	}
	for i := 1 + vantage.RecordsPerPage*vantage.ArchiveRecordSize; i < len(b); i++ {
		b[i] = 0
	}
	return vantage.Frame(b)
}

func (c *Console) setTime(block []byte) []byte {
	c.mode = modeCommand
	ct, err := vantage.DecodeConsoleTime(block)
	if err != nil {
		return []byte{vantage.BadCRC}
	}
	t := time.Date(ct.Year, time.Month(ct.Month), ct.Day, ct.Hour, ct.Minute, ct.Second, 0, c.clock.Now().Location())
	c.skew = t.Sub(c.clock.Now()).Round(time.Second)
	return []byte{vantage.ACK}
}

func (c *Console) writeEEPROM(block []byte) []byte {
	c.mode = modeCommand
	payload, err := vantage.CheckFrame(block, len(block))
	if err != nil {
		return []byte{vantage.BadCRC}
	}
	copy(c.eeprom[c.wrAddr:], payload)
	return []byte{vantage.ACK}
}
