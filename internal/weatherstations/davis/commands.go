package davis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/vantaged/internal/vantage"
)

var (
	// ErrWakeup is returned when the console does not answer a wakeup sequence.
	ErrWakeup = errors.New("davis: console did not wake up")
	// ErrNoAck is returned when only line terminators arrive where an
	// acknowledgement was expected.
	ErrNoAck = errors.New("davis: no acknowledgement among line bytes")
)

// maxLineBytes bounds the stray LF and CR bytes skipped before an ACK.
const maxLineBytes = 8

const (
	wakeupTries        = 4
	initialWakeupTries = 20
	recoverInterval    = 2500 * time.Millisecond
	maxRecoverTries    = 5
	rxCheckLineMax     = 63
)

func (s *Station) responseTimeout() time.Duration {
	if s.cfg.IsIP {
		return 10 * time.Second
	}
	return 5 * time.Second
}

func (s *Station) wakeupTimeout(try int) time.Duration {
	switch {
	case s.cfg.IsIP:
		return 2000 * time.Millisecond
	case try == 0:
		// Serial consoles often ignore the first CR.
		return 500 * time.Millisecond
	}
	return 1200 * time.Millisecond
}

func (s *Station) sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-s.clock.After(d):
	}
}

// wakeup sends CR until the console answers LF CR. If every try fails the
// medium is restarted.
func (s *Station) wakeup() error {
	s.medium.Flush()
	buf := make([]byte, 2)
	for try := 0; try < wakeupTries; try++ {
		s.medium.Flush()
		if err := s.medium.Write([]byte{vantage.CR}); err != nil {
			return fmt.Errorf("davis: writing wakeup: %w", err)
		}
		n, _ := s.medium.Read(buf, s.wakeupTimeout(try))
		if n == 2 && buf[0] == vantage.LF && buf[1] == vantage.CR {
			return nil
		}
	}

	s.metrics.WakeupFailures.Inc()
	s.logger.Warn("console wakeup failed, restarting medium")
	if err := s.medium.Restart(s.ctx); err != nil {
		s.logger.Errorf("restarting medium: %v", err)
	}
	return ErrWakeup
}

// getAck reads one acknowledgement, skipping up to maxLineBytes of the LF
// and CR bytes terminal servers like to echo.
func (s *Station) getAck(timeout time.Duration) error {
	b := make([]byte, 1)
	for skipped := 0; ; skipped++ {
		if skipped > maxLineBytes {
			s.medium.Flush()
			return ErrNoAck
		}
		if _, err := s.medium.Read(b, timeout); err != nil {
			s.medium.Flush()
			return fmt.Errorf("davis: waiting for ack: %w", err)
		}
		if !vantage.IsLineByte(b[0]) {
			break
		}
	}
	if err := vantage.AckResult(b[0]); err != nil {
		s.medium.Flush()
		return err
	}
	return nil
}

func (s *Station) sendByte(b byte) error {
	if err := s.medium.Write([]byte{b}); err != nil {
		return fmt.Errorf("davis: writing 0x%02x: %w", b, err)
	}
	return nil
}

func (s *Station) sendCommand(format string, args ...any) error {
	if err := s.medium.Write(vantage.Command(format, args...)); err != nil {
		return fmt.Errorf("davis: writing %q: %w", fmt.Sprintf(format, args...), err)
	}
	return nil
}

// writeFramed sends payload followed by its CRC and waits for the transmit
// queue to drain.
func (s *Station) writeFramed(payload []byte) error {
	if err := s.medium.Write(vantage.Frame(payload)); err != nil {
		return fmt.Errorf("davis: writing framed block: %w", err)
	}
	return s.medium.Drain()
}

// readFrame reads exactly size bytes, CRC included. The CRC is checked by the
// caller's decoder; see checked.
func (s *Station) readFrame(size int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, size)
	n, err := s.medium.Read(buf, timeout)
	if err != nil {
		s.medium.Flush()
		return nil, fmt.Errorf("davis: read %d of %d bytes: %w", n, size, err)
	}
	return buf, nil
}

// checked counts CRC failures and flushes whatever followed the bad frame.
func (s *Station) checked(err error) error {
	if errors.Is(err, vantage.ErrCRC) {
		s.metrics.CRCErrors.Inc()
		s.medium.Flush()
	}
	return err
}

// readEEPROM runs EEBRD for n bytes at addr and returns the payload.
func (s *Station) readEEPROM(addr, n int, timeout time.Duration) ([]byte, error) {
	if err := s.sendCommand("EEBRD %02X %d", addr, n); err != nil {
		return nil, err
	}
	if err := s.getAck(timeout); err != nil {
		return nil, fmt.Errorf("EEBRD %02X: %w", addr, err)
	}
	frame, err := s.readFrame(n+2, timeout)
	if err != nil {
		return nil, err
	}
	payload, err := vantage.CheckFrame(frame, n+2)
	if err != nil {
		return nil, s.checked(fmt.Errorf("EEBRD %02X: %w", addr, err))
	}
	return payload, nil
}

func (s *Station) readEEPROMInt16(addr int) (int, error) {
	p, err := s.readEEPROM(addr, 2, 2*time.Second)
	if err != nil {
		return 0, err
	}
	return int(int16(uint16(p[0]) | uint16(p[1])<<8)), nil
}

// archiveIntervalSetting reads the console's archive period in minutes.
func (s *Station) archiveIntervalSetting() (int, error) {
	p, err := s.readEEPROM(0x2D, 1, 3*time.Second)
	if err != nil {
		return 0, err
	}
	return int(p[0]), nil
}

// rainCollectorSetting reads the setup byte holding the collector size.
func (s *Station) rainCollectorSetting() (vantage.RainCollector, error) {
	p, err := s.readEEPROM(0x2B, 1, 2*time.Second)
	if err != nil {
		return vantage.RainCollector{}, err
	}
	return vantage.DecodeRainCollector(p[0]), nil
}

// readPosition reads latitude and longitude in tenths of a degree and
// elevation in feet.
func (s *Station) readPosition() (Position, error) {
	var p Position
	var err error
	if p.Latitude, err = s.readEEPROMInt16(0x0B); err != nil {
		return p, err
	}
	if p.Longitude, err = s.readEEPROMInt16(0x0D); err != nil {
		return p, err
	}
	if p.Elevation, err = s.readEEPROMInt16(0x0F); err != nil {
		return p, err
	}
	return p, nil
}

// consoleTime runs GETTIME.
func (s *Station) consoleTime() (time.Time, error) {
	if err := s.sendCommand("GETTIME"); err != nil {
		return time.Time{}, err
	}
	if err := s.getAck(time.Second); err != nil {
		return time.Time{}, fmt.Errorf("GETTIME: %w", err)
	}
	frame, err := s.readFrame(vantage.TimeBlockSize, time.Second)
	if err != nil {
		return time.Time{}, err
	}
	ct, err := vantage.DecodeConsoleTime(frame)
	if err != nil {
		return time.Time{}, s.checked(fmt.Errorf("GETTIME: %w", err))
	}
	return time.Date(ct.Year, time.Month(ct.Month), ct.Day, ct.Hour, ct.Minute, ct.Second, 0, s.loc), nil
}

// setTime runs SETTIME with t as seen in the station's location.
func (s *Station) setTime(t time.Time) error {
	if err := s.sendCommand("SETTIME"); err != nil {
		return err
	}
	if err := s.getAck(2 * time.Second); err != nil {
		return fmt.Errorf("SETTIME: %w", err)
	}
	t = t.In(s.loc)
	block := vantage.ConsoleTime{
		Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(),
	}
	if err := s.medium.Write(block.Encode()); err != nil {
		return fmt.Errorf("davis: writing time block: %w", err)
	}
	if err := s.getAck(2 * time.Second); err != nil {
		return fmt.Errorf("SETTIME block: %w", err)
	}
	return nil
}

// gmtOffsetBlock encodes the 5-byte EEPROM block at 0x12: manual DST off, the
// offset as hours*100+minutes, and the flag telling the console to use it.
func gmtOffsetBlock(minutesEast int) []byte {
	v := uint16(int16(minutesEast/60*100 + minutesEast%60))
	return []byte{1, 0, byte(v), byte(v >> 8), 1}
}

// setGMTOffset stores the current zone offset of t in the console. The
// console acknowledges the block, but that byte is left for the next
// wakeup to flush.
func (s *Station) setGMTOffset(t time.Time) (int, error) {
	_, offset := t.In(s.loc).Zone()
	minutes := offset / 60
	if err := s.sendCommand("EEBWR 12 5"); err != nil {
		return 0, err
	}
	if err := s.getAck(2 * time.Second); err != nil {
		return 0, fmt.Errorf("EEBWR 12: %w", err)
	}
	return minutes, s.writeFramed(gmtOffsetBlock(minutes))
}

// synchronizeClock sets the console zone offset and clock to host time.
func (s *Station) synchronizeClock() error {
	if err := s.wakeup(); err != nil {
		return err
	}
	minutes, err := s.setGMTOffset(s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.wakeup(); err != nil {
		return err
	}
	now := s.clock.Now().In(s.loc)
	if err := s.setTime(now); err != nil {
		return err
	}
	s.logger.Infof("station time synchronized to: %s", now.Format("01-02-2006 15:04:05"))
	s.logger.Infof("station GMT offset synchronized to: %d hours, %d minutes", minutes/60, minutes%60)

	// The console is slow to answer right after a time change.
	s.sleep(1500 * time.Millisecond)
	return nil
}

// rxCheck runs RXCHECK and folds the counters into the reception percentage.
func (s *Station) rxCheck() error {
	if err := s.medium.Write([]byte("RXCHECK\r")); err != nil {
		return fmt.Errorf("davis: writing RXCHECK: %w", err)
	}

	// LF CR "OK" LF CR
	head := make([]byte, 6)
	if _, err := s.medium.Read(head, 2*time.Second); err != nil {
		s.medium.Flush()
		return fmt.Errorf("RXCHECK: %w", err)
	}

	line := make([]byte, 0, rxCheckLineMax)
	b := make([]byte, 1)
	for len(line) < rxCheckLineMax {
		if _, err := s.medium.Read(b, 2*time.Second); err != nil {
			return fmt.Errorf("RXCHECK: %w", err)
		}
		line = append(line, b[0])
		if b[0] == vantage.CR {
			break
		}
	}
	if len(line) < 3 || line[len(line)-1] != vantage.CR {
		return fmt.Errorf("RXCHECK: malformed reply %q", line)
	}

	counters, err := parseRxCheck(string(line))
	if err != nil {
		return err
	}
	s.rx.update(counters)
	if s.rx.percent >= 0 {
		s.metrics.RxCheckPercent.Set(s.rx.percent)
	}
	return nil
}

// rxCounters are the RXCHECK fields the percentage is computed from.
type rxCounters struct {
	good, missed, crc int
}

// parseRxCheck reads "good missed resyncs inRow crc" from an RXCHECK line.
func parseRxCheck(line string) (rxCounters, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return rxCounters{}, fmt.Errorf("RXCHECK: want 5 fields, got %q", line)
	}
	var v [5]int
	for i := range v {
		n, err := strconv.Atoi(fields[i])
		if err != nil {
			return rxCounters{}, fmt.Errorf("RXCHECK: field %d: %w", i, err)
		}
		v[i] = n
	}
	c := rxCounters{good: v[0], missed: v[1], crc: v[4]}
	if c.crc < 0 {
		c.crc += 65536
	}
	return c, nil
}

// rxStats tracks RXCHECK counters between calls. percent is -1 until the
// first reading.
type rxStats struct {
	last    rxCounters
	percent float64
}

func newRxStats() rxStats {
	return rxStats{percent: -1}
}

// update computes the reception percentage from the deltas since the last
// reading. A counter that went backwards was reset on the console, in which
// case the baseline is replaced and the percentage kept.
func (r *rxStats) update(c rxCounters) {
	prev := r.last
	r.last = c
	good, missed, crc := c.good-prev.good, c.missed-prev.missed, c.crc-prev.crc
	if good < 0 || missed < 0 || crc < 0 {
		return
	}
	total := good + missed + crc
	if total == 0 {
		r.percent = 100
		return
	}
	r.percent = float64(100 * good / total)
}

func (s *Station) requestLoop() error {
	return s.sendCommand("LOOP %d", 1)
}

func (s *Station) requestDumpAfter() error {
	return s.sendCommand("DMPAFT")
}

// sendDumpStart sends the packed watermark the dump should begin after.
func (s *Station) sendDumpStart() error {
	if err := s.medium.Write(vantage.DumpStart(s.markDate, s.markTime)); err != nil {
		return fmt.Errorf("davis: writing dump start: %w", err)
	}
	return nil
}

// readLoop reads the LOOP acknowledgement and packet.
func (s *Station) readLoop() (vantage.LoopData, error) {
	if err := s.getAck(time.Second); err != nil {
		return vantage.LoopData{}, fmt.Errorf("LOOP: %w", err)
	}
	frame, err := s.readFrame(vantage.LoopSize, 5*time.Second)
	if err != nil {
		return vantage.LoopData{}, err
	}
	l, err := vantage.DecodeLoop(frame)
	return l, s.checked(err)
}

// readDumpHeader reads the acknowledgement of the dump start and the header.
func (s *Station) readDumpHeader() (vantage.DumpHeader, error) {
	if err := s.getAck(time.Second); err != nil {
		return vantage.DumpHeader{}, fmt.Errorf("DMPAFT start: %w", err)
	}
	frame, err := s.readFrame(vantage.DumpHeaderSize, 3*time.Second)
	if err != nil {
		return vantage.DumpHeader{}, err
	}
	h, err := vantage.DecodeDumpHeader(frame)
	return h, s.checked(err)
}

// readPage reads one archive page and acknowledges it unless it is the last.
func (s *Station) readPage() (vantage.ArchivePage, error) {
	frame, err := s.readFrame(vantage.ArchivePageSize, 5*time.Second)
	if err != nil {
		return vantage.ArchivePage{}, err
	}
	page, err := vantage.DecodeArchivePage(frame)
	if err != nil {
		return vantage.ArchivePage{}, s.checked(err)
	}
	if s.currentPage < s.pages-1 {
		if err := s.sendByte(vantage.ACK); err != nil {
			return vantage.ArchivePage{}, err
		}
	}
	return page, nil
}

// wakeupWithRetry is used at startup, where the console gets many chances.
func (s *Station) wakeupWithRetry(ctx context.Context, tries int) error {
	for i := 1; ; i++ {
		err := s.wakeup()
		if err == nil {
			return nil
		}
		if i >= tries || ctx.Err() != nil {
			return err
		}
		s.logger.Warnf("wakeup failed, retry %d of %d", i, tries)
		s.sleep(time.Second)
	}
}
