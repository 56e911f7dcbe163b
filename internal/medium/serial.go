package medium

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

const serialRetryWait = 30 * time.Second

// Serial is a console attached to a local serial port.
type Serial struct {
	device string
	baud   int
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	s      *stream

	mu      sync.Mutex
	rwc     io.ReadWriteCloser
	pending int
}

// NewSerial returns an unopened serial medium. A zero baud selects 19200.
func NewSerial(device string, baud int, clock clockwork.Clock, logger *zap.SugaredLogger) *Serial {
	if baud == 0 {
		baud = 19200
	}
	return &Serial{
		device: device,
		baud:   baud,
		clock:  clock,
		logger: logger,
		s:      newStream(clock, logger),
	}
}

func (m *Serial) Open(ctx context.Context) error {
	m.logger.Infof("connecting to %v ...", m.device)
	for {
		m.logger.Debugf("attempting to open serial port %s at %d baud", m.device, m.baud)
		rwc, err := serial.OpenPort(&serial.Config{Name: m.device, Baud: m.baud})
		if err == nil {
			m.mu.Lock()
			m.rwc = rwc
			m.mu.Unlock()
			m.s.attach(rwc)
			return nil
		}
		m.logger.Errorf("failed to open serial port %s: %v", m.device, err)
		m.logger.Errorf("sleeping %v and trying again", serialRetryWait)
		if err := sleep(ctx, m.clock, serialRetryWait); err != nil {
			return fmt.Errorf("medium: opening %s: %w", m.device, err)
		}
	}
}

func (m *Serial) Read(p []byte, timeout time.Duration) (int, error) {
	return m.s.read(p, timeout)
}

func (m *Serial) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rwc == nil {
		return fmt.Errorf("medium: %s is not open", m.device)
	}
	m.logger.Debugf("writing to console: %s", hex.EncodeToString(p))
	if _, err := m.rwc.Write(p); err != nil {
		return fmt.Errorf("medium: writing to %s: %w", m.device, err)
	}
	m.pending += len(p)
	return nil
}

func (m *Serial) Flush() {
	m.s.flush()
}

// Drain waits out the line time of everything written since the last drain;
// the port library exposes no tcdrain.
func (m *Serial) Drain() error {
	m.mu.Lock()
	n := m.pending
	m.pending = 0
	m.mu.Unlock()
	if n == 0 {
		return nil
	}
	m.clock.Sleep(time.Duration(n*10) * time.Second / time.Duration(m.baud))
	return nil
}

func (m *Serial) Restart(ctx context.Context) error {
	m.logger.Infof("restarting serial port %s", m.device)
	if err := m.Close(); err != nil {
		m.logger.Warnf("closing %s: %v", m.device, err)
	}
	return m.Open(ctx)
}

func (m *Serial) Close() error {
	m.mu.Lock()
	rwc := m.rwc
	m.rwc = nil
	m.mu.Unlock()
	m.s.detach()
	if rwc == nil {
		return nil
	}
	return rwc.Close()
}

func (m *Serial) Ready() <-chan struct{} {
	return m.s.ready
}

func (m *Serial) Buffered() int {
	return m.s.buffered()
}
