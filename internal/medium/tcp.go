package medium

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	tcpDialTimeout = 10 * time.Second
	tcpRetryWait   = 5 * time.Second
)

// TCP is a console reached through a terminal server or WeatherLinkIP.
type TCP struct {
	address string
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
	s       *stream

	mu   sync.Mutex
	conn net.Conn
}

// NewTCP returns an unopened network medium for host:port.
func NewTCP(address string, clock clockwork.Clock, logger *zap.SugaredLogger) *TCP {
	return &TCP{
		address: address,
		clock:   clock,
		logger:  logger,
		s:       newStream(clock, logger),
	}
}

func (m *TCP) Open(ctx context.Context) error {
	m.logger.Info("connecting to: ", m.address)
	var d net.Dialer
	for {
		dctx, cancel := context.WithTimeout(ctx, tcpDialTimeout)
		conn, err := d.DialContext(dctx, "tcp", m.address)
		cancel()
		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.mu.Unlock()
			m.s.attach(conn)
			return nil
		}
		m.logger.Errorf("could not connect to %v: %v", m.address, err)
		m.logger.Errorf("sleeping %v and trying again.", tcpRetryWait)
		if err := sleep(ctx, m.clock, tcpRetryWait); err != nil {
			return fmt.Errorf("medium: dialing %s: %w", m.address, err)
		}
	}
}

func (m *TCP) Read(p []byte, timeout time.Duration) (int, error) {
	return m.s.read(p, timeout)
}

func (m *TCP) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return fmt.Errorf("medium: %s is not connected", m.address)
	}
	m.logger.Debugf("writing to console: %s", hex.EncodeToString(p))
	if _, err := m.conn.Write(p); err != nil {
		return fmt.Errorf("medium: writing to %s: %w", m.address, err)
	}
	return nil
}

func (m *TCP) Flush() {
	m.s.flush()
}

// Drain is a no-op: the kernel owns the send queue.
func (m *TCP) Drain() error {
	return nil
}

func (m *TCP) Restart(ctx context.Context) error {
	m.logger.Infof("reconnecting to %s", m.address)
	if err := m.Close(); err != nil {
		m.logger.Warnf("closing %s: %v", m.address, err)
	}
	return m.Open(ctx)
}

func (m *TCP) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	m.s.detach()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (m *TCP) Ready() <-chan struct{} {
	return m.s.ready
}

func (m *TCP) Buffered() int {
	return m.s.buffered()
}
