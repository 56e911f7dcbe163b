package davis

import (
	"context"
	"sync"
	"time"

	"github.com/chrissnell/vantaged/internal/medium"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis/emulator"
)

// consoleMedium connects the driver to an emulated console synchronously:
// every write is answered before Write returns.
type consoleMedium struct {
	console *emulator.Console

	mu       sync.Mutex
	buf      []byte
	ready    chan struct{}
	dead     bool
	corrupt  int // flip a byte in the next reply at least this long
	restarts int
	closed   bool
}

var _ medium.Medium = (*consoleMedium)(nil)

func newConsoleMedium(c *emulator.Console) *consoleMedium {
	return &consoleMedium{console: c, ready: make(chan struct{}, 1)}
}

func (m *consoleMedium) Open(context.Context) error { return nil }

func (m *consoleMedium) Read(p []byte, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	if n < len(p) {
		return n, medium.ErrTimeout
	}
	return n, nil
}

func (m *consoleMedium) Write(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dead {
		return nil
	}
	out := m.console.Feed(p)
	if m.corrupt > 0 && len(out) >= m.corrupt {
		out[len(out)-3] ^= 0x55
		m.corrupt = 0
	}
	m.buf = append(m.buf, out...)
	if len(out) > 0 {
		select {
		case m.ready <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *consoleMedium) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = nil
}

func (m *consoleMedium) Drain() error { return nil }

func (m *consoleMedium) Restart(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	m.buf = nil
	return nil
}

func (m *consoleMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *consoleMedium) Ready() <-chan struct{} { return m.ready }

func (m *consoleMedium) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

func (m *consoleMedium) setDead(dead bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = dead
}

func (m *consoleMedium) corruptNext(minLen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corrupt = minLen
}

func (m *consoleMedium) restartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}
