package medium

import (
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// stream turns a blocking io.Reader into a buffered source with timed reads.
// A pump goroutine per connection feeds the buffer; reconnecting attaches a
// new reader and bumps the generation so a dying pump cannot poison the
// fresh connection.
type stream struct {
	clock  clockwork.Clock
	logger *zap.SugaredLogger

	mu  sync.Mutex
	buf []byte
	err error
	gen int

	notify chan struct{}
	ready  chan struct{}
}

func newStream(clock clockwork.Clock, logger *zap.SugaredLogger) *stream {
	return &stream{
		clock:  clock,
		logger: logger,
		notify: make(chan struct{}, 1),
		ready:  make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *stream) attach(r io.Reader) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.buf = nil
	s.err = nil
	s.mu.Unlock()
	go s.pump(r, gen)
}

func (s *stream) pump(r io.Reader, gen int) {
	b := make([]byte, 512)
	for {
		n, err := r.Read(b)
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		if n > 0 {
			s.buf = append(s.buf, b[:n]...)
		}
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()

		if n > 0 {
			s.logger.Debugf("medium: read %s", hex.EncodeToString(b[:n]))
			signal(s.ready)
		}
		signal(s.notify)
		if err != nil {
			return
		}
	}
}

func (s *stream) read(p []byte, timeout time.Duration) (int, error) {
	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()

	n := 0
	for {
		s.mu.Lock()
		c := copy(p[n:], s.buf)
		s.buf = s.buf[c:]
		err := s.err
		s.mu.Unlock()
		n += c

		if n == len(p) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("medium: %w", err)
		}
		select {
		case <-s.notify:
		case <-timer.Chan():
			return n, ErrTimeout
		}
	}
}

func (s *stream) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *stream) flush() {
	s.mu.Lock()
	if len(s.buf) > 0 {
		s.logger.Debugf("medium: flushed %d bytes", len(s.buf))
	}
	s.buf = nil
	s.mu.Unlock()
	select {
	case <-s.ready:
	default:
	}
}

// detach stops the current pump from delivering.
func (s *stream) detach() {
	s.mu.Lock()
	s.gen++
	s.buf = nil
	s.err = io.ErrClosedPipe
	s.mu.Unlock()
	signal(s.notify)
}
