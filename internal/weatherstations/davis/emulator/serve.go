package emulator

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FlakyConfig simulates misbehaving hardware on served connections.
type FlakyConfig struct {
	Enabled         bool
	DropByteRate    float64 // probability of dropping a byte from a reply
	CorruptByteRate float64 // probability of corrupting a byte of a reply
	NoResponseRate  float64 // probability of ignoring a write entirely
	SlowResponse    time.Duration
	SlowRate        float64
}

// Server serves a Console over TCP the way a serial terminal server would.
type Server struct {
	Console *Console
	Flaky   FlakyConfig
	Logger  *zap.SugaredLogger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewServer wraps c.
func NewServer(c *Console, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		Console: c,
		Logger:  logger,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Serve accepts connections on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger.Errorf("accepting connection: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.Logger.Infof("new console connection from %s", conn.RemoteAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			s.Logger.Infof("console connection from %s closed", conn.RemoteAddr())
			return
		}
		if s.chance(s.Flaky.NoResponseRate) {
			s.Logger.Debug("flaky: ignoring input")
			continue
		}
		out := s.Console.Feed(buf[:n])
		if len(out) == 0 {
			continue
		}
		if s.chance(s.Flaky.SlowRate) {
			time.Sleep(s.Flaky.SlowResponse)
		}
		if _, err := conn.Write(s.mangle(out)); err != nil {
			s.Logger.Warnf("writing to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) chance(p float64) bool {
	if !s.Flaky.Enabled || p <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64() < p
}

// mangle applies byte drops and corruption to a reply.
func (s *Server) mangle(out []byte) []byte {
	if len(out) < 4 {
		return out
	}
	if s.chance(s.Flaky.DropByteRate) {
		s.mu.Lock()
		pos := 1 + s.rnd.Intn(len(out)-1)
		s.mu.Unlock()
		s.Logger.Debugf("flaky: dropped byte at position %d", pos)
		out = append(out[:pos:pos], out[pos+1:]...)
	}
	if s.chance(s.Flaky.CorruptByteRate) {
		s.mu.Lock()
		pos := 1 + s.rnd.Intn(len(out)-1)
		v := byte(s.rnd.Intn(256))
		s.mu.Unlock()
		s.Logger.Debugf("flaky: corrupted byte at position %d", pos)
		out[pos] = v
	}
	return out
}

// Run appends a record from w at every archive interval boundary until ctx
// is done.
func (c *Console) Run(ctx context.Context, w *Weather) {
	for {
		interval := time.Duration(c.EEPROM(AddrInterval, 1)[0]) * time.Minute
		if interval == 0 {
			interval = 5 * time.Minute
		}
		now := c.Now()
		next := now.Truncate(interval).Add(interval)
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(next.Sub(now)):
		}
		c.AddRecord(w.Record(next, int(interval/time.Minute)))
	}
}
