package datafeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
)

// ArchiveSource answers client catch-up requests.
type ArchiveSource interface {
	GetNextRecord(ctx context.Context, after time.Time) (types.ArchivePacket, error)
}

// Server is a gnet event handler that broadcasts observations to every
// connected client.
type Server struct {
	gnet.BuiltinEventEngine

	addr    string
	archive ArchiveSource
	logger  *zap.SugaredLogger
	metrics *observability.Metrics

	eng    gnet.Engine
	booted chan struct{}

	mu    sync.Mutex
	conns map[gnet.Conn]struct{}
}

// NewServer returns a server listening on addr (host:port) once Run is
// called. archive may be nil, in which case archive requests are ignored.
func NewServer(addr string, archive ArchiveSource, logger *zap.SugaredLogger, metrics *observability.Metrics) *Server {
	return &Server{
		addr:    addr,
		archive: archive,
		logger:  logger,
		metrics: metrics,
		booted:  make(chan struct{}),
		conns:   make(map[gnet.Conn]struct{}),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		select {
		case <-s.booted:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.eng.Stop(stopCtx); err != nil {
			s.logger.Warnf("datafeed: stopping server: %v", err)
		}
	}()

	err := gnet.Run(s, "tcp://"+s.addr,
		gnet.WithMulticore(true),
		gnet.WithReuseAddr(true),
		gnet.WithTCPKeepAlive(time.Minute),
	)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("datafeed: serving on %s: %w", s.addr, err)
	}
	return nil
}

// Booted is closed once the listener is up.
func (s *Server) Booted() <-chan struct{} { return s.booted }

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	s.logger.Infof("datafeed listening on %s", s.addr)
	close(s.booted)
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	n := len(s.conns)
	s.mu.Unlock()

	s.metrics.FeedClients.Set(float64(n))
	s.logger.Infof("datafeed client %s connected (%d clients)", c.RemoteAddr(), n)
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	s.mu.Lock()
	delete(s.conns, c)
	n := len(s.conns)
	s.mu.Unlock()

	s.metrics.FeedClients.Set(float64(n))
	if err != nil {
		s.logger.Debugf("datafeed client %s closed: %v", c.RemoteAddr(), err)
	}
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	for c.InboundBuffered() > 0 {
		buf, _ := c.Peek(-1)
		f, used, err := Decode(buf)
		if used > 0 {
			_, _ = c.Discard(used)
		}
		switch {
		case errors.Is(err, ErrShortFrame):
			return gnet.None
		case errors.Is(err, ErrFrameTooLarge):
			s.logger.Warnf("datafeed client %s sent an oversized frame", c.RemoteAddr())
			continue
		case err != nil:
			return gnet.Close
		}
		if f.Type != FrameArchiveRequest {
			continue
		}
		if out := s.answer(f); out != nil {
			if _, err := c.Write(out); err != nil {
				return gnet.Close
			}
		}
	}
	return gnet.None
}

// answer builds the reply to an archive request, or nil when there is
// nothing to send.
func (s *Server) answer(f Frame) []byte {
	if s.archive == nil {
		return nil
	}
	req, err := f.ArchiveRequest()
	if err != nil {
		s.logger.Warnf("datafeed: bad archive request: %v", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rec, err := s.archive.GetNextRecord(ctx, req.After)
	if err != nil {
		s.logger.Debugf("datafeed: no archive record after %s: %v", req.After, err)
		return nil
	}
	out, err := Encode(FrameArchive, rec)
	if err != nil {
		s.logger.Errorf("datafeed: %v", err)
		return nil
	}
	return out
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends an observation to every connected client.
func (s *Server) Broadcast(o storage.Observation) {
	var (
		out []byte
		err error
	)
	switch {
	case o.Archive != nil:
		out, err = Encode(FrameArchive, o.Archive)
	case o.Loop != nil:
		out, err = Encode(FrameLoop, o.Loop)
	default:
		return
	}
	if err != nil {
		s.logger.Errorf("datafeed: %v", err)
		return
	}

	s.mu.Lock()
	conns := make([]gnet.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.AsyncWrite(out, nil); err != nil {
			s.logger.Debugf("datafeed: write to %s: %v", c.RemoteAddr(), err)
		}
	}
}

// StartStorageEngine lets the storage manager feed the server like any
// other engine.
func (s *Server) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.Observation {
	c := make(chan storage.Observation, 32)
	wg.Add(1)
	go storage.ProcessObservations(ctx, wg, c, func(_ context.Context, o storage.Observation) error {
		s.Broadcast(o)
		return nil
	}, "datafeed", s.logger, s.metrics)
	return c
}
