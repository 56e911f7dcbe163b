// Package valkey caches the latest LOOP snapshot and archive record of a
// station in Valkey for other processes to read.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/observability"
	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
)

// Config locates the Valkey server.
type Config struct {
	Address  string
	Username string
	Password string
	Prefix   string
	TTL      time.Duration
}

// Storage is the Valkey latest-conditions engine.
type Storage struct {
	client  valkey.Client
	prefix  string
	ttl     time.Duration
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

func buildOptions(cfg Config) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(cfg.Address, "://") {
		opt, err = valkey.ParseURL(cfg.Address)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{cfg.Address}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	if cfg.Username != "" {
		opt.Username = cfg.Username
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	return opt, nil
}

// New connects to Valkey and checks the connection with PING.
func New(ctx context.Context, cfg Config, logger *zap.SugaredLogger, metrics *observability.Metrics) (*Storage, error) {
	opt, err := buildOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid valkey configuration: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("creating valkey client: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Do(pctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey ping failed: %w", err)
	}
	logger.Infof("valkey latest-conditions cache enabled at %s", cfg.Address)

	return &Storage{client: client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: logger, metrics: metrics}, nil
}

// StartStorageEngine starts the caching goroutine.
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- storage.Observation {
	s.logger.Info("starting Valkey storage engine...")
	c := make(chan storage.Observation, 10)
	wg.Add(1)
	go func() {
		storage.ProcessObservations(ctx, wg, c, s.Store, "valkey", s.logger, s.metrics)
		s.client.Close()
	}()
	return c
}

// Store caches o as the station's latest value of its kind.
func (s *Storage) Store(ctx context.Context, o storage.Observation) error {
	key, payload, err := s.encode(o)
	if err != nil {
		return err
	}
	return s.setString(ctx, key, payload)
}

// LatestLoop returns the cached LOOP snapshot of station.
func (s *Storage) LatestLoop(ctx context.Context, station string) (types.LoopPacket, bool, error) {
	var p types.LoopPacket
	ok, err := s.get(ctx, s.loopKey(station), &p)
	return p, ok, err
}

// CheckHealth pings the server.
func (s *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return storage.CreateHealthData(storage.StatusUnhealthy, "Valkey ping failed", err)
	}
	return storage.CreateHealthData(storage.StatusHealthy, "Valkey operational", nil)
}

func (s *Storage) get(ctx context.Context, key string, v any) (bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) setString(ctx context.Context, key, value string) error {
	builder := s.client.B().Set().Key(key).Value(value)
	var cmd valkey.Completed
	if s.ttl > 0 {
		ttl := s.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *Storage) encode(o storage.Observation) (string, string, error) {
	var (
		key string
		v   any
	)
	switch {
	case o.Loop != nil:
		key, v = s.loopKey(o.Station), o.Loop
	case o.Archive != nil:
		key, v = s.archiveKey(o.Station), o.Archive.ToMap()
	default:
		return "", "", fmt.Errorf("empty observation")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", "", err
	}
	return key, string(data), nil
}

func (s *Storage) loopKey(station string) string {
	return fmt.Sprintf("%s:%s:loop", s.prefix, station)
}

func (s *Storage) archiveKey(station string) string {
	return fmt.Sprintf("%s:%s:archive", s.prefix, station)
}
