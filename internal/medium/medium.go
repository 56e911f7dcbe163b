// Package medium provides the byte transports a station console is reached
// through: a local serial port or a TCP terminal server.
package medium

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a read does not complete in time.
var ErrTimeout = errors.New("medium: read timeout")

// Medium is a byte stream to the console with timed reads.
type Medium interface {
	// Open connects, retrying until it succeeds or ctx ends.
	Open(ctx context.Context) error
	// Read fills p or fails with ErrTimeout, returning the bytes it did get.
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) error
	// Flush discards buffered input.
	Flush()
	// Drain blocks until written bytes have left the host.
	Drain() error
	// Restart closes and reopens the link.
	Restart(ctx context.Context) error
	Close() error
	// Ready receives a value whenever new input arrives.
	Ready() <-chan struct{}
	// Buffered returns the number of received bytes not yet read.
	Buffered() int
}

// Config selects and parameterizes a transport.
type Config struct {
	Type    string `yaml:"type" validate:"required,oneof=serial tcp"`
	Device  string `yaml:"device" validate:"required_if=Type serial"`
	Baud    int    `yaml:"baud"`
	Address string `yaml:"address" validate:"required_if=Type tcp"`
}

// New builds the transport named by cfg.Type.
func New(cfg Config, clock clockwork.Clock, logger *zap.SugaredLogger) (Medium, error) {
	switch cfg.Type {
	case "serial":
		return NewSerial(cfg.Device, cfg.Baud, clock, logger), nil
	case "tcp":
		return NewTCP(cfg.Address, clock, logger), nil
	}
	return nil, fmt.Errorf("medium: unknown type %q", cfg.Type)
}

// sleep waits d on clock unless ctx ends first.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}
