// Package storage defines interfaces and implementations for weather data storage backends.
package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/vantaged/internal/types"
)

// Observation is one item handed to storage engines: a LOOP snapshot or an
// archive record.
type Observation struct {
	Station string
	Loop    *types.LoopPacket
	Archive *types.ArchivePacket
}

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- Observation
}
