package managers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/storage"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/weatherstations/davis"
)

type fakeDriver struct {
	events chan davis.Event
	mu     sync.Mutex
	exited bool
}

func (f *fakeDriver) Init(context.Context) error { return nil }
func (f *fakeDriver) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (f *fakeDriver) Exit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exited {
		f.exited = true
		close(f.events)
	}
	return nil
}
func (f *fakeDriver) Events() <-chan davis.Event { return f.events }
func (f *fakeDriver) StationName() string        { return "home" }
func (f *fakeDriver) ArchiveInterval() int       { return 5 }

type memArchive struct {
	mu   sync.Mutex
	seen map[time.Time]bool
}

func (m *memArchive) StoreRecord(_ context.Context, p types.ArchivePacket) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[p.DateTime] {
		return false, nil
	}
	m.seen[p.DateTime] = true
	return true, nil
}

type memSamples struct {
	mu sync.Mutex
	n  int
}

func (m *memSamples) StoreSample(context.Context, types.LoopPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return nil
}

type memDistributor struct {
	mu  sync.Mutex
	obs []storage.Observation
}

func (m *memDistributor) Distribute(_ context.Context, o storage.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = append(m.obs, o)
}

func (m *memDistributor) snapshot() []storage.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Observation(nil), m.obs...)
}

type recordingListener struct {
	mu       sync.Mutex
	up, down int
	interval int
}

func (r *recordingListener) StationUp(_ context.Context, interval int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.up++
	r.interval = interval
}

func (r *recordingListener) StationDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down++
}

func TestWeatherStationManagerRoutesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	driver := &fakeDriver{events: make(chan davis.Event, 8)}
	archive := &memArchive{seen: map[time.Time]bool{}}
	samples := &memSamples{}
	dist := &memDistributor{}
	listener := &recordingListener{}

	m := NewWeatherStationManager(driver, archive, samples, dist, zap.NewNop().Sugar(), listener)
	require.NoError(t, m.StartWeatherStation(ctx, &wg))

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	loop := types.NewLoopPacket(now)
	rec := types.NewArchivePacket(now, 5)

	driver.events <- davis.Event{Type: davis.EventStationUp, Loop: &loop}
	driver.events <- davis.Event{Type: davis.EventReadingsDone, Loop: &loop}
	driver.events <- davis.Event{Type: davis.EventArchiveRecord, Archive: &rec}
	driver.events <- davis.Event{Type: davis.EventArchiveRecord, Archive: &rec} // duplicate
	driver.events <- davis.Event{Type: davis.EventStationError}

	require.Eventually(t, func() bool {
		listener.mu.Lock()
		defer listener.mu.Unlock()
		return listener.down == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	obs := dist.snapshot()
	require.Len(t, obs, 3)
	assert.NotNil(t, obs[0].Loop)
	assert.NotNil(t, obs[1].Loop)
	assert.NotNil(t, obs[2].Archive)
	assert.Equal(t, "home", obs[2].Station)

	assert.Equal(t, 2, samples.n)
	assert.Equal(t, 1, listener.up)
	assert.Equal(t, 5, listener.interval)
	assert.True(t, driver.exited)
}
