package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/pkg/config"
)

func TestArchiveCron(t *testing.T) {
	tests := []struct {
		interval int
		delay    time.Duration
		want     string
		wantErr  bool
	}{
		{5, 20 * time.Second, "20 0/5 * * * *", false},
		{1, 20 * time.Second, "20 0/1 * * * *", false},
		{30, 90 * time.Second, "30 1/30 * * * *", false},
		{60, 20 * time.Second, "20 0 */1 * * *", false},
		{120, 0, "0 0 */2 * * *", false},
		{5, 6 * time.Minute, "", true},
		{7, 0, "", true},
		{0, 0, "", true},
	}
	for _, tt := range tests {
		got, err := archiveCron(tt.interval, tt.delay)
		if tt.wantErr {
			assert.Error(t, err, "interval %d delay %s", tt.interval, tt.delay)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

type countingStation struct {
	readings, archive, sync atomic.Int32
}

func (c *countingStation) GetReadings() { c.readings.Add(1) }
func (c *countingStation) GetArchive()  { c.archive.Add(1) }
func (c *countingStation) SyncTime()    { c.sync.Add(1) }

type nopBackup struct{}

func (nopBackup) Run(context.Context) error { return nil }

func TestStartSchedulesJobs(t *testing.T) {
	st := &countingStation{}
	cfg := config.ScheduleConfig{ReadingsInterval: 2 * time.Second, ArchiveDelay: 20 * time.Second, ClockSync: "03:05"}
	s := New(st, cfg, nopBackup{}, "02:30", time.UTC, zap.NewNop().Sugar())
	require.NoError(t, s.Start(context.Background(), 5))
	defer s.Stop()

	assert.Equal(t, 4, s.scheduler.Len())
	// Interval jobs run immediately on start.
	require.Eventually(t, func() bool { return st.readings.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestStartRejectsBadInterval(t *testing.T) {
	s := New(&countingStation{}, config.ScheduleConfig{ReadingsInterval: 2 * time.Second}, nil, "", time.UTC, zap.NewNop().Sugar())
	assert.Error(t, s.Start(context.Background(), 7))
}
