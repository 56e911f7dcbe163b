package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wlk"
)

func record(at time.Time, temp int16) vantage.ArchiveRecord {
	date, tm := vantage.PackDateTime(at)
	return vantage.ArchiveRecord{
		Date:        date,
		Time:        tm,
		OutTemp:     temp,
		HighOutTemp: temp,
		LowOutTemp:  temp,
		Barometer:   30000,
		InTemp:      700,
		OutHumidity: 50,
		WindSamples: 100,
	}
}

func TestImportMonths(t *testing.T) {
	ctx := context.Background()
	files := wlk.New(t.TempDir(), nil)
	files.SetLocation(time.UTC)

	// Two months with a gap month between them.
	for _, at := range []time.Time{
		time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, files.AppendArchiveRecord(record(at, 650), 60, vantage.CollectorHundredthInch))
	}

	archive, err := sqlite.OpenArchive(ctx, filepath.Join(t.TempDir(), "archive.sdb"), nil)
	require.NoError(t, err)
	defer archive.Close()
	archive.SetLocation(time.UTC)

	start, stop := wlk.MonthTag{Year: 2024, Month: 1}, wlk.MonthTag{Year: 2024, Month: 4}
	c, err := importMonths(ctx, files, archive, start, stop)
	require.NoError(t, err)
	assert.Equal(t, counts{months: 2, stored: 3}, c)

	p, err := archive.GetRecord(ctx, time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 65.0, p.Value(types.OutTemp), 0.001)

	c, err = importMonths(ctx, files, archive, start, stop)
	require.NoError(t, err)
	assert.Equal(t, counts{months: 2, skipped: 3}, c)
}
