package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/vantaged/pkg/config"
)

type fakeFetcher struct {
	objects map[string]string
	failGet string
}

func (f *fakeFetcher) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			ch <- minio.ObjectInfo{Key: key}
		}
	}
	close(ch)
	return ch
}

func (f *fakeFetcher) FGetObject(_ context.Context, _, object, filePath string, _ minio.GetObjectOptions) error {
	if object == f.failGet {
		return errors.New("boom")
	}
	return os.WriteFile(filePath, []byte(f.objects[object]), 0o644)
}

func TestRestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeMonth(t, dir, "2024-05.wlk", "local may")

	store := &fakeFetcher{objects: map[string]string{
		"station/2024-05.wlk":     "remote may",
		"station/2024-06.wlk":     "remote june",
		"station/archive.sdb":     "db",
		"station/old/2020-01.wlk": "nested",
		"other/2024-06.wlk":       "other station",
	}}
	cfg := config.BackupConfig{Bucket: "wx", Prefix: "station"}

	res, err := Restore(context.Background(), store, cfg, dir, false, nil)
	require.NoError(t, err)
	assert.Equal(t, RestoreResult{Downloaded: 2, Skipped: 1}, res)

	body, err := os.ReadFile(filepath.Join(dir, "2024-05.wlk"))
	require.NoError(t, err)
	assert.Equal(t, "local may", string(body))
	body, err = os.ReadFile(filepath.Join(dir, "2024-06.wlk"))
	require.NoError(t, err)
	assert.Equal(t, "remote june", string(body))
	assert.NoFileExists(t, filepath.Join(dir, "2020-01.wlk"))

	store.failGet = "station/archive.sdb"
	res, err = Restore(context.Background(), store, cfg, dir, true, nil)
	assert.Error(t, err)
	assert.Equal(t, RestoreResult{Downloaded: 2}, res)
	body, err = os.ReadFile(filepath.Join(dir, "2024-05.wlk"))
	require.NoError(t, err)
	assert.Equal(t, "remote may", string(body))
}
