package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/pkg/config"
)

// Fetcher is the subset of *minio.Client a restore uses.
type Fetcher interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// RestoreResult summarizes one restore.
type RestoreResult struct {
	Downloaded int
	Skipped    int
}

// Restore downloads every backed-up object into dir. Existing files are kept
// unless overwrite is set.
func Restore(ctx context.Context, store Fetcher, cfg config.BackupConfig, dir string, overwrite bool, logger *zap.SugaredLogger) (RestoreResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var res RestoreResult
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, err
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	var errs []error
	for obj := range store.ListObjects(ctx, cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return res, fmt.Errorf("listing %s: %w", cfg.Bucket, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil && !overwrite {
			logger.Debugf("restore: keeping existing %s", dest)
			res.Skipped++
			continue
		}
		if err := store.FGetObject(ctx, cfg.Bucket, obj.Key, dest, minio.GetObjectOptions{}); err != nil {
			errs = append(errs, fmt.Errorf("downloading %s: %w", obj.Key, err))
			continue
		}
		res.Downloaded++
	}

	logger.Infof("restore from %s: %d downloaded, %d kept", cfg.Bucket, res.Downloaded, res.Skipped)
	return res, errors.Join(errs...)
}
