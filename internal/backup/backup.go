// Package backup copies the month files and database snapshots to
// S3-compatible object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/pkg/config"
)

// ObjectStore is the subset of *minio.Client the backup uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Snapshotter writes a consistent copy of a live database.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}

// Backup uploads changed month files and fresh database snapshots.
type Backup struct {
	store     ObjectStore
	bucket    string
	prefix    string
	dir       string
	databases map[string]Snapshotter
	logger    *zap.SugaredLogger
}

// Result summarizes one run.
type Result struct {
	Uploaded int
	Skipped  int
}

// NewClient builds a minio client for cfg.
func NewClient(cfg config.BackupConfig) (*minio.Client, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	endpoint, _, _ = strings.Cut(endpoint, "/")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL || strings.HasPrefix(strings.ToLower(cfg.Endpoint), "https"),
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init backup client: %w", err)
	}
	return client, nil
}

// New returns a backup of the month files under dir. databases maps an
// object name to the store whose snapshot is uploaded under it.
func New(store ObjectStore, cfg config.BackupConfig, dir string, databases map[string]Snapshotter, logger *zap.SugaredLogger) *Backup {
	return &Backup{
		store:     store,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		dir:       dir,
		databases: databases,
		logger:    logger,
	}
}

func (b *Backup) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func (b *Backup) ensureBucket(ctx context.Context) error {
	exists, err := b.store.BucketExists(ctx, b.bucket)
	if err == nil && exists {
		return nil
	}
	err = b.store.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return fmt.Errorf("creating bucket %s: %w", b.bucket, err)
	}
	return nil
}

// Run performs one backup pass. A failed file does not stop the others;
// the errors are joined.
func (b *Backup) Run(ctx context.Context) (Result, error) {
	var res Result
	if err := b.ensureBucket(ctx); err != nil {
		return res, err
	}

	files, err := filepath.Glob(filepath.Join(b.dir, "*.wlk"))
	if err != nil {
		return res, err
	}
	sort.Strings(files)

	var errs []error
	for _, f := range files {
		uploaded, err := b.uploadIfChanged(ctx, f)
		switch {
		case err != nil:
			errs = append(errs, err)
		case uploaded:
			res.Uploaded++
		default:
			res.Skipped++
		}
	}

	if len(b.databases) > 0 {
		tmp, err := os.MkdirTemp("", "vantaged-backup-")
		if err != nil {
			return res, errors.Join(append(errs, err)...)
		}
		defer os.RemoveAll(tmp)

		names := make([]string, 0, len(b.databases))
		for name := range b.databases {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			snap := filepath.Join(tmp, name)
			if err := b.databases[name].Snapshot(ctx, snap); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := b.put(ctx, snap, name, "application/vnd.sqlite3"); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Uploaded++
		}
	}

	b.logger.Infof("backup to %s: %d uploaded, %d unchanged", b.bucket, res.Uploaded, res.Skipped)
	return res, errors.Join(errs...)
}

// uploadIfChanged skips files whose object has the same size and is not
// older than the file.
func (b *Backup) uploadIfChanged(ctx context.Context, file string) (bool, error) {
	st, err := os.Stat(file)
	if err != nil {
		return false, err
	}
	name := filepath.Base(file)
	info, err := b.store.StatObject(ctx, b.bucket, b.key(name), minio.StatObjectOptions{})
	if err == nil && info.Size == st.Size() && !info.LastModified.Before(st.ModTime()) {
		return false, nil
	}
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		b.logger.Debugf("backup: stat %s: %v", name, err)
	}
	return true, b.put(ctx, file, name, "application/octet-stream")
}

func (b *Backup) put(ctx context.Context, file, name, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if _, err := b.store.FPutObject(ctx, b.bucket, b.key(name), file, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	b.logger.Debugf("backup: uploaded %s", name)
	return nil
}
