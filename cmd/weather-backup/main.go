// Command weather-backup runs one backup pass outside the daemon's schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/vantaged/internal/backup"
	"github.com/chrissnell/vantaged/internal/log"
	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/pkg/config"
)

func main() {
	var (
		cfgFile = flag.String("config", "vantaged.yaml", "Path to the YAML configuration file")
		noDB    = flag.Bool("files-only", false, "Skip the database snapshots")
		debug   = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	filename, _ := filepath.Abs(*cfgFile)
	cfg, err := config.NewYAMLProvider(filename).LoadConfig()
	if err != nil {
		logger.Fatalf("loading config: %v", err)
	}
	if cfg.Backup.Endpoint == "" {
		logger.Fatal("no backup endpoint configured")
	}

	ctx := context.Background()
	databases := map[string]backup.Snapshotter{}
	if !*noDB {
		archive, err := sqlite.OpenArchive(ctx, cfg.Archive.Database, logger)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer archive.Close()
		hilow, err := sqlite.OpenHiLow(ctx, cfg.Archive.HiLowDatabase, logger)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer hilow.Close()
		databases["archive.sdb"] = archive
		databases["hilow.sdb"] = hilow
	}

	client, err := backup.NewClient(cfg.Backup)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	res, err := backup.New(client, cfg.Backup, cfg.Archive.Dir, databases, logger).Run(ctx)
	if err != nil {
		logger.Errorf("backup incomplete: %v", err)
	}
	fmt.Printf("Uploaded %d files, %d unchanged\n", res.Uploaded, res.Skipped)
	if err != nil {
		os.Exit(1)
	}
}
