// Command weather-restore downloads the month files and database snapshots
// that vantaged backed up to object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/vantaged/internal/backup"
	"github.com/chrissnell/vantaged/internal/log"
	"github.com/chrissnell/vantaged/pkg/config"
)

func main() {
	var (
		cfgFile   = flag.String("config", "vantaged.yaml", "Path to the YAML configuration file")
		dest      = flag.String("dest", "", "Directory to restore into (default: the configured archive dir)")
		overwrite = flag.Bool("overwrite", false, "Replace files that already exist")
		debug     = flag.Bool("debug", false, "Turn on debugging output")
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
	if *dest == "" {
		*dest = cfg.Archive.Dir
	}

	client, err := backup.NewClient(cfg.Backup)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	res, err := backup.Restore(context.Background(), client, cfg.Backup, *dest, *overwrite, logger)
	if err != nil {
		logger.Fatalf("restore incomplete (%d downloaded): %v", res.Downloaded, err)
	}
	fmt.Printf("Restored %d files into %s, kept %d existing\n", res.Downloaded, *dest, res.Skipped)
}
