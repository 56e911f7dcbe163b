// Command wlk2sqlite copies the records of .wlk month files into the
// long-term SQLite archive. Records already present are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chrissnell/vantaged/internal/log"
	"github.com/chrissnell/vantaged/internal/storage/sqlite"
	"github.com/chrissnell/vantaged/internal/wlk"
)

type counts struct {
	months, stored, skipped int
}

func main() {
	var (
		dir   = flag.String("dir", ".", "Directory holding the <year>-<month>.wlk files")
		db    = flag.String("db", "archive.sdb", "Path to the SQLite archive")
		from  = flag.String("from", "", "First month to import (YYYY-MM, required)")
		to    = flag.String("to", "", "Last month to import (YYYY-MM, default: current month)")
		tz    = flag.String("tz", "Local", "Time zone the station clock runs in")
		debug = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		logger.Fatalf("invalid time zone %q: %v", *tz, err)
	}
	if *from == "" {
		logger.Fatal("-from is required")
	}
	start, err := wlk.ParseMonthTag(*from)
	if err != nil {
		logger.Fatalf("invalid -from: %v", err)
	}
	stop := wlk.MonthOf(time.Now().In(loc))
	if *to != "" {
		if stop, err = wlk.ParseMonthTag(*to); err != nil {
			logger.Fatalf("invalid -to: %v", err)
		}
	}
	if stop.Before(start) {
		logger.Fatalf("-to %s is before -from %s", stop, start)
	}

	ctx := context.Background()
	files := wlk.New(*dir, logger)
	files.SetLocation(loc)
	archive, err := sqlite.OpenArchive(ctx, *db, logger)
	if err != nil {
		logger.Fatalf("opening archive: %v", err)
	}
	defer archive.Close()
	archive.SetLocation(loc)

	c, err := importMonths(ctx, files, archive, start, stop)
	if err != nil {
		logger.Fatalf("import failed after %d records: %v", c.stored, err)
	}
	logger.Infof("imported %d months: %d records stored, %d already present", c.months, c.stored, c.skipped)
}

func importMonths(ctx context.Context, files *wlk.Store, archive *sqlite.ArchiveStore, start, stop wlk.MonthTag) (counts, error) {
	var c counts
	for tag := start; !tag.After(stop); tag = tag.Next() {
		if _, err := files.ReadHeader(tag); errors.Is(err, wlk.ErrFileMissing) {
			continue
		} else if err != nil {
			return c, err
		}
		c.months++
		for day := 1; day <= 31; day++ {
			packets, err := files.ReadDayPackets(tag, day)
			if err != nil {
				return c, err
			}
			for _, p := range packets {
				inserted, err := archive.StoreRecord(ctx, p)
				if err != nil {
					return c, fmt.Errorf("%s day %d: %w", tag, day, err)
				}
				if inserted {
					c.stored++
				} else {
					c.skipped++
				}
			}
		}
	}
	return c, nil
}
