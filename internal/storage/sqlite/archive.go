package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/vantaged/internal/types"
)

var (
	archiveColumns = func() string {
		cols := []string{"dateTime", "usUnits", "interval"}
		for i := types.DataIndex(0); i < types.DataIndexMax; i++ {
			cols = append(cols, i.String())
		}
		return strings.Join(cols, ", ")
	}()

	insertArchiveSQL = fmt.Sprintf("INSERT OR IGNORE INTO archive (%s) VALUES (%s)",
		archiveColumns, strings.TrimSuffix(strings.Repeat("?, ", int(types.DataIndexMax)+3), ", "))
	selectArchiveSQL = "SELECT " + archiveColumns + " FROM archive"
)

// ArchiveStore is the long-term archive database: one row per archive
// interval keyed by its end time in Unix seconds.
type ArchiveStore struct {
	db     *sql.DB
	loc    *time.Location
	logger *zap.SugaredLogger
}

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(ctx context.Context, path string, logger *zap.SugaredLogger) (*ArchiveStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := open(ctx, path, "archive", logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("archive database %s opened", path)
	return &ArchiveStore{db: db, loc: time.Local, logger: logger}, nil
}

// SetLocation sets the zone returned timestamps are expressed in.
func (s *ArchiveStore) SetLocation(loc *time.Location) {
	s.loc = loc
}

// Close closes the database.
func (s *ArchiveStore) Close() error {
	return s.db.Close()
}

// StoreRecord inserts p. It reports false without error when a record with
// the same time already exists.
func (s *ArchiveStore) StoreRecord(ctx context.Context, p types.ArchivePacket) (bool, error) {
	args := make([]any, 0, int(types.DataIndexMax)+3)
	args = append(args, p.DateTime.Unix(), p.USUnits, p.Interval)
	for _, v := range p.Values {
		args = append(args, nullFloat(v, types.IsNull(v)))
	}

	res, err := s.db.ExecContext(ctx, insertArchiveSQL, args...)
	if err != nil {
		return false, fmt.Errorf("storing archive record %s: %w", p.DateTime.Format(time.DateTime), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetNewestTime returns the time of the newest stored record.
func (s *ArchiveStore) GetNewestTime(ctx context.Context) (time.Time, error) {
	var newest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(dateTime) FROM archive").Scan(&newest); err != nil {
		return time.Time{}, fmt.Errorf("querying newest archive time: %w", err)
	}
	if !newest.Valid {
		return time.Time{}, ErrNoRecords
	}
	return time.Unix(newest.Int64, 0).In(s.loc), nil
}

// GetNextRecord returns the first record strictly after after.
func (s *ArchiveStore) GetNextRecord(ctx context.Context, after time.Time) (types.ArchivePacket, error) {
	return s.queryOne(ctx, selectArchiveSQL+" WHERE dateTime > ? ORDER BY dateTime ASC LIMIT 1", after.Unix())
}

// GetRecord returns the record ending exactly at at.
func (s *ArchiveStore) GetRecord(ctx context.Context, at time.Time) (types.ArchivePacket, error) {
	return s.queryOne(ctx, selectArchiveSQL+" WHERE dateTime = ?", at.Unix())
}

// GetRange returns the records with from <= time <= to in time order.
func (s *ArchiveStore) GetRange(ctx context.Context, from, to time.Time) ([]types.ArchivePacket, error) {
	rows, err := s.db.QueryContext(ctx, selectArchiveSQL+" WHERE dateTime >= ? AND dateTime <= ? ORDER BY dateTime ASC",
		from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying archive range: %w", err)
	}
	defer rows.Close()

	var out []types.ArchivePacket
	for rows.Next() {
		p, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *ArchiveStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM archive").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting archive records: %w", err)
	}
	return n, nil
}

func (s *ArchiveStore) queryOne(ctx context.Context, query string, args ...any) (types.ArchivePacket, error) {
	p, err := s.scan(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNoRecords
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *ArchiveStore) scan(row scanner) (types.ArchivePacket, error) {
	var (
		at, units, interval int64
		vals                [types.DataIndexMax]sql.NullFloat64
	)
	dest := []any{&at, &units, &interval}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ArchivePacket{}, err
		}
		return types.ArchivePacket{}, fmt.Errorf("reading archive row: %w", err)
	}

	p := types.NewArchivePacket(time.Unix(at, 0).In(s.loc), int(interval))
	p.USUnits = int(units)
	for i, v := range vals {
		if v.Valid {
			p.Values[i] = v.Float64
		}
	}
	return p, nil
}

// Snapshot writes a consistent copy of the database to path.
func (s *ArchiveStore) Snapshot(ctx context.Context, path string) error {
	return snapshot(ctx, s.db, path)
}
