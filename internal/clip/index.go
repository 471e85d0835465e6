package clip

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Entry records where the clip for (StationID, Bucket) was materialised and
// when it was last seen on disk.
type Entry struct {
	StationID   string
	Bucket      int64
	Path        string
	LastChecked time.Time
}

// Index is the key/value table behind the cache: point lookups and upserts
// by (station id, bucket), never scans.
type Index interface {
	Get(ctx context.Context, stationID string, bucket int64) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
}

// SQLiteIndex stores entries in the clips table created by the migrations.
type SQLiteIndex struct {
	db *sql.DB
}

func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

func (s *SQLiteIndex) Get(ctx context.Context, stationID string, bucket int64) (Entry, bool, error) {
	e := Entry{StationID: stationID, Bucket: bucket}
	var lastChecked int64
	err := s.db.QueryRowContext(ctx, `
		SELECT local_path, last_checked FROM clips
		WHERE station_id = ? AND bucket = ?
	`, stationID, bucket).Scan(&e.Path, &lastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.LastChecked = time.UnixMilli(lastChecked)
	return e, true, nil
}

func (s *SQLiteIndex) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clips (station_id, bucket, local_path, last_checked)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id, bucket) DO UPDATE SET
			local_path = excluded.local_path,
			last_checked = excluded.last_checked
	`, e.StationID, e.Bucket, e.Path, e.LastChecked.UnixMilli())
	return err
}
