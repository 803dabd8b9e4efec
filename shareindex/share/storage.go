package share

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/tursodatabase/go-libsql"
)

// Storage is an optional on-disk cache of rescan/listing bookkeeping so a
// process restart doesn't discard last-known freshness. Grounded on the
// teacher's CentralDBProvider: a thin database/sql wrapper around the
// libsql driver with explicit schema creation and small, purpose-built
// query methods rather than an ORM.
type Storage struct {
	db *sql.DB
}

// OpenStorage opens (creating if absent) the bookkeeping database at dsn
// using the libsql driver.
func OpenStorage(dsn string) (*Storage, error) {
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("share: open storage: %w", err)
	}
	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS rescan_snapshots (
	id TEXT PRIMARY KEY,
	completed_at INTEGER NOT NULL,
	took_ms INTEGER NOT NULL,
	file_count INTEGER NOT NULL,
	dir_count INTEGER NOT NULL,
	total_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS listing_snapshots (
	id TEXT PRIMARY KEY,
	generated_at INTEGER NOT NULL,
	xml_root BLOB NOT NULL,
	bz_xml_root BLOB NOT NULL,
	xml_len INTEGER NOT NULL,
	bz_xml_len INTEGER NOT NULL
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("share: migrate storage: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// RecordRescan persists a completed rescan pass's summary, keyed by a
// fresh row ID.
func (s *Storage) RecordRescan(completedAt time.Time, took time.Duration, fileCount, dirCount, totalSize int64) error {
	_, err := s.db.Exec(
		`INSERT INTO rescan_snapshots (id, completed_at, took_ms, file_count, dir_count, total_size) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), completedAt.UnixMilli(), took.Milliseconds(), fileCount, dirCount, totalSize,
	)
	if err != nil {
		return fmt.Errorf("share: record rescan: %w", err)
	}
	return nil
}

// RecordListing persists a completed listing generation's summary.
func (s *Storage) RecordListing(generatedAt time.Time, xmlRoot, bzXmlRoot TTH, xmlLen, bzXmlLen int64) error {
	_, err := s.db.Exec(
		`INSERT INTO listing_snapshots (id, generated_at, xml_root, bz_xml_root, xml_len, bz_xml_len) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), generatedAt.UnixMilli(), xmlRoot[:], bzXmlRoot[:], xmlLen, bzXmlLen,
	)
	if err != nil {
		return fmt.Errorf("share: record listing: %w", err)
	}
	return nil
}

// LastRescan returns the most recently recorded rescan summary, if any.
func (s *Storage) LastRescan() (completedAt time.Time, took time.Duration, ok bool, err error) {
	row := s.db.QueryRow(`SELECT completed_at, took_ms FROM rescan_snapshots ORDER BY completed_at DESC LIMIT 1`)
	var completedMs, tookMs int64
	if scanErr := row.Scan(&completedMs, &tookMs); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return time.Time{}, 0, false, nil
		}
		return time.Time{}, 0, false, fmt.Errorf("share: last rescan: %w", scanErr)
	}
	return time.UnixMilli(completedMs), time.Duration(tookMs) * time.Millisecond, true, nil
}
