package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zsxqsync/pkg/zsxq"
)

const fileSchema = `
CREATE TABLE IF NOT EXISTS files (
	file_id        INTEGER PRIMARY KEY,
	name           TEXT NOT NULL,
	size           INTEGER NOT NULL,
	download_count INTEGER NOT NULL,
	create_time    TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	local_path     TEXT NOT NULL DEFAULT '',
	raw_json       TEXT NOT NULL,
	first_seen     TEXT NOT NULL,
	last_updated   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_create_time ON files(create_time);
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
`

// FileStore is the SQLite-backed FileGateway. Same page-transaction
// discipline as TopicStore; MarkStatus writes are applied immediately.
type FileStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewFileStore opens (creating if needed) the file database at path.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open file database: %w", err)
	}
	if _, err := db.Exec(fileSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize file schema: %w", err)
	}

	return &FileStore{db: db}, nil
}

func (s *FileStore) begin() (*sql.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

func (s *FileStore) reader() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Exists reports whether the file id is stored.
func (s *FileStore) Exists(id int64) (bool, error) {
	var one int
	err := s.reader().QueryRow(`SELECT 1 FROM files WHERE file_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not query file %d: %w", id, err)
	}
	return true, nil
}

// Upsert writes the file entry, preserving download status and local path
// across metadata refreshes. Reports whether the id was new.
func (s *FileStore) Upsert(entry zsxq.FileEntry) (bool, error) {
	exists, err := s.Exists(entry.File.ID)
	if err != nil {
		return false, err
	}

	tx, err := s.begin()
	if err != nil {
		return false, err
	}

	now := time.Now().Format(time.RFC3339)
	_, err = tx.Exec(`
		INSERT INTO files (file_id, name, size, download_count, create_time, raw_json, first_seen, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			name           = excluded.name,
			size           = excluded.size,
			download_count = excluded.download_count,
			create_time    = excluded.create_time,
			raw_json       = excluded.raw_json,
			last_updated   = excluded.last_updated`,
		entry.File.ID, entry.File.Name, entry.File.Size, entry.File.DownloadCount,
		entry.File.CreateTime, string(entry.Raw), now, now)
	if err != nil {
		return false, fmt.Errorf("could not upsert file %d: %w", entry.File.ID, err)
	}

	return !exists, nil
}

// Commit flushes the open page transaction.
func (s *FileStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit files: %w", err)
	}
	return nil
}

// TimestampRange returns the span of stored file creation times.
func (s *FileStore) TimestampRange() (TimeRange, error) {
	var oldest, newest sql.NullString
	var count int
	err := s.reader().QueryRow(
		`SELECT MIN(create_time), MAX(create_time), COUNT(*) FROM files`,
	).Scan(&oldest, &newest, &count)
	if err != nil {
		return TimeRange{}, fmt.Errorf("could not query timestamp range: %w", err)
	}
	if count == 0 {
		return TimeRange{}, nil
	}
	return TimeRange{
		Oldest:  oldest.String,
		Newest:  newest.String,
		Count:   count,
		HasData: true,
	}, nil
}

// MarkStatus records a download outcome. Applied outside the page
// transaction so an in-flight metadata page cannot roll it back.
func (s *FileStore) MarkStatus(id int64, status Status, localPath string) error {
	now := time.Now().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE files SET status = ?, local_path = ?, last_updated = ? WHERE file_id = ?`,
		string(status), localPath, now, id)
	if err != nil {
		return fmt.Errorf("could not mark file %d %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("file %d not stored", id)
	}
	return nil
}

// Pending lists records still awaiting download, most wanted first.
func (s *FileStore) Pending(opts PendingOptions) ([]FileRecord, error) {
	orderBy := "create_time DESC"
	if opts.Order == OrderByDownloadCount {
		orderBy = "download_count DESC"
	}

	query := `SELECT file_id, name, size, download_count, create_time, status, local_path
		FROM files WHERE status = ?`
	args := []interface{}{string(StatusPending)}
	if opts.NotBefore != "" {
		query += ` AND create_time >= ?`
		args = append(args, opts.NotBefore)
	}
	query += ` ORDER BY ` + orderBy
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not list pending files: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var r FileRecord
		var status string
		if err := rows.Scan(&r.ID, &r.Name, &r.Size, &r.DownloadCount, &r.CreateTime, &status, &r.LocalPath); err != nil {
			return nil, fmt.Errorf("could not scan file record: %w", err)
		}
		r.Status = Status(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate file records: %w", err)
	}
	return records, nil
}

// StatusCounts returns the number of records per download status.
func (s *FileStore) StatusCounts() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("could not count file statuses: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("could not scan status count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// Close rolls back any uncommitted page and closes the database.
func (s *FileStore) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}
