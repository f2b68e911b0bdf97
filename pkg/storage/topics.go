package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"zsxqsync/pkg/zsxq"
)

const topicSchema = `
CREATE TABLE IF NOT EXISTS topics (
	topic_id     INTEGER PRIMARY KEY,
	create_time  TEXT NOT NULL,
	title        TEXT,
	raw_json     TEXT NOT NULL,
	first_seen   TEXT NOT NULL,
	last_updated TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_topics_create_time ON topics(create_time);
`

// TopicStore is the SQLite-backed TopicGateway. Writes accumulate in one
// transaction until Commit, so a killed process loses at most the current
// page.
type TopicStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewTopicStore opens (creating if needed) the topic database at path.
func NewTopicStore(path string) (*TopicStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open topic database: %w", err)
	}
	if _, err := db.Exec(topicSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize topic schema: %w", err)
	}

	return &TopicStore{db: db}, nil
}

// begin lazily opens the page transaction.
func (s *TopicStore) begin() (*sql.Tx, error) {
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

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (s *TopicStore) reader() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Exists reports whether the topic id is stored, including rows written in
// the current uncommitted page.
func (s *TopicStore) Exists(id int64) (bool, error) {
	var one int
	err := s.reader().QueryRow(`SELECT 1 FROM topics WHERE topic_id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not query topic %d: %w", id, err)
	}
	return true, nil
}

// Upsert writes the topic, replacing any previous version of the same id.
// Reports whether the id was new.
func (s *TopicStore) Upsert(topic zsxq.Topic) (bool, error) {
	exists, err := s.Exists(topic.ID)
	if err != nil {
		return false, err
	}

	tx, err := s.begin()
	if err != nil {
		return false, err
	}

	now := time.Now().Format(time.RFC3339)
	_, err = tx.Exec(`
		INSERT INTO topics (topic_id, create_time, title, raw_json, first_seen, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic_id) DO UPDATE SET
			create_time  = excluded.create_time,
			title        = excluded.title,
			raw_json     = excluded.raw_json,
			last_updated = excluded.last_updated`,
		topic.ID, topic.CreateTime, topic.Title, string(topic.Raw), now, now)
	if err != nil {
		return false, fmt.Errorf("could not upsert topic %d: %w", topic.ID, err)
	}

	return !exists, nil
}

// Commit flushes the open page transaction. A Commit with nothing pending is
// a no-op.
func (s *TopicStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit topics: %w", err)
	}
	return nil
}

// TimestampRange returns the span of stored creation times. Timestamps are
// fixed-width ISO strings in one zone, so MIN/MAX string order is time order.
func (s *TopicStore) TimestampRange() (TimeRange, error) {
	var oldest, newest sql.NullString
	var count int
	err := s.reader().QueryRow(
		`SELECT MIN(create_time), MAX(create_time), COUNT(*) FROM topics`,
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

// Close rolls back any uncommitted page and closes the database.
func (s *TopicStore) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}
