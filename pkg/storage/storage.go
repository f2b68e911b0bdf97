// Package storage persists synced topics and file records in SQLite. The
// sync engine only sees the gateway interfaces; everything it stores is
// rediscoverable through the timestamp-range query, so no separate resume
// bookkeeping exists.
package storage

import (
	"zsxqsync/pkg/zsxq"
)

// TimeRange is the aggregate timestamp span of stored items, used to resume
// a crawl without external checkpoints.
type TimeRange struct {
	Oldest  string
	Newest  string
	Count   int
	HasData bool
}

// TopicGateway is the contract the sync engine consumes. All calls are
// synchronous and assumed fast relative to network latency. One session
// owns its gateway exclusively.
type TopicGateway interface {
	// Exists reports whether a topic id is already stored.
	Exists(id int64) (bool, error)
	// Upsert inserts a new topic or updates it in place, without ever
	// creating duplicates. Reports whether the id was previously unseen.
	Upsert(topic zsxq.Topic) (bool, error)
	// Commit flushes the open transaction. Called once per page so partial
	// progress survives a stop or crash.
	Commit() error
	// TimestampRange returns the stored creation-time span.
	TimestampRange() (TimeRange, error)
}

// FileGateway is the storage contract of the file engine.
type FileGateway interface {
	Exists(id int64) (bool, error)
	Upsert(entry zsxq.FileEntry) (bool, error)
	Commit() error
	TimestampRange() (TimeRange, error)
	// MarkStatus records a download outcome for a file.
	MarkStatus(id int64, status Status, localPath string) error
	// Pending lists records awaiting download.
	Pending(opts PendingOptions) ([]FileRecord, error)
}

// Status of a file record's download.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Order selects how pending downloads are dequeued.
type Order string

const (
	OrderByDownloadCount Order = "download_count"
	OrderByCreateTime    Order = "create_time"
)

// PendingOptions filters the pending-download listing.
type PendingOptions struct {
	// Limit caps the result; 0 means no cap.
	Limit int
	// Order is the dequeue order; defaults to OrderByCreateTime.
	Order Order
	// NotBefore drops records older than this creation time when set.
	NotBefore string
}

// FileRecord is a stored file row.
type FileRecord struct {
	ID            int64
	Name          string
	Size          int64
	DownloadCount int
	CreateTime    string
	Status        Status
	LocalPath     string
}
