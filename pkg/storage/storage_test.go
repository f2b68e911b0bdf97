package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/zsxq"
)

func newTestTopicStore(t *testing.T) *TopicStore {
	t.Helper()
	store, err := NewTopicStore(filepath.Join(t.TempDir(), "topics_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "files_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTopic(id int64, createTime string) zsxq.Topic {
	return zsxq.Topic{
		ID:         id,
		CreateTime: createTime,
		Title:      fmt.Sprintf("topic %d", id),
		Raw:        json.RawMessage(fmt.Sprintf(`{"topic_id":%d,"create_time":%q}`, id, createTime)),
	}
}

func testFileEntry(id int64, name, createTime string, size int64) zsxq.FileEntry {
	return zsxq.FileEntry{
		File: zsxq.File{
			ID:         id,
			Name:       name,
			Size:       size,
			CreateTime: createTime,
		},
		Raw: json.RawMessage(fmt.Sprintf(`{"file":{"id":%d}}`, id)),
	}
}

func TestTopicUpsertReportsNew(t *testing.T) {
	store := newTestTopicStore(t)

	wasNew, err := store.Upsert(testTopic(1, "2024-03-01T10:00:00.000+0800"))
	require.NoError(t, err)
	assert.True(t, wasNew)

	// Same id again, even uncommitted, is an update.
	wasNew, err = store.Upsert(testTopic(1, "2024-03-01T10:00:00.000+0800"))
	require.NoError(t, err)
	assert.False(t, wasNew)

	require.NoError(t, store.Commit())

	wasNew, err = store.Upsert(testTopic(1, "2024-03-01T10:00:00.000+0800"))
	require.NoError(t, err)
	assert.False(t, wasNew)
}

func TestTopicExistsSeesUncommitted(t *testing.T) {
	store := newTestTopicStore(t)

	_, err := store.Upsert(testTopic(7, "2024-03-01T10:00:00.000+0800"))
	require.NoError(t, err)

	exists, err := store.Exists(7)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(8)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTopicUncommittedPageIsLostOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.db")

	store, err := NewTopicStore(path)
	require.NoError(t, err)

	_, err = store.Upsert(testTopic(1, "2024-03-01T10:00:00.000+0800"))
	require.NoError(t, err)
	require.NoError(t, store.Commit())
	_, err = store.Upsert(testTopic(2, "2024-03-01T11:00:00.000+0800"))
	require.NoError(t, err)
	// No commit for topic 2.
	require.NoError(t, store.Close())

	reopened, err := NewTopicStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.Exists(1)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = reopened.Exists(2)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTopicTimestampRange(t *testing.T) {
	store := newTestTopicStore(t)

	rng, err := store.TimestampRange()
	require.NoError(t, err)
	assert.False(t, rng.HasData)

	times := []string{
		"2024-03-05T10:00:00.000+0800",
		"2024-03-01T08:30:00.000+0800",
		"2024-03-03T12:00:00.000+0800",
	}
	for i, ct := range times {
		_, err := store.Upsert(testTopic(int64(i+1), ct))
		require.NoError(t, err)
	}
	require.NoError(t, store.Commit())

	rng, err = store.TimestampRange()
	require.NoError(t, err)
	assert.True(t, rng.HasData)
	assert.Equal(t, 3, rng.Count)
	assert.Equal(t, "2024-03-01T08:30:00.000+0800", rng.Oldest)
	assert.Equal(t, "2024-03-05T10:00:00.000+0800", rng.Newest)
}

func TestCommitWithoutWritesIsNoop(t *testing.T) {
	store := newTestTopicStore(t)
	assert.NoError(t, store.Commit())
	assert.NoError(t, store.Commit())
}

func TestFileUpsertPreservesStatus(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.Upsert(testFileEntry(1, "report.pdf", "2024-03-01T10:00:00.000+0800", 1024))
	require.NoError(t, err)
	require.NoError(t, store.Commit())
	require.NoError(t, store.MarkStatus(1, StatusCompleted, "/tmp/report.pdf"))

	// A metadata refresh must not reset the download outcome.
	wasNew, err := store.Upsert(testFileEntry(1, "report.pdf", "2024-03-01T10:00:00.000+0800", 1024))
	require.NoError(t, err)
	assert.False(t, wasNew)
	require.NoError(t, store.Commit())

	pending, err := store.Pending(PendingOptions{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFilePendingOrderAndLimit(t *testing.T) {
	store := newTestFileStore(t)

	entries := []struct {
		id        int64
		ct        string
		downloads int
	}{
		{1, "2024-03-01T10:00:00.000+0800", 5},
		{2, "2024-03-03T10:00:00.000+0800", 50},
		{3, "2024-03-02T10:00:00.000+0800", 20},
	}
	for _, e := range entries {
		entry := testFileEntry(e.id, fmt.Sprintf("f%d.zip", e.id), e.ct, 100)
		entry.File.DownloadCount = e.downloads
		_, err := store.Upsert(entry)
		require.NoError(t, err)
	}
	require.NoError(t, store.Commit())

	byTime, err := store.Pending(PendingOptions{Order: OrderByCreateTime})
	require.NoError(t, err)
	require.Len(t, byTime, 3)
	assert.Equal(t, int64(2), byTime[0].ID)
	assert.Equal(t, int64(3), byTime[1].ID)
	assert.Equal(t, int64(1), byTime[2].ID)

	byDownloads, err := store.Pending(PendingOptions{Order: OrderByDownloadCount, Limit: 2})
	require.NoError(t, err)
	require.Len(t, byDownloads, 2)
	assert.Equal(t, int64(2), byDownloads[0].ID)
	assert.Equal(t, int64(3), byDownloads[1].ID)
}

func TestFilePendingNotBefore(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.Upsert(testFileEntry(1, "old.zip", "2024-01-01T10:00:00.000+0800", 100))
	require.NoError(t, err)
	_, err = store.Upsert(testFileEntry(2, "new.zip", "2024-03-01T10:00:00.000+0800", 100))
	require.NoError(t, err)
	require.NoError(t, store.Commit())

	pending, err := store.Pending(PendingOptions{NotBefore: "2024-02-01T00:00:00.000+0800"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].ID)
}

func TestFileMarkStatusUnknownID(t *testing.T) {
	store := newTestFileStore(t)
	assert.Error(t, store.MarkStatus(42, StatusCompleted, "/nowhere"))
}

func TestFileStatusCounts(t *testing.T) {
	store := newTestFileStore(t)

	for i := int64(1); i <= 3; i++ {
		_, err := store.Upsert(testFileEntry(i, fmt.Sprintf("f%d.zip", i), "2024-03-01T10:00:00.000+0800", 100))
		require.NoError(t, err)
	}
	require.NoError(t, store.Commit())
	require.NoError(t, store.MarkStatus(1, StatusCompleted, "/tmp/f1.zip"))
	require.NoError(t, store.MarkStatus(2, StatusFailed, ""))

	counts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 1, counts[StatusFailed])
	assert.Equal(t, 1, counts[StatusPending])
}
