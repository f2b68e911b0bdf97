package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20, cfg.Sync.PerPage)
	assert.Equal(t, 10, cfg.Sync.Pages)
	assert.Equal(t, 15, cfg.Sync.PagesPerBatch)
	assert.Equal(t, 1, cfg.Sync.TimestampOffsetMS)
	assert.Equal(t, 10, cfg.Sync.MaxRetriesPerPage)
	assert.Equal(t, 10, cfg.Files.FilesPerBatch)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)

	min, max := cfg.Sync.CrawlInterval()
	assert.Equal(t, 2*time.Second, min)
	assert.Equal(t, 5*time.Second, max)

	min, max = cfg.Sync.LongSleepInterval()
	assert.Equal(t, 180*time.Second, min)
	assert.Equal(t, 300*time.Second, max)

	assert.Equal(t, time.Millisecond, cfg.Sync.TimestampOffset())
	assert.Equal(t, 10*time.Second, cfg.Sync.Timeout())
	assert.Equal(t, 300*time.Second, cfg.Files.Timeout())
}

func TestDBPaths(t *testing.T) {
	s := StorageConfig{DataDir: "/var/data"}
	assert.Equal(t, "/var/data/topics_777.db", s.TopicsDBPath("777"))
	assert.Equal(t, "/var/data/files_777.db", s.FilesDBPath("777"))
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
auth:
  group_id: "48841215254128"
sync:
  per_page: 30
  crawl_interval_min: 1.5
  crawl_interval_max: 3
storage:
  data_dir: /tmp/zsxq
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "48841215254128", cfg.Auth.GroupID)
	assert.Equal(t, 30, cfg.Sync.PerPage)
	assert.Equal(t, "/tmp/zsxq", cfg.Storage.DataDir)
	// Untouched values keep their defaults.
	assert.Equal(t, 10, cfg.Sync.Pages)

	min, max := cfg.Sync.CrawlInterval()
	assert.Equal(t, 1500*time.Millisecond, min)
	assert.Equal(t, 3*time.Second, max)
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[auth]
group_id = "777"

[sync]
per_page = 25
pages_per_batch = 8

[wecom_webhook]
webhook_url = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=k"
enabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "777", cfg.Auth.GroupID)
	assert.Equal(t, 25, cfg.Sync.PerPage)
	assert.Equal(t, 8, cfg.Sync.PagesPerBatch)
	assert.True(t, cfg.WeCom.Enabled)
	assert.Contains(t, cfg.WeCom.WebhookURL, "qyapi.weixin.qq.com")
}

func TestLoadFromFileMissingIsError(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile("/no/such/file.yaml"))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZSXQSYNC_COOKIE", "zsxq_access_token=abc")
	t.Setenv("ZSXQSYNC_GROUP_ID", "999")
	t.Setenv("ZSXQSYNC_PER_PAGE", "35")
	t.Setenv("ZSXQSYNC_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "zsxq_access_token=abc", cfg.Auth.Cookie)
	assert.Equal(t, "999", cfg.Auth.GroupID)
	assert.Equal(t, 35, cfg.Sync.PerPage)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Auth.GroupID = "777"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing group", func(c *Config) { c.Auth.GroupID = "" }},
		{"zero per_page", func(c *Config) { c.Sync.PerPage = 0 }},
		{"inverted crawl interval", func(c *Config) { c.Sync.CrawlIntervalMin = 10; c.Sync.CrawlIntervalMax = 2 }},
		{"inverted long sleep", func(c *Config) { c.Sync.LongSleepIntervalMin = 500; c.Sync.LongSleepIntervalMax = 100 }},
		{"negative crawl interval", func(c *Config) { c.Sync.CrawlIntervalMin = -1 }},
		{"zero batch", func(c *Config) { c.Sync.PagesPerBatch = 0 }},
		{"zero retries", func(c *Config) { c.Sync.MaxRetriesPerPage = 0 }},
		{"negative offset", func(c *Config) { c.Sync.TimestampOffsetMS = -1 }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"inverted download interval", func(c *Config) { c.Files.DownloadIntervalMin = 9; c.Files.DownloadIntervalMax = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"out.yaml", "out.toml"} {
		path := filepath.Join(dir, name)
		cfg := DefaultConfig()
		cfg.Auth.GroupID = "12321"
		cfg.Sync.PerPage = 33
		require.NoError(t, cfg.Save(path))

		loaded := DefaultConfig()
		require.NoError(t, loaded.LoadFromFile(path))
		assert.Equal(t, "12321", loaded.Auth.GroupID, name)
		assert.Equal(t, 33, loaded.Sync.PerPage, name)
	}
}
