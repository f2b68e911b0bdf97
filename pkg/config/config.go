package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the sync tool.
type Config struct {
	// Auth holds the supplied credentials (never derived).
	Auth AuthConfig `yaml:"auth" toml:"auth"`

	// Sync controls the topic crawl engine.
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Files controls the file-download engine.
	Files FilesConfig `yaml:"files" toml:"files"`

	// Storage locates the local databases and download directory.
	Storage StorageConfig `yaml:"storage" toml:"storage"`

	// WeCom configures the outbound webhook for new-topic notifications.
	WeCom WeComConfig `yaml:"wecom_webhook" toml:"wecom_webhook"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// AuthConfig holds the remote credentials.
type AuthConfig struct {
	Cookie  string `yaml:"cookie" toml:"cookie"`
	GroupID string `yaml:"group_id" toml:"group_id"`
}

// SyncConfig holds the crawl-engine knobs. Interval values are seconds;
// a min equal to its max means a fixed delay rather than a sampled range.
type SyncConfig struct {
	PerPage              int     `yaml:"per_page" toml:"per_page"`
	Pages                int     `yaml:"pages" toml:"pages"`
	CrawlIntervalMin     float64 `yaml:"crawl_interval_min" toml:"crawl_interval_min"`
	CrawlIntervalMax     float64 `yaml:"crawl_interval_max" toml:"crawl_interval_max"`
	LongSleepIntervalMin float64 `yaml:"long_sleep_interval_min" toml:"long_sleep_interval_min"`
	LongSleepIntervalMax float64 `yaml:"long_sleep_interval_max" toml:"long_sleep_interval_max"`
	PagesPerBatch        int     `yaml:"pages_per_batch" toml:"pages_per_batch"`
	TimestampOffsetMS    int     `yaml:"timestamp_offset_ms" toml:"timestamp_offset_ms"`
	MaxRetriesPerPage    int     `yaml:"max_retries_per_page" toml:"max_retries_per_page"`
	RequestTimeout       float64 `yaml:"request_timeout" toml:"request_timeout"`
}

// FilesConfig holds the file-engine knobs. Interval values are seconds.
type FilesConfig struct {
	PerPage              int     `yaml:"per_page" toml:"per_page"`
	DownloadIntervalMin  float64 `yaml:"download_interval_min" toml:"download_interval_min"`
	DownloadIntervalMax  float64 `yaml:"download_interval_max" toml:"download_interval_max"`
	LongSleepIntervalMin float64 `yaml:"long_sleep_interval_min" toml:"long_sleep_interval_min"`
	LongSleepIntervalMax float64 `yaml:"long_sleep_interval_max" toml:"long_sleep_interval_max"`
	FilesPerBatch        int     `yaml:"files_per_batch" toml:"files_per_batch"`
	DownloadTimeout      float64 `yaml:"download_timeout" toml:"download_timeout"`
}

// StorageConfig locates local state.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir" toml:"data_dir"`
	DownloadDir string `yaml:"download_dir" toml:"download_dir"`
}

// WeComConfig configures the enterprise-chat webhook.
type WeComConfig struct {
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			PerPage:              20,
			Pages:                10,
			CrawlIntervalMin:     2,
			CrawlIntervalMax:     5,
			LongSleepIntervalMin: 180,
			LongSleepIntervalMax: 300,
			PagesPerBatch:        15,
			TimestampOffsetMS:    1,
			MaxRetriesPerPage:    10,
			RequestTimeout:       10,
		},
		Files: FilesConfig{
			PerPage:              20,
			DownloadIntervalMin:  5,
			DownloadIntervalMax:  10,
			LongSleepIntervalMin: 60,
			LongSleepIntervalMax: 180,
			FilesPerBatch:        10,
			DownloadTimeout:      300,
		},
		Storage: StorageConfig{
			DataDir:     "./data",
			DownloadDir: "./downloads",
		},
		WeCom: WeComConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// TopicsDBPath returns the topic database path for a group.
func (s StorageConfig) TopicsDBPath(groupID string) string {
	return filepath.Join(s.DataDir, fmt.Sprintf("topics_%s.db", groupID))
}

// FilesDBPath returns the file database path for a group.
func (s StorageConfig) FilesDBPath(groupID string) string {
	return filepath.Join(s.DataDir, fmt.Sprintf("files_%s.db", groupID))
}

// CrawlInterval returns the inter-request delay bounds.
func (s SyncConfig) CrawlInterval() (min, max time.Duration) {
	return seconds(s.CrawlIntervalMin), seconds(s.CrawlIntervalMax)
}

// LongSleepInterval returns the batch long-sleep bounds.
func (s SyncConfig) LongSleepInterval() (min, max time.Duration) {
	return seconds(s.LongSleepIntervalMin), seconds(s.LongSleepIntervalMax)
}

// TimestampOffset returns the cursor advance offset.
func (s SyncConfig) TimestampOffset() time.Duration {
	return time.Duration(s.TimestampOffsetMS) * time.Millisecond
}

// Timeout returns the per-request timeout.
func (s SyncConfig) Timeout() time.Duration {
	return seconds(s.RequestTimeout)
}

// DownloadInterval returns the inter-download delay bounds.
func (f FilesConfig) DownloadInterval() (min, max time.Duration) {
	return seconds(f.DownloadIntervalMin), seconds(f.DownloadIntervalMax)
}

// LongSleepInterval returns the batch long-sleep bounds.
func (f FilesConfig) LongSleepInterval() (min, max time.Duration) {
	return seconds(f.LongSleepIntervalMin), seconds(f.LongSleepIntervalMax)
}

// Timeout returns the per-download timeout.
func (f FilesConfig) Timeout() time.Duration {
	return seconds(f.DownloadTimeout)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by
// extension. An empty path tries the default locations and is not an
// error when nothing is found.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"config.toml",
		"config.yaml",
		".zsxqsync.yaml",
		filepath.Join(home, ".config", "zsxqsync", "config.toml"),
		filepath.Join(home, ".config", "zsxqsync", "config.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// LoadFromEnv overrides configuration from environment variables, reading
// .env files first.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".zsxqsync.env"))

	if cookie := os.Getenv("ZSXQSYNC_COOKIE"); cookie != "" {
		c.Auth.Cookie = cookie
	}
	if groupID := os.Getenv("ZSXQSYNC_GROUP_ID"); groupID != "" {
		c.Auth.GroupID = groupID
	}
	if dataDir := os.Getenv("ZSXQSYNC_DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if downloadDir := os.Getenv("ZSXQSYNC_DOWNLOAD_DIR"); downloadDir != "" {
		c.Storage.DownloadDir = downloadDir
	}
	if webhook := os.Getenv("ZSXQSYNC_WECOM_WEBHOOK_URL"); webhook != "" {
		c.WeCom.WebhookURL = webhook
	}
	if perPage := os.Getenv("ZSXQSYNC_PER_PAGE"); perPage != "" {
		if val, err := strconv.Atoi(perPage); err == nil && val > 0 {
			c.Sync.PerPage = val
		}
	}
	if logLevel := os.Getenv("ZSXQSYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// Validate checks if the configuration is valid. Invalid combinations are
// rejected here, not deep inside the crawl loop.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.GroupID == "" {
		errs = append(errs, errors.New("group_id is required"))
	}

	if c.Sync.PerPage <= 0 {
		errs = append(errs, errors.New("sync per_page must be positive"))
	}
	if c.Sync.Pages <= 0 {
		errs = append(errs, errors.New("sync pages must be positive"))
	}
	if c.Sync.CrawlIntervalMin < 0 || c.Sync.CrawlIntervalMax < 0 {
		errs = append(errs, errors.New("crawl interval cannot be negative"))
	}
	if c.Sync.CrawlIntervalMin > c.Sync.CrawlIntervalMax {
		errs = append(errs, errors.New("crawl_interval_min must not exceed crawl_interval_max"))
	}
	if c.Sync.LongSleepIntervalMin > c.Sync.LongSleepIntervalMax {
		errs = append(errs, errors.New("long_sleep_interval_min must not exceed long_sleep_interval_max"))
	}
	if c.Sync.PagesPerBatch <= 0 {
		errs = append(errs, errors.New("pages_per_batch must be positive"))
	}
	if c.Sync.TimestampOffsetMS < 0 {
		errs = append(errs, errors.New("timestamp_offset_ms cannot be negative"))
	}
	if c.Sync.MaxRetriesPerPage <= 0 {
		errs = append(errs, errors.New("max_retries_per_page must be positive"))
	}
	if c.Sync.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}

	if c.Files.PerPage <= 0 {
		errs = append(errs, errors.New("files per_page must be positive"))
	}
	if c.Files.DownloadIntervalMin > c.Files.DownloadIntervalMax {
		errs = append(errs, errors.New("download_interval_min must not exceed download_interval_max"))
	}
	if c.Files.LongSleepIntervalMin > c.Files.LongSleepIntervalMax {
		errs = append(errs, errors.New("files long_sleep_interval_min must not exceed long_sleep_interval_max"))
	}
	if c.Files.FilesPerBatch <= 0 {
		errs = append(errs, errors.New("files_per_batch must be positive"))
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Storage.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save writes the configuration to a file (TOML or YAML by extension).
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence:
// environment variables > .env file > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
