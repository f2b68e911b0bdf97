package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"zsxqsync/pkg/auth"
	"zsxqsync/pkg/config"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/task"
	"zsxqsync/pkg/zsxq"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	groupID    string
)

var rootCmd = &cobra.Command{
	Use:   "zsxqsync",
	Short: "Incremental sync tool for Zhishixingqiu group content",
	Long: `zsxqsync mirrors a Zhishixingqiu (知识星球) group to local SQLite
databases: topics through the paginated topic feed, file attachments
through the file feed plus downloads.

Syncs are incremental and resumable. The tool paces itself against the
remote rate limiter, retries throttled pages with graduated waits, and
commits page by page so an interrupted run loses nothing already stored.

Credentials come from the system keychain ('zsxqsync auth login'), an
encrypted credential file, or the ZSXQSYNC_COOKIE environment variable.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: config.toml, config.yaml, ~/.config/zsxqsync/)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&groupID, "group", "g", "", "group id (overrides config)")

	rootCmd.SetVersionTemplate(`zsxqsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// app bundles the wired components a command run needs.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	client *zsxq.Client
	sup    *task.Supervisor
}

// newApp loads configuration, resolves credentials and builds the API
// client. Every data-touching command starts here.
func newApp() (*app, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if groupID != "" {
		cfg.Auth.GroupID = groupID
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	log := logger.GetLogger()

	cookie, err := resolveCookie(cfg)
	if err != nil {
		return nil, err
	}

	client := zsxq.NewClient(cookie, cfg.Auth.GroupID, cfg.Sync.Timeout(), cfg.Files.Timeout(), log)

	log.InfoWithFields("zsxqsync starting", map[string]interface{}{
		"version": version,
		"group":   cfg.Auth.GroupID,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		sup:    task.NewSupervisor(log),
	}, nil
}

// resolveCookie prefers the explicitly configured cookie, then the
// credential store chain.
func resolveCookie(cfg *config.Config) (string, error) {
	if cfg.Auth.GroupID == "" {
		return "", errors.New("no group id: set auth.group_id in the config or pass --group")
	}

	cookie := auth.CleanCookie(cfg.Auth.Cookie)
	if cookie == "" {
		manager, err := auth.NewManager()
		if err != nil {
			return "", err
		}
		session, err := manager.Retrieve(cfg.Auth.GroupID)
		if err != nil {
			return "", fmt.Errorf("no cookie for group %s: run 'zsxqsync auth login' or set ZSXQSYNC_COOKIE", cfg.Auth.GroupID)
		}
		cookie = session.Cookie
	}

	if err := auth.ValidateCookie(cookie); err != nil {
		return "", err
	}
	return cookie, nil
}

// topicPacer builds the pacer for topic-page crawling from config.
func (a *app) topicPacer() (*ratelimit.Pacer, error) {
	crawlMin, crawlMax := a.cfg.Sync.CrawlInterval()
	sleepMin, sleepMax := a.cfg.Sync.LongSleepInterval()
	return ratelimit.NewPacer(
		ratelimit.Between(crawlMin, crawlMax),
		ratelimit.Between(sleepMin, sleepMax),
		a.cfg.Sync.PagesPerBatch,
		a.log,
	)
}

// filePacer builds the pacer for file operations from config.
func (a *app) filePacer() (*ratelimit.Pacer, error) {
	dlMin, dlMax := a.cfg.Files.DownloadInterval()
	sleepMin, sleepMax := a.cfg.Files.LongSleepInterval()
	return ratelimit.NewPacer(
		ratelimit.Between(dlMin, dlMax),
		ratelimit.Between(sleepMin, sleepMax),
		a.cfg.Files.FilesPerBatch,
		a.log,
	)
}

// stopOnSignal wires Ctrl-C to the supervisor's stop tokens. The first
// signal asks tasks to wind down; the second kills the process.
func (a *app) stopOnSignal() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.log.Warn("interrupt received, finishing current operation")
		a.sup.StopAll()
		<-sigCh
		a.log.Error("second interrupt, exiting immediately")
		os.Exit(130)
	}()
}
