package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/notify"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
	"zsxqsync/pkg/syncer"
	"zsxqsync/pkg/task"
)

var (
	syncMode    string
	syncPages   int
	syncPerPage int
	windowStart string
	windowEnd   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync topics from the group into the local database",
	Long: `Sync topics from the group's feed into the local SQLite database.

Modes:
  catchup  fetch only what is newer than the local database (default)
  bounded  fetch a fixed number of pages from the newest topic
  all      fetch the entire remaining history, resuming from the oldest
           stored topic
  window   fetch the topics created inside [--start, --end]

Every mode commits page by page, so an interrupted sync can simply be
rerun. Timestamps for --start/--end use the feed's own format, e.g.
2024-03-01T00:00:00.000+0800.`,
	Example: `  # Pull everything newer than the local database
  zsxqsync sync

  # First 50 pages of a group
  zsxqsync sync --mode bounded --pages 50 --group 48841215254128

  # Complete the historical backfill (resumable)
  zsxqsync sync --mode all

  # March 2024 only
  zsxqsync sync --mode window \
      --start 2024-03-01T00:00:00.000+0800 \
      --end   2024-03-31T23:59:59.999+0800`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncMode, "mode", "m", "catchup", "sync mode (catchup, bounded, all, window)")
	syncCmd.Flags().IntVar(&syncPages, "pages", 0, "page count for bounded mode (default from config)")
	syncCmd.Flags().IntVar(&syncPerPage, "per-page", 0, "topics per page (default from config)")
	syncCmd.Flags().StringVar(&windowStart, "start", "", "window start timestamp (window mode)")
	syncCmd.Flags().StringVar(&windowEnd, "end", "", "window end timestamp (window mode)")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	perPage := a.cfg.Sync.PerPage
	if syncPerPage > 0 {
		perPage = syncPerPage
	}
	pages := a.cfg.Sync.Pages
	if syncPages > 0 {
		pages = syncPages
	}

	var start, end time.Time
	if syncMode == "window" {
		if windowStart == "" || windowEnd == "" {
			return fmt.Errorf("window mode requires --start and --end")
		}
		sc, err := cursor.Parse(windowStart)
		if err != nil {
			return err
		}
		ec, err := cursor.Parse(windowEnd)
		if err != nil {
			return err
		}
		start, end = sc.Time(), ec.Time()
		if end.Before(start) {
			return fmt.Errorf("--end is before --start")
		}
	}

	store, err := storage.NewTopicStore(a.cfg.Storage.TopicsDBPath(a.cfg.Auth.GroupID))
	if err != nil {
		return err
	}
	defer store.Close()

	pacer, err := a.topicPacer()
	if err != nil {
		return err
	}
	policy := retry.NewPolicy(a.cfg.Sync.MaxRetriesPerPage, a.log)

	a.stopOnSignal()
	id, err := a.sup.Launch(task.KindTopics, func(tok *clock.Token) syncer.Result {
		session := syncer.NewSession(a.client, store, pacer, policy, tok, a.cfg.Sync.TimestampOffset(), a.log)
		switch syncMode {
		case "bounded":
			return session.SyncBounded(pages, perPage)
		case "all":
			return session.SyncExhaustive(perPage)
		case "window":
			return session.SyncWindow(start, end, perPage)
		case "catchup":
			return session.SyncCatchUp(perPage)
		default:
			return syncer.Result{
				State: syncer.StateFailed,
				Err:   fmt.Errorf("unknown sync mode %q", syncMode),
			}
		}
	})
	if err != nil {
		return err
	}

	waitErr := a.sup.Wait()
	info, _ := a.sup.Snapshot(id)
	report(a, info)

	if info.Result != nil && len(info.Result.NewTopics) > 0 && a.cfg.WeCom.Enabled && a.cfg.WeCom.WebhookURL != "" {
		notifier := notify.NewWeCom(a.cfg.WeCom.WebhookURL, a.log)
		notify.Push(notifier, a.log, notify.NewTopicsDigest(a.cfg.Auth.GroupID, info.Result.NewTopics))
	}

	return waitErr
}

// report prints the run summary and sets the exit code for non-done states.
func report(a *app, info task.Info) {
	if info.Result == nil {
		return
	}
	r := info.Result
	a.log.InfoWithFields("run summary", map[string]interface{}{
		"state":   string(r.State),
		"pages":   r.Stats.Pages,
		"new":     r.Stats.New,
		"updated": r.Stats.Updated,
		"skipped": r.Stats.Skipped,
		"errors":  r.Stats.Errors,
	})
	if r.Expired {
		a.log.Warn("membership has expired; stored content is complete up to the expiry point")
	}
	if r.State == syncer.StateCancelled {
		os.Exit(130)
	}
}
