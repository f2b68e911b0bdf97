package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/filesync"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
	"zsxqsync/pkg/syncer"
	"zsxqsync/pkg/task"
)

var (
	filesMode       string
	filesPerPage    int
	filesNoDownload bool
	filesOrder      string
	filesLimit      int
	filesStart      string
	filesEnd        string
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Sync and download the group's file attachments",
	Long: `Collect file metadata from the group's file feed, then download the
bodies of files not yet on disk.

Collection modes mirror the topic sync:
  catchup  record only files newer than the local database (default)
  all      record the entire remaining file history
  window   record the files created inside [--start, --end]

Downloads dedupe against local disk: a file whose name and byte size
already match is skipped without a request. Use --no-download to only
refresh metadata.`,
	Example: `  # Record new files and download anything pending
  zsxqsync files

  # Metadata only
  zsxqsync files --no-download

  # Backfill all file history, most downloaded first, 50 at a time
  zsxqsync files --mode all --order downloads --limit 50`,
	RunE: runFiles,
}

func init() {
	rootCmd.AddCommand(filesCmd)

	filesCmd.Flags().StringVarP(&filesMode, "mode", "m", "catchup", "collection mode (catchup, all, window)")
	filesCmd.Flags().IntVar(&filesPerPage, "per-page", 0, "files per page (default from config)")
	filesCmd.Flags().BoolVar(&filesNoDownload, "no-download", false, "collect metadata without downloading bodies")
	filesCmd.Flags().StringVar(&filesOrder, "order", "ctime", "download order (ctime, downloads)")
	filesCmd.Flags().IntVar(&filesLimit, "limit", 0, "max downloads this run (0 = all pending)")
	filesCmd.Flags().StringVar(&filesStart, "start", "", "window start timestamp (window mode)")
	filesCmd.Flags().StringVar(&filesEnd, "end", "", "window end timestamp (window mode)")
}

func runFiles(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	perPage := a.cfg.Files.PerPage
	if filesPerPage > 0 {
		perPage = filesPerPage
	}

	var order storage.Order
	switch filesOrder {
	case "ctime":
		order = storage.OrderByCreateTime
	case "downloads":
		order = storage.OrderByDownloadCount
	default:
		return fmt.Errorf("unknown download order %q", filesOrder)
	}

	var start, end time.Time
	if filesMode == "window" {
		if filesStart == "" || filesEnd == "" {
			return fmt.Errorf("window mode requires --start and --end")
		}
		sc, err := cursor.Parse(filesStart)
		if err != nil {
			return err
		}
		ec, err := cursor.Parse(filesEnd)
		if err != nil {
			return err
		}
		start, end = sc.Time(), ec.Time()
	}

	store, err := storage.NewFileStore(a.cfg.Storage.FilesDBPath(a.cfg.Auth.GroupID))
	if err != nil {
		return err
	}
	defer store.Close()

	pacer, err := a.filePacer()
	if err != nil {
		return err
	}
	policy := retry.NewPolicy(a.cfg.Sync.MaxRetriesPerPage, a.log)

	a.stopOnSignal()
	id, err := a.sup.Launch(task.KindFiles, func(tok *clock.Token) syncer.Result {
		collector := filesync.NewCollector(a.client, store, pacer, policy, tok, a.log)

		var result syncer.Result
		switch filesMode {
		case "all":
			result = collector.CollectHistorical(perPage)
		case "window":
			result = collector.CollectWindow(start, end, perPage)
		case "catchup":
			result = collector.CollectCatchUp(perPage)
		default:
			return syncer.Result{
				State: syncer.StateFailed,
				Err:   fmt.Errorf("unknown collection mode %q", filesMode),
			}
		}
		if result.State != syncer.StateDone || filesNoDownload {
			return result
		}

		downloader := filesync.NewDownloader(a.client, store, pacer, policy, tok, a.cfg.Storage.DownloadDir, a.log)
		stats, err := downloader.Run(storage.PendingOptions{
			Limit: filesLimit,
			Order: order,
		})
		a.log.InfoWithFields("download summary", map[string]interface{}{
			"downloaded": stats.Downloaded,
			"skipped":    stats.Skipped,
			"failed":     stats.Failed,
		})
		if err == clock.ErrStopped {
			result.State = syncer.StateCancelled
		} else if err != nil {
			result.State = syncer.StateFailed
			result.Err = err
		}
		return result
	})
	if err != nil {
		return err
	}

	waitErr := a.sup.Wait()
	info, _ := a.sup.Snapshot(id)
	report(a, info)
	return waitErr
}
