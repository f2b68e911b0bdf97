// Package filesync mirrors the group's file attachments: a Collector pulls
// file metadata from the remote feed into storage, and a Downloader fetches
// the bodies of pending records to local disk.
package filesync

import (
	"time"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
	"zsxqsync/pkg/syncer"
	"zsxqsync/pkg/zsxq"
)

// FileFeed is the slice of the API client the collector needs.
type FileFeed interface {
	FetchFilePage(tok *clock.Token, index string, count int, sort string) (*zsxq.FilePage, error)
}

// Collector walks the file feed and records metadata. Bodies are not
// fetched here; the Downloader works off the stored pending records.
type Collector struct {
	feed   FileFeed
	store  storage.FileGateway
	pacer  *ratelimit.Pacer
	policy *retry.Policy
	tok    *clock.Token
	log    logger.Logger
}

// NewCollector wires a collector.
func NewCollector(feed FileFeed, store storage.FileGateway, pacer *ratelimit.Pacer, policy *retry.Policy, tok *clock.Token, log logger.Logger) *Collector {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Collector{
		feed:   feed,
		store:  store,
		pacer:  pacer,
		policy: policy,
		tok:    tok,
		log:    log,
	}
}

// fetchPage fetches one file page with the graduated retry policy.
func (c *Collector) fetchPage(index string, perPage int, sort string, stats *syncer.Stats) (*zsxq.FilePage, error) {
	var st retry.State
	for {
		if c.tok.Stopped() {
			return nil, clock.ErrStopped
		}
		page, err := c.feed.FetchFilePage(c.tok, index, perPage, sort)
		if err == nil {
			return page, nil
		}
		if err == clock.ErrStopped {
			return nil, err
		}
		stats.Errors++
		action, wait := c.policy.Next(&st, err)
		if action != retry.ActionRetry {
			return nil, err
		}
		if !clock.Sleep(c.tok, wait) {
			return nil, clock.ErrStopped
		}
	}
}

func (c *Collector) pace() bool {
	if c.pacer == nil {
		return !c.tok.Stopped()
	}
	if !c.pacer.OperationDone(c.tok) {
		return false
	}
	return c.pacer.Pause(c.tok)
}

// result folds a fetch error into the run outcome.
func collectorResult(stats syncer.Stats, err error) syncer.Result {
	if err == clock.ErrStopped {
		return syncer.Result{State: syncer.StateCancelled, Stats: stats}
	}
	return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
}

// CollectCatchUp walks the by-creation-time feed from the newest file down
// until it meets what is already stored. A page with no unseen files closes
// the gap; an empty page means the feed ended.
func (c *Collector) CollectCatchUp(perPage int) syncer.Result {
	var stats syncer.Stats
	index := ""

	c.log.Info("starting file catch-up")

	for {
		page, err := c.fetchPage(index, perPage, zsxq.SortByCreateTime, &stats)
		if err != nil {
			return collectorResult(stats, err)
		}
		if len(page.Files) == 0 {
			c.log.Info("file catch-up reached end of feed")
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}

		pageNew := 0
		for _, entry := range page.Files {
			if c.tok.Stopped() {
				if err := c.store.Commit(); err != nil {
					return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
				}
				return syncer.Result{State: syncer.StateCancelled, Stats: stats}
			}
			exists, err := c.store.Exists(entry.File.ID)
			if err != nil {
				return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
			}
			if exists {
				stats.Skipped++
				continue
			}
			if _, err := c.store.Upsert(entry); err != nil {
				return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
			}
			stats.New++
			pageNew++
		}
		if err := c.store.Commit(); err != nil {
			return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
		}
		stats.Pages++

		if pageNew == 0 {
			c.log.InfoWithFields("file catch-up complete", map[string]interface{}{
				"new": stats.New,
			})
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}

		index = page.NextIndex
		if index == "" {
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}
		if !c.pace() {
			return syncer.Result{State: syncer.StateCancelled, Stats: stats}
		}
	}
}

// CollectHistorical walks the feed from the oldest stored file backward,
// resuming with the stored oldest creation time as the feed index. With an
// empty store it starts from the top.
func (c *Collector) CollectHistorical(perPage int) syncer.Result {
	var stats syncer.Stats
	index := ""

	rng, err := c.store.TimestampRange()
	if err != nil {
		return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
	}
	if rng.HasData {
		oldest, err := cursor.Parse(rng.Oldest)
		if err != nil {
			return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
		}
		index = oldest.UnixMilliString()
		c.log.InfoWithFields("resuming file collection", map[string]interface{}{
			"oldest_stored": rng.Oldest,
			"stored":        rng.Count,
		})
	} else {
		c.log.Info("starting file collection from newest")
	}

	for {
		page, err := c.fetchPage(index, perPage, zsxq.SortByCreateTime, &stats)
		if err != nil {
			return collectorResult(stats, err)
		}
		if len(page.Files) == 0 {
			c.log.InfoWithFields("file collection complete", map[string]interface{}{
				"pages": stats.Pages,
				"new":   stats.New,
			})
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}

		for _, entry := range page.Files {
			if c.tok.Stopped() {
				if err := c.store.Commit(); err != nil {
					return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
				}
				return syncer.Result{State: syncer.StateCancelled, Stats: stats}
			}
			wasNew, err := c.store.Upsert(entry)
			if err != nil {
				return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
			}
			if wasNew {
				stats.New++
			} else {
				stats.Updated++
			}
		}
		if err := c.store.Commit(); err != nil {
			return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
		}
		stats.Pages++

		index = page.NextIndex
		if index == "" {
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}
		if !c.pace() {
			return syncer.Result{State: syncer.StateCancelled, Stats: stats}
		}
	}
}

// CollectWindow records the files created within [start, end]. It pages
// down the by-creation-time feed and stops once a page reaches below start.
func (c *Collector) CollectWindow(start, end time.Time, perPage int) syncer.Result {
	var stats syncer.Stats
	index := ""

	c.log.InfoWithFields("starting windowed file collection", map[string]interface{}{
		"start": start.Format(cursor.Layout),
		"end":   end.Format(cursor.Layout),
	})

	for {
		page, err := c.fetchPage(index, perPage, zsxq.SortByCreateTime, &stats)
		if err != nil {
			return collectorResult(stats, err)
		}
		if len(page.Files) == 0 {
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}

		crossed := false
		stored := 0
		for _, entry := range page.Files {
			if c.tok.Stopped() {
				if err := c.store.Commit(); err != nil {
					return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
				}
				return syncer.Result{State: syncer.StateCancelled, Stats: stats}
			}
			tc, err := cursor.Parse(entry.File.CreateTime)
			if err != nil {
				return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
			}
			t := tc.Time()
			if t.Before(start) {
				crossed = true
				continue
			}
			if t.After(end) {
				stats.Skipped++
				continue
			}
			wasNew, err := c.store.Upsert(entry)
			if err != nil {
				return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
			}
			if wasNew {
				stats.New++
			} else {
				stats.Updated++
			}
			stored++
		}
		if err := c.store.Commit(); err != nil {
			return syncer.Result{State: syncer.StateFailed, Stats: stats, Err: err}
		}
		if stored > 0 {
			stats.Pages++
		}

		if crossed {
			c.log.InfoWithFields("windowed file collection complete", map[string]interface{}{
				"new": stats.New,
			})
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}

		index = page.NextIndex
		if index == "" {
			return syncer.Result{State: syncer.StateDone, Stats: stats}
		}
		if !c.pace() {
			return syncer.Result{State: syncer.StateCancelled, Stats: stats}
		}
	}
}
