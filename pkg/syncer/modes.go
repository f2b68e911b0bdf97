package syncer

import (
	"time"

	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/zsxq"
)

// emptyStreakLimit ends an exhaustive run after this many consecutive empty
// pages. One empty page can be a transient feed hiccup; three in a row from
// ever-older cursors means the history is exhausted.
const emptyStreakLimit = 3

// SyncBounded crawls a fixed number of pages from the newest topic downward.
// An empty page means the feed ended early and the run is done. Retry
// exhaustion fails the run: a bounded crawl promises contiguous coverage, so
// it cannot skip over a hole.
func (s *Session) SyncBounded(pages, perPage int) Result {
	var stats Stats
	var cur cursor.Cursor

	s.log.InfoWithFields("starting bounded sync", map[string]interface{}{
		"pages":    pages,
		"per_page": perPage,
	})

	for i := 0; i < pages; i++ {
		page, outcome, err := s.fetchPage(cur, perPage, &stats)
		switch outcome {
		case pageCancelled:
			return cancelled(stats)
		case pageExpired:
			return expired(stats)
		case pageAbort, pageGiveUp:
			return failed(stats, err)
		}

		if len(page.Topics) == 0 {
			s.log.Info("feed exhausted before page budget")
			return Result{State: StateDone, Stats: stats}
		}

		ok, err := s.storePage(page, &stats)
		if err != nil {
			return failed(stats, err)
		}
		if !ok {
			return cancelled(stats)
		}

		// A page below the requested size is the feed's tail; requesting
		// past it would only confirm emptiness at the remote's expense.
		if len(page.Topics) < perPage {
			s.log.Info("feed exhausted before page budget")
			return Result{State: StateDone, Stats: stats}
		}

		cur, err = s.advance(page)
		if err != nil {
			return failed(stats, err)
		}

		if i < pages-1 && !s.pace() {
			return cancelled(stats)
		}
	}

	s.log.InfoWithFields("bounded sync complete", map[string]interface{}{
		"pages": stats.Pages,
		"new":   stats.New,
	})
	return Result{State: StateDone, Stats: stats}
}

// SyncExhaustive crawls from the oldest stored topic back to the beginning
// of the group's history. With nothing stored it starts from the newest.
// Retry exhaustion coarse-skips the cursor one hour older and keeps going:
// losing one hour of history beats abandoning the rest.
func (s *Session) SyncExhaustive(perPage int) Result {
	var stats Stats
	var cur cursor.Cursor

	rng, err := s.store.TimestampRange()
	if err != nil {
		return failed(stats, err)
	}
	if rng.HasData {
		resume, err := cursor.Advance(rng.Oldest, s.offset)
		if err != nil {
			return failed(stats, err)
		}
		cur = resume
		s.log.InfoWithFields("resuming exhaustive sync", map[string]interface{}{
			"oldest_stored": rng.Oldest,
			"stored":        rng.Count,
		})
	} else {
		s.log.Info("starting exhaustive sync from newest")
	}

	emptyStreak := 0
	for {
		page, outcome, err := s.fetchPage(cur, perPage, &stats)
		switch outcome {
		case pageCancelled:
			return cancelled(stats)
		case pageExpired:
			return expired(stats)
		case pageAbort:
			return failed(stats, err)
		case pageGiveUp:
			cur = s.coarseSkip(cur)
			if !s.pace() {
				return cancelled(stats)
			}
			continue
		}

		if len(page.Topics) == 0 {
			emptyStreak++
			if emptyStreak >= emptyStreakLimit {
				s.log.InfoWithFields("exhaustive sync complete", map[string]interface{}{
					"pages": stats.Pages,
					"new":   stats.New,
				})
				return Result{State: StateDone, Stats: stats}
			}
			// Probe further back before concluding the history ended.
			cur = s.coarseSkip(cur)
			if !s.pace() {
				return cancelled(stats)
			}
			continue
		}
		emptyStreak = 0

		ok, err := s.storePage(page, &stats)
		if err != nil {
			return failed(stats, err)
		}
		if !ok {
			return cancelled(stats)
		}

		cur, err = s.advance(page)
		if err != nil {
			return failed(stats, err)
		}

		if !s.pace() {
			return cancelled(stats)
		}
	}
}

// SyncCatchUp crawls from the newest topic down until it meets what is
// already stored. Only unseen topics are written; a page where every topic
// is already known means the gap is closed. With an empty store it degrades
// to a full crawl of the feed. The newly stored topics are returned in feed
// order, newest first.
func (s *Session) SyncCatchUp(perPage int) Result {
	var stats Stats
	var cur cursor.Cursor
	var newTopics []zsxq.Topic

	s.log.Info("starting catch-up sync")

	for {
		page, outcome, err := s.fetchPage(cur, perPage, &stats)
		switch outcome {
		case pageCancelled:
			return Result{State: StateCancelled, Stats: stats, NewTopics: newTopics}
		case pageExpired:
			return Result{State: StateDone, Expired: true, Stats: stats, NewTopics: newTopics}
		case pageAbort, pageGiveUp:
			return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
		}

		if len(page.Topics) == 0 {
			s.log.Info("catch-up reached end of feed")
			return Result{State: StateDone, Stats: stats, NewTopics: newTopics}
		}

		pageNew := 0
		for _, topic := range page.Topics {
			if s.tok.Stopped() {
				if err := s.store.Commit(); err != nil {
					return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
				}
				return Result{State: StateCancelled, Stats: stats, NewTopics: newTopics}
			}
			exists, err := s.store.Exists(topic.ID)
			if err != nil {
				return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
			}
			if exists {
				stats.Skipped++
				continue
			}
			if _, err := s.store.Upsert(topic); err != nil {
				return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
			}
			stats.New++
			pageNew++
			newTopics = append(newTopics, topic)
		}
		if err := s.store.Commit(); err != nil {
			return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
		}
		stats.Pages++

		if pageNew == 0 {
			s.log.InfoWithFields("catch-up complete", map[string]interface{}{
				"new": stats.New,
			})
			return Result{State: StateDone, Stats: stats, NewTopics: newTopics}
		}

		cur, err = s.advance(page)
		if err != nil {
			return Result{State: StateFailed, Stats: stats, NewTopics: newTopics, Err: err}
		}

		if !s.pace() {
			return Result{State: StateCancelled, Stats: stats, NewTopics: newTopics}
		}
	}
}

// SyncWindow crawls the topics created within [start, end], inclusive. It
// pages down from end and stops once a page reaches below start. Like the
// exhaustive mode it coarse-skips over pages whose retries are exhausted.
func (s *Session) SyncWindow(start, end time.Time, perPage int) Result {
	var stats Stats
	// One millisecond past end so a topic created exactly at end is inside
	// the boundary the remote applies strictly.
	cur := cursor.FromTime(end.Add(time.Millisecond))

	s.log.InfoWithFields("starting windowed sync", map[string]interface{}{
		"start": start.Format(cursor.Layout),
		"end":   end.Format(cursor.Layout),
	})

	for {
		if cur.Time().Before(start) {
			break
		}

		page, outcome, err := s.fetchPage(cur, perPage, &stats)
		switch outcome {
		case pageCancelled:
			return cancelled(stats)
		case pageExpired:
			return expired(stats)
		case pageAbort:
			return failed(stats, err)
		case pageGiveUp:
			cur = s.coarseSkip(cur)
			if !s.pace() {
				return cancelled(stats)
			}
			continue
		}

		if len(page.Topics) == 0 {
			s.log.Info("windowed sync reached end of feed")
			return Result{State: StateDone, Stats: stats}
		}

		crossed := false
		stored := 0
		for _, topic := range page.Topics {
			if s.tok.Stopped() {
				if err := s.store.Commit(); err != nil {
					return failed(stats, err)
				}
				return cancelled(stats)
			}
			tc, err := cursor.Parse(topic.CreateTime)
			if err != nil {
				return failed(stats, err)
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
			wasNew, err := s.store.Upsert(topic)
			if err != nil {
				return failed(stats, err)
			}
			if wasNew {
				stats.New++
			} else {
				stats.Updated++
			}
			stored++
		}
		if err := s.store.Commit(); err != nil {
			return failed(stats, err)
		}
		if stored > 0 {
			stats.Pages++
		}

		if crossed {
			break
		}

		cur, err = s.advance(page)
		if err != nil {
			return failed(stats, err)
		}

		if !s.pace() {
			return cancelled(stats)
		}
	}

	s.log.InfoWithFields("windowed sync complete", map[string]interface{}{
		"pages": stats.Pages,
		"new":   stats.New,
	})
	return Result{State: StateDone, Stats: stats}
}

// coarseSkip jumps the cursor an hour older to step over a region the
// remote refuses to serve. A zero cursor skips back from now.
func (s *Session) coarseSkip(cur cursor.Cursor) cursor.Cursor {
	base := cur
	if base.IsZero() {
		base = cursor.FromTime(time.Now())
	}
	next := base.StepBack(cursor.CoarseSkip)
	s.log.WarnWithFields("coarse-skipping failing region", map[string]interface{}{
		"from": base.String(),
		"to":   next.String(),
	})
	return next
}
