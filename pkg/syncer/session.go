// Package syncer implements the incremental topic crawl. A Session owns one
// crawl run: it walks the descending-time feed page by page, retries failed
// pages with graduated waits, paces itself against the remote rate limiter,
// and commits each page before moving on.
package syncer

import (
	"time"

	"zsxqsync/pkg/apierr"
	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/cursor"
	"zsxqsync/pkg/logger"
	"zsxqsync/pkg/ratelimit"
	"zsxqsync/pkg/retry"
	"zsxqsync/pkg/storage"
	"zsxqsync/pkg/zsxq"
)

// TopicFetcher is the slice of the API client the engine needs.
type TopicFetcher interface {
	FetchTopicPage(tok *clock.Token, cur cursor.Cursor, count int, scope string) (*zsxq.TopicPage, error)
}

// State is the terminal state of a sync run.
type State string

const (
	// StateDone means the run reached its natural end.
	StateDone State = "done"
	// StateFailed means a page could not be fetched and the mode does not
	// skip over failures.
	StateFailed State = "failed"
	// StateCancelled means the stop token ended the run early. Everything
	// committed before the stop is kept.
	StateCancelled State = "cancelled"
)

// Stats accumulates over one run. Errors counts failed attempts, not failed
// pages, so ten retries of one page show up as ten.
type Stats struct {
	Pages   int
	New     int
	Updated int
	Skipped int
	Errors  int
}

// Result is the outcome of one run.
type Result struct {
	State State
	// Expired is set when the remote reported membership expiry. The run
	// still ends cleanly with everything stored so far.
	Expired bool
	Stats   Stats
	// NewTopics carries the newly stored topics in feed order. Only
	// catch-up runs populate it.
	NewTopics []zsxq.Topic
	// Err is set for StateFailed.
	Err error
}

// Session is one crawl run's mutable state. Not safe for concurrent use;
// the task supervisor gives each run its own session.
type Session struct {
	client TopicFetcher
	store  storage.TopicGateway
	pacer  *ratelimit.Pacer
	policy *retry.Policy
	tok    *clock.Token
	offset time.Duration
	log    logger.Logger
}

// NewSession wires a session. offset <= 0 selects the default cursor
// advance offset.
func NewSession(client TopicFetcher, store storage.TopicGateway, pacer *ratelimit.Pacer, policy *retry.Policy, tok *clock.Token, offset time.Duration, log logger.Logger) *Session {
	if offset <= 0 {
		offset = cursor.DefaultOffset
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		client: client,
		store:  store,
		pacer:  pacer,
		policy: policy,
		tok:    tok,
		offset: offset,
		log:    log,
	}
}

// pageOutcome is the verdict of one fetch-with-retry cycle.
type pageOutcome int

const (
	pageOK pageOutcome = iota
	pageGiveUp
	pageAbort
	pageExpired
	pageCancelled
)

// fetchPage fetches one page, retrying per the policy. stats.Errors grows by
// one per failed attempt. On pageAbort the causing error is returned.
func (s *Session) fetchPage(cur cursor.Cursor, perPage int, stats *Stats) (*zsxq.TopicPage, pageOutcome, error) {
	var st retry.State
	for {
		if s.tok.Stopped() {
			return nil, pageCancelled, nil
		}

		page, err := s.client.FetchTopicPage(s.tok, cur, perPage, zsxq.ScopeAll)
		if err == nil {
			return page, pageOK, nil
		}
		if err == clock.ErrStopped {
			return nil, pageCancelled, nil
		}

		stats.Errors++
		action, wait := s.policy.Next(&st, err)
		switch action {
		case retry.ActionExpired:
			return nil, pageExpired, nil
		case retry.ActionAbort:
			return nil, pageAbort, err
		case retry.ActionGiveUp:
			return nil, pageGiveUp, err
		}
		if !clock.Sleep(s.tok, wait) {
			return nil, pageCancelled, nil
		}
	}
}

// storePage upserts every topic of the page and commits once. Returns false
// if the stop token interrupted the item loop; the partial page is still
// committed.
func (s *Session) storePage(page *zsxq.TopicPage, stats *Stats) (bool, error) {
	for _, topic := range page.Topics {
		if s.tok.Stopped() {
			if err := s.store.Commit(); err != nil {
				return false, err
			}
			return false, nil
		}
		wasNew, err := s.store.Upsert(topic)
		if err != nil {
			return false, err
		}
		if wasNew {
			stats.New++
		} else {
			stats.Updated++
		}
	}
	if err := s.store.Commit(); err != nil {
		return false, err
	}
	stats.Pages++
	return true, nil
}

// pace applies the inter-page delay and the batch long-sleep. Returns false
// if a sleep was interrupted.
func (s *Session) pace() bool {
	if s.pacer == nil {
		return !s.tok.Stopped()
	}
	if !s.pacer.OperationDone(s.tok) {
		return false
	}
	return s.pacer.Pause(s.tok)
}

// advance derives the next cursor from the page's oldest item. A parse
// failure on the remote timestamp is not retryable.
func (s *Session) advance(page *zsxq.TopicPage) (cursor.Cursor, error) {
	oldest := page.Oldest()
	next, err := cursor.Advance(oldest.CreateTime, s.offset)
	if err != nil {
		return cursor.Cursor{}, &apierr.Error{
			Kind:    apierr.KindParsing,
			Message: err.Error(),
		}
	}
	return next, nil
}

func cancelled(stats Stats) Result {
	return Result{State: StateCancelled, Stats: stats}
}

func failed(stats Stats, err error) Result {
	return Result{State: StateFailed, Stats: stats, Err: err}
}

func expired(stats Stats) Result {
	return Result{State: StateDone, Expired: true, Stats: stats}
}
