// Package retry decides what to do with a failed page attempt: retry with a
// graduated wait, abort the session, or give the page up.
package retry

import (
	"time"

	"zsxqsync/pkg/apierr"
	"zsxqsync/pkg/logger"
)

// DefaultMaxAttempts is the per-page attempt cap.
const DefaultMaxAttempts = 10

// BackoffStrategy produces the wait before the next attempt.
type BackoffStrategy interface {
	// NextDelay returns the wait for a 1-based attempt number.
	NextDelay(attempt int) time.Duration
}

// GraduatedBackoff waits longer as attempts accumulate within one page:
// a few short waits first, then progressively longer ones.
type GraduatedBackoff struct {
	Steps []Step
}

// Step maps attempts up to and including UpTo onto Wait. The last step's
// Wait also covers attempts beyond it.
type Step struct {
	UpTo int
	Wait time.Duration
}

// DefaultGraduatedBackoff returns the ladder used against the remote
// rate limiter: attempts 1-3 wait 2s, 4-6 wait 5s, 7+ wait 10s.
func DefaultGraduatedBackoff() *GraduatedBackoff {
	return &GraduatedBackoff{
		Steps: []Step{
			{UpTo: 3, Wait: 2 * time.Second},
			{UpTo: 6, Wait: 5 * time.Second},
			{UpTo: DefaultMaxAttempts, Wait: 10 * time.Second},
		},
	}
}

// NextDelay returns the graduated wait for the given attempt.
func (g *GraduatedBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 || len(g.Steps) == 0 {
		return 0
	}
	for _, step := range g.Steps {
		if attempt <= step.UpTo {
			return step.Wait
		}
	}
	return g.Steps[len(g.Steps)-1].Wait
}

// Action is the policy's verdict on a failed attempt.
type Action int

const (
	// ActionRetry retries the page after the returned wait.
	ActionRetry Action = iota
	// ActionGiveUp abandons the page: attempts are exhausted. The mode
	// decides whether that aborts the session or coarse-skips the cursor.
	ActionGiveUp
	// ActionAbort ends the session with a non-retryable error.
	ActionAbort
	// ActionExpired ends the session because remote access has expired.
	ActionExpired
)

// State tracks retries within the current page. Reset at page start.
type State struct {
	Attempts  int
	LastClass apierr.Class
	TotalWait time.Duration
}

// Reset zeroes the state for a new page.
func (s *State) Reset() {
	*s = State{}
}

// Policy classifies failed attempts and produces the next wait.
type Policy struct {
	maxAttempts int
	backoff     BackoffStrategy
	log         logger.Logger
}

// NewPolicy builds a policy with the default graduated backoff.
// maxAttempts <= 0 selects the default cap.
func NewPolicy(maxAttempts int, log logger.Logger) *Policy {
	return NewPolicyWithBackoff(maxAttempts, DefaultGraduatedBackoff(), log)
}

// NewPolicyWithBackoff builds a policy with a custom backoff strategy.
func NewPolicyWithBackoff(maxAttempts int, backoff BackoffStrategy, log logger.Logger) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Policy{
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log,
	}
}

// MaxAttempts returns the per-page attempt cap.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Next records one failed attempt and returns the verdict plus the wait to
// apply before retrying (zero unless the verdict is ActionRetry).
func (p *Policy) Next(st *State, err error) (Action, time.Duration) {
	st.Attempts++
	st.LastClass = apierr.ClassOf(err)

	switch st.LastClass {
	case apierr.ClassTerminal:
		p.log.WithError(err).Warn("remote access expired, aborting session")
		return ActionExpired, 0
	case apierr.ClassFatal:
		p.log.WithError(err).Error("non-retryable failure, aborting session")
		return ActionAbort, 0
	}

	if st.Attempts >= p.maxAttempts {
		p.log.ErrorWithFields("page retries exhausted", map[string]interface{}{
			"attempts":   st.Attempts,
			"last_error": err.Error(),
		})
		return ActionGiveUp, 0
	}

	wait := p.backoff.NextDelay(st.Attempts)
	st.TotalWait += wait
	p.log.WarnWithFields("retrying page", map[string]interface{}{
		"attempt":      st.Attempts,
		"max_attempts": p.maxAttempts,
		"wait":         wait,
		"error":        err.Error(),
	})
	return ActionRetry, wait
}
