// Package clock provides the stop token and interruptible sleep primitive
// shared by every delay in the sync engine.
package clock

import (
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by operations abandoned because the session's stop
// token was set. It is a clean exit, not a failure.
var ErrStopped = errors.New("session stopped")

// PollInterval bounds the worst-case stop latency of an in-progress sleep.
const PollInterval = 100 * time.Millisecond

// Token is a cooperative cancellation flag. It is set at most once per
// session lifetime by the task supervisor; the engine only reads it.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken returns a token in the running (not stopped) state.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Stop sets the flag. Safe to call more than once; later calls are no-ops.
func (t *Token) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Stopped reports whether Stop has been called. A nil token never stops.
func (t *Token) Stopped() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token is stopped.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Sleep waits for d or until tok is stopped, whichever comes first. It
// returns true if the full duration elapsed, false if the sleep was cut
// short. Sub-PollInterval latency: the wake is immediate on Stop.
func Sleep(tok *Token, d time.Duration) bool {
	if d <= 0 {
		return !tok.Stopped()
	}
	if tok == nil {
		time.Sleep(d)
		return true
	}
	if tok.Stopped() {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-tok.done:
		return false
	}
}
