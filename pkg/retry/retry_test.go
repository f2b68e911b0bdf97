package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zsxqsync/pkg/apierr"
	"zsxqsync/pkg/logger"
)

func TestGraduatedBackoffLadder(t *testing.T) {
	b := DefaultGraduatedBackoff()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 2 * time.Second},
		{3, 2 * time.Second},
		{4, 5 * time.Second},
		{6, 5 * time.Second},
		{7, 10 * time.Second},
		{10, 10 * time.Second},
		{15, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Equal(t, time.Duration(0), b.NextDelay(0))
}

func TestPolicyRetriesUntilExhausted(t *testing.T) {
	p := NewPolicy(10, logger.Nop())
	var st State
	throttled := apierr.FromRemoteCode(apierr.CodeRateLimited, "slow down")

	// Attempts 1 through 9 retry; the 10th gives up.
	for i := 1; i < 10; i++ {
		action, wait := p.Next(&st, throttled)
		assert.Equal(t, ActionRetry, action, "attempt %d", i)
		assert.Greater(t, wait, time.Duration(0))
	}
	action, wait := p.Next(&st, throttled)
	assert.Equal(t, ActionGiveUp, action)
	assert.Equal(t, time.Duration(0), wait)
	assert.Equal(t, 10, st.Attempts)
}

func TestPolicyExpiredEndsImmediately(t *testing.T) {
	p := NewPolicy(10, logger.Nop())
	var st State
	action, _ := p.Next(&st, apierr.FromRemoteCode(apierr.CodeMembershipExpired, "expired"))
	assert.Equal(t, ActionExpired, action)
	assert.Equal(t, 1, st.Attempts)
}

func TestPolicyFatalAborts(t *testing.T) {
	p := NewPolicy(10, logger.Nop())
	var st State
	action, _ := p.Next(&st, apierr.FromHTTPStatus(403, "forbidden"))
	assert.Equal(t, ActionAbort, action)
}

func TestPolicyPlainErrorIsTransient(t *testing.T) {
	p := NewPolicy(10, logger.Nop())
	var st State
	action, _ := p.Next(&st, errors.New("connection reset"))
	assert.Equal(t, ActionRetry, action)
}

func TestPolicyDefaultCap(t *testing.T) {
	p := NewPolicy(0, logger.Nop())
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts())
}

func TestStateReset(t *testing.T) {
	st := State{Attempts: 7, TotalWait: time.Minute}
	st.Reset()
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, time.Duration(0), st.TotalWait)
}
