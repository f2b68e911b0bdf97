package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenStopIsSticky(t *testing.T) {
	tok := NewToken()
	assert.False(t, tok.Stopped())

	tok.Stop()
	assert.True(t, tok.Stopped())

	// Second Stop is a no-op, not a panic.
	tok.Stop()
	assert.True(t, tok.Stopped())
}

func TestNilTokenNeverStops(t *testing.T) {
	var tok *Token
	assert.False(t, tok.Stopped())
}

func TestSleepCompletes(t *testing.T) {
	tok := NewToken()
	start := time.Now()
	assert.True(t, Sleep(tok, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleepInterrupted(t *testing.T) {
	tok := NewToken()
	go func() {
		time.Sleep(30 * time.Millisecond)
		tok.Stop()
	}()

	start := time.Now()
	assert.False(t, Sleep(tok, 5*time.Second))
	// The wake must be prompt, nowhere near the 5s the sleep asked for.
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSleepOnStoppedToken(t *testing.T) {
	tok := NewToken()
	tok.Stop()
	assert.False(t, Sleep(tok, time.Second))
}

func TestSleepZeroDuration(t *testing.T) {
	tok := NewToken()
	assert.True(t, Sleep(tok, 0))
	tok.Stop()
	assert.False(t, Sleep(tok, 0))
}
