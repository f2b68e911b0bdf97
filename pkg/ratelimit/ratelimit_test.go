package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zsxqsync/pkg/clock"
	"zsxqsync/pkg/logger"
)

func TestDelaySample(t *testing.T) {
	fixed := Fixed(2 * time.Second)
	assert.Equal(t, 2*time.Second, fixed.Sample())

	ranged := Between(time.Second, 3*time.Second)
	for i := 0; i < 100; i++ {
		d := ranged.Sample()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestNewPacerRejectsInvalidBounds(t *testing.T) {
	log := logger.Nop()

	_, err := NewPacer(Delay{Min: 2 * time.Second, Max: time.Second}, Fixed(0), 5, log)
	assert.Error(t, err)

	_, err = NewPacer(Delay{Min: -time.Second, Max: time.Second}, Fixed(0), 5, log)
	assert.Error(t, err)

	_, err = NewPacer(Fixed(0), Fixed(0), 0, log)
	assert.Error(t, err)
}

func TestBatchSleepFiresEveryN(t *testing.T) {
	p, err := NewPacer(Fixed(0), Fixed(time.Millisecond), 3, logger.Nop())
	require.NoError(t, err)
	tok := clock.NewToken()

	// Two operations: no long sleep yet, counter keeps climbing.
	assert.True(t, p.OperationDone(tok))
	assert.True(t, p.OperationDone(tok))
	assert.Equal(t, 2, p.Completed())

	// Third fires the long sleep and resets the counter.
	assert.True(t, p.OperationDone(tok))
	assert.Equal(t, 0, p.Completed())

	// The cycle repeats for the next batch.
	assert.True(t, p.OperationDone(tok))
	assert.Equal(t, 1, p.Completed())
}

func TestLongSleepInterruptible(t *testing.T) {
	p, err := NewPacer(Fixed(0), Fixed(5*time.Second), 1, logger.Nop())
	require.NoError(t, err)
	tok := clock.NewToken()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Stop()
	}()

	start := time.Now()
	assert.False(t, p.OperationDone(tok))
	assert.Less(t, time.Since(start), time.Second)
}

func TestPauseInterruptible(t *testing.T) {
	p, err := NewPacer(Fixed(5*time.Second), Fixed(0), 100, logger.Nop())
	require.NoError(t, err)
	tok := clock.NewToken()
	tok.Stop()
	assert.False(t, p.Pause(tok))
}
