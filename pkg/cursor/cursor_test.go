package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	const wire = "2024-03-01T08:15:30.123+0800"
	c, err := Parse(wire)
	require.NoError(t, err)
	assert.Equal(t, wire, c.String())
	assert.False(t, c.IsZero())
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2024-03-01", "not a time", "2024-03-01 08:15:30"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestZeroCursor(t *testing.T) {
	var c Cursor
	assert.True(t, c.IsZero())
	assert.Equal(t, "", c.String())
}

func TestAdvanceIsStrictlyOlder(t *testing.T) {
	const itemTime = "2024-03-01T08:15:30.123+0800"
	next, err := Advance(itemTime, DefaultOffset)
	require.NoError(t, err)

	item, err := Parse(itemTime)
	require.NoError(t, err)
	assert.True(t, next.Before(item), "advanced cursor must be older than the item it derived from")
	assert.Equal(t, time.Millisecond, item.Time().Sub(next.Time()))
}

func TestAdvanceCustomOffset(t *testing.T) {
	next, err := Advance("2024-03-01T08:15:30.000+0800", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T08:15:29.995+0800", next.String())
}

func TestStepBackCoarseSkip(t *testing.T) {
	c, err := Parse("2024-03-01T08:15:30.000+0800")
	require.NoError(t, err)
	skipped := c.StepBack(CoarseSkip)
	assert.Equal(t, "2024-03-01T07:15:30.000+0800", skipped.String())
}

func TestUnixMilliString(t *testing.T) {
	c := FromTime(time.UnixMilli(1709252130123))
	assert.Equal(t, "1709252130123", c.UnixMilliString())
}

func TestMonotonicAdvanceSequence(t *testing.T) {
	// A descending page walk must produce strictly decreasing cursors.
	times := []string{
		"2024-03-03T10:00:00.000+0800",
		"2024-03-02T10:00:00.000+0800",
		"2024-03-01T10:00:00.000+0800",
	}
	var prev Cursor
	for i, it := range times {
		next, err := Advance(it, DefaultOffset)
		require.NoError(t, err)
		if i > 0 {
			assert.True(t, next.Before(prev))
		}
		prev = next
	}
}
