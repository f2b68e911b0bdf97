// Package cursor implements the descending timestamp boundary used to
// paginate the remote feed.
package cursor

import (
	"fmt"
	"strconv"
	"time"
)

// Layout is the wire format of a cursor, e.g. "2024-03-01T08:15:30.123+0800".
const Layout = "2006-01-02T15:04:05.000-0700"

// DefaultOffset is subtracted from the oldest item's timestamp when
// advancing, so the boundary item itself is not fetched again.
const DefaultOffset = time.Millisecond

// CoarseSkip is the jump applied to step over a persistently failing time
// region instead of aborting (exhaustive and windowed modes only).
const CoarseSkip = time.Hour

// Cursor marks "strictly older than this point". The zero value means
// "start from now" (no boundary sent to the remote).
type Cursor struct {
	t time.Time
}

// Parse decodes a wire-format cursor.
func Parse(s string) (Cursor, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor %q: %w", s, err)
	}
	return Cursor{t: t}, nil
}

// FromTime builds a cursor from a timestamp.
func FromTime(t time.Time) Cursor {
	return Cursor{t: t}
}

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c.t.IsZero()
}

// String renders the wire format. Empty for the zero cursor.
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	return c.t.Format(Layout)
}

// Time returns the underlying timestamp.
func (c Cursor) Time() time.Time {
	return c.t
}

// StepBack returns a cursor d earlier.
func (c Cursor) StepBack(d time.Duration) Cursor {
	return Cursor{t: c.t.Add(-d)}
}

// Before reports whether c is strictly older than other.
func (c Cursor) Before(other Cursor) bool {
	return c.t.Before(other.t)
}

// UnixMilliString renders the cursor as a millisecond epoch, the index
// format of the file feed.
func (c Cursor) UnixMilliString() string {
	return strconv.FormatInt(c.t.UnixMilli(), 10)
}

// Advance derives the next page boundary from the oldest item's timestamp,
// applying the configured negative offset.
func Advance(itemTime string, offset time.Duration) (Cursor, error) {
	c, err := Parse(itemTime)
	if err != nil {
		return Cursor{}, err
	}
	return c.StepBack(offset), nil
}
