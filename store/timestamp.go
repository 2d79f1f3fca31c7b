package store

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing timestamps at microsecond precision so
// messages written back to back still sort in insertion order.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// FormatTimestamp renders t as a sortable string key.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
