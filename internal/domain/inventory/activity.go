package inventory

import (
	"fmt"
	"sync"
	"time"
)

// Activity is one human-readable record of a successful addition.
type Activity struct {
	ID   string
	At   time.Time
	Text string
}

// ActivityLog is a caller-owned, append-only record of additions. It is never persisted.
type ActivityLog struct {
	mu      sync.Mutex
	entries []Activity
}

// RecordAddition appends "<timestamp>: Added <n> of <item>".
func (l *ActivityLog) RecordAddition(id string, at time.Time, item string, quantity int) Activity {
	a := Activity{
		ID:   id,
		At:   at,
		Text: fmt.Sprintf("%s: Added %d of %s", at.Format(time.RFC3339Nano), quantity, item),
	}
	l.mu.Lock()
	l.entries = append(l.entries, a)
	l.mu.Unlock()
	return a
}

// Entries returns a copy of the recorded activities, oldest first.
func (l *ActivityLog) Entries() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Activity(nil), l.entries...)
}

func (l *ActivityLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
