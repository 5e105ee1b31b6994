package router

import (
	"sync"
	"time"
)

const (
	// maxTrackedSenders caps the sender table.
	maxTrackedSenders = 4096

	rateLimitWindow = time.Minute
)

type senderWindow struct {
	start time.Time
	count int
}

// senderLimiter counts remote commands per sender in fixed one-minute
// windows. Safe for concurrent use.
type senderLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*senderWindow
}

func newSenderLimiter() *senderLimiter {
	return &senderLimiter{now: time.Now, entries: make(map[string]*senderWindow)}
}

// allow reports whether sender may run another command. limit <= 0
// disables the check.
func (l *senderLimiter) allow(sender string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) >= maxTrackedSenders {
		for k, e := range l.entries {
			if now.Sub(e.start) >= rateLimitWindow {
				delete(l.entries, k)
			}
		}
		for len(l.entries) >= maxTrackedSenders {
			for k := range l.entries {
				delete(l.entries, k)
				break
			}
		}
	}

	e, ok := l.entries[sender]
	if !ok || now.Sub(e.start) >= rateLimitWindow {
		l.entries[sender] = &senderWindow{start: now, count: 1}
		return true
	}
	e.count++
	return e.count <= limit
}
