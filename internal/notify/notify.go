// Package notify delivers local-only notices to the operator. Nothing here
// is ever sent to a public channel.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level of a notice.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is one local message.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is what modules and the router use to talk to the operator.
type Notifier interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

const defaultCapacity = 100

// Local keeps the most recent notices in a ring buffer and mirrors them to
// slog. Debug notices are dropped unless debugEnabled reports true.
type Local struct {
	mu           sync.Mutex
	buf          []Notice
	next         int
	full         bool
	debugEnabled func() bool
	sink         func(Notice)
}

// NewLocal creates a notifier. debugEnabled may be nil (debug off).
func NewLocal(debugEnabled func() bool) *Local {
	return &Local{
		buf:          make([]Notice, defaultCapacity),
		debugEnabled: debugEnabled,
	}
}

// SetSink registers an extra consumer (e.g. the host adapter's ephemeral
// message display). Called outside the lock.
func (l *Local) SetSink(fn func(Notice)) {
	l.mu.Lock()
	l.sink = fn
	l.mu.Unlock()
}

func (l *Local) Debug(msg string) {
	if l.debugEnabled == nil || !l.debugEnabled() {
		return
	}
	l.push(LevelDebug, msg)
}

func (l *Local) Info(msg string)  { l.push(LevelInfo, msg) }
func (l *Local) Warn(msg string)  { l.push(LevelWarn, msg) }
func (l *Local) Error(msg string) { l.push(LevelError, msg) }

func (l *Local) push(level Level, msg string) {
	n := Notice{Level: level, Message: msg, At: time.Now()}

	l.mu.Lock()
	l.buf[l.next] = n
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	sink := l.sink
	l.mu.Unlock()

	slog.Info("notice", "level", string(level), "message", msg)
	if sink != nil {
		sink(n)
	}
}

// Recent returns up to limit notices, oldest first. limit <= 0 returns all.
func (l *Local) Recent(limit int) []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Notice
	if l.full {
		out = append(out, l.buf[l.next:]...)
	}
	out = append(out, l.buf[:l.next]...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns how many notices are buffered.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}
