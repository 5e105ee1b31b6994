// Package tasks owns every timer in the process: periodic jobs on a cron
// runner and one-shot deferred jobs. Handles are keyed by string so a
// channel's timers can be cancelled together by prefix.
package tasks

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs keyed periodic and one-shot tasks.
// Scheduling under an existing key replaces the previous task.
type Scheduler struct {
	mu          sync.Mutex
	cron        *cron.Cron
	cronEntries map[string]cron.EntryID
	timers      map[string]*timerEntry
	seq         uint64
}

type timerEntry struct {
	timer *time.Timer
	seq   uint64
}

// New creates a scheduler and starts its cron runner.
func New() *Scheduler {
	s := &Scheduler{
		cron:        cron.New(),
		cronEntries: make(map[string]cron.EntryID),
		timers:      make(map[string]*timerEntry),
	}
	s.cron.Start()
	return s
}

// Every runs fn every d (rounded to whole seconds, minimum 1s).
func (s *Scheduler) Every(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(key)
	s.cronEntries[key] = s.cron.Schedule(cron.Every(d), cron.FuncJob(guard(key, fn)))
}

// Cron runs fn on a standard 5-field cron expression.
func (s *Scheduler) Cron(key, spec string, fn func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(key)
	s.cronEntries[key] = s.cron.Schedule(schedule, cron.FuncJob(guard(key, fn)))
	return nil
}

// After runs fn once after d.
func (s *Scheduler) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(key)
	s.seq++
	seq := s.seq
	run := guard(key, fn)
	entry := &timerEntry{seq: seq}
	entry.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		if cur, ok := s.timers[key]; ok && cur.seq == seq {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		run()
	})
	s.timers[key] = entry
}

// Has reports whether a task is registered under key.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, periodic := s.cronEntries[key]
	_, deferred := s.timers[key]
	return periodic || deferred
}

// Next returns the next run time of a periodic task.
func (s *Scheduler) Next(key string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.cronEntries[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Cancel removes the task under key. Unknown keys are ignored.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(key)
}

// CancelPrefix removes every task whose key starts with prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.cronEntries {
		if strings.HasPrefix(key, prefix) {
			s.cancelLocked(key)
			n++
		}
	}
	for key := range s.timers {
		if strings.HasPrefix(key, prefix) {
			s.cancelLocked(key)
			n++
		}
	}
	return n
}

// CancelAll removes every task. The scheduler stays usable.
func (s *Scheduler) CancelAll() {
	s.CancelPrefix("")
}

// Close cancels everything and stops the cron runner, waiting for running
// periodic jobs to return.
func (s *Scheduler) Close() {
	s.CancelAll()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) cancelLocked(key string) {
	if id, ok := s.cronEntries[key]; ok {
		s.cron.Remove(id)
		delete(s.cronEntries, key)
	}
	if t, ok := s.timers[key]; ok {
		t.timer.Stop()
		delete(s.timers, key)
	}
}

func guard(key string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("task panicked", "key", key, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}
}
