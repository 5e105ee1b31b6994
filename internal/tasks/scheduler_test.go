package tasks

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAfter_Fires(t *testing.T) {
	s := New()
	defer s.Close()

	done := make(chan struct{})
	s.After("k", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire")
	}
	// Entry is removed once fired.
	deadline := time.Now().Add(time.Second)
	for s.Has("k") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.Has("k") {
		t.Error("fired one-shot task still registered")
	}
}

func TestAfter_ReplaceCancelsPrevious(t *testing.T) {
	s := New()
	defer s.Close()

	var first, second atomic.Int32
	s.After("k", 30*time.Millisecond, func() { first.Add(1) })
	s.After("k", 30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if first.Load() != 0 {
		t.Errorf("replaced task fired %d times", first.Load())
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}

func TestCancelPrefix(t *testing.T) {
	s := New()
	defer s.Close()

	var fired atomic.Int32
	s.After("chan:1:vote:a", 20*time.Millisecond, func() { fired.Add(1) })
	s.After("chan:1:cleanup", 20*time.Millisecond, func() { fired.Add(1) })
	s.Every("chan:1:rotate", time.Hour, func() { fired.Add(1) })
	s.After("chan:2:cleanup", 20*time.Millisecond, func() { fired.Add(1) })

	if n := s.CancelPrefix("chan:1:"); n != 3 {
		t.Errorf("CancelPrefix removed %d, want 3", n)
	}
	if s.Has("chan:1:rotate") {
		t.Error("periodic task survived CancelPrefix")
	}

	time.Sleep(120 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want only chan:2 task", fired.Load())
	}
}

func TestCron_InvalidSpec(t *testing.T) {
	s := New()
	defer s.Close()

	if err := s.Cron("k", "not a cron", func() {}); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Cron("k", "*/5 * * * *", func() {}); err != nil {
		t.Fatalf("valid spec: %v", err)
	}
	if _, ok := s.Next("k"); !ok {
		t.Error("Next should report the scheduled entry")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := New()
	defer s.Close()

	done := make(chan struct{})
	s.After("boom", time.Millisecond, func() { panic("x") })
	s.After("after", 20*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler stopped working after a panic")
	}
}
