package notify

import (
	"fmt"
	"testing"
)

func TestLocal_DebugGated(t *testing.T) {
	debug := false
	l := NewLocal(func() bool { return debug })

	l.Debug("hidden")
	if l.Len() != 0 {
		t.Fatalf("debug notice recorded while disabled")
	}
	debug = true
	l.Debug("shown")
	l.Info("info")
	got := l.Recent(0)
	if len(got) != 2 || got[0].Message != "shown" || got[1].Level != LevelInfo {
		t.Errorf("Recent = %+v", got)
	}
}

func TestLocal_RingWraps(t *testing.T) {
	l := NewLocal(nil)
	for i := 0; i < defaultCapacity+5; i++ {
		l.Info(fmt.Sprintf("n%d", i))
	}
	if l.Len() != defaultCapacity {
		t.Fatalf("Len = %d", l.Len())
	}
	all := l.Recent(0)
	if all[0].Message != "n5" {
		t.Errorf("oldest = %q, want n5", all[0].Message)
	}
	last := l.Recent(2)
	if len(last) != 2 || last[1].Message != fmt.Sprintf("n%d", defaultCapacity+4) {
		t.Errorf("Recent(2) = %+v", last)
	}
}

func TestLocal_Sink(t *testing.T) {
	l := NewLocal(nil)
	var seen []Notice
	l.SetSink(func(n Notice) { seen = append(seen, n) })
	l.Warn("careful")
	if len(seen) != 1 || seen[0].Level != LevelWarn {
		t.Errorf("sink got %+v", seen)
	}
}
