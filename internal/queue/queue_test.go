package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
)

type recorder struct {
	mu     sync.Mutex
	events []bus.Payload
}

func (r *recorder) Dispatch(p bus.Payload) {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
}

func (r *recorder) executed() []bus.ActionExecuted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bus.ActionExecuted
	for _, e := range r.events {
		if ev, ok := e.(bus.ActionExecuted); ok {
			out = append(out, ev)
		}
	}
	return out
}

func settings(enabled bool, delayMs int) SettingsFunc {
	return func() config.QueueConfig {
		return config.QueueConfig{Enabled: &enabled, DelayMs: delayMs}
	}
}

type sender struct {
	mu   sync.Mutex
	sent []string
	done chan string
}

func newSender() *sender { return &sender{done: make(chan string, 16)} }

func (s *sender) send(_ context.Context, channelID, command string) (any, error) {
	s.mu.Lock()
	s.sent = append(s.sent, command)
	s.mu.Unlock()
	s.done <- command
	return &discordgo.Message{ID: "msg-" + command}, nil
}

func (s *sender) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d/%d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestIsHighPriority(t *testing.T) {
	reserved := []string{"/voice claim", "/voice info {channel_id}"}
	tests := []struct {
		cmd  string
		want bool
	}{
		{"claim", true},
		{"!CLAIM now", true},
		{"?info", true},
		{"/voice claim", true},
		{"/VOICE Info 123", true},
		{"/voice name info", false},
		{"!name info", false},
		{".vc info", false},
		{"voice kick claim", false},
		{"/voice lock", false},
		{"/voice", false},
		{"", false},
		{"claimant", false},
	}
	for _, tt := range tests {
		if got := isHighPriority(tt.cmd, reserved); got != tt.want {
			t.Errorf("isHighPriority(%q) = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}

func TestIsHighPriority_PlaceholderOnlyTemplateIgnored(t *testing.T) {
	if isHighPriority("/voice lock", []string{"{prefix} claim"}) {
		t.Error("template with no literal head matched everything")
	}
}

func TestEnqueue_ReservedVerbPromoted(t *testing.T) {
	reserved := func() []string { return []string{"/voice claim", "/voice info"} }
	q := New(settings(true, 0), nil, WithReservedCommands(reserved))
	q.Enqueue("/voice name info", "vc1", false, nil)
	q.Enqueue("/voice claim", "vc1", false, nil)
	q.Enqueue("/voice lock", "vc1", false, nil)

	p, n := q.Len()
	if p != 1 || n != 2 {
		t.Fatalf("lanes = %d/%d, want 1/2", p, n)
	}
	if pending := q.Pending(); !pending[0].Priority || pending[0].Command != "/voice claim" {
		t.Errorf("pending[0] = %+v", pending[0])
	}
}

func TestDrain_PriorityBeforeEarlierNormal(t *testing.T) {
	q := New(settings(true, 0), nil)
	s := newSender()
	q.SetSendHandler(s.send)

	// Enqueue before Start so ordering is decided by lanes, not timing.
	q.Enqueue("normal-1", "vc", false, nil)
	q.Enqueue("normal-2", "vc", false, nil)
	q.Enqueue("urgent", "vc", true, nil)
	q.Unshift("front", "vc", nil)

	q.Start(context.Background())
	defer q.Stop()

	got := s.wait(t, 4)
	want := []string{"front", "urgent", "normal-1", "normal-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDrain_FalseConditionNeverSends(t *testing.T) {
	q := New(settings(true, 0), nil)
	s := newSender()
	q.SetSendHandler(s.send)

	q.Enqueue("skip", "vc", false, func() bool { return false })
	q.Enqueue("keep", "vc", false, func() bool { return true })
	q.Start(context.Background())
	defer q.Stop()

	got := s.wait(t, 1)
	if len(got) != 1 || got[0] != "keep" {
		t.Fatalf("sent = %v", got)
	}
}

func TestDrain_DelayChargedAfterDrop(t *testing.T) {
	const delay = 80
	q := New(settings(true, delay), nil)
	s := newSender()
	q.SetSendHandler(s.send)

	q.Enqueue("dropped", "vc", false, func() bool { return false })
	q.Enqueue("sent", "vc", false, nil)

	start := time.Now()
	q.Start(context.Background())
	defer q.Stop()
	s.wait(t, 1)

	if elapsed := time.Since(start); elapsed < (delay-20)*time.Millisecond {
		t.Errorf("second item sent after %v; the dropped item should still cost a delay slot", elapsed)
	}
}

func TestDrain_NoHandlerDiscards(t *testing.T) {
	rec := &recorder{}
	q := New(settings(true, 0), rec)
	q.Enqueue("lost", "vc", false, nil)
	q.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, n := q.Len(); p+n == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	q.Stop()

	if p, n := q.Len(); p+n != 0 {
		t.Fatal("item was not consumed")
	}
	if len(rec.executed()) != 0 {
		t.Error("ActionExecuted dispatched without a handler")
	}
}

func TestDrain_TimeoutIsTerminal(t *testing.T) {
	q := New(settings(true, 0), nil, WithSendTimeout(30*time.Millisecond))
	var calls int
	var mu sync.Mutex
	after := make(chan struct{})
	q.SetSendHandler(func(ctx context.Context, _, cmd string) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if cmd == "slow" {
			time.Sleep(200 * time.Millisecond)
			return nil, nil
		}
		close(after)
		return nil, nil
	})

	q.Enqueue("slow", "vc", false, nil)
	q.Enqueue("next", "vc", false, nil)
	q.Start(context.Background())
	defer q.Stop()

	select {
	case <-after:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled behind a timed-out send")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (no retry)", calls)
	}
}

func TestDrain_SendErrorDoesNotHalt(t *testing.T) {
	q := New(settings(true, 0), nil)
	s := newSender()
	q.SetSendHandler(func(ctx context.Context, ch, cmd string) (any, error) {
		if cmd == "bad" {
			return nil, errors.New("boom")
		}
		return s.send(ctx, ch, cmd)
	})
	q.Enqueue("bad", "vc", false, nil)
	q.Enqueue("good", "vc", false, nil)
	q.Start(context.Background())
	defer q.Stop()

	if got := s.wait(t, 1); got[0] != "good" {
		t.Errorf("sent = %v", got)
	}
}

func TestDrain_ReplyIDPublished(t *testing.T) {
	rec := &recorder{}
	q := New(settings(true, 0), rec)
	s := newSender()
	q.SetSendHandler(s.send)

	id := q.Enqueue("lock", "vc9", false, nil)
	q.Start(context.Background())
	s.wait(t, 1)
	q.Stop()

	ex := rec.executed()
	if len(ex) != 1 {
		t.Fatalf("executed events = %d", len(ex))
	}
	if ex[0].ItemID != id || ex[0].ReplyID != "msg-lock" || ex[0].ChannelID != "vc9" {
		t.Errorf("event = %+v", ex[0])
	}
}

func TestDisabledQueueAccumulates(t *testing.T) {
	enabled := false
	var mu sync.Mutex
	q := New(func() config.QueueConfig {
		mu.Lock()
		defer mu.Unlock()
		return config.QueueConfig{Enabled: &enabled}
	}, nil)
	s := newSender()
	q.SetSendHandler(s.send)
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue("a", "vc", false, nil)
	q.Enqueue("b", "vc", false, nil)
	time.Sleep(30 * time.Millisecond)
	if _, n := q.Len(); n != 2 {
		t.Fatalf("normal lane = %d, want 2 while disabled", n)
	}

	mu.Lock()
	enabled = true
	mu.Unlock()
	q.Kick()
	if got := s.wait(t, 2); len(got) != 2 {
		t.Errorf("sent = %v", got)
	}
}

type idReply struct{ id string }

func (r idReply) MessageID() string { return r.id }

func TestExtractReplyID(t *testing.T) {
	tests := []struct {
		name  string
		reply any
		want  string
	}{
		{"nil", nil, ""},
		{"discord message", &discordgo.Message{ID: "1"}, "1"},
		{"nil discord message", (*discordgo.Message)(nil), ""},
		{"interface", idReply{"2"}, "2"},
		{"map id", map[string]any{"id": "3"}, "3"},
		{"nested message", map[string]any{"message": map[string]any{"id": "4"}}, "4"},
		{"nested body", map[string]any{"body": map[string]any{"id": "5"}}, "5"},
		{"unknown", 42, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractReplyID(tt.reply); got != tt.want {
				t.Errorf("extractReplyID = %q, want %q", got, tt.want)
			}
		})
	}
}
