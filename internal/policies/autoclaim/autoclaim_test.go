package autoclaim

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

func setup(t *testing.T, enabled bool) *modtest.Harness {
	t.Helper()
	h := modtest.NewHarness(t)
	h.Config.Update(func(s *config.Settings) { s.Policies.AutoClaim = enabled })
	h.App.Registry.Register(New())
	h.App.Registry.Init(context.Background(), h.App)
	h.Host.AddManagedVoice("vc1", "Lounge")
	h.Host.Join(modtest.LocalID, "vc1")
	h.Host.Join("200", "vc1")
	h.App.Ownership.Set("vc1", protocol.OwnershipSlotCreator, "200", time.Now())
	return h
}

func ownerLeaves(h *modtest.Harness) {
	h.Host.Leave("200")
	h.App.Registry.Dispatch(bus.UserLeftManagedChannel{UserID: "200", ChannelID: "vc1", GuildID: modtest.GuildID})
}

func TestOwnerLeavingTriggersClaim(t *testing.T) {
	h := setup(t, true)
	h.App.Queue.Enqueue("/voice lock", "vc1", true, nil)
	ownerLeaves(h)

	pending := h.App.Queue.Pending()
	if len(pending) != 2 || pending[0].Command != "/voice claim" || !pending[0].Priority {
		t.Fatalf("claim must be at the front, got %+v", pending)
	}
}

// drainUntilMarker starts the queue and returns every command sent up to and
// including a trailing marker item.
func drainUntilMarker(t *testing.T, h *modtest.Harness) []string {
	t.Helper()
	const marker = "/voice info marker"
	h.App.Queue.Enqueue(marker, "vc1", true, nil)

	sent := make(chan string, 10)
	h.App.Queue.SetSendHandler(func(_ context.Context, _, command string) (any, error) {
		sent <- command
		return nil, nil
	})
	h.App.Queue.Start(context.Background())
	t.Cleanup(h.App.Queue.Stop)

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case cmd := <-sent:
			got = append(got, cmd)
			if cmd == marker {
				return got
			}
		case <-timeout:
			t.Fatalf("marker never sent, got %v", got)
		}
	}
}

func TestClaimSentWhileOwnerAbsent(t *testing.T) {
	h := setup(t, true)
	ownerLeaves(h)

	got := drainUntilMarker(t, h)
	if !slices.Equal(got, []string{"/voice claim", "/voice info marker"}) {
		t.Fatalf("unexpected sends %v", got)
	}
}

func TestClaimDroppedWhenOwnerReturns(t *testing.T) {
	h := setup(t, true)
	ownerLeaves(h)
	h.Host.Join("200", "vc1")

	got := drainUntilMarker(t, h)
	if !slices.Equal(got, []string{"/voice info marker"}) {
		t.Fatalf("claim must be dropped, got %v", got)
	}
}

func TestDisabledOrOtherLeavers(t *testing.T) {
	h := setup(t, false)
	ownerLeaves(h)
	if n := len(h.App.Queue.Pending()); n != 0 {
		t.Fatalf("disabled autoclaim must not enqueue, got %d", n)
	}

	h = setup(t, true)
	h.App.Registry.Dispatch(bus.UserLeftManagedChannel{UserID: "300", ChannelID: "vc1"})
	if n := len(h.App.Queue.Pending()); n != 0 {
		t.Fatalf("a non-owner leaving must not enqueue, got %d", n)
	}

	h = setup(t, true)
	h.Host.Leave(modtest.LocalID)
	ownerLeaves(h)
	if n := len(h.App.Queue.Pending()); n != 0 {
		t.Fatalf("local actor elsewhere must not enqueue, got %d", n)
	}
}
