package coordinator

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

type fakeRotation struct {
	modules.Base
	mu      sync.Mutex
	started []string
	stopped []string
}

func (f *fakeRotation) Name() string { return RotationModule }

func (f *fakeRotation) StartRotation(ch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, ch)
}

func (f *fakeRotation) StopRotation(ch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, ch)
}

func setup(t *testing.T) (*modtest.Harness, *fakeRotation) {
	t.Helper()
	h := modtest.NewHarness(t)
	rot := &fakeRotation{}
	h.App.Registry.Register(New())
	h.App.Registry.Register(rot)
	h.App.Registry.Init(context.Background(), h.App)
	h.Host.AddManagedVoice("vc1", "Lounge")
	return h, rot
}

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func reply(typ classifier.Type, initiator string, at time.Time) bus.ReplyReceived {
	return bus.ReplyReceived{Response: classifier.Response{
		Type:        typ,
		InitiatorID: initiator,
		ChannelID:   "vc1",
		GuildID:     modtest.GuildID,
		Timestamp:   at,
	}}
}

func TestInit_ResolvesRotationAfterController(t *testing.T) {
	h, _ := setup(t)
	order := h.App.Registry.Order()
	if slices.Index(order, RotationModule) > slices.Index(order, Name) {
		t.Fatalf("rotation module must initialize first, got %v", order)
	}
}

func TestDuplicateClaimedEmitsOnce(t *testing.T) {
	h, _ := setup(t)
	var events []bus.OwnershipChanged
	h.App.Registry.On(protocol.EventOwnershipChanged, func(p bus.Payload) {
		events = append(events, p.(bus.OwnershipChanged))
	})

	h.App.Registry.Dispatch(reply(classifier.TypeClaimed, "200", t0))
	h.App.Registry.Dispatch(reply(classifier.TypeClaimed, "200", t0))

	if len(events) != 1 {
		t.Fatalf("expected 1 ownership event, got %d", len(events))
	}
	if events[0].Slot != protocol.OwnershipSlotClaimant || events[0].OwnerID != "200" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if got := h.App.Ownership.EffectiveOwner("vc1"); got != "200" {
		t.Fatalf("expected owner 200, got %q", got)
	}
}

func TestEndToEnd_LocalJoinThenCreated(t *testing.T) {
	h, rot := setup(t)

	h.Host.Join(modtest.LocalID, "vc1")
	h.App.Registry.Dispatch(bus.UserJoinedManagedChannel{UserID: modtest.LocalID, ChannelID: "vc1", GuildID: modtest.GuildID})

	pending := h.App.Queue.Pending()
	if len(pending) != 1 || pending[0].Command != "/voice info" || !pending[0].Priority {
		t.Fatalf("expected one priority info request, got %+v", pending)
	}

	c := classifier.New()
	msg := &discordgo.Message{
		ID:        "r1",
		ChannelID: "vc1",
		GuildID:   modtest.GuildID,
		Content:   "<@" + modtest.LocalID + ">",
		Timestamp: t0,
		Embeds:    []*discordgo.MessageEmbed{{Title: "Channel Created"}},
	}
	h.App.Registry.Dispatch(bus.ReplyReceived{Response: c.Classify(msg)})

	rec, ok := h.App.Ownership.Get("vc1")
	if !ok || rec.CreatorID != modtest.LocalID || !rec.CreatedAt.Equal(t0) {
		t.Fatalf("ownership not recorded: %+v", rec)
	}
	if !slices.Equal(rot.started, []string{"vc1"}) {
		t.Fatalf("expected rotation started for vc1, got %v", rot.started)
	}
	if n := h.Notices.Len(); n != 1 {
		t.Fatalf("expected exactly one notice, got %d: %+v", n, h.Notices.Recent(10))
	}
}

func TestLocalLosesOwnershipStopsRotation(t *testing.T) {
	h, rot := setup(t)

	h.App.Registry.Dispatch(reply(classifier.TypeCreated, modtest.LocalID, t0))
	h.App.Registry.Dispatch(reply(classifier.TypeClaimed, "300", t0.Add(time.Minute)))

	if got := h.App.Ownership.EffectiveOwner("vc1"); got != "300" {
		t.Fatalf("claimant should win, got %q", got)
	}
	if !slices.Equal(rot.stopped, []string{"vc1"}) {
		t.Fatalf("expected rotation stopped, got %v", rot.stopped)
	}
}

func TestUnmanagedChannelHasNoNotice(t *testing.T) {
	h, _ := setup(t)
	r := reply(classifier.TypeCreated, "200", t0)
	r.Response.ChannelID = "elsewhere"
	h.App.Registry.Dispatch(r)

	if n := h.Notices.Len(); n != 0 {
		t.Fatalf("expected no notice, got %d", n)
	}
	if h.App.Ownership.EffectiveOwner("elsewhere") != "200" {
		t.Fatal("ownership should still be recorded")
	}
}

func TestMirrorsMemberConfig(t *testing.T) {
	h, _ := setup(t)
	dispatch := func(typ classifier.Type, target string, isName bool, value string) {
		r := reply(typ, "200", t0)
		r.Response.TargetID = target
		r.Response.TargetIsName = isName
		r.Response.Value = value
		h.App.Registry.Dispatch(r)
	}

	dispatch(classifier.TypeBanned, "501", false, "")
	dispatch(classifier.TypeBanned, "someone", true, "")
	dispatch(classifier.TypePermitted, "502", false, "")
	dispatch(classifier.TypeSizeSet, "", false, "5")
	dispatch(classifier.TypeLocked, "", false, "")

	m := h.App.Members.Get("200")
	if !m.IsBanned("501") || m.IsBanned("someone") {
		t.Fatalf("unexpected bans: %v", m.BannedUsers)
	}
	if !m.IsPermitted("502") {
		t.Fatalf("expected 502 permitted, got %v", m.PermittedUsers)
	}
	if m.UserLimit != 5 || !m.IsLocked {
		t.Fatalf("expected limit 5 and locked, got %+v", m)
	}

	dispatch(classifier.TypeUnlocked, "", false, "")
	dispatch(classifier.TypePermitted, "501", false, "")
	m = h.App.Members.Get("200")
	if m.IsLocked || m.IsBanned("501") || !m.IsPermitted("501") {
		t.Fatalf("unexpected config after unlock/permit: %+v", m)
	}
}

func TestJoinOwnedChannelDispatchesDecision(t *testing.T) {
	h, _ := setup(t)
	h.App.Registry.Dispatch(reply(classifier.TypeCreated, modtest.LocalID, t0))

	var seen []*bus.UserJoinedOwnedChannel
	h.App.Registry.On(protocol.EventUserJoinedOwned, func(p bus.Payload) {
		ev := p.(*bus.UserJoinedOwnedChannel)
		seen = append(seen, ev)
		ev.Decide("test", false, "nope")
	})

	h.App.Registry.Dispatch(bus.UserJoinedManagedChannel{UserID: "400", ChannelID: "vc1", GuildID: modtest.GuildID})
	if len(seen) != 1 {
		t.Fatalf("expected one owned-join event, got %d", len(seen))
	}
	if seen[0].OwnerID != modtest.LocalID || !seen[0].IsHandled || seen[0].IsAllowed {
		t.Fatalf("unexpected decision: %+v", seen[0])
	}

	h.App.Registry.Dispatch(bus.UserJoinedManagedChannel{UserID: "400", ChannelID: "vc2", GuildID: modtest.GuildID})
	if len(seen) != 1 {
		t.Fatal("joins of channels the local actor does not own must not be dispatched")
	}
}

func TestEmptyChannelClearsState(t *testing.T) {
	h, rot := setup(t)
	h.App.Registry.Dispatch(reply(classifier.TypeCreated, modtest.LocalID, t0))

	key := modules.ChannelTaskKey("vc1", "probe")
	h.App.Tasks.After(key, time.Hour, func() {})

	h.App.Registry.Dispatch(bus.UserLeftManagedChannel{UserID: modtest.LocalID, ChannelID: "vc1", ChannelEmpty: true})

	if _, ok := h.App.Ownership.Get("vc1"); ok {
		t.Fatal("ownership should be removed")
	}
	if h.App.Tasks.Has(key) {
		t.Fatal("channel tasks should be cancelled")
	}
	if !slices.Contains(rot.stopped, "vc1") {
		t.Fatalf("rotation should stop, got %v", rot.stopped)
	}
}
