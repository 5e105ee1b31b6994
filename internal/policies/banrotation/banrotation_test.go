package banrotation

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

func setup(t *testing.T) (*modtest.Harness, *Module) {
	t.Helper()
	h := modtest.NewHarness(t)
	h.Config.Update(func(s *config.Settings) {
		s.Policies.Blacklist = config.FlexibleStringSlice{"666"}
		s.Policies.BanLimit = 2
	})
	m := New()
	h.App.Registry.Register(m)
	h.App.Registry.Init(context.Background(), h.App)
	h.Host.AddManagedVoice("vc1", "Lounge")
	h.Host.Join(modtest.LocalID, "vc1")
	h.App.Ownership.Set("vc1", protocol.OwnershipSlotCreator, modtest.LocalID, time.Now())
	return h, m
}

func TestBlacklistedJoinIsBanned(t *testing.T) {
	h, _ := setup(t)
	ev := &bus.UserJoinedOwnedChannel{UserID: "666", ChannelID: "vc1", OwnerID: modtest.LocalID, IsAllowed: true}
	h.App.Registry.Dispatch(ev)

	if !ev.IsHandled || ev.IsAllowed || ev.HandledBy != Name {
		t.Fatalf("unexpected decision %+v", ev)
	}
	if got := h.Commands(); !slices.Equal(got, []string{"/voice ban 666"}) {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestBanRotatesOldestWhenFull(t *testing.T) {
	h, m := setup(t)
	h.App.Members.Ban(modtest.LocalID, "1")
	h.App.Members.Ban(modtest.LocalID, "2")

	if err := m.Ban("vc1", modtest.LocalID, "3", ""); err != nil {
		t.Fatal(err)
	}
	want := []string{"/voice unban 1", "/voice ban 3"}
	if got := h.Commands(); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if h.App.Members.Get(modtest.LocalID).IsBanned("1") {
		t.Fatal("oldest ban should be dropped from the mirror")
	}
}

func TestRebanningKnownUserDoesNotRotate(t *testing.T) {
	h, m := setup(t)
	h.App.Members.Ban(modtest.LocalID, "1")
	h.App.Members.Ban(modtest.LocalID, "2")

	if err := m.Ban("vc1", modtest.LocalID, "2", ""); err != nil {
		t.Fatal(err)
	}
	if got := h.Commands(); !slices.Equal(got, []string{"/voice ban 2"}) {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestBanCommandAndMenu(t *testing.T) {
	h, m := setup(t)
	ban := m.Commands()[0]
	inv := &modules.Invocation{SenderID: modtest.LocalID, Args: map[string]any{"target": "55", "reason": "spam"}}
	if err := ban.Execute(context.Background(), inv); err != nil {
		t.Fatal(err)
	}

	items := m.MenuItems(protocol.MenuUser, modules.MenuContext{UserID: "56"})
	if len(items) != 1 || !items[0].Danger {
		t.Fatalf("unexpected items %+v", items)
	}
	if err := items[0].Action(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.Commands(); !slices.Equal(got, []string{"/voice ban 55", "/voice ban 56"}) {
		t.Fatalf("unexpected commands %v", got)
	}
	if items := m.MenuItems(protocol.MenuUser, modules.MenuContext{UserID: modtest.LocalID}); items != nil {
		t.Fatal("no self-ban item")
	}
}
