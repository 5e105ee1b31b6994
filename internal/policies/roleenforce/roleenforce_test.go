package roleenforce

import (
	"context"
	"slices"
	"testing"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
)

func setup(t *testing.T, required ...string) *modtest.Harness {
	t.Helper()
	h := modtest.NewHarness(t)
	h.Config.Update(func(s *config.Settings) { s.Policies.RequiredRoleIDs = required })
	h.App.Registry.Register(New())
	h.App.Registry.Init(context.Background(), h.App)
	return h
}

func join(user string) *bus.UserJoinedOwnedChannel {
	return &bus.UserJoinedOwnedChannel{UserID: user, ChannelID: "vc1", GuildID: modtest.GuildID, OwnerID: modtest.LocalID, IsAllowed: true}
}

func TestMissingRoleIsKicked(t *testing.T) {
	h := setup(t, "r-member", "r-vip")
	h.Host.SetRoles("300", "r-other")

	ev := join("300")
	h.App.Registry.Dispatch(ev)

	if !ev.IsHandled || ev.IsAllowed {
		t.Fatalf("expected rejection, got %+v", ev)
	}
	if got := h.Commands(); !slices.Equal(got, []string{"/voice kick 300"}) {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestAnyRequiredRoleIsEnough(t *testing.T) {
	h := setup(t, "r-member", "r-vip")
	h.Host.SetRoles("300", "r-other", "r-vip")

	ev := join("300")
	h.App.Registry.Dispatch(ev)
	if ev.IsHandled || len(h.Commands()) != 0 {
		t.Fatalf("member with a required role must pass, got %+v", ev)
	}
}

func TestNoRequirementOrAlreadyHandled(t *testing.T) {
	h := setup(t)
	ev := join("300")
	h.App.Registry.Dispatch(ev)
	if ev.IsHandled {
		t.Fatal("no required roles means no enforcement")
	}

	h = setup(t, "r-member")
	ev = join("300")
	ev.Decide("permits", true, "whitelisted")
	h.App.Registry.Dispatch(ev)
	if !ev.IsAllowed || len(h.Commands()) != 0 {
		t.Fatal("a prior decision must not be overridden")
	}
}
