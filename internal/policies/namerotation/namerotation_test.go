package namerotation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/coordinator"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

var _ coordinator.RotationController = (*Rotator)(nil)

func setup(t *testing.T, names ...string) (*modtest.Harness, *Rotator) {
	t.Helper()
	h := modtest.NewHarness(t)
	h.Config.Update(func(s *config.Settings) { s.Rotation.Names = names })
	r := New()
	h.App.Registry.Register(r)
	h.App.Registry.Init(context.Background(), h.App)
	h.Host.AddManagedVoice("vc1", "Lounge")
	h.Host.Join(modtest.LocalID, "vc1")
	h.App.Ownership.Set("vc1", protocol.OwnershipSlotCreator, modtest.LocalID, time.Now())
	return h, r
}

func command(t *testing.T, r *Rotator, name string) *modules.Command {
	t.Helper()
	for _, c := range r.Commands() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestRotateCyclesNames(t *testing.T) {
	h, r := setup(t, "alpha", "beta")

	r.StartRotation("vc1")
	if !r.Active("vc1") {
		t.Fatal("rotation should be active")
	}
	r.rotate("vc1")
	r.rotate("vc1")
	r.rotate("vc1")

	want := []string{"/voice name alpha", "/voice name beta", "/voice name alpha"}
	if got := h.Commands(); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if m := h.App.Members.Get(modtest.LocalID); m.CustomName != "alpha" {
		t.Fatalf("expected custom name alpha, got %q", m.CustomName)
	}
}

func TestRotateStopsWhenOwnershipLost(t *testing.T) {
	h, r := setup(t, "alpha")
	r.StartRotation("vc1")
	h.App.Ownership.Set("vc1", protocol.OwnershipSlotClaimant, "777", time.Now())

	r.rotate("vc1")

	if r.Active("vc1") {
		t.Fatal("rotation should stop once the channel is lost")
	}
	if got := h.Commands(); len(got) != 0 {
		t.Fatalf("nothing should be enqueued, got %v", got)
	}
}

func TestStartWithoutNamesIsNoop(t *testing.T) {
	_, r := setup(t)
	r.StartRotation("vc1")
	if r.Active("vc1") {
		t.Fatal("rotation without names must not schedule")
	}
	err := command(t, r, "name rotate").Execute(context.Background(), &modules.Invocation{SenderID: modtest.LocalID})
	if !errors.Is(err, errNoNames) {
		t.Fatalf("expected errNoNames, got %v", err)
	}
}

func TestScheduleUsesCron(t *testing.T) {
	h, r := setup(t, "alpha")
	h.Config.Update(func(s *config.Settings) { s.Rotation.Schedule = "*/5 * * * *" })

	r.StartRotation("vc1")
	if !r.Active("vc1") {
		t.Fatal("cron rotation should be active")
	}
	if next := r.NextTick("vc1"); next.IsZero() {
		t.Fatal("expected a next tick")
	}
}

func TestNameCommandStopsRotationAndRenames(t *testing.T) {
	h, r := setup(t, "alpha")
	r.StartRotation("vc1")

	err := command(t, r, "name").Execute(context.Background(), &modules.Invocation{
		SenderID: modtest.LocalID,
		Args:     map[string]any{"new_name": "  Study Hall "},
	})
	if err != nil {
		t.Fatalf("name: %v", err)
	}
	if r.Active("vc1") {
		t.Fatal("manual rename should stop rotation")
	}
	if got := h.Commands(); !slices.Equal(got, []string{"/voice name Study Hall"}) {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestCommandsRequireOwnedChannel(t *testing.T) {
	h, r := setup(t, "alpha")
	h.Host.Leave(modtest.LocalID)

	err := command(t, r, "name stop").Execute(context.Background(), &modules.Invocation{SenderID: modtest.LocalID})
	if !errors.Is(err, modules.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if command(t, r, "name").Authorize(&modules.Invocation{SenderID: "555"}) {
		t.Fatal("strangers must not rename")
	}
}

func TestMenuToggles(t *testing.T) {
	_, r := setup(t, "alpha")
	mc := modules.MenuContext{Kind: protocol.MenuChannel, ChannelID: "vc1"}

	items := r.MenuItems(protocol.MenuChannel, mc)
	if len(items) != 1 || items[0].ID != "namerotation.start" {
		t.Fatalf("unexpected items %+v", items)
	}
	if err := items[0].Action(context.Background()); err != nil {
		t.Fatal(err)
	}
	items = r.MenuItems(protocol.MenuChannel, mc)
	if len(items) != 1 || items[0].ID != "namerotation.stop" {
		t.Fatalf("unexpected items %+v", items)
	}
	if items := r.MenuItems(protocol.MenuUser, mc); items != nil {
		t.Fatalf("no user items expected, got %+v", items)
	}
}
