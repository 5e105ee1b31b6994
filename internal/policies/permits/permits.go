// Package permits lets whitelisted users into owned channels and exposes
// permit/unpermit commands.
package permits

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "permits"

var errNoTarget = errors.New("no user given")

type Module struct {
	modules.Base
	app *modules.Context
}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

// OptionalDependencies puts the blacklist ahead of the whitelist.
func (m *Module) OptionalDependencies() []string { return []string{"banrotation"} }

func (m *Module) Init(_ context.Context, app *modules.Context) error {
	m.app = app
	return nil
}

func (m *Module) OnEvent(p bus.Payload) {
	ev, ok := p.(*bus.UserJoinedOwnedChannel)
	if !ok || m.app == nil {
		return
	}
	if !m.app.Config.Current().Policies.Whitelist.Contains(ev.UserID) {
		return
	}
	if !ev.Decide(Name, true, "whitelisted") {
		return
	}
	cfg := m.app.Members.Get(ev.OwnerID)
	if !cfg.IsLocked || cfg.IsPermitted(ev.UserID) {
		return
	}
	if _, err := m.app.Send(protocol.TemplatePermit, ev.ChannelID, templates.Vars{templates.Target: ev.UserID}, false, nil); err != nil {
		slog.Warn("permits: cannot permit whitelisted user", "user_id", ev.UserID, "channel_id", ev.ChannelID, "error", err)
	}
}

func (m *Module) send(key string) func(context.Context, *modules.Invocation) error {
	return func(_ context.Context, inv *modules.Invocation) error {
		ch, err := m.app.OwnedChannel()
		if err != nil {
			return err
		}
		target := inv.String("target")
		if target == "" {
			return errNoTarget
		}
		_, err = m.app.Send(key, ch, templates.Vars{templates.Target: target}, false, nil)
		return err
	}
}

func (m *Module) Commands() []*modules.Command {
	target := []*discordgo.ApplicationCommandOption{{
		Name:     "target",
		Type:     discordgo.ApplicationCommandOptionUser,
		Required: true,
	}}
	authorize := func(inv *modules.Invocation) bool { return m.app.IsOperator(inv.SenderID) }
	return []*modules.Command{
		{Name: "permit", Description: "Let a user into your channel", Options: target, Authorize: authorize, Execute: m.send(protocol.TemplatePermit)},
		{Name: "unpermit", Description: "Revoke a user's permit", Options: target, Authorize: authorize, Execute: m.send(protocol.TemplateUnpermit)},
	}
}
