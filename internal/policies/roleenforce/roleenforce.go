// Package roleenforce kicks joiners of owned channels who hold none of the
// required roles.
package roleenforce

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "roleenforce"

type Module struct {
	modules.Base
	app *modules.Context
}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

// OptionalDependencies lets explicit allow/deny lists decide first.
func (m *Module) OptionalDependencies() []string { return []string{"banrotation", "permits"} }

func (m *Module) Init(_ context.Context, app *modules.Context) error {
	m.app = app
	return nil
}

func (m *Module) OnEvent(p bus.Payload) {
	ev, ok := p.(*bus.UserJoinedOwnedChannel)
	if !ok || m.app == nil || ev.IsHandled {
		return
	}
	required := m.app.Config.Current().Policies.RequiredRoleIDs
	if len(required) == 0 {
		return
	}
	roles := m.app.Host.MemberRoles(ev.GuildID, ev.UserID)
	if slices.ContainsFunc(roles, required.Contains) {
		return
	}
	if !ev.Decide(Name, false, "missing required role") {
		return
	}
	if _, err := m.app.Send(protocol.TemplateKick, ev.ChannelID, templates.Vars{templates.Target: ev.UserID}, false, nil); err != nil {
		slog.Warn("roleenforce: kick failed", "user_id", ev.UserID, "channel_id", ev.ChannelID, "error", err)
	}
}
