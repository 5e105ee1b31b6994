// Package autoclaim claims a managed channel for the local actor when its
// owner walks out.
package autoclaim

import (
	"context"
	"log/slog"
	"slices"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "autoclaim"

type Module struct {
	modules.Base
	app *modules.Context
}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return Name }

func (m *Module) Init(_ context.Context, app *modules.Context) error {
	m.app = app
	return nil
}

func (m *Module) OnEvent(p bus.Payload) {
	ev, ok := p.(bus.UserLeftManagedChannel)
	if !ok || m.app == nil || ev.ChannelEmpty {
		return
	}
	if !m.app.Config.Current().Policies.AutoClaim {
		return
	}
	local := m.app.LocalUserID()
	owner := m.app.Ownership.EffectiveOwner(ev.ChannelID)
	if owner == "" || owner != ev.UserID || owner == local {
		return
	}
	if ch, in := m.app.Host.LocalVoiceChannel(); !in || ch != ev.ChannelID {
		return
	}

	channelID := ev.ChannelID
	cond := func() bool {
		occupants := m.app.Host.VoiceOccupants(channelID)
		return !slices.Contains(occupants, owner) && slices.Contains(occupants, local)
	}
	if _, err := m.app.Unshift(protocol.TemplateClaim, channelID, nil, cond); err != nil {
		slog.Warn("autoclaim: claim not sent", "channel_id", channelID, "error", err)
		return
	}
	slog.Info("autoclaim: owner left, claiming", "channel_id", channelID, "owner_id", owner)
}
