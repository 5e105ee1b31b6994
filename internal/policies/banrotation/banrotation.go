// Package banrotation keeps blacklisted users out of owned channels. The
// moderation bot only holds a fixed number of bans per channel, so once the
// owner's list is full the oldest ban is lifted to make room.
package banrotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "banrotation"

var errNoTarget = errors.New("no user given")

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
	ev, ok := p.(*bus.UserJoinedOwnedChannel)
	if !ok || m.app == nil {
		return
	}
	if !m.app.Config.Current().Policies.Blacklist.Contains(ev.UserID) {
		return
	}
	if !ev.Decide(Name, false, "blacklisted") {
		return
	}
	if err := m.Ban(ev.ChannelID, ev.OwnerID, ev.UserID, "blacklisted"); err != nil {
		slog.Warn("banrotation: ban failed", "user_id", ev.UserID, "channel_id", ev.ChannelID, "error", err)
	}
}

// Ban enqueues a ban of target in channelID on behalf of owner. When the
// owner's ban list has reached the limit, the oldest entry is unbanned
// first and dropped from the local mirror.
func (m *Module) Ban(channelID, owner, target, reason string) error {
	limit := m.app.Config.Current().Policies.BanLimit
	cfg := m.app.Members.Get(owner)
	if limit > 0 && len(cfg.BannedUsers) >= limit && !cfg.IsBanned(target) {
		oldest := cfg.BannedUsers[0]
		vars := templates.Vars{
			templates.Target:    oldest,
			templates.OldTarget: oldest,
			templates.NewTarget: target,
		}
		if _, err := m.app.Send(protocol.TemplateUnban, channelID, vars, false, nil); err != nil {
			return fmt.Errorf("unban oldest: %w", err)
		}
		m.app.Members.Unban(owner, oldest)
		slog.Info("banrotation: rotated out oldest ban", "channel_id", channelID, "unbanned", oldest, "banned", target)
	}
	vars := templates.Vars{templates.Target: target, templates.Reason: reason}
	if _, err := m.app.Send(protocol.TemplateBan, channelID, vars, false, nil); err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	return nil
}

func (m *Module) Commands() []*modules.Command {
	authorize := func(inv *modules.Invocation) bool { return m.app.IsOperator(inv.SenderID) }
	user := &discordgo.ApplicationCommandOption{Name: "target", Type: discordgo.ApplicationCommandOptionUser, Required: true}
	return []*modules.Command{
		{
			Name:        "ban",
			Description: "Ban a user from your channel",
			Options: []*discordgo.ApplicationCommandOption{
				user,
				{Name: "reason", Type: discordgo.ApplicationCommandOptionString},
			},
			Authorize: authorize,
			Execute: func(_ context.Context, inv *modules.Invocation) error {
				ch, err := m.app.OwnedChannel()
				if err != nil {
					return err
				}
				target := inv.String("target")
				if target == "" {
					return errNoTarget
				}
				return m.Ban(ch, m.app.LocalUserID(), target, inv.String("reason"))
			},
		},
		{
			Name:        "unban",
			Description: "Lift a ban",
			Options:     []*discordgo.ApplicationCommandOption{user},
			Authorize:   authorize,
			Execute: func(_ context.Context, inv *modules.Invocation) error {
				ch, err := m.app.OwnedChannel()
				if err != nil {
					return err
				}
				target := inv.String("target")
				if target == "" {
					return errNoTarget
				}
				_, err = m.app.Send(protocol.TemplateUnban, ch, templates.Vars{templates.Target: target}, false, nil)
				return err
			},
		},
	}
}

func (m *Module) MenuItems(kind string, mc modules.MenuContext) []*modules.MenuItem {
	if kind != protocol.MenuUser || mc.UserID == "" || mc.UserID == m.app.LocalUserID() {
		return nil
	}
	if _, ok := m.app.LocalOwnedChannel(); !ok {
		return nil
	}
	target := mc.UserID
	return []*modules.MenuItem{{
		ID:          "banrotation.ban",
		Label:       "Ban from my channel",
		Description: "Oldest ban is lifted when the list is full",
		Danger:      true,
		Module:      Name,
		Action: func(context.Context) error {
			ch, err := m.app.OwnedChannel()
			if err != nil {
				return err
			}
			return m.Ban(ch, m.app.LocalUserID(), target, "")
		},
	}}
}
