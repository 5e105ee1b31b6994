// Package remoteops exposes the basic channel controls as remote commands
// for the local actor and configured operators.
package remoteops

import (
	"context"
	"errors"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "remoteops"

// MaxLimit is the largest user limit Discord accepts for a voice channel.
const MaxLimit = 99

var (
	errNotInVoice = errors.New("you are not in a managed voice channel")
	errBadLimit   = errors.New("limit must be a number between 0 and 99")
	errNoTarget   = errors.New("no user given")
)

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

// currentChannel is the managed channel the local actor is in, owned or not.
func (m *Module) currentChannel() (string, error) {
	ch, ok := m.app.Host.LocalVoiceChannel()
	if !ok || !m.app.IsManaged(ch) {
		return "", errNotInVoice
	}
	return ch, nil
}

func (m *Module) claim(string) error {
	ch, err := m.currentChannel()
	if err != nil {
		return err
	}
	_, err = m.app.Send(protocol.TemplateClaim, ch, nil, true, nil)
	return err
}

func (m *Module) info(string) error {
	ch, err := m.currentChannel()
	if err != nil {
		return err
	}
	_, err = m.app.Send(protocol.TemplateInfo, ch, nil, true, nil)
	return err
}

func (m *Module) owned(key string, vars templates.Vars) error {
	ch, err := m.app.OwnedChannel()
	if err != nil {
		return err
	}
	_, err = m.app.Send(key, ch, vars, false, nil)
	return err
}

func (m *Module) Commands() []*modules.Command {
	authorize := func(inv *modules.Invocation) bool { return m.app.IsOperator(inv.SenderID) }
	simple := func(fn func(string) error) func(context.Context, *modules.Invocation) error {
		return func(_ context.Context, inv *modules.Invocation) error { return fn(inv.SenderID) }
	}
	return []*modules.Command{
		{Name: "claim", Description: "Claim the channel you are in", Authorize: authorize, Execute: simple(m.claim)},
		{Name: "info", Description: "Ask for channel info", Authorize: authorize, Execute: simple(m.info)},
		{
			Name: "lock", Description: "Lock your channel", Authorize: authorize,
			Execute: func(context.Context, *modules.Invocation) error { return m.owned(protocol.TemplateLock, nil) },
		},
		{
			Name: "unlock", Description: "Unlock your channel", Authorize: authorize,
			Execute: func(context.Context, *modules.Invocation) error { return m.owned(protocol.TemplateUnlock, nil) },
		},
		{
			Name:        "limit",
			Aliases:     []string{"size"},
			Description: "Set your channel's user limit",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:     "n",
				Type:     discordgo.ApplicationCommandOptionInteger,
				Required: true,
			}},
			Authorize: authorize,
			Execute: func(_ context.Context, inv *modules.Invocation) error {
				n, ok := inv.Number("n")
				if !ok || n < 0 || n > MaxLimit {
					return errBadLimit
				}
				return m.owned(protocol.TemplateLimit, templates.Vars{templates.Limit: strconv.Itoa(int(n))})
			},
		},
		{
			Name:        "kick",
			Description: "Kick a user from your channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:     "target",
				Type:     discordgo.ApplicationCommandOptionUser,
				Required: true,
			}},
			Authorize: authorize,
			Execute: func(_ context.Context, inv *modules.Invocation) error {
				target := inv.String("target")
				if target == "" {
					return errNoTarget
				}
				return m.owned(protocol.TemplateKick, templates.Vars{templates.Target: target})
			},
		},
	}
}

func (m *Module) MenuItems(kind string, mc modules.MenuContext) []*modules.MenuItem {
	if kind != protocol.MenuChannel || mc.ChannelID == "" || !m.app.IsManaged(mc.ChannelID) {
		return nil
	}
	ch := mc.ChannelID
	send := func(key string) func(context.Context) error {
		return func(context.Context) error {
			_, err := m.app.Send(key, ch, nil, true, nil)
			return err
		}
	}
	items := []*modules.MenuItem{
		{ID: "remoteops.info", Label: "Request channel info", Module: Name, Action: send(protocol.TemplateInfo)},
	}
	if !m.app.LocalOwns(ch) {
		items = append([]*modules.MenuItem{
			{ID: "remoteops.claim", Label: "Claim channel", Module: Name, Action: send(protocol.TemplateClaim)},
		}, items...)
	}
	return items
}
