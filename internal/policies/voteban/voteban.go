// Package voteban lets the occupants of an owned channel vote a user out.
package voteban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const Name = "voteban"

var (
	errNoTarget    = errors.New("no user given")
	errNotOccupant = errors.New("target is not in the channel")
	errProtected   = errors.New("the channel owner cannot be voted out")
)

type Module struct {
	modules.Base
	app *modules.Context
	now func() time.Time

	mu sync.Mutex
	// channel ID -> target ID -> voter ID -> vote time
	votes map[string]map[string]map[string]time.Time
}

func New() *Module {
	return &Module{now: time.Now, votes: make(map[string]map[string]map[string]time.Time)}
}

func (m *Module) Name() string { return Name }

func (m *Module) Init(_ context.Context, app *modules.Context) error {
	m.app = app
	return nil
}

func (m *Module) Stop() error {
	m.mu.Lock()
	m.votes = make(map[string]map[string]map[string]time.Time)
	m.mu.Unlock()
	return nil
}

func (m *Module) OnEvent(p bus.Payload) {
	switch ev := p.(type) {
	case bus.UserLeftManagedChannel:
		if ev.ChannelEmpty {
			m.clear(ev.ChannelID, "")
		}
	case bus.OwnershipChanged:
		m.clear(ev.ChannelID, "")
	}
}

func (m *Module) ttl() time.Duration {
	minutes := m.app.Config.Current().Policies.VoteTTLMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// Required returns how many votes are needed with the given number of
// occupants. The target does not vote on themselves.
func (m *Module) Required(occupants int) int {
	threshold := m.app.Config.Current().Policies.VoteBanThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return max(1, int(math.Ceil(threshold*float64(occupants-1))))
}

// Vote records voter's vote against target in channelID and reports the
// live tally. reached is true when the vote carried; the tally is reset.
func (m *Module) Vote(channelID, voter, target string) (count, required int, reached bool) {
	occupants := len(m.app.Host.VoiceOccupants(channelID))
	required = m.Required(occupants)
	cutoff := m.now().Add(-m.ttl())

	m.mu.Lock()
	byTarget, ok := m.votes[channelID]
	if !ok {
		byTarget = make(map[string]map[string]time.Time)
		m.votes[channelID] = byTarget
	}
	voters, ok := byTarget[target]
	if !ok {
		voters = make(map[string]time.Time)
		byTarget[target] = voters
	}
	voters[voter] = m.now()
	for id, at := range voters {
		if at.Before(cutoff) {
			delete(voters, id)
		}
	}
	count = len(voters)
	reached = count >= required
	if reached {
		delete(byTarget, target)
	}
	m.mu.Unlock()

	key := modules.ChannelTaskKey(channelID, "voteban:"+target)
	if reached {
		m.app.Tasks.Cancel(key)
	} else {
		m.app.Tasks.After(key, m.ttl(), func() { m.clear(channelID, target) })
	}
	return count, required, reached
}

// clear drops votes against target in channelID, or every vote in the
// channel when target is empty.
func (m *Module) clear(channelID, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target == "" {
		delete(m.votes, channelID)
		return
	}
	if byTarget, ok := m.votes[channelID]; ok {
		delete(byTarget, target)
	}
}

func (m *Module) authorize(inv *modules.Invocation) bool {
	ch, ok := m.app.LocalOwnedChannel()
	return ok && slices.Contains(m.app.Host.VoiceOccupants(ch), inv.SenderID)
}

func (m *Module) execute(_ context.Context, inv *modules.Invocation) error {
	ch, err := m.app.OwnedChannel()
	if err != nil {
		return err
	}
	target := inv.String("target")
	switch {
	case target == "":
		return errNoTarget
	case target == m.app.LocalUserID():
		return errProtected
	case !slices.Contains(m.app.Host.VoiceOccupants(ch), target):
		return errNotOccupant
	}

	count, required, reached := m.Vote(ch, inv.SenderID, target)
	slog.Info("voteban: vote recorded", "channel_id", ch, "target", target, "voter", inv.SenderID, "count", count, "required", required)
	if !reached {
		m.app.Notify.Info(fmt.Sprintf("Vote to ban <@%s>: %d/%d", target, count, required))
		return nil
	}
	m.app.Notify.Info(fmt.Sprintf("Vote to ban <@%s> passed.", target))
	_, err = m.app.Send(protocol.TemplateBan, ch, templates.Vars{templates.Target: target, templates.Reason: "vote"}, false, nil)
	return err
}

func (m *Module) Commands() []*modules.Command {
	return []*modules.Command{{
		Name:        "voteban",
		Description: "Vote to ban a user from this channel",
		Options: []*discordgo.ApplicationCommandOption{{
			Name:     "target",
			Type:     discordgo.ApplicationCommandOptionUser,
			Required: true,
		}},
		Authorize: m.authorize,
		Execute:   m.execute,
	}}
}
