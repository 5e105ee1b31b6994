package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
)

func (c *Channel) inGuild(guildID string) bool {
	want := c.cfg.Current().Discord.GuildID
	return want == "" || guildID == want
}

func (c *Channel) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.setLocalID(r.User.ID)
	}
}

// onGuildCreate seeds voice presence for the configured guild.
func (c *Channel) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || !c.inGuild(g.ID) {
		return
	}
	c.mu.Lock()
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != "" {
			c.voice[vs.UserID] = vs.ChannelID
		}
	}
	n := len(c.voice)
	c.mu.Unlock()
	slog.Debug("discord: voice presence seeded", "guild_id", g.ID, "users", n)
}

func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || c.app == nil {
		return
	}
	if m.GuildID != "" && !c.inGuild(m.GuildID) {
		return
	}

	if bot := c.cfg.Current().Discord.ModerationBotID; bot != "" && m.Author.ID == bot {
		c.handleBotReply(m.Message)
		return
	}
	if c.router == nil {
		return
	}
	if _, err := c.router.Handle(c.ctx, m.Message, m.GuildID == ""); err != nil {
		slog.Debug("discord: command rejected", "sender_id", m.Author.ID, "channel_id", m.ChannelID, "error", err)
	}
}

func (c *Channel) handleBotReply(msg *discordgo.Message) {
	resp := c.classifier.Classify(msg)
	c.app.Metrics.Classified(string(resp.Type))
	if resp.Type == classifier.TypeUnknown {
		return
	}
	slog.Debug("discord: bot reply classified", "type", resp.Type, "channel_id", resp.ChannelID,
		"initiator", resp.InitiatorID, "target", resp.TargetID)
	c.app.Registry.Dispatch(bus.ReplyReceived{Response: resp})
}

// onVoiceStateUpdate turns voice moves into managed join/leave events.
func (c *Channel) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || !c.inGuild(v.GuildID) {
		return
	}
	user, next := v.UserID, v.ChannelID

	c.mu.Lock()
	prev := c.voice[user]
	if next == "" {
		delete(c.voice, user)
	} else {
		c.voice[user] = next
	}
	c.mu.Unlock()

	if prev == next || c.app == nil {
		return
	}
	if prev != "" && c.app.IsManaged(prev) {
		c.app.Registry.Dispatch(bus.UserLeftManagedChannel{
			UserID:       user,
			ChannelID:    prev,
			GuildID:      v.GuildID,
			ChannelEmpty: len(c.VoiceOccupants(prev)) == 0,
		})
	}
	if next != "" && c.app.IsManaged(next) {
		info, _ := c.ChannelInfo(next)
		c.app.Registry.Dispatch(bus.UserJoinedManagedChannel{
			UserID:      user,
			ChannelID:   next,
			GuildID:     v.GuildID,
			ChannelName: info.Name,
		})
	}
}
