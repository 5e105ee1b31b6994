package discord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/modules"
)

// ErrCreationChannel is returned when something tries to post in the
// join-to-create channel.
var ErrCreationChannel = errors.New("discord: refusing to send to the creation channel")

func (c *Channel) LocalUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localID
}

func (c *Channel) LocalVoiceChannel() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.voice[c.localID]
	return ch, ok && ch != ""
}

func (c *Channel) channel(channelID string) (*discordgo.Channel, bool) {
	if ch, err := c.session.State.Channel(channelID); err == nil {
		return ch, true
	}
	ch, err := c.session.Channel(channelID)
	if err != nil {
		return nil, false
	}
	return ch, true
}

func (c *Channel) ChannelInfo(channelID string) (modules.ChannelInfo, bool) {
	if channelID == "" {
		return modules.ChannelInfo{}, false
	}
	ch, ok := c.channel(channelID)
	if !ok {
		return modules.ChannelInfo{}, false
	}
	return modules.ChannelInfo{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID, ParentID: ch.ParentID}, true
}

// AssociatedTextChannel finds the text channel that sits in the same
// category as the voice channel under the same (slugged) name.
func (c *Channel) AssociatedTextChannel(voiceChannelID string) (string, bool) {
	voice, ok := c.channel(voiceChannelID)
	if !ok {
		return "", false
	}
	guild, err := c.session.State.Guild(voice.GuildID)
	if err != nil {
		return "", false
	}
	return matchTextChannel(voice, guild.Channels)
}

func matchTextChannel(voice *discordgo.Channel, candidates []*discordgo.Channel) (string, bool) {
	want := slug(voice.Name)
	for _, ch := range candidates {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.ParentID == voice.ParentID && slug(ch.Name) == want {
			return ch.ID, true
		}
	}
	return "", false
}

// slug approximates how Discord normalizes text channel names.
func slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

func (c *Channel) GuildName(guildID string) string {
	if g, err := c.session.State.Guild(guildID); err == nil {
		return g.Name
	}
	return ""
}

func (c *Channel) MemberRoles(guildID, userID string) []string {
	if m, err := c.session.State.Member(guildID, userID); err == nil {
		return append([]string(nil), m.Roles...)
	}
	m, err := c.session.GuildMember(guildID, userID)
	if err != nil {
		return nil
	}
	return append([]string(nil), m.Roles...)
}

func (c *Channel) VoiceOccupants(channelID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for user, ch := range c.voice {
		if ch == channelID {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out
}

func (c *Channel) SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error) {
	if channelID == "" {
		return nil, errors.New("discord: empty channel id")
	}
	if creation := c.cfg.Current().Discord.CreationChannelID; creation != "" && channelID == creation {
		return nil, ErrCreationChannel
	}
	msg, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send discord message: %w", err)
	}
	return msg, nil
}

func (c *Channel) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete discord message: %w", err)
	}
	return nil
}
