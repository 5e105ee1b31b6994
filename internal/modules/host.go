package modules

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// ChannelInfo is the subset of channel metadata modules need.
type ChannelInfo struct {
	ID       string
	Name     string
	GuildID  string
	ParentID string
}

// Host is the platform adapter: identity, voice presence and message I/O
// for the local account. internal/channels/discord implements it.
type Host interface {
	LocalUserID() string
	// LocalVoiceChannel returns the voice channel the local actor is in.
	LocalVoiceChannel() (string, bool)
	ChannelInfo(channelID string) (ChannelInfo, bool)
	// AssociatedTextChannel finds the text channel linked to a voice
	// channel (same name, same category).
	AssociatedTextChannel(voiceChannelID string) (string, bool)
	GuildName(guildID string) string
	MemberRoles(guildID, userID string) []string
	VoiceOccupants(channelID string) []string
	// SendMessage refuses the configured creation channel.
	SendMessage(ctx context.Context, channelID, content string) (*discordgo.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
