package config

import "github.com/nextlevelbuilder/vcwarden/pkg/protocol"

// DiscordConfig identifies the account, the moderation bot and the managed
// category.
type DiscordConfig struct {
	Token             string `json:"token"`
	TokenType         string `json:"token_type,omitempty"` // "bot" (default) or "user"
	GuildID           string `json:"guild_id,omitempty"`
	ModerationBotID   string `json:"moderation_bot_id"`
	ManagedCategoryID string `json:"managed_category_id"`
	// Join-to-create lobby; nothing is ever sent there.
	CreationChannelID string `json:"creation_channel_id,omitempty"`
}

// AuthHeader returns the Authorization value discordgo expects.
func (d DiscordConfig) AuthHeader() string {
	if d.TokenType == "user" {
		return d.Token
	}
	return "Bot " + d.Token
}

// TemplatesConfig holds the operator-configured command templates sent to
// the moderation bot. Placeholders are documented in internal/templates.
type TemplatesConfig struct {
	Claim    string `json:"claim,omitempty"`
	Info     string `json:"info,omitempty"`
	Lock     string `json:"lock,omitempty"`
	Unlock   string `json:"unlock,omitempty"`
	Limit    string `json:"limit,omitempty"`
	Rename   string `json:"rename,omitempty"`
	Kick     string `json:"kick,omitempty"`
	Ban      string `json:"ban,omitempty"`
	Unban    string `json:"unban,omitempty"`
	Permit   string `json:"permit,omitempty"`
	Unpermit string `json:"unpermit,omitempty"`
}

// Get returns the template for a protocol.Template* key, or "" if unknown.
func (t TemplatesConfig) Get(key string) string {
	switch key {
	case protocol.TemplateClaim:
		return t.Claim
	case protocol.TemplateInfo:
		return t.Info
	case protocol.TemplateLock:
		return t.Lock
	case protocol.TemplateUnlock:
		return t.Unlock
	case protocol.TemplateLimit:
		return t.Limit
	case protocol.TemplateRename:
		return t.Rename
	case protocol.TemplateKick:
		return t.Kick
	case protocol.TemplateBan:
		return t.Ban
	case protocol.TemplateUnban:
		return t.Unban
	case protocol.TemplatePermit:
		return t.Permit
	case protocol.TemplateUnpermit:
		return t.Unpermit
	}
	return ""
}

// ReservedCommands returns the claim and info templates. The action queue
// promotes commands that start with either to its priority lane.
func (c *Config) ReservedCommands() []string {
	t := c.Current().Templates
	return []string{t.Claim, t.Info}
}
