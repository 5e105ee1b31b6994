// Package templates renders operator-configured command templates.
//
// Placeholders use {name} syntax. Recognized names:
//
//	{user_id} {channel_id} {channel_name} {guild_id} {guild_name}
//	{new_name} {reason} {target} {old_target} {new_target} {limit}
//
// A placeholder with no value in Vars is left in the output unchanged.
package templates

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
)

// Placeholder names.
const (
	UserID      = "user_id"
	ChannelID   = "channel_id"
	ChannelName = "channel_name"
	GuildID     = "guild_id"
	GuildName   = "guild_name"
	NewName     = "new_name"
	Reason      = "reason"
	Target      = "target"
	OldTarget   = "old_target"
	NewTarget   = "new_target"
	Limit       = "limit"
)

// Vars maps placeholder names to values.
type Vars map[string]string

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render substitutes vars into tpl.
func Render(tpl string, vars Vars) string {
	if len(vars) == 0 || !strings.Contains(tpl, "{") {
		return tpl
	}
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Renderer resolves templates from live settings on every call.
type Renderer struct {
	cfg *config.Config
}

// NewRenderer creates a renderer backed by cfg.
func NewRenderer(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Command renders the template registered under key (a protocol.Template*
// constant). ok is false when the operator left that template empty.
func (r *Renderer) Command(key string, vars Vars) (cmd string, ok bool) {
	tpl := strings.TrimSpace(r.cfg.Current().Templates.Get(key))
	if tpl == "" {
		return "", false
	}
	return Render(tpl, vars), true
}
