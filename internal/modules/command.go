package modules

import (
	"context"
	"math"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Command is a remote command a module exposes through the router.
// Options reuse discordgo's option types; order matters for positional
// parsing and a final STRING option takes the rest of the line.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Options     []*discordgo.ApplicationCommandOption
	// Authorize (optional) vetoes the invocation. On false the router tries
	// the next module that registered the same name.
	Authorize func(inv *Invocation) bool
	Execute   func(ctx context.Context, inv *Invocation) error
}

// Names returns Name followed by Aliases.
func (c *Command) Names() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// ModuleCommand pairs a command with its owning module.
type ModuleCommand struct {
	Module  string
	Command *Command
}

// Invocation is one parsed remote command.
type Invocation struct {
	Name      string         // matched name or alias
	Args      map[string]any // option name -> coerced value
	SenderID  string
	ChannelID string // where replies/commands go (re-targeted for DMs)
	GuildID   string
	IsDM      bool
	Raw       *discordgo.Message
}

// String returns a string argument or "".
func (inv *Invocation) String(name string) string {
	switch v := inv.Args[name].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Number returns a numeric argument. ok is false when the argument is
// missing or was not a number (NaN).
func (inv *Invocation) Number(name string) (float64, bool) {
	v, ok := inv.Args[name].(float64)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Bool returns a boolean argument or false.
func (inv *Invocation) Bool(name string) bool {
	v, _ := inv.Args[name].(bool)
	return v
}

// Has reports whether the argument was supplied.
func (inv *Invocation) Has(name string) bool {
	_, ok := inv.Args[name]
	return ok
}
