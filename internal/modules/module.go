// Package modules hosts the plugin layer: the Module contract, the registry
// that orders and drives modules, and the application context threaded into
// every module's Init.
package modules

import (
	"context"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
)

// Module is the contract every feature implements. Embed Base to pick up
// no-op defaults; Base also seals the interface to this repository.
type Module interface {
	Name() string
	// Dependencies must initialize before this module.
	Dependencies() []string
	// OptionalDependencies are ordered first when present; absent ones are ignored.
	OptionalDependencies() []string
	Init(ctx context.Context, app *Context) error
	Stop() error
	OnEvent(p bus.Payload)
	MenuItems(kind string, mc MenuContext) []*MenuItem
	Commands() []*Command

	sealed()
}

// Base provides no-op implementations of every Module hook except Name.
type Base struct{}

func (Base) Dependencies() []string                    { return nil }
func (Base) OptionalDependencies() []string            { return nil }
func (Base) Init(context.Context, *Context) error      { return nil }
func (Base) Stop() error                               { return nil }
func (Base) OnEvent(bus.Payload)                       {}
func (Base) MenuItems(string, MenuContext) []*MenuItem { return nil }
func (Base) Commands() []*Command                      { return nil }
func (Base) sealed()                                   {}

// MenuContext describes what the menu is being built for.
type MenuContext struct {
	Kind      string `json:"kind"` // protocol.Menu*
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
}

// MenuItem is one entry contributed by a module.
type MenuItem struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Danger      bool   `json:"danger,omitempty"`
	Module      string `json:"module"`
	// Action runs when the item is chosen.
	Action func(ctx context.Context) error `json:"-"`
}
