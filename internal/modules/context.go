package modules

import (
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/metrics"
	"github.com/nextlevelbuilder/vcwarden/internal/notify"
	"github.com/nextlevelbuilder/vcwarden/internal/ownership"
	"github.com/nextlevelbuilder/vcwarden/internal/queue"
	"github.com/nextlevelbuilder/vcwarden/internal/tasks"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
)

// ErrNotOwner is returned by commands that act on the local actor's owned
// voice channel when there is none.
var ErrNotOwner = errors.New("you are not in a voice channel you own")

// Context is the application context, built once at startup and handed to
// every module's Init. There are no package-level singletons.
type Context struct {
	Registry  *Registry
	Queue     *queue.Queue
	Ownership *ownership.Store
	Members   *ownership.MemberConfigs
	Config    *config.Config
	Host      Host
	Notify    notify.Notifier
	Tasks     *tasks.Scheduler
	Templates *templates.Renderer
	Metrics   *metrics.Collector // optional
}

// LocalUserID is shorthand for Host.LocalUserID.
func (c *Context) LocalUserID() string {
	return c.Host.LocalUserID()
}

// IsManaged reports whether channelID sits in the managed category.
func (c *Context) IsManaged(channelID string) bool {
	category := c.Config.Current().Discord.ManagedCategoryID
	if category == "" {
		return false
	}
	info, ok := c.Host.ChannelInfo(channelID)
	return ok && info.ParentID == category
}

// LocalOwns reports whether the local actor is the effective owner.
func (c *Context) LocalOwns(channelID string) bool {
	local := c.Host.LocalUserID()
	return local != "" && c.Ownership.EffectiveOwner(channelID) == local
}

// LocalOwnedChannel returns the voice channel the local actor is in and owns.
func (c *Context) LocalOwnedChannel() (string, bool) {
	ch, ok := c.Host.LocalVoiceChannel()
	if !ok || !c.LocalOwns(ch) {
		return "", false
	}
	return ch, true
}

// OwnedChannel is LocalOwnedChannel reported as an error.
func (c *Context) OwnedChannel() (string, error) {
	ch, ok := c.LocalOwnedChannel()
	if !ok {
		return "", ErrNotOwner
	}
	return ch, nil
}

// IsOperator reports whether userID is the local actor or one of the
// configured remote operators.
func (c *Context) IsOperator(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == c.Host.LocalUserID() || c.Config.Current().Router.RemoteOperators.Contains(userID)
}

// Vars returns template vars pre-filled with channel and guild details.
func (c *Context) Vars(channelID string) templates.Vars {
	vars := templates.Vars{
		templates.ChannelID: channelID,
		templates.UserID:    c.Host.LocalUserID(),
	}
	if info, ok := c.Host.ChannelInfo(channelID); ok {
		vars[templates.ChannelName] = info.Name
		vars[templates.GuildID] = info.GuildID
		vars[templates.GuildName] = c.Host.GuildName(info.GuildID)
	}
	return vars
}

// Send renders the template under key with the channel's vars plus extra,
// and enqueues it. It returns the item ID, or an error when the operator
// left that template empty.
func (c *Context) Send(key, channelID string, extra templates.Vars, priority bool, cond func() bool) (string, error) {
	vars := c.Vars(channelID)
	for k, v := range extra {
		vars[k] = v
	}
	cmd, ok := c.Templates.Command(key, vars)
	if !ok {
		return "", fmt.Errorf("template %q is not configured", key)
	}
	return c.Queue.Enqueue(cmd, channelID, priority, cond), nil
}

// Unshift is Send, but jumps to the front of the priority lane.
func (c *Context) Unshift(key, channelID string, extra templates.Vars, cond func() bool) (string, error) {
	vars := c.Vars(channelID)
	for k, v := range extra {
		vars[k] = v
	}
	cmd, ok := c.Templates.Command(key, vars)
	if !ok {
		return "", fmt.Errorf("template %q is not configured", key)
	}
	return c.Queue.Unshift(cmd, channelID, cond), nil
}

// ChannelTaskKey namespaces a scheduler key under one channel so that
// everything tied to the channel can be cancelled with ChannelTaskPrefix.
func ChannelTaskKey(channelID, name string) string {
	return ChannelTaskPrefix(channelID) + name
}

// ChannelTaskPrefix is the scheduler key prefix for channelID.
func ChannelTaskPrefix(channelID string) string {
	return "channel:" + channelID + ":"
}
