// Package namerotation periodically renames the voice channel the local
// actor owns, cycling through the configured names.
package namerotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

// Name is the registry name; the ownership coordinator looks it up.
const Name = "namerotation"

var errNoNames = errors.New("no rotation names configured")

// Rotator is the name rotation module.
type Rotator struct {
	modules.Base
	app *modules.Context

	mu   sync.Mutex
	next map[string]int // channel ID -> index of the next name
}

func New() *Rotator {
	return &Rotator{next: make(map[string]int)}
}

func (r *Rotator) Name() string { return Name }

func (r *Rotator) Init(_ context.Context, app *modules.Context) error {
	r.app = app
	return nil
}

func (r *Rotator) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.next {
		r.app.Tasks.Cancel(taskKey(ch))
	}
	r.next = make(map[string]int)
	return nil
}

func taskKey(channelID string) string {
	return modules.ChannelTaskKey(channelID, "rotation")
}

// StartRotation schedules renames of channelID. An already running rotation
// is rescheduled with the current settings.
func (r *Rotator) StartRotation(channelID string) {
	if r.app == nil {
		return
	}
	cfg := r.app.Config.Current().Rotation
	if len(cfg.Names) == 0 {
		slog.Debug("name rotation: no names configured", "channel_id", channelID)
		return
	}

	r.mu.Lock()
	if _, ok := r.next[channelID]; !ok {
		r.next[channelID] = 0
	}
	r.mu.Unlock()

	key := taskKey(channelID)
	fn := func() { r.rotate(channelID) }
	if cfg.Schedule != "" {
		if err := r.app.Tasks.Cron(key, cfg.Schedule, fn); err != nil {
			slog.Warn("name rotation: bad schedule, using interval", "schedule", cfg.Schedule, "error", err)
			r.app.Tasks.Every(key, cfg.Interval(), fn)
		}
	} else {
		r.app.Tasks.Every(key, cfg.Interval(), fn)
	}
	slog.Info("name rotation started", "channel_id", channelID, "next", r.NextTick(channelID))
}

// StopRotation cancels renames of channelID.
func (r *Rotator) StopRotation(channelID string) {
	if r.app == nil {
		return
	}
	r.mu.Lock()
	_, active := r.next[channelID]
	delete(r.next, channelID)
	r.mu.Unlock()

	r.app.Tasks.Cancel(taskKey(channelID))
	if active {
		slog.Info("name rotation stopped", "channel_id", channelID)
	}
}

// Active reports whether channelID is rotating.
func (r *Rotator) Active(channelID string) bool {
	return r.app != nil && r.app.Tasks.Has(taskKey(channelID))
}

// NextTick returns when the next rename is due, or the zero time.
func (r *Rotator) NextTick(channelID string) time.Time {
	if next, ok := r.app.Tasks.Next(taskKey(channelID)); ok {
		return next
	}
	if spec := r.app.Config.Current().Rotation.Schedule; spec != "" {
		if next, err := gronx.NextTickAfter(spec, time.Now(), false); err == nil {
			return next
		}
	}
	return time.Time{}
}

// rotate enqueues the next name. It stops itself once the local actor no
// longer owns the channel.
func (r *Rotator) rotate(channelID string) {
	if !r.app.LocalOwns(channelID) {
		r.StopRotation(channelID)
		return
	}
	name, err := r.advance(channelID)
	if err != nil {
		slog.Debug("name rotation skipped", "channel_id", channelID, "error", err)
		return
	}
	if err := r.rename(channelID, name); err != nil {
		slog.Warn("name rotation failed", "channel_id", channelID, "error", err)
	}
}

func (r *Rotator) advance(channelID string) (string, error) {
	names := r.app.Config.Current().Rotation.Names
	if len(names) == 0 {
		return "", errNoNames
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next[channelID] % len(names)
	r.next[channelID] = i + 1
	return names[i], nil
}

func (r *Rotator) rename(channelID, name string) error {
	cond := func() bool { return r.app.LocalOwns(channelID) }
	if _, err := r.app.Send(protocol.TemplateRename, channelID, templates.Vars{templates.NewName: name}, false, cond); err != nil {
		return err
	}
	r.app.Members.SetName(r.app.LocalUserID(), name)
	return nil
}

func (r *Rotator) authorize(inv *modules.Invocation) bool {
	return r.app.IsOperator(inv.SenderID)
}

func (r *Rotator) Commands() []*modules.Command {
	return []*modules.Command{
		{
			Name:        "name",
			Aliases:     []string{"rename"},
			Description: "Rename your channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Name:     "new_name",
				Type:     discordgo.ApplicationCommandOptionString,
				Required: true,
			}},
			Authorize: r.authorize,
			Execute: func(_ context.Context, inv *modules.Invocation) error {
				ch, err := r.app.OwnedChannel()
				if err != nil {
					return err
				}
				name := strings.TrimSpace(inv.String("new_name"))
				if name == "" {
					return errors.New("name is empty")
				}
				r.StopRotation(ch)
				return r.rename(ch, name)
			},
		},
		{
			Name:        "name rotate",
			Description: "Start rotating your channel name",
			Authorize:   r.authorize,
			Execute: func(_ context.Context, _ *modules.Invocation) error {
				ch, err := r.app.OwnedChannel()
				if err != nil {
					return err
				}
				if len(r.app.Config.Current().Rotation.Names) == 0 {
					return errNoNames
				}
				r.StartRotation(ch)
				r.rotate(ch)
				return nil
			},
		},
		{
			Name:        "name stop",
			Description: "Stop rotating your channel name",
			Authorize:   r.authorize,
			Execute: func(_ context.Context, _ *modules.Invocation) error {
				ch, err := r.app.OwnedChannel()
				if err != nil {
					return err
				}
				r.StopRotation(ch)
				return nil
			},
		},
	}
}

func (r *Rotator) MenuItems(kind string, mc modules.MenuContext) []*modules.MenuItem {
	if kind != protocol.MenuChannel || mc.ChannelID == "" || !r.app.LocalOwns(mc.ChannelID) {
		return nil
	}
	ch := mc.ChannelID
	if r.Active(ch) {
		return []*modules.MenuItem{{
			ID:          "namerotation.stop",
			Label:       "Stop name rotation",
			Description: fmt.Sprintf("Next rename at %s", r.NextTick(ch).Format(time.Kitchen)),
			Module:      Name,
			Action: func(context.Context) error {
				r.StopRotation(ch)
				return nil
			},
		}}
	}
	return []*modules.MenuItem{{
		ID:     "namerotation.start",
		Label:  "Start name rotation",
		Module: Name,
		Action: func(context.Context) error {
			if len(r.app.Config.Current().Rotation.Names) == 0 {
				return errNoNames
			}
			r.StartRotation(ch)
			return nil
		},
	}}
}
