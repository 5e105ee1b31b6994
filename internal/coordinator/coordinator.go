// Package coordinator keeps the ownership table in step with moderation bot
// replies and voice presence, and fans the results out to policy modules.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cast"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

// Name is the registry name of the coordinator module.
const Name = "ownership"

// RotationModule is the registry name looked up for a RotationController.
const RotationModule = "namerotation"

// RotationController starts and stops periodic renaming of a channel the
// local actor owns.
type RotationController interface {
	StartRotation(channelID string)
	StopRotation(channelID string)
}

// Coordinator is the module that owns the reply-driven ownership state machine.
type Coordinator struct {
	modules.Base
	app      *modules.Context
	rotation RotationController
}

func New() *Coordinator { return &Coordinator{} }

func (c *Coordinator) Name() string                   { return Name }
func (c *Coordinator) OptionalDependencies() []string { return []string{RotationModule} }

func (c *Coordinator) Init(_ context.Context, app *modules.Context) error {
	c.app = app
	if m, ok := app.Registry.Get(RotationModule); ok {
		if rc, ok := m.(RotationController); ok {
			c.rotation = rc
		} else {
			slog.Warn("coordinator: rotation module does not implement RotationController", "module", RotationModule)
		}
	}
	return nil
}

func (c *Coordinator) OnEvent(p bus.Payload) {
	if c.app == nil {
		return
	}
	switch ev := p.(type) {
	case bus.ReplyReceived:
		c.handleReply(ev.Response)
	case bus.UserJoinedManagedChannel:
		c.handleJoin(ev)
	case bus.UserLeftManagedChannel:
		c.handleLeave(ev)
	}
}

func (c *Coordinator) handleReply(r classifier.Response) {
	if r.ChannelID == "" || r.InitiatorID == "" {
		return
	}
	switch r.Type {
	case classifier.TypeCreated:
		c.recordOwner(r, protocol.OwnershipSlotCreator)
	case classifier.TypeClaimed:
		c.recordOwner(r, protocol.OwnershipSlotClaimant)
	default:
		c.mirrorMember(r)
	}
}

func (c *Coordinator) recordOwner(r classifier.Response, slot string) {
	prev, next, changed := c.app.Ownership.Record(r.ChannelID, slot, r.InitiatorID, r.Timestamp)
	if !changed {
		slog.Debug("coordinator: ownership unchanged", "channel_id", r.ChannelID, "slot", slot, "user_id", r.InitiatorID)
		return
	}
	prevOwner := prev.Owner()
	owner := next.Owner()
	local := c.app.LocalUserID()

	slog.Info("ownership changed", "channel_id", r.ChannelID, "slot", slot, "owner_id", owner, "previous_owner_id", prevOwner)
	c.app.Metrics.OwnershipChanged(slot)
	c.app.Registry.Dispatch(bus.OwnershipChanged{
		ChannelID:       r.ChannelID,
		GuildID:         r.GuildID,
		Slot:            slot,
		OwnerID:         r.InitiatorID,
		PreviousOwnerID: prevOwner,
		At:              r.Timestamp,
	})

	if c.app.IsManaged(r.ChannelID) {
		c.app.Notify.Info(fmt.Sprintf("%s is now owned by <@%s>.", c.channelLabel(r.ChannelID), owner))
	}

	switch {
	case owner == local && prevOwner != local:
		if c.rotation != nil {
			c.rotation.StartRotation(r.ChannelID)
		}
		if _, err := c.app.Send(protocol.TemplateInfo, r.ChannelID, nil, true, nil); err != nil {
			slog.Debug("coordinator: info request skipped", "channel_id", r.ChannelID, "error", err)
		}
	case prevOwner == local && owner != local:
		c.stopRotation(r.ChannelID)
	}
}

// mirrorMember copies moderation outcomes onto the initiator's member config.
func (c *Coordinator) mirrorMember(r classifier.Response) {
	members := c.app.Members
	owner := r.InitiatorID
	var changed bool

	switch r.Type {
	case classifier.TypeBanned, classifier.TypeUnbanned, classifier.TypePermitted, classifier.TypeUnpermitted:
		if r.TargetID == "" || r.TargetIsName {
			slog.Debug("coordinator: reply target is not an ID", "type", r.Type, "target", r.TargetID)
			return
		}
		switch r.Type {
		case classifier.TypeBanned:
			changed = members.Ban(owner, r.TargetID)
		case classifier.TypeUnbanned:
			changed = members.Unban(owner, r.TargetID)
		case classifier.TypePermitted:
			changed = members.Permit(owner, r.TargetID)
		case classifier.TypeUnpermitted:
			changed = members.Unpermit(owner, r.TargetID)
		}
	case classifier.TypeSizeSet:
		limit, err := cast.ToIntE(r.Value)
		if err != nil {
			slog.Debug("coordinator: unreadable size", "value", r.Value, "error", err)
			return
		}
		changed = members.SetLimit(owner, limit)
	case classifier.TypeLocked:
		changed = members.SetLocked(owner, true)
	case classifier.TypeUnlocked:
		changed = members.SetLocked(owner, false)
	default:
		return
	}
	if changed {
		slog.Debug("member config updated", "user_id", owner, "type", r.Type, "target", r.TargetID)
	}
}

func (c *Coordinator) handleJoin(ev bus.UserJoinedManagedChannel) {
	local := c.app.LocalUserID()
	owner := c.app.Ownership.EffectiveOwner(ev.ChannelID)

	if ev.UserID == local {
		if owner != "" {
			return
		}
		if _, err := c.app.Send(protocol.TemplateInfo, ev.ChannelID, nil, true, nil); err != nil {
			slog.Debug("coordinator: info request skipped", "channel_id", ev.ChannelID, "error", err)
		}
		return
	}
	if owner != local || local == "" {
		return
	}

	join := &bus.UserJoinedOwnedChannel{
		UserID:    ev.UserID,
		ChannelID: ev.ChannelID,
		GuildID:   ev.GuildID,
		OwnerID:   owner,
		IsAllowed: true,
	}
	c.app.Registry.Dispatch(join)
	if !join.IsHandled {
		slog.Debug("join not handled by any policy", "user_id", ev.UserID, "channel_id", ev.ChannelID)
		return
	}
	slog.Info("join decided", "user_id", ev.UserID, "channel_id", ev.ChannelID,
		"allowed", join.IsAllowed, "module", join.HandledBy, "reason", join.Reason)
}

func (c *Coordinator) handleLeave(ev bus.UserLeftManagedChannel) {
	if ev.ChannelEmpty {
		c.stopRotation(ev.ChannelID)
		c.app.Tasks.CancelPrefix(modules.ChannelTaskPrefix(ev.ChannelID))
		if c.app.Ownership.Remove(ev.ChannelID) {
			slog.Info("ownership cleared, channel empty", "channel_id", ev.ChannelID)
		}
		return
	}
	if ev.UserID == c.app.LocalUserID() {
		c.stopRotation(ev.ChannelID)
	}
}

func (c *Coordinator) stopRotation(channelID string) {
	if c.rotation != nil {
		c.rotation.StopRotation(channelID)
	}
}

func (c *Coordinator) channelLabel(channelID string) string {
	if info, ok := c.app.Host.ChannelInfo(channelID); ok && info.Name != "" {
		return info.Name
	}
	return channelID
}
