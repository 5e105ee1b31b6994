// Package bus defines the closed set of event payloads exchanged between the
// module registry, the action queue, the ownership coordinator and the
// policy modules.
package bus

import (
	"time"

	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

// Payload is implemented only by the event types in this package.
type Payload interface {
	EventName() string
	isPayload()
}

// Dispatcher delivers payloads to listeners. The module registry is the
// production implementation.
type Dispatcher interface {
	Dispatch(p Payload)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(p Payload)

func (f DispatchFunc) Dispatch(p Payload) { f(p) }

// Listener receives dispatched payloads.
type Listener func(p Payload)

// OwnershipChanged is emitted when a creator or claimant slot actually changes.
type OwnershipChanged struct {
	ChannelID       string    `json:"channel_id"`
	GuildID         string    `json:"guild_id,omitempty"`
	Slot            string    `json:"slot"` // protocol.OwnershipSlot*
	OwnerID         string    `json:"owner_id"`
	PreviousOwnerID string    `json:"previous_owner_id,omitempty"` // effective owner before the change
	At              time.Time `json:"at"`
}

// ReplyReceived carries a classified reply from the moderation bot.
type ReplyReceived struct {
	Response classifier.Response `json:"response"`
}

// ActionQueued is emitted after an outbound command is accepted by the queue.
type ActionQueued struct {
	ItemID    string `json:"item_id"`
	Command   string `json:"command"`
	ChannelID string `json:"channel_id"`
	Priority  bool   `json:"priority"`
}

// ActionExecuted is emitted after an outbound command was sent. ReplyID is the
// message ID of what was sent, for cleanup consumers.
type ActionExecuted struct {
	ItemID    string `json:"item_id"`
	Command   string `json:"command"`
	ChannelID string `json:"channel_id"`
	ReplyID   string `json:"reply_id,omitempty"`
}

// UserJoinedManagedChannel is emitted when anyone joins a voice channel under
// the managed category.
type UserJoinedManagedChannel struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id"`
	ChannelName string `json:"channel_name,omitempty"`
}

// UserLeftManagedChannel is emitted when anyone leaves a managed voice channel.
type UserLeftManagedChannel struct {
	UserID       string `json:"user_id"`
	ChannelID    string `json:"channel_id"`
	GuildID      string `json:"guild_id"`
	ChannelEmpty bool   `json:"channel_empty"`
}

// UserJoinedOwnedChannel is dispatched by pointer so policy modules can
// cooperatively decide the join. The first module to set IsHandled wins;
// later modules should leave the decision alone.
type UserJoinedOwnedChannel struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	OwnerID   string `json:"owner_id"`
	IsAllowed bool   `json:"is_allowed"`
	IsHandled bool   `json:"is_handled"`
	Reason    string `json:"reason,omitempty"`
	HandledBy string `json:"handled_by,omitempty"`
}

// Decide records a decision unless another module already handled the join.
// It reports whether this call won.
func (e *UserJoinedOwnedChannel) Decide(module string, allowed bool, reason string) bool {
	if e.IsHandled {
		return false
	}
	e.IsHandled = true
	e.IsAllowed = allowed
	e.Reason = reason
	e.HandledBy = module
	return true
}

func (OwnershipChanged) EventName() string         { return protocol.EventOwnershipChanged }
func (ReplyReceived) EventName() string            { return protocol.EventReplyReceived }
func (ActionQueued) EventName() string             { return protocol.EventActionQueued }
func (ActionExecuted) EventName() string           { return protocol.EventActionExecuted }
func (UserJoinedManagedChannel) EventName() string { return protocol.EventUserJoinedManaged }
func (UserLeftManagedChannel) EventName() string   { return protocol.EventUserLeftManaged }
func (*UserJoinedOwnedChannel) EventName() string  { return protocol.EventUserJoinedOwned }

func (OwnershipChanged) isPayload()         {}
func (ReplyReceived) isPayload()            {}
func (ActionQueued) isPayload()             {}
func (ActionExecuted) isPayload()           {}
func (UserJoinedManagedChannel) isPayload() {}
func (UserLeftManagedChannel) isPayload()   {}
func (*UserJoinedOwnedChannel) isPayload()  {}
