package protocol

// ProtocolVersion is bumped whenever event payloads or template placeholders
// change shape in a way consumers of the local HTTP API must notice.
const ProtocolVersion = 1

// Event names dispatched through the module registry.
const (
	EventOwnershipChanged = "ownership.changed"
	EventReplyReceived    = "bot.reply.received"
	EventActionQueued     = "action.queued"
	EventActionExecuted   = "action.executed"

	// Voice presence in managed channels.
	EventUserJoinedManaged = "voice.managed.joined"
	EventUserLeftManaged   = "voice.managed.left"

	// Mutable payload: policy modules may allow or veto the join.
	EventUserJoinedOwned = "voice.owned.joined"
)

// Ownership slot names carried in OwnershipChanged payloads.
const (
	OwnershipSlotCreator  = "creator"
	OwnershipSlotClaimant = "claimant"
)

// Action outcomes recorded by the queue.
const (
	ActionOutcomeSent            = "sent"
	ActionOutcomeConditionFailed = "condition_failed"
	ActionOutcomeTimeout         = "timeout"
	ActionOutcomeNoHandler       = "no_handler"
	ActionOutcomeError           = "error"
)
