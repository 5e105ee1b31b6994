// Package classifier turns replies from the external moderation bot into
// typed events. The matching is heuristic: the bot speaks plain chat text
// and embeds, not a versioned protocol, so everything fragile lives here
// behind Classify.
package classifier

import (
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Type is the classified kind of a bot reply.
type Type string

const (
	TypeUnknown     Type = "UNKNOWN"
	TypeCreated     Type = "CREATED"
	TypeClaimed     Type = "CLAIMED"
	TypeInfo        Type = "INFO"
	TypeBanned      Type = "BANNED"
	TypeUnbanned    Type = "UNBANNED"
	TypePermitted   Type = "PERMITTED"
	TypeUnpermitted Type = "UNPERMITTED"
	TypeSizeSet     Type = "SIZE_SET"
	TypeLocked      Type = "LOCKED"
	TypeUnlocked    Type = "UNLOCKED"
)

// HasTarget reports whether replies of this type name a target user.
func (t Type) HasTarget() bool {
	switch t {
	case TypeBanned, TypeUnbanned, TypePermitted, TypeUnpermitted:
		return true
	}
	return false
}

// Response is the ephemeral classification of one reply. It is recomputed
// per message and never persisted.
type Response struct {
	Type        Type
	InitiatorID string
	TargetID    string
	// TargetIsName is set when TargetID came from a raw "@name" match rather
	// than a numeric mention. Such targets are unreliable.
	TargetIsName bool
	// Value carries the numeric limit for SIZE_SET replies.
	Value     string
	ChannelID string
	GuildID   string
	Timestamp time.Time
	Raw       *discordgo.Message
}

// ReferenceResolver looks up the author of a message the bot replied to when
// the reference was not inlined in the reply.
type ReferenceResolver func(channelID, messageID string) (authorID string, ok bool)

type phrase struct {
	text string
	typ  Type
}

// Ordered: more specific phrases must precede the broader ones they contain.
var phraseTable = []phrase{
	{"channel settings", TypeInfo},
	{"channel information", TypeInfo},
	{"channel info", TypeInfo},
	{"channel created", TypeCreated},
	{"created your channel", TypeCreated},
	{"created a new channel", TypeCreated},
	{"channel claimed", TypeClaimed},
	{"claimed the channel", TypeClaimed},
	{"claimed this channel", TypeClaimed},
	{"you are now the owner", TypeClaimed},
	{"ownership transferred", TypeClaimed},
	{"unbanned", TypeUnbanned},
	{"banned", TypeBanned},
	{"unpermitted", TypeUnpermitted},
	{"no longer permitted", TypeUnpermitted},
	{"permitted", TypePermitted},
	{"unlocked", TypeUnlocked},
	{"locked", TypeLocked},
	{"user limit", TypeSizeSet},
	{"channel limit", TypeSizeSet},
	{"limit set", TypeSizeSet},
}

// Generic help and error replies mention verbs like "ban" or "lock" while
// describing usage; they never describe a state change.
var exclusions = []string{
	"available commands",
	"command list",
	"usage:",
	"an error occurred",
	"something went wrong",
	"you don't have permission",
	"you do not have permission",
	"you are not the owner",
	"you don't own",
	"is not a valid",
}

var (
	mentionRe = regexp.MustCompile(`<@!?(\d+)>`)
	avatarRe  = regexp.MustCompile(`/(?:avatars|users)/(\d+)/`)
	nameRe    = regexp.MustCompile(`(?:^|\s)@([\w.]{2,32})`)
	limitRe   = regexp.MustCompile(`\b(\d{1,3})\b`)
)

// Classifier is stateless apart from its optional reference resolver.
type Classifier struct {
	resolveRef ReferenceResolver
	now        func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithReferenceResolver sets the lookup used when a reply references a
// message that discordgo did not inline.
func WithReferenceResolver(r ReferenceResolver) Option {
	return func(c *Classifier) { c.resolveRef = r }
}

// WithClock overrides the clock used for replies without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify inspects a reply and returns its classification. It never fails;
// anything it cannot place is TypeUnknown.
func (c *Classifier) Classify(msg *discordgo.Message) Response {
	if msg == nil {
		return Response{Type: TypeUnknown, Timestamp: c.now()}
	}

	resp := Response{
		Type:      TypeUnknown,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Timestamp: msg.Timestamp,
		Raw:       msg,
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = c.now()
	}

	embed := firstEmbed(msg)
	var title, author, description string
	if embed != nil {
		title = embed.Title
		description = embed.Description
		if embed.Author != nil {
			author = embed.Author.Name
		}
	}

	// Confidence order: title, author name, description, plain content.
	fields := []string{title, author, description, msg.Content}
	if isExcluded(fields) {
		return resp
	}

	resp.Type = matchFields(fields)
	if resp.Type == TypeUnknown {
		return resp
	}

	resp.InitiatorID = c.initiator(resp.Type, msg, embed, description)
	if resp.Type.HasTarget() {
		resp.TargetID, resp.TargetIsName = target(resp.InitiatorID, description, msg.Content)
	}
	if resp.Type == TypeSizeSet {
		resp.Value = firstNumber(description, msg.Content, title)
	}
	return resp
}

func firstEmbed(msg *discordgo.Message) *discordgo.MessageEmbed {
	for _, e := range msg.Embeds {
		if e != nil {
			return e
		}
	}
	return nil
}

func isExcluded(fields []string) bool {
	for _, f := range fields {
		lower := strings.ToLower(f)
		if lower == "" {
			continue
		}
		for _, ex := range exclusions {
			if strings.Contains(lower, ex) {
				return true
			}
		}
	}
	return false
}

func matchFields(fields []string) Type {
	for _, f := range fields {
		lower := strings.ToLower(f)
		if lower == "" {
			continue
		}
		for _, p := range phraseTable {
			if strings.Contains(lower, p.text) {
				return p.typ
			}
		}
	}
	return TypeUnknown
}

// initiator resolves who caused the reply: an explicit mention for channel
// creation, then the embed author's avatar URL, then the referenced command.
func (c *Classifier) initiator(t Type, msg *discordgo.Message, embed *discordgo.MessageEmbed, description string) string {
	if t == TypeCreated {
		if id := firstMention(msg.Content, ""); id != "" {
			return id
		}
		if id := firstMention(description, ""); id != "" {
			return id
		}
	}

	if embed != nil && embed.Author != nil {
		if m := avatarRe.FindStringSubmatch(embed.Author.IconURL); m != nil {
			return m[1]
		}
	}

	if ref := msg.ReferencedMessage; ref != nil && ref.Author != nil {
		return ref.Author.ID
	}
	if msg.MessageReference != nil && c.resolveRef != nil {
		channelID := msg.MessageReference.ChannelID
		if channelID == "" {
			channelID = msg.ChannelID
		}
		if id, ok := c.resolveRef(channelID, msg.MessageReference.MessageID); ok {
			return id
		}
	}
	return ""
}

func target(initiatorID string, texts ...string) (string, bool) {
	for _, t := range texts {
		if id := firstMention(t, initiatorID); id != "" {
			return id, false
		}
	}
	for _, t := range texts {
		if m := nameRe.FindStringSubmatch(t); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func firstMention(text, skip string) string {
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		if m[1] != skip {
			return m[1]
		}
	}
	return ""
}

func firstNumber(texts ...string) string {
	for _, t := range texts {
		// Drop mentions so their digits never read as a limit.
		cleaned := mentionRe.ReplaceAllString(t, "")
		if m := limitRe.FindStringSubmatch(cleaned); m != nil {
			return m[1]
		}
	}
	return ""
}
