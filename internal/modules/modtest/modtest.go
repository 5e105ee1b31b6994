// Package modtest provides an in-memory Host and a fully wired
// modules.Context for module tests.
package modtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/notify"
	"github.com/nextlevelbuilder/vcwarden/internal/ownership"
	"github.com/nextlevelbuilder/vcwarden/internal/queue"
	"github.com/nextlevelbuilder/vcwarden/internal/tasks"
	"github.com/nextlevelbuilder/vcwarden/internal/templates"
)

// Fixture IDs used by NewHarness.
const (
	LocalID    = "100"
	BotID      = "900"
	CategoryID = "cat"
	GuildID    = "g1"
)

// SentMessage is one message passed to FakeHost.SendMessage.
type SentMessage struct {
	ChannelID string
	Content   string
}

// FakeHost is a scriptable modules.Host.
type FakeHost struct {
	mu         sync.Mutex
	localVoice string
	channels   map[string]modules.ChannelInfo
	text       map[string]string
	occupants  map[string][]string
	roles      map[string][]string
	sent       []SentMessage
	deleted    []string
	SendErr    error
}

var _ modules.Host = (*FakeHost)(nil)

func NewFakeHost() *FakeHost {
	return &FakeHost{
		channels:  make(map[string]modules.ChannelInfo),
		text:      make(map[string]string),
		occupants: make(map[string][]string),
		roles:     make(map[string][]string),
	}
}

// AddManagedVoice registers a voice channel under the managed category.
func (h *FakeHost) AddManagedVoice(id, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[id] = modules.ChannelInfo{ID: id, Name: name, GuildID: GuildID, ParentID: CategoryID}
}

// AddChannel registers an arbitrary channel.
func (h *FakeHost) AddChannel(info modules.ChannelInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[info.ID] = info
}

// LinkText associates a text channel with a voice channel.
func (h *FakeHost) LinkText(voiceID, textID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.text[voiceID] = textID
}

// Join puts userID into channelID (and out of any other channel).
func (h *FakeHost) Join(userID, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(userID)
	h.occupants[channelID] = append(h.occupants[channelID], userID)
	if userID == LocalID {
		h.localVoice = channelID
	}
}

// Leave removes userID from whatever channel it is in.
func (h *FakeHost) Leave(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(userID)
}

func (h *FakeHost) leaveLocked(userID string) {
	for ch, users := range h.occupants {
		if i := slices.Index(users, userID); i >= 0 {
			h.occupants[ch] = slices.Delete(users, i, i+1)
		}
	}
	if userID == LocalID {
		h.localVoice = ""
	}
}

// SetRoles sets userID's roles.
func (h *FakeHost) SetRoles(userID string, roles ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roles[userID] = roles
}

// Sent returns every message sent so far.
func (h *FakeHost) Sent() []SentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SentMessage(nil), h.sent...)
}

// Deleted returns deleted message IDs.
func (h *FakeHost) Deleted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deleted...)
}

func (h *FakeHost) LocalUserID() string { return LocalID }

func (h *FakeHost) LocalVoiceChannel() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.localVoice, h.localVoice != ""
}

func (h *FakeHost) ChannelInfo(channelID string) (modules.ChannelInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	info, ok := h.channels[channelID]
	return info, ok
}

func (h *FakeHost) AssociatedTextChannel(voiceChannelID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.text[voiceChannelID]
	return id, ok
}

func (h *FakeHost) GuildName(guildID string) string { return "Guild " + guildID }

func (h *FakeHost) MemberRoles(_, userID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.roles[userID])
}

func (h *FakeHost) VoiceOccupants(channelID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.occupants[channelID])
}

func (h *FakeHost) SendMessage(_ context.Context, channelID, content string) (*discordgo.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.SendErr != nil {
		return nil, h.SendErr
	}
	h.sent = append(h.sent, SentMessage{ChannelID: channelID, Content: content})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", len(h.sent)), ChannelID: channelID, Content: content}, nil
}

func (h *FakeHost) DeleteMessage(_ context.Context, channelID, messageID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if messageID == "" {
		return errors.New("empty message id")
	}
	h.deleted = append(h.deleted, messageID)
	return nil
}

// Harness bundles a wired application context with its fakes.
type Harness struct {
	App     *modules.Context
	Host    *FakeHost
	Notices *notify.Local
	Config  *config.Config
}

// NewHarness wires a Context with every template configured, the queue
// stopped (inspect App.Queue.Pending), and debug notices enabled.
func NewHarness(t testing.TB) *Harness {
	t.Helper()

	cfg := config.Default()
	cfg.Update(func(s *config.Settings) {
		s.Debug = true
		s.Queue.DelayMs = 0
		s.Discord.ModerationBotID = BotID
		s.Discord.ManagedCategoryID = CategoryID
		s.Discord.GuildID = GuildID
		s.Templates = config.TemplatesConfig{
			Claim:    "/voice claim",
			Info:     "/voice info",
			Lock:     "/voice lock",
			Unlock:   "/voice unlock",
			Limit:    "/voice limit {limit}",
			Rename:   "/voice name {new_name}",
			Kick:     "/voice kick {target}",
			Ban:      "/voice ban {target}",
			Unban:    "/voice unban {target}",
			Permit:   "/voice permit {target}",
			Unpermit: "/voice unpermit {target}",
		}
	})

	sched := tasks.New()
	t.Cleanup(sched.Close)

	registry := modules.NewRegistry()
	notices := notify.NewLocal(func() bool { return cfg.Current().Debug })
	host := NewFakeHost()

	app := &modules.Context{
		Registry:  registry,
		Queue:     queue.New(func() config.QueueConfig { return cfg.Current().Queue }, registry, queue.WithReservedCommands(cfg.ReservedCommands)),
		Ownership: ownership.NewStore(),
		Members:   ownership.NewMemberConfigs(nil),
		Config:    cfg,
		Host:      host,
		Notify:    notices,
		Tasks:     sched,
		Templates: templates.NewRenderer(cfg),
	}
	return &Harness{App: app, Host: host, Notices: notices, Config: cfg}
}

// Commands returns the text of every pending queue item in dequeue order.
func (h *Harness) Commands() []string {
	var out []string
	for _, it := range h.App.Queue.Pending() {
		out = append(out, it.Command)
	}
	return out
}
