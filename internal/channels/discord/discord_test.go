package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/modules/modtest"
	"github.com/nextlevelbuilder/vcwarden/internal/router"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

type recorder struct {
	events []bus.Payload
}

func (r *recorder) listen(p bus.Payload) { r.events = append(r.events, p) }

func setup(t *testing.T) (*Channel, *modtest.Harness, *recorder) {
	t.Helper()
	h := modtest.NewHarness(t)
	h.Config.Update(func(s *config.Settings) {
		s.Router.Prefix = "!vc"
		s.Discord.CreationChannelID = "lobby"
	})
	c, err := New(h.Config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.session.State.GuildAdd(&discordgo.Guild{
		ID:   modtest.GuildID,
		Name: "Guild One",
		Channels: []*discordgo.Channel{
			{ID: "vc1", GuildID: modtest.GuildID, ParentID: modtest.CategoryID, Name: "Chill Room", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "t1", GuildID: modtest.GuildID, ParentID: modtest.CategoryID, Name: "chill-room", Type: discordgo.ChannelTypeGuildText},
			{ID: "open", GuildID: modtest.GuildID, Name: "General", Type: discordgo.ChannelTypeGuildVoice},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	c.setLocalID(modtest.LocalID)
	h.App.Host = c

	rec := &recorder{}
	for _, ev := range []string{protocol.EventUserJoinedManaged, protocol.EventUserLeftManaged, protocol.EventReplyReceived} {
		h.App.Registry.On(ev, rec.listen)
	}
	return c, h, rec
}

func voice(user, channel string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{UserID: user, ChannelID: channel, GuildID: modtest.GuildID}}
}

func TestHostLookups(t *testing.T) {
	c, _, _ := setup(t)

	info, ok := c.ChannelInfo("vc1")
	if !ok || info.ParentID != modtest.CategoryID || info.Name != "Chill Room" {
		t.Fatalf("unexpected info %+v", info)
	}
	if text, ok := c.AssociatedTextChannel("vc1"); !ok || text != "t1" {
		t.Fatalf("expected t1, got %q %v", text, ok)
	}
	if _, ok := c.AssociatedTextChannel("open"); ok {
		t.Fatal("uncategorized voice channel has no text channel")
	}
	if got := c.GuildName(modtest.GuildID); got != "Guild One" {
		t.Fatalf("guild name = %q", got)
	}
}

func TestVoiceStateDispatchesManagedEvents(t *testing.T) {
	c, h, rec := setup(t)
	c.Attach(h.App, nil)

	c.onVoiceStateUpdate(nil, voice("200", "vc1"))
	c.onVoiceStateUpdate(nil, voice(modtest.LocalID, "vc1"))
	c.onVoiceStateUpdate(nil, voice("200", "open"))
	c.onVoiceStateUpdate(nil, voice(modtest.LocalID, ""))

	if len(rec.events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(rec.events), rec.events)
	}
	if ev, ok := rec.events[0].(bus.UserJoinedManagedChannel); !ok || ev.UserID != "200" || ev.ChannelName != "Chill Room" {
		t.Fatalf("unexpected first event %+v", rec.events[0])
	}
	if ev, ok := rec.events[2].(bus.UserLeftManagedChannel); !ok || ev.UserID != "200" || ev.ChannelEmpty {
		t.Fatalf("200 left with the local actor still inside: %+v", rec.events[2])
	}
	if ev, ok := rec.events[3].(bus.UserLeftManagedChannel); !ok || !ev.ChannelEmpty {
		t.Fatalf("last leaver should empty the channel: %+v", rec.events[3])
	}
	if _, ok := c.LocalVoiceChannel(); ok {
		t.Fatal("local actor left voice")
	}
}

func TestVoiceStateIgnoresOtherGuilds(t *testing.T) {
	c, h, rec := setup(t)
	c.Attach(h.App, nil)

	v := voice("200", "vc1")
	v.GuildID = "elsewhere"
	c.onVoiceStateUpdate(nil, v)
	if len(rec.events) != 0 || len(c.VoiceOccupants("vc1")) != 0 {
		t.Fatal("other guilds must be ignored")
	}
}

func TestBotReplyIsClassified(t *testing.T) {
	c, h, rec := setup(t)
	c.Attach(h.App, nil)

	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "vc1",
		GuildID:   modtest.GuildID,
		Author:    &discordgo.User{ID: modtest.BotID},
		Content:   "<@200>",
		Embeds:    []*discordgo.MessageEmbed{{Title: "Channel Created"}},
	}})
	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "vc1",
		GuildID:   modtest.GuildID,
		Author:    &discordgo.User{ID: modtest.BotID},
		Content:   "Here is some help text",
	}})

	if len(rec.events) != 1 {
		t.Fatalf("expected one classified reply, got %d", len(rec.events))
	}
	got := rec.events[0].(bus.ReplyReceived).Response
	if got.Type != classifier.TypeCreated || got.InitiatorID != "200" {
		t.Fatalf("unexpected response %+v", got)
	}
}

type pingModule struct {
	modules.Base
	calls int
}

func (p *pingModule) Name() string { return "ping" }

func (p *pingModule) Commands() []*modules.Command {
	return []*modules.Command{{Name: "ping", Execute: func(context.Context, *modules.Invocation) error {
		p.calls++
		return nil
	}}}
}

func TestUserMessagesAreRouted(t *testing.T) {
	c, h, _ := setup(t)
	ping := &pingModule{}
	h.App.Registry.Register(ping)
	h.App.Registry.Init(context.Background(), h.App)
	c.Attach(h.App, router.New(h.App))

	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "t1",
		GuildID:   modtest.GuildID,
		Author:    &discordgo.User{ID: modtest.LocalID},
		Content:   "!vc ping",
	}})
	if ping.calls != 1 {
		t.Fatalf("expected ping to run once, got %d", ping.calls)
	}
}

func TestSendRefusesCreationChannel(t *testing.T) {
	c, _, _ := setup(t)
	if _, err := c.SendMessage(context.Background(), "lobby", "/voice info"); !errors.Is(err, ErrCreationChannel) {
		t.Fatalf("expected ErrCreationChannel, got %v", err)
	}
}

func TestMatchTextChannel(t *testing.T) {
	voice := &discordgo.Channel{Name: "My  Room", ParentID: "cat"}
	candidates := []*discordgo.Channel{
		{ID: "a", Name: "my-room", ParentID: "other", Type: discordgo.ChannelTypeGuildText},
		{ID: "b", Name: "my-room", ParentID: "cat", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "c", Name: "my-room", ParentID: "cat", Type: discordgo.ChannelTypeGuildText},
	}
	if id, ok := matchTextChannel(voice, candidates); !ok || id != "c" {
		t.Fatalf("expected c, got %q", id)
	}
}
