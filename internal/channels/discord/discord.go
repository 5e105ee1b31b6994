// Package discord is the host adapter over a discordgo session: it feeds
// gateway events into the module registry and the command router, and
// implements modules.Host for everything that reads or writes Discord.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/classifier"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/modules"
	"github.com/nextlevelbuilder/vcwarden/internal/router"
)

// Channel connects to Discord through the gateway.
type Channel struct {
	session *discordgo.Session
	cfg     *config.Config

	app        *modules.Context
	router     *router.Router
	classifier *classifier.Classifier

	ctx context.Context

	mu      sync.RWMutex
	localID string
	voice   map[string]string // user ID -> voice channel ID, configured guild only
}

var _ modules.Host = (*Channel)(nil)

// New creates a Channel from the live config. The session is not opened
// until Start.
func New(cfg *config.Config) (*Channel, error) {
	dc := cfg.Current().Discord
	session, err := discordgo.New(dc.AuthHeader())
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Channel{
		session: session,
		cfg:     cfg,
		ctx:     context.Background(),
		voice:   make(map[string]string),
	}
	c.classifier = classifier.New(classifier.WithReferenceResolver(c.resolveReference))
	return c, nil
}

// Attach wires the application context and router. It must be called
// before Start.
func (c *Channel) Attach(app *modules.Context, r *router.Router) {
	c.app = app
	c.router = r
}

// Start opens the gateway connection and learns the local identity.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord session")
	c.ctx = ctx

	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onGuildCreate)
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onVoiceStateUpdate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord identity: %w", err)
	}
	c.setLocalID(user.ID)
	slog.Info("discord connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop() error {
	slog.Info("stopping discord session")
	return c.session.Close()
}

// Send is the queue's send handler.
func (c *Channel) Send(ctx context.Context, channelID, command string) (any, error) {
	return c.SendMessage(ctx, channelID, command)
}

func (c *Channel) setLocalID(id string) {
	c.mu.Lock()
	c.localID = id
	c.mu.Unlock()
}

func (c *Channel) resolveReference(channelID, messageID string) (string, bool) {
	if m, err := c.session.State.Message(channelID, messageID); err == nil && m.Author != nil {
		return m.Author.ID, true
	}
	m, err := c.session.ChannelMessage(channelID, messageID)
	if err != nil || m.Author == nil {
		slog.Debug("discord: referenced message not found", "channel_id", channelID, "message_id", messageID, "error", err)
		return "", false
	}
	return m.Author.ID, true
}
