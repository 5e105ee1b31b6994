// Package router turns inbound chat text into module command invocations.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/vcwarden/internal/modules"
)

// DefaultTimeout bounds each command handler.
const DefaultTimeout = 10 * time.Second

var (
	ErrUnauthorized   = errors.New("router: unauthorized")
	ErrCommandTimeout = errors.New("router: command timed out")
	ErrNoTarget       = errors.New("router: no managed channel to act on")
	ErrMissingOption  = errors.New("router: missing required option")
	ErrRateLimited    = errors.New("router: too many remote commands")
)

var leadingMentionRe = regexp.MustCompile(`^<@!?(\d+)>\s*`)

// Option configures a Router.
type Option func(*Router)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// Router matches triggered messages against the registry's command table.
type Router struct {
	app     *modules.Context
	timeout time.Duration
	limiter *senderLimiter
}

func New(app *modules.Context, opts ...Option) *Router {
	r := &Router{app: app, timeout: DefaultTimeout, limiter: newSenderLimiter()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound message. handled is false when the message
// carried no trigger or matched no command; err reports why a triggered
// command was rejected or failed. Diagnostics go to the local notifier only.
func (r *Router) Handle(ctx context.Context, msg *discordgo.Message, isDM bool) (handled bool, err error) {
	if msg == nil || msg.Author == nil {
		return false, nil
	}
	text, ok := r.trigger(msg.Content, isDM)
	if !ok || text == "" {
		return false, nil
	}

	local := r.app.Host.LocalUserID()
	sender := msg.Author.ID

	if sender != local {
		vc, inVoice := r.app.Host.LocalVoiceChannel()
		if !inVoice || !r.app.Ownership.IsOwner(vc, local) {
			r.app.Notify.Warn(fmt.Sprintf("Ignored remote command from %s: you do not own a voice channel.", sender))
			r.app.Metrics.Command("", "unauthorized")
			return true, ErrUnauthorized
		}
		if !r.limiter.allow(sender, r.app.Config.Current().Router.RemoteRateLimit) {
			r.app.Notify.Debug(fmt.Sprintf("Dropped remote command from %s: rate limited.", sender))
			r.app.Metrics.Command("", "rate_limited")
			return true, ErrRateLimited
		}
	}

	channelID := msg.ChannelID
	if isDM {
		target, err := r.dmTarget()
		if err != nil {
			r.app.Notify.Warn("Cannot run a DM command: you are not in a managed voice channel with a linked text channel.")
			return true, err
		}
		channelID = target
	}

	name, candidates := match(r.app.Registry.Commands(), text)
	if len(candidates) == 0 {
		return false, nil
	}
	rest := strings.TrimSpace(text[len(name):])

	// Authorization comes before argument errors so an implementation the
	// sender may not use cannot mask one they may.
	var (
		parseErr error
		parseCmd modules.ModuleCommand
	)
	for _, mc := range candidates {
		args, argErr := parseArgs(mc.Command.Options, rest)
		if args == nil {
			args = map[string]any{}
		}
		inv := &modules.Invocation{
			Name:      name,
			Args:      args,
			SenderID:  sender,
			ChannelID: channelID,
			GuildID:   msg.GuildID,
			IsDM:      isDM,
			Raw:       msg,
		}
		if mc.Command.Authorize != nil && !safeAuthorize(mc, inv) {
			slog.Debug("router: authorization declined, trying next", "command", name, "module", mc.Module)
			continue
		}
		if argErr != nil {
			if parseErr == nil {
				parseErr, parseCmd = argErr, mc
			}
			continue
		}
		err := r.execute(ctx, mc, inv)
		switch {
		case err == nil:
			r.app.Metrics.Command(mc.Command.Name, "ok")
		case errors.Is(err, ErrCommandTimeout):
			r.app.Metrics.Command(mc.Command.Name, "timeout")
			r.app.Notify.Error(fmt.Sprintf("%s: timed out", name))
		default:
			r.app.Metrics.Command(mc.Command.Name, "error")
			r.app.Notify.Error(fmt.Sprintf("%s: %v", name, err))
		}
		if err != nil {
			slog.Warn("router: command failed", "command", name, "module", mc.Module, "sender", sender, "error", err)
		}
		return true, err
	}

	if parseErr != nil {
		r.app.Notify.Warn(fmt.Sprintf("%s: %v", name, parseErr))
		r.app.Metrics.Command(parseCmd.Command.Name, "bad_args")
		return true, parseErr
	}

	r.app.Notify.Warn(fmt.Sprintf("%s: %s is not allowed to run this command.", name, sender))
	r.app.Metrics.Command(candidates[0].Command.Name, "unauthorized")
	return true, ErrUnauthorized
}

// trigger strips the configured prefix (outside DMs) or a leading mention
// of the local actor. ok is false when neither is present.
func (r *Router) trigger(content string, isDM bool) (string, bool) {
	text := strings.TrimSpace(content)
	prefix := r.app.Config.Current().Router.Prefix
	if !isDM && prefix != "" && len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
		return strings.TrimSpace(text[len(prefix):]), true
	}
	if m := leadingMentionRe.FindStringSubmatch(text); m != nil && m[1] == r.app.Host.LocalUserID() {
		return strings.TrimSpace(text[len(m[0]):]), true
	}
	return "", false
}

// dmTarget finds the text channel linked to the local actor's managed voice
// channel.
func (r *Router) dmTarget() (string, error) {
	vc, ok := r.app.Host.LocalVoiceChannel()
	if !ok || !r.app.IsManaged(vc) {
		return "", ErrNoTarget
	}
	text, ok := r.app.Host.AssociatedTextChannel(vc)
	if !ok {
		return "", ErrNoTarget
	}
	return text, nil
}

type entry struct {
	name string
	mc   modules.ModuleCommand
}

// match returns the longest command name satisfied by text and every
// registration of that name, in module order.
func match(cmds []modules.ModuleCommand, text string) (string, []modules.ModuleCommand) {
	var entries []entry
	for _, mc := range cmds {
		for _, n := range mc.Command.Names() {
			if n = strings.TrimSpace(n); n != "" {
				entries = append(entries, entry{name: strings.ToLower(n), mc: mc})
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return len(entries[i].name) > len(entries[j].name) })

	lower := strings.ToLower(text)
	matched := ""
	for _, e := range entries {
		if lower == e.name || strings.HasPrefix(lower, e.name+" ") {
			matched = e.name
			break
		}
	}
	if matched == "" {
		return "", nil
	}
	var out []modules.ModuleCommand
	for _, e := range entries {
		if e.name == matched {
			out = append(out, e.mc)
		}
	}
	return matched, out
}

func safeAuthorize(mc modules.ModuleCommand, inv *modules.Invocation) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("router: authorize panicked", "module", mc.Module, "command", mc.Command.Name, "panic", rec)
			ok = false
		}
	}()
	return mc.Command.Authorize(inv)
}

// execute races the handler against the timeout. A handler that overruns
// keeps running in the background; its result is discarded.
func (r *Router) execute(parent context.Context, mc modules.ModuleCommand, inv *modules.Invocation) error {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("router: command panicked", "module", mc.Module, "command", mc.Command.Name,
					"panic", rec, "stack", string(debug.Stack()))
				done <- fmt.Errorf("command panicked: %v", rec)
			}
		}()
		done <- mc.Command.Execute(ctx, inv)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if parent.Err() != nil {
			return parent.Err()
		}
		return fmt.Errorf("%w after %s", ErrCommandTimeout, r.timeout)
	}
}
