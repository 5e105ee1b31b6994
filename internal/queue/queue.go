// Package queue is the single outbound path to the moderation bot. Items
// are sent one at a time, priority lane first, with a rate-limited gap
// between dequeues.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/config"
	"github.com/nextlevelbuilder/vcwarden/internal/metrics"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

// DefaultSendTimeout bounds each send. Timed-out items are not retried.
const DefaultSendTimeout = 10 * time.Second

var (
	ErrNoHandler   = errors.New("queue: no send handler configured")
	ErrSendTimeout = errors.New("queue: send timed out")
)

// highPriorityVerbs are promoted to the priority lane when they lead a
// command.
var highPriorityVerbs = map[string]struct{}{
	"claim": {},
	"info":  {},
}

// Item is one outbound command.
type Item struct {
	ID         string
	Command    string
	ChannelID  string
	Priority   bool
	EnqueuedAt time.Time
	// Condition, when set, is evaluated at dequeue; false drops the item.
	Condition func() bool
	// ReplyID is set after a successful send.
	ReplyID string
}

// SendFunc delivers command text to channelID. The returned value is probed
// for the sent message ID (see extractReplyID).
type SendFunc func(ctx context.Context, channelID, command string) (any, error)

// SettingsFunc returns the live queue settings; it is called every cycle.
type SettingsFunc func() config.QueueConfig

// Option configures a Queue.
type Option func(*Queue)

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(d time.Duration) Option {
	return func(q *Queue) { q.sendTimeout = d }
}

// WithReservedCommands supplies the configured claim and info commands.
// A command whose leading words equal the literal part of one of them (up
// to its first placeholder) is promoted to the priority lane, so
// "/voice claim" is promoted while "/voice name info" is not.
func WithReservedCommands(fn func() []string) Option {
	return func(q *Queue) { q.reserved = fn }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Collector) Option {
	return func(q *Queue) { q.metrics = m }
}

// Queue holds two FIFO lanes and drains them on a single goroutine.
type Queue struct {
	settings    SettingsFunc
	dispatcher  bus.Dispatcher
	metrics     *metrics.Collector
	sendTimeout time.Duration
	limiter     *rate.Limiter
	reserved    func() []string

	mu         sync.Mutex
	priority   []*Item
	normal     []*Item
	processing bool
	send       SendFunc
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a stopped queue. dispatcher may be nil.
func New(settings SettingsFunc, dispatcher bus.Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		settings:    settings,
		dispatcher:  dispatcher,
		sendTimeout: DefaultSendTimeout,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetSendHandler installs the transport. Until one is set, dequeued items
// are discarded with an error log.
func (q *Queue) SetSendHandler(fn SendFunc) {
	q.mu.Lock()
	q.send = fn
	q.mu.Unlock()
}

// Start begins draining. Items enqueued earlier are picked up immediately.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.cancel != nil {
		q.mu.Unlock()
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()
	q.Kick()
}

// Stop halts draining and waits for the in-flight item. Pending items stay
// queued.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}

// Enqueue appends a command. Claim and info commands are promoted to the
// priority lane regardless of priority. Returns the item ID.
func (q *Queue) Enqueue(command, channelID string, priority bool, cond func() bool) string {
	var reserved []string
	if q.reserved != nil {
		reserved = q.reserved()
	}
	if isHighPriority(command, reserved) {
		priority = true
	}
	item := newItem(command, channelID, priority, cond)

	q.mu.Lock()
	if priority {
		q.priority = append(q.priority, item)
	} else {
		q.normal = append(q.normal, item)
	}
	q.mu.Unlock()

	q.accepted(item)
	return item.ID
}

// Unshift inserts a command at the very front of the priority lane.
func (q *Queue) Unshift(command, channelID string, cond func() bool) string {
	item := newItem(command, channelID, true, cond)

	q.mu.Lock()
	q.priority = append([]*Item{item}, q.priority...)
	q.mu.Unlock()

	q.accepted(item)
	return item.ID
}

func newItem(command, channelID string, priority bool, cond func() bool) *Item {
	return &Item{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Command:    command,
		ChannelID:  channelID,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Condition:  cond,
	}
}

func (q *Queue) accepted(item *Item) {
	lane := "normal"
	if item.Priority {
		lane = "priority"
	}
	q.metrics.Enqueued(lane)
	q.reportDepth()
	slog.Debug("queue: enqueued", "item_id", item.ID, "channel_id", item.ChannelID, "lane", lane)
	if q.dispatcher != nil {
		q.dispatcher.Dispatch(bus.ActionQueued{
			ItemID:    item.ID,
			Command:   item.Command,
			ChannelID: item.ChannelID,
			Priority:  item.Priority,
		})
	}
	q.Kick()
}

// Kick starts the drain loop if it is idle, started, enabled and has work.
// Called after enqueue and after config reloads.
func (q *Queue) Kick() {
	enabled := q.settings().IsEnabled()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing || q.ctx == nil || q.ctx.Err() != nil || !enabled {
		return
	}
	if len(q.priority)+len(q.normal) == 0 {
		return
	}
	q.processing = true
	q.wg.Add(1)
	go q.drain(q.ctx)
}

func (q *Queue) drain(ctx context.Context) {
	defer q.wg.Done()
	for {
		s := q.settings()

		q.mu.Lock()
		if !s.IsEnabled() || ctx.Err() != nil || len(q.priority)+len(q.normal) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		// Every dequeue costs one token, whatever the item's outcome.
		if d := s.Delay(); d > 0 {
			q.limiter.SetLimit(rate.Every(d))
		} else {
			q.limiter.SetLimit(rate.Inf)
		}
		if err := q.limiter.Wait(ctx); err != nil {
			q.mu.Lock()
			q.processing = false
			q.mu.Unlock()
			return
		}

		item := q.pop()
		if item == nil {
			continue
		}
		q.reportDepth()
		q.execute(ctx, item)
	}
}

func (q *Queue) pop() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.priority) > 0 {
		item := q.priority[0]
		q.priority[0] = nil
		q.priority = q.priority[1:]
		return item
	}
	if len(q.normal) > 0 {
		item := q.normal[0]
		q.normal[0] = nil
		q.normal = q.normal[1:]
		return item
	}
	return nil
}

func (q *Queue) execute(ctx context.Context, item *Item) {
	if item.Condition != nil && !evalCondition(item) {
		slog.Debug("queue: condition failed, dropping", "item_id", item.ID, "channel_id", item.ChannelID)
		q.metrics.Executed(protocol.ActionOutcomeConditionFailed)
		return
	}

	q.mu.Lock()
	send := q.send
	q.mu.Unlock()
	if send == nil {
		slog.Error("queue: dropping item", "item_id", item.ID, "error", ErrNoHandler)
		q.metrics.Executed(protocol.ActionOutcomeNoHandler)
		return
	}

	reply, err := q.sendWithTimeout(ctx, send, item)
	if err != nil {
		outcome := protocol.ActionOutcomeError
		if errors.Is(err, ErrSendTimeout) {
			outcome = protocol.ActionOutcomeTimeout
		}
		slog.Warn("queue: send failed", "item_id", item.ID, "channel_id", item.ChannelID, "error", err)
		q.metrics.Executed(outcome)
		return
	}

	item.ReplyID = extractReplyID(reply)
	q.metrics.Executed(protocol.ActionOutcomeSent)
	slog.Debug("queue: sent", "item_id", item.ID, "channel_id", item.ChannelID, "reply_id", item.ReplyID)
	if q.dispatcher != nil {
		q.dispatcher.Dispatch(bus.ActionExecuted{
			ItemID:    item.ID,
			Command:   item.Command,
			ChannelID: item.ChannelID,
			ReplyID:   item.ReplyID,
		})
	}
}

func evalCondition(item *Item) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("queue: condition panicked", "item_id", item.ID, "panic", r)
			ok = false
		}
	}()
	return item.Condition()
}

type sendResult struct {
	reply any
	err   error
}

// sendWithTimeout races the transport against sendTimeout. A send that
// outlives the timeout is abandoned, not cancelled.
func (q *Queue) sendWithTimeout(parent context.Context, send SendFunc, item *Item) (any, error) {
	ctx, span := otel.Tracer("vcwarden/queue").Start(parent, "queue.send")
	span.SetAttributes(
		attribute.String("item.id", item.ID),
		attribute.String("channel.id", item.ChannelID),
		attribute.Bool("item.priority", item.Priority),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, q.sendTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- sendResult{err: fmt.Errorf("send panicked: %v", r)}
			}
		}()
		reply, err := send(ctx, item.ChannelID, item.Command)
		done <- sendResult{reply: reply, err: err}
	}()

	var res sendResult
	select {
	case res = <-done:
	case <-ctx.Done():
		if parent.Err() != nil {
			res.err = parent.Err()
		} else {
			res.err = fmt.Errorf("%w after %s", ErrSendTimeout, q.sendTimeout)
		}
	}
	q.metrics.ObserveSend(time.Since(start))
	if res.err != nil {
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
	}
	return res.reply, res.err
}

func (q *Queue) reportDepth() {
	p, n := q.Len()
	q.metrics.Depth(p, n)
}

// Len returns the number of waiting items per lane.
func (q *Queue) Len() (priority, normal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.priority), len(q.normal)
}

// Snapshot is a read-only view of a waiting item.
type Snapshot struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	ChannelID  string    `json:"channel_id"`
	Priority   bool      `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Pending lists waiting items in dequeue order.
func (q *Queue) Pending() []Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Snapshot, 0, len(q.priority)+len(q.normal))
	for _, lane := range [][]*Item{q.priority, q.normal} {
		for _, it := range lane {
			out = append(out, Snapshot{
				ID:         it.ID,
				Command:    it.Command,
				ChannelID:  it.ChannelID,
				Priority:   it.Priority,
				EnqueuedAt: it.EnqueuedAt,
			})
		}
	}
	return out
}

// isHighPriority reports whether command is a claim or info request: its
// first word, minus one leading command sigil, is a reserved verb, or its
// leading words match the literal head of one of the reserved commands.
func isHighPriority(command string, reserved []string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	verb := fields[0]
	if strings.ContainsAny(verb[:1], "!/.?") {
		verb = verb[1:]
	}
	if _, ok := highPriorityVerbs[strings.ToLower(verb)]; ok {
		return true
	}
	for _, tpl := range reserved {
		if i := strings.IndexByte(tpl, '{'); i >= 0 {
			tpl = tpl[:i]
		}
		if hasLeadingWords(fields, strings.Fields(tpl)) {
			return true
		}
	}
	return false
}

func hasLeadingWords(fields, want []string) bool {
	if len(want) == 0 || len(want) > len(fields) {
		return false
	}
	for i, w := range want {
		if !strings.EqualFold(fields[i], w) {
			return false
		}
	}
	return true
}
