// Package session holds the per-widget conversation state machine.
//
// A Controller owns the transcript, the composer text and the busy flag of one
// mounted chat widget. Submissions follow Idle → Submitting → Idle: the user
// message is appended optimistically, the transport is called once, and its
// outcome is folded back into the transcript. While a submission is in flight
// every further Submit is ignored.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/transport"
)

const (
	// DefaultSenderID is sent to the agent when no sender is configured.
	DefaultSenderID = "user"
	// DefaultFallbackText is appended as an agent message when the transport fails.
	DefaultFallbackText = "⚠️ Errore nella comunicazione con Rasa."
)

// Option customises a Controller.
type Option func(*Controller)

// WithSenderID sets the sender identifier passed to the transport.
func WithSenderID(senderID string) Option {
	return func(c *Controller) {
		if senderID = strings.TrimSpace(senderID); senderID != "" {
			c.senderID = senderID
		}
	}
}

// WithSessionScopedSender uses the session id as sender identifier, so the
// agent keeps a separate tracker per mounted widget.
func WithSessionScopedSender(enabled bool) Option {
	return func(c *Controller) {
		c.scopedSender = enabled
	}
}

// WithFallbackText overrides the failure notice.
func WithFallbackText(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.fallback = text
		}
	}
}

// WithClock overrides the timestamp source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// outcome is what a finished transport call hands to reconcile.
type outcome struct {
	fragments []chat.Fragment
	err       error
}

// Controller is the single authority over one widget's conversation state.
type Controller struct {
	id           string
	client       transport.Client
	senderID     string
	scopedSender bool
	fallback     string
	now          func() time.Time
	logger       zerolog.Logger
	ctx          context.Context

	mu         sync.Mutex
	seq        uint64
	transcript []chat.Message
	composer   string
	busy       bool
	closed     bool
	subs       map[uint64]chan struct{}
	nextSub    uint64

	inflight sync.WaitGroup
}

// NewController builds an idle controller with an empty transcript.
func NewController(id string, client transport.Client, opts ...Option) *Controller {
	if id == "" {
		id = "local"
	}

	c := &Controller{
		id:         id,
		client:     client,
		senderID:   DefaultSenderID,
		fallback:   DefaultFallbackText,
		now:        time.Now,
		logger:     log.Logger,
		ctx:        context.Background(),
		transcript: make([]chat.Message, 0, 16),
		subs:       make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scopedSender {
		c.senderID = id
	}
	c.logger = c.logger.With().Str("component", "session").Str("session_id", id).Logger()

	return c
}

// ID returns the session handle.
func (c *Controller) ID() string {
	return c.id
}

// SenderID returns the identifier sent to the agent.
func (c *Controller) SenderID() string {
	return c.senderID
}

// UpdateComposer replaces the pending input verbatim.
func (c *Controller) UpdateComposer(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.composer == text {
		return
	}
	c.composer = text
	c.notifyLocked()
}

// Submit dispatches the trimmed composer text. It reports false, and changes
// nothing, when the text is blank, a submission is already in flight, or the
// controller has been closed.
func (c *Controller) Submit() bool {
	c.mu.Lock()
	text := strings.TrimSpace(c.composer)
	if c.closed || c.busy || text == "" {
		c.mu.Unlock()
		return false
	}

	c.appendLocked(chat.OriginUser, text)
	c.composer = ""
	c.busy = true
	c.inflight.Add(1)
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Debug().Int("length", len(text)).Msg("submission accepted")
	go c.dispatch(text)
	return true
}

func (c *Controller) dispatch(text string) {
	defer c.inflight.Done()
	c.reconcile(c.send(text))
}

// send runs the transport call. A panicking transport counts as a failure so
// busy is always released.
func (c *Controller) send(text string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: errors.Errorf("transport panic: %v", r)}
		}
	}()

	fragments, err := c.client.Send(c.ctx, c.senderID, text)
	return outcome{fragments: fragments, err: err}
}

func (c *Controller) reconcile(out outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if out.err != nil {
		c.logger.Warn().Err(out.err).Msg("agent communication failed")
		c.appendLocked(chat.OriginAgent, c.fallback)
	} else {
		for _, fragment := range out.fragments {
			c.appendLocked(chat.OriginAgent, fragment.Text)
		}
		c.logger.Debug().Int("fragments", len(out.fragments)).Msg("agent replied")
	}

	c.busy = false
	c.notifyLocked()
}

func (c *Controller) appendLocked(origin chat.Origin, text string) {
	c.seq++
	c.transcript = append(c.transcript, chat.Message{
		ID:        c.id + "-" + strconv.FormatUint(c.seq, 10),
		Seq:       c.seq,
		Text:      text,
		Origin:    origin,
		CreatedAt: c.now().UTC(),
	})
}

// View returns a consistent snapshot for rendering.
func (c *Controller) View() chat.View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return chat.View{
		SessionID:  c.id,
		Transcript: c.transcriptLocked(),
		Composer:   c.composer,
		Busy:       c.busy,
		CanSubmit:  c.canSubmitLocked(),
	}
}

// Transcript returns a copy of the message log.
func (c *Controller) Transcript() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

// Composer returns the pending input.
func (c *Controller) Composer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.composer
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// CanSubmit reports whether Submit would currently be accepted.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

func (c *Controller) canSubmitLocked() bool {
	return !c.closed && !c.busy && strings.TrimSpace(c.composer) != ""
}

func (c *Controller) transcriptLocked() []chat.Message {
	copied := make([]chat.Message, len(c.transcript))
	copy(copied, c.transcript)
	return copied
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce: a slow reader sees at least one signal after the
// latest change and should read View again. The channel is closed on
// unsubscribe or Close.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan struct{}, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *Controller) notifyLocked() {
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until no submission is in flight.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close unmounts the controller. An in-flight submission still completes, but
// no new input is accepted and subscribers are released.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.logger.Debug().Msg("session closed")
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
