package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/models"
)

// MessageStore is the read side of the backend used by a conversation.
type MessageStore interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*models.MessageSources, error)
}

// Snapshot is the displayed state of a conversation.
type Snapshot struct {
	Messages  []Message
	Loading   bool
	Pending   *PendingMessage
	CanExpand bool
	// History is true while the persisted transcript is being fetched.
	History bool
}

type submitCmd struct {
	content string
	expand  bool
	reply   chan error
}

type sourcesFetched struct {
	id      string
	sources []models.Source
}

type sourcesFailed struct {
	id  string
	err error
}

type historyFetched struct{ turns []Message }

type historyFailed struct{ err error }

// Conversation owns the transcript and source cache of one conversation.
// All state changes happen on the goroutine running Run; generation,
// source and history fetches post their results back to it and are
// discarded once Run has returned.
type Conversation struct {
	id       string
	store    MessageStore
	session  *Session
	onChange func(Snapshot)

	transcript     Transcript
	cache          *SourceCache
	historyLoading bool

	events  chan any
	done    chan struct{}
	started atomic.Bool

	mu   sync.Mutex
	snap Snapshot

	log *log.Entry
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithOnChange registers fn to be called on the loop goroutine after every
// visible change.
func WithOnChange(fn func(Snapshot)) ConversationOption {
	return func(c *Conversation) { c.onChange = fn }
}

// NewConversation binds a conversation id to the backend. streamer and
// path are used for generation requests.
func NewConversation(id string, store MessageStore, streamer Streamer, path string, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		id:     id,
		store:  store,
		cache:  NewSourceCache(),
		events: make(chan any, 64),
		done:   make(chan struct{}),
		log:    log.WithField("conversation", id),
	}
	c.session = NewSession(streamer, path, SessionHandlers{
		OnHeaders: func(p PendingMessage) { c.post(HeadersReceived{Pending: p}) },
		OnPartial: func(r GenerateResponse) { c.post(PartialReceived{Message: r.Message}) },
		OnFinish:  func(r GenerateResponse) { c.post(Finished{Message: r.Message}) },
		OnError:   func(err error) { c.post(Failed{Err: err}) },
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Run bootstraps the conversation and processes events until ctx ends.
// With a non-empty seed the seed is submitted as the first turn and the
// history is never fetched; otherwise the history is fetched exactly once.
// Run returns ErrHistoryUnavailable if that fetch fails.
func (c *Conversation) Run(ctx context.Context, seed string) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(c.done)

	if seed = strings.TrimSpace(seed); seed != "" {
		if err := c.submit(ctx, seed); err != nil {
			return fmt.Errorf("submit initial message: %w", err)
		}
	} else {
		c.historyLoading = true
		go c.fetchHistory(ctx)
	}
	c.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.events:
			if err := c.handle(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (c *Conversation) handle(ctx context.Context, msg any) error {
	changed := false
	switch m := msg.(type) {
	case submitCmd:
		var err error
		if m.expand && !c.transcript.CanExpand() {
			err = ErrNothingToExpand
		} else {
			err = c.submit(ctx, m.content)
			changed = err == nil
		}
		m.reply <- err
	case HeadersReceived:
		changed = c.transcript.Apply(m)
		if c.cache.Claim(m.Pending.ID) {
			go c.fetchSources(ctx, m.Pending.ID)
		}
	case Event:
		changed = c.transcript.Apply(m)
	case sourcesFetched:
		changed = c.cache.Store(m.id, m.sources)
	case sourcesFailed:
		c.cache.Release(m.id)
		c.log.WithError(m.err).WithField("message", m.id).Debug("source lookup failed")
	case historyFetched:
		c.historyLoading = false
		c.transcript.Apply(HistoryLoaded{Turns: m.turns})
		changed = true
	case historyFailed:
		c.historyLoading = false
		c.publish()
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, m.err)
	}
	if changed {
		c.publish()
	}
	return nil
}

func (c *Conversation) submit(ctx context.Context, content string) error {
	// The session frees itself before its terminal event reaches the loop;
	// the transcript stays loading until that event has been applied.
	if c.historyLoading || c.transcript.Loading() {
		return ErrSessionBusy
	}
	if err := c.session.Submit(ctx, GenerateRequest{ConversationID: c.id, Content: content}); err != nil {
		return err
	}
	// The session's callbacks queue behind this handler, so the user turn is
	// always in place before any of them is applied.
	c.transcript.Apply(Submitted{Content: content})
	return nil
}

// Submit sends content as the user's next turn. It returns ErrSessionBusy
// while an answer is still loading.
func (c *Conversation) Submit(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return c.command(ctx, submitCmd{content: content})
}

// TellMeMore asks for a longer version of the last answer.
func (c *Conversation) TellMeMore(ctx context.Context) error {
	return c.command(ctx, submitCmd{content: models.TellMeMorePrompt, expand: true})
}

func (c *Conversation) command(ctx context.Context, cmd submitCmd) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.events <- cmd:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// Snapshot returns the most recently published state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Conversation) publish() {
	snap := Snapshot{
		Messages:  Overlay(c.transcript.Turns(), c.cache),
		Loading:   c.transcript.Loading(),
		CanExpand: c.transcript.CanExpand(),
		History:   c.historyLoading,
	}
	if p, ok := c.transcript.Pending(); ok {
		snap.Pending = &p
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(snap)
	}
}

// post hands msg to the loop, or drops it once the loop has stopped.
func (c *Conversation) post(msg any) {
	select {
	case c.events <- msg:
	case <-c.done:
	}
}

func (c *Conversation) fetchSources(ctx context.Context, id string) {
	ms, err := c.store.GetMessage(ctx, c.id, id)
	if err != nil {
		c.post(sourcesFailed{id: id, err: err})
		return
	}
	if ms.ID != id {
		c.post(sourcesFailed{id: id, err: fmt.Errorf("sources answered for message %q", ms.ID)})
		return
	}
	c.post(sourcesFetched{id: id, sources: ms.Sources})
}

func (c *Conversation) fetchHistory(ctx context.Context) {
	records, err := c.store.ListMessages(ctx, c.id)
	if err != nil {
		c.post(historyFailed{err: err})
		return
	}
	turns, err := FromRecords(records)
	if err != nil {
		c.post(historyFailed{err: err})
		return
	}
	c.post(historyFetched{turns: turns})
}
