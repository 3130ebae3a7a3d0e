package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

// Subscriber receives the event and resulting snapshot after each applied command.
type Subscriber func(event domain.SessionEvent, snap domain.Snapshot)

type command struct {
	kind domain.EventKind
	fn   func(*Store) error
	done chan error
}

// Controller serializes commands against one Store. A command dispatched while
// another one is running, including from inside a subscriber, is queued and
// applied after the running command and its notifications have finished.
type Controller struct {
	store *Store
	now   func() time.Time

	stateMu sync.RWMutex

	queueMu   sync.Mutex
	queue     []command
	running   bool
	notifying bool

	subsMu  sync.Mutex
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn Subscriber
}

func NewController(store *Store) *Controller {
	return &Controller{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers fn and returns a function that removes it.
func (c *Controller) Subscribe(fn Subscriber) func() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch applies fn and returns its error.
//
// Subscribers run on the dispatching goroutine. A Dispatch made while
// subscribers are being notified is treated as re-entrant: it is queued and
// applied after the current notifications, ran is false and its error is only
// logged. A Dispatch from another goroutine while a command is being applied
// waits for its own command and returns its result. One that arrives during
// notifications cannot be told apart from a re-entrant call and is deferred;
// keep dispatching on one goroutine, as the shell does, to avoid that case.
func (c *Controller) Dispatch(kind domain.EventKind, fn func(*Store) error) (ran bool, err error) {
	c.queueMu.Lock()
	if c.running {
		if c.notifying {
			c.queue = append(c.queue, command{kind: kind, fn: fn})
			c.queueMu.Unlock()
			return false, nil
		}
		done := make(chan error, 1)
		c.queue = append(c.queue, command{kind: kind, fn: fn, done: done})
		c.queueMu.Unlock()
		return true, <-done
	}
	c.queue = append(c.queue, command{kind: kind, fn: fn})
	c.running = true
	c.queueMu.Unlock()

	first := true
	for {
		c.queueMu.Lock()
		if len(c.queue) == 0 {
			c.running = false
			c.queueMu.Unlock()
			return true, err
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		cmdErr := c.apply(next)
		switch {
		case first:
			err = cmdErr
			first = false
		case next.done != nil:
			next.done <- cmdErr
		case cmdErr != nil:
			slog.Warn("deferred_command_failed", "kind", string(next.kind), "error", cmdErr)
		}
	}
}

func (c *Controller) apply(cmd command) error {
	c.stateMu.Lock()
	err := cmd.fn(c.store)
	var snap domain.Snapshot
	if err == nil {
		snap = c.store.Snapshot()
	}
	c.stateMu.Unlock()
	if err != nil {
		return err
	}

	event := domain.SessionEvent{
		SessionID:     snap.SessionID,
		Kind:          cmd.kind,
		At:            c.now(),
		Documents:     len(snap.Documents),
		Conversations: len(snap.Conversations),
		Feedback:      len(snap.Feedback),
	}

	c.subsMu.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.subsMu.Unlock()

	c.setNotifying(true)
	defer c.setNotifying(false)
	for _, sub := range subs {
		sub.fn(event, snap)
	}
	return nil
}

func (c *Controller) setNotifying(v bool) {
	c.queueMu.Lock()
	c.notifying = v
	c.queueMu.Unlock()
}

func (c *Controller) Snapshot() domain.Snapshot {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.store.Snapshot()
}

func (c *Controller) AddDocument(doc domain.Document) error {
	_, err := c.Dispatch(domain.EventDocumentAdded, func(s *Store) error {
		return s.AddDocument(doc)
	})
	return err
}

func (c *Controller) RemoveDocument(index int) (domain.Document, error) {
	var removed domain.Document
	_, err := c.Dispatch(domain.EventDocumentRemoved, func(s *Store) error {
		doc, err := s.RemoveDocument(index)
		removed = doc
		return err
	})
	return removed, err
}

// AppendConversation returns the new index, or -1 if the append was deferred
// from inside a subscriber.
func (c *Controller) AppendConversation(conv domain.Conversation) int {
	index := -1
	_, _ = c.Dispatch(domain.EventConversationAppended, func(s *Store) error {
		index = s.AppendConversation(conv)
		return nil
	})
	return index
}

func (c *Controller) SetFeedback(index int, feedbackType domain.FeedbackType) error {
	_, err := c.Dispatch(domain.EventFeedbackSet, func(s *Store) error {
		return s.SetFeedback(index, feedbackType)
	})
	return err
}

func (c *Controller) ClearAll() {
	_, _ = c.Dispatch(domain.EventHistoryCleared, func(s *Store) error {
		s.ClearAll()
		return nil
	})
}

func (c *Controller) SetSelectedDocument(ref *domain.DocumentRef) error {
	_, err := c.Dispatch(domain.EventSelectionChanged, func(s *Store) error {
		return s.SetSelectedDocument(ref)
	})
	return err
}

func (c *Controller) SetFocusedDocument(name *string) error {
	_, err := c.Dispatch(domain.EventFocusChanged, func(s *Store) error {
		return s.SetFocusedDocument(name)
	})
	return err
}

func (c *Controller) SetPendingQuestion(question *string) {
	_, _ = c.Dispatch(domain.EventPendingQuestionChanged, func(s *Store) error {
		s.SetPendingQuestion(question)
		return nil
	})
}
