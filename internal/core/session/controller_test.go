package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

func TestControllerNotifiesSubscribersWithSnapshot(t *testing.T) {
	ctrl := NewController(NewStore("s1"))

	var events []domain.EventKind
	var lastDocs int
	ctrl.Subscribe(func(event domain.SessionEvent, snap domain.Snapshot) {
		events = append(events, event.Kind)
		lastDocs = len(snap.Documents)
	})

	require.NoError(t, ctrl.AddDocument(testDocument("A")))
	idx := ctrl.AppendConversation(domain.Conversation{Question: "q"})

	assert.Equal(t, 0, idx)
	assert.Equal(t, []domain.EventKind{domain.EventDocumentAdded, domain.EventConversationAppended}, events)
	assert.Equal(t, 1, lastDocs)
}

func TestControllerDoesNotNotifyOnFailedCommand(t *testing.T) {
	ctrl := NewController(NewStore("s1"))
	calls := 0
	ctrl.Subscribe(func(domain.SessionEvent, domain.Snapshot) { calls++ })

	err := ctrl.SetFeedback(0, domain.FeedbackGood)
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestControllerDefersReentrantDispatch(t *testing.T) {
	ctrl := NewController(NewStore("s1"))

	var order []string
	var reentrantRan bool
	ctrl.Subscribe(func(event domain.SessionEvent, snap domain.Snapshot) {
		order = append(order, string(event.Kind))
		if event.Kind != domain.EventConversationAppended || len(snap.Conversations) != 1 {
			return
		}
		ran, err := ctrl.Dispatch(domain.EventPendingQuestionChanged, func(s *Store) error {
			order = append(order, "reentrant_apply")
			q := "follow-up"
			s.SetPendingQuestion(&q)
			return nil
		})
		reentrantRan = ran
		require.NoError(t, err)
		order = append(order, "subscriber_done")
	})

	idx := ctrl.AppendConversation(domain.Conversation{Question: "q"})

	assert.Equal(t, 0, idx)
	assert.False(t, reentrantRan)
	assert.Equal(t, []string{
		string(domain.EventConversationAppended),
		"subscriber_done",
		"reentrant_apply",
		string(domain.EventPendingQuestionChanged),
	}, order)
	require.NotNil(t, ctrl.Snapshot().Selection.PendingQuestion)
}

func TestControllerReturnsCommandError(t *testing.T) {
	ctrl := NewController(NewStore("s1"))
	boom := errors.New("boom")

	ran, err := ctrl.Dispatch(domain.EventSelectionChanged, func(*Store) error { return boom })
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestControllerUnsubscribe(t *testing.T) {
	ctrl := NewController(NewStore("s1"))
	calls := 0
	cancel := ctrl.Subscribe(func(domain.SessionEvent, domain.Snapshot) { calls++ })

	ctrl.ClearAll()
	cancel()
	ctrl.ClearAll()

	assert.Equal(t, 1, calls)
}

func TestControllerWaitsForCommandsFromOtherGoroutines(t *testing.T) {
	ctrl := NewController(NewStore("s1"))
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = ctrl.Dispatch(domain.EventDocumentAdded, func(s *Store) error {
			close(entered)
			<-release
			return s.AddDocument(testDocument("A"))
		})
	}()
	<-entered

	type result struct {
		index int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		index := ctrl.AppendConversation(domain.Conversation{Question: "q"})
		done <- result{index: index, err: ctrl.AddDocument(testDocument("A"))}
	}()

	require.Eventually(t, func() bool {
		ctrl.queueMu.Lock()
		defer ctrl.queueMu.Unlock()
		return len(ctrl.queue) == 1
	}, time.Second, time.Millisecond)
	close(release)

	select {
	case res := <-done:
		assert.Equal(t, 0, res.index)
		assert.ErrorIs(t, res.err, domain.ErrDuplicateDocument)
	case <-time.After(time.Second):
		t.Fatalf("command from a second goroutine never completed")
	}
	assert.Len(t, ctrl.Snapshot().Conversations, 1)
}
