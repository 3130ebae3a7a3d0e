package domain

import (
	"fmt"
	"time"
)

type FeedbackType string

const (
	FeedbackGood FeedbackType = "good"
	FeedbackBad  FeedbackType = "bad"
)

func ParseFeedbackType(v string) (FeedbackType, error) {
	switch FeedbackType(v) {
	case FeedbackGood, FeedbackBad:
		return FeedbackType(v), nil
	default:
		return "", WrapError(ErrInvalidInput, "parse feedback", fmt.Errorf("unknown type %q", v))
	}
}

type Feedback struct {
	ConversationIndex int          `json:"-"`
	Type              FeedbackType `json:"type"`
	Timestamp         time.Time    `json:"timestamp"`
}

// Selection holds the transient UI intent that is never exported.
type Selection struct {
	SelectedDocument *DocumentRef `json:"selected_document,omitempty"`
	FocusedDocument  *string      `json:"chat_with_doc,omitempty"`
	PendingQuestion  *string      `json:"pending_question,omitempty"`
}

// Snapshot is a deep copy of session state handed to readers and subscribers.
type Snapshot struct {
	SessionID     string
	Documents     []Document
	Conversations []Conversation
	Feedback      map[int]Feedback
	Selection     Selection
}

type EventKind string

const (
	EventDocumentAdded          EventKind = "document_added"
	EventDocumentRemoved        EventKind = "document_removed"
	EventConversationAppended   EventKind = "conversation_appended"
	EventFeedbackSet            EventKind = "feedback_set"
	EventHistoryCleared         EventKind = "history_cleared"
	EventSelectionChanged       EventKind = "selection_changed"
	EventFocusChanged           EventKind = "focus_changed"
	EventPendingQuestionChanged EventKind = "pending_question_changed"
)

type SessionEvent struct {
	SessionID     string    `json:"session_id"`
	Kind          EventKind `json:"kind"`
	At            time.Time `json:"at"`
	Documents     int       `json:"documents"`
	Conversations int       `json:"conversations"`
	Feedback      int       `json:"feedback"`
}
