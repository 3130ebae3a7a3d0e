// Package session owns the mutable state of one client session: the document
// registry, the conversation log, feedback and the transient selection.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

// Store is single-writer. Every mutation either applies fully or leaves the
// store unchanged; callers outside this package go through Controller.
type Store struct {
	sessionID     string
	documents     []domain.Document
	conversations []domain.Conversation
	feedback      map[int]domain.Feedback
	selection     domain.Selection
	now           func() time.Time
}

func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		feedback:  make(map[int]domain.Feedback),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) AddDocument(doc domain.Document) error {
	if strings.TrimSpace(doc.Name) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "add document", fmt.Errorf("name is required"))
	}
	if strings.TrimSpace(doc.DocumentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "add document", fmt.Errorf("document id is required"))
	}
	if _, _, ok := s.FindDocument(doc.Name); ok {
		return domain.WrapError(domain.ErrDuplicateDocument, "add document", fmt.Errorf("name=%s", doc.Name))
	}
	s.documents = append(s.documents, doc)
	return nil
}

// RemoveDocument deletes the document at index and drops any selection or
// focus that still points at it.
func (s *Store) RemoveDocument(index int) (domain.Document, error) {
	if index < 0 || index >= len(s.documents) {
		return domain.Document{}, domain.WrapError(domain.ErrDocumentNotFound, "remove document", fmt.Errorf("index=%d", index))
	}
	removed := s.documents[index]

	docs := make([]domain.Document, 0, len(s.documents)-1)
	docs = append(docs, s.documents[:index]...)
	docs = append(docs, s.documents[index+1:]...)
	s.documents = docs

	if sel := s.selection.SelectedDocument; sel != nil && refersTo(*sel, removed) {
		s.selection.SelectedDocument = nil
	}
	if focus := s.selection.FocusedDocument; focus != nil && *focus == removed.Name {
		s.selection.FocusedDocument = nil
	}
	return removed, nil
}

// AppendConversation returns the stable index used for feedback.
func (s *Store) AppendConversation(conv domain.Conversation) int {
	if conv.Sources == nil {
		conv.Sources = []domain.Source{}
	}
	s.conversations = append(s.conversations, conv)
	return len(s.conversations) - 1
}

func (s *Store) SetFeedback(index int, feedbackType domain.FeedbackType) error {
	if index < 0 || index >= len(s.conversations) {
		return domain.WrapError(domain.ErrInvalidInput, "set feedback", fmt.Errorf("no conversation at index %d", index))
	}
	if _, err := domain.ParseFeedbackType(string(feedbackType)); err != nil {
		return err
	}
	s.feedback[index] = domain.Feedback{
		ConversationIndex: index,
		Type:              feedbackType,
		Timestamp:         s.now(),
	}
	return nil
}

// ClearAll empties the conversation log and feedback together.
func (s *Store) ClearAll() {
	s.conversations = nil
	s.feedback = make(map[int]domain.Feedback)
}

func (s *Store) SetSelectedDocument(ref *domain.DocumentRef) error {
	if ref == nil {
		s.selection.SelectedDocument = nil
		return nil
	}
	doc, _, ok := s.FindDocument(ref.Name)
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "select document", fmt.Errorf("name=%s", ref.Name))
	}
	selected := doc.Ref()
	s.selection.SelectedDocument = &selected
	return nil
}

func (s *Store) SetFocusedDocument(name *string) error {
	if name == nil {
		s.selection.FocusedDocument = nil
		return nil
	}
	if _, _, ok := s.FindDocument(*name); !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "focus document", fmt.Errorf("name=%s", *name))
	}
	focused := *name
	s.selection.FocusedDocument = &focused
	return nil
}

// SetPendingQuestion stages a question for the input box; blank clears it.
func (s *Store) SetPendingQuestion(question *string) {
	if question == nil || strings.TrimSpace(*question) == "" {
		s.selection.PendingQuestion = nil
		return
	}
	pending := *question
	s.selection.PendingQuestion = &pending
}

func (s *Store) FindDocument(name string) (domain.Document, int, bool) {
	for i, doc := range s.documents {
		if doc.Name == name {
			return doc, i, true
		}
	}
	return domain.Document{}, -1, false
}

func (s *Store) DocumentCount() int     { return len(s.documents) }
func (s *Store) ConversationCount() int { return len(s.conversations) }

func (s *Store) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:     s.sessionID,
		Documents:     make([]domain.Document, len(s.documents)),
		Conversations: make([]domain.Conversation, len(s.conversations)),
		Feedback:      make(map[int]domain.Feedback, len(s.feedback)),
	}
	for i, doc := range s.documents {
		doc.UploadResponse = append([]byte(nil), doc.UploadResponse...)
		snap.Documents[i] = doc
	}
	for i, conv := range s.conversations {
		conv.Sources = copySources(conv.Sources)
		if conv.QueryParams != nil {
			params := make(map[string]string, len(conv.QueryParams))
			for k, v := range conv.QueryParams {
				params[k] = v
			}
			conv.QueryParams = params
		}
		snap.Conversations[i] = conv
	}
	for k, v := range s.feedback {
		snap.Feedback[k] = v
	}
	snap.Selection = copySelection(s.selection)
	return snap
}

func copySelection(sel domain.Selection) domain.Selection {
	var out domain.Selection
	if sel.SelectedDocument != nil {
		ref := *sel.SelectedDocument
		out.SelectedDocument = &ref
	}
	if sel.FocusedDocument != nil {
		v := *sel.FocusedDocument
		out.FocusedDocument = &v
	}
	if sel.PendingQuestion != nil {
		v := *sel.PendingQuestion
		out.PendingQuestion = &v
	}
	return out
}

func copySources(sources []domain.Source) []domain.Source {
	out := make([]domain.Source, len(sources))
	for i, src := range sources {
		if src.Metadata != nil {
			meta := make(map[string]json.RawMessage, len(src.Metadata))
			for k, v := range src.Metadata {
				meta[k] = v
			}
			src.Metadata = meta
		}
		out[i] = src
	}
	return out
}

func refersTo(ref domain.DocumentRef, doc domain.Document) bool {
	if ref.DocumentID != "" && doc.DocumentID != "" {
		return ref.DocumentID == doc.DocumentID
	}
	return ref.Name == doc.Name
}
