package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
)

type QueryUseCase struct {
	api      ports.RAGAPI
	sessions *session.Controller
	now      func() time.Time

	busy atomic.Bool
}

func NewQueryUseCase(api ports.RAGAPI, sessions *session.Controller) *QueryUseCase {
	return &QueryUseCase{
		api:      api,
		sessions: sessions,
		now:      time.Now,
	}
}

// Ask sends one question and records exactly one conversation for it,
// whether the call succeeds or not. The returned index is -1 when the
// append was queued behind another session command.
func (uc *QueryUseCase) Ask(ctx context.Context, question string) (*domain.Conversation, int, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, -1, domain.WrapError(domain.ErrInvalidInput, "ask question", fmt.Errorf("question is empty"))
	}
	if !uc.busy.CompareAndSwap(false, true) {
		return nil, -1, fmt.Errorf("ask question: %w", domain.ErrBusy)
	}
	defer uc.busy.Store(false)

	snap := uc.sessions.Snapshot()
	if snap.Selection.PendingQuestion != nil {
		uc.sessions.SetPendingQuestion(nil)
	}
	scope := ResolveScope(snap)
	params := scope.QueryParams(question)

	start := uc.now()
	resp, err := uc.api.Query(ctx, question, scope)
	conv := domain.Conversation{
		Question:      question,
		DocumentScope: scope.Label(),
		QueryParams:   params,
		CreatedAt:     uc.now(),
	}
	if err != nil {
		conv.Answer = ErrorAnswer(err)
		conv.Sources = []domain.Source{}
		conv.IsError = true
		index := uc.sessions.AppendConversation(conv)
		slog.Warn("query_failed",
			"scope", conv.DocumentScope,
			"duration_ms", conv.CreatedAt.Sub(start).Milliseconds(),
			"error", err,
		)
		return &conv, index, fmt.Errorf("ask question: %w", err)
	}

	conv.Answer = resp.Answer
	conv.Sources = resp.Sources
	if conv.Sources == nil {
		conv.Sources = []domain.Source{}
	}
	index := uc.sessions.AppendConversation(conv)
	slog.Info("query_completed",
		"scope", conv.DocumentScope,
		"sources", len(conv.Sources),
		"duration_ms", conv.CreatedAt.Sub(start).Milliseconds(),
	)
	return &conv, index, nil
}

// ResolveScope picks the document a question is restricted to: an explicit
// selection wins over focus, and nothing is scoped while no documents exist.
// References to documents that are no longer registered are ignored.
func ResolveScope(snap domain.Snapshot) *domain.Scope {
	if len(snap.Documents) == 0 {
		return nil
	}
	if ref := snap.Selection.SelectedDocument; ref != nil {
		if doc, ok := findByRef(snap.Documents, *ref); ok {
			return &domain.Scope{DocumentName: doc.Name, DocumentID: doc.DocumentID}
		}
	}
	if name := snap.Selection.FocusedDocument; name != nil {
		for _, doc := range snap.Documents {
			if doc.Name == *name {
				return &domain.Scope{DocumentName: doc.Name, DocumentID: doc.DocumentID}
			}
		}
	}
	return nil
}

func findByRef(docs []domain.Document, ref domain.DocumentRef) (domain.Document, bool) {
	if ref.DocumentID != "" {
		for _, doc := range docs {
			if doc.DocumentID == ref.DocumentID {
				return doc, true
			}
		}
	}
	for _, doc := range docs {
		if doc.Name == ref.Name {
			return doc, true
		}
	}
	return domain.Document{}, false
}

// ErrorAnswer is the answer text recorded for a failed query.
func ErrorAnswer(err error) string {
	if apiErr, ok := domain.AsAPIError(err); ok {
		if apiErr.Kind == domain.APIErrorBadStatus {
			return fmt.Sprintf("Error: API returned %d", apiErr.StatusCode)
		}
		if apiErr.Message != "" {
			return "Error: " + apiErr.Message
		}
	}
	return "Error: " + err.Error()
}
