package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/analytics"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
)

const (
	exportDateLayout = "2006-01-02 15:04:05"
	exportFileLayout = "20060102_150405"

	DocumentsExportKey = "documents_export.json"
)

type ChatExportMetadata struct {
	ExportDate         string `json:"export_date"`
	TotalConversations int    `json:"total_conversations"`
	TotalMessages      int    `json:"total_messages"`
	SessionID          string `json:"session_id"`
}

type ChatExport struct {
	ChatHistory []domain.Conversation      `json:"chat_history"`
	Feedback    map[string]domain.Feedback `json:"feedback"`
	Metadata    ChatExportMetadata         `json:"metadata"`
}

type DocumentsExport struct {
	Documents   []domain.Document `json:"documents"`
	ExportDate  string            `json:"export_date"`
	TotalChunks int               `json:"total_chunks"`
}

// BuildChatExport serializes the conversation log and its ratings.
func BuildChatExport(snap domain.Snapshot, now time.Time) ([]byte, error) {
	history := snap.Conversations
	if history == nil {
		history = []domain.Conversation{}
	}
	feedback := make(map[string]domain.Feedback, len(snap.Feedback))
	for index, fb := range snap.Feedback {
		feedback[strconv.Itoa(index)] = fb
	}
	return marshalExport(ChatExport{
		ChatHistory: history,
		Feedback:    feedback,
		Metadata: ChatExportMetadata{
			ExportDate:         now.Format(exportDateLayout),
			TotalConversations: len(history),
			TotalMessages:      len(history) * 2,
			SessionID:          snap.SessionID,
		},
	})
}

// DecodeChatExport reads a chat export back into conversations and feedback
// keyed by conversation index.
func DecodeChatExport(data []byte) ([]domain.Conversation, map[int]domain.Feedback, ChatExportMetadata, error) {
	var export ChatExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, nil, ChatExportMetadata{}, domain.WrapError(domain.ErrInvalidInput, "decode chat export", err)
	}
	feedback := make(map[int]domain.Feedback, len(export.Feedback))
	for key, fb := range export.Feedback {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, nil, ChatExportMetadata{}, domain.WrapError(domain.ErrInvalidInput, "decode chat export", fmt.Errorf("feedback key %q: %w", key, err))
		}
		fb.ConversationIndex = index
		feedback[index] = fb
	}
	return export.ChatHistory, feedback, export.Metadata, nil
}

func BuildDocumentsExport(snap domain.Snapshot, now time.Time) ([]byte, error) {
	docs := snap.Documents
	if docs == nil {
		docs = []domain.Document{}
	}
	return marshalExport(DocumentsExport{
		Documents:   docs,
		ExportDate:  now.Format(exportDateLayout),
		TotalChunks: analytics.TotalChunks(docs),
	})
}

func marshalExport(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportUseCase writes session exports to object storage.
type ExportUseCase struct {
	sessions *session.Controller
	storage  ports.ObjectStorage
	report   ports.ReportRenderer
	now      func() time.Time
}

func NewExportUseCase(sessions *session.Controller, storage ports.ObjectStorage, report ports.ReportRenderer) *ExportUseCase {
	return &ExportUseCase{
		sessions: sessions,
		storage:  storage,
		report:   report,
		now:      time.Now,
	}
}

// ExportChat stores the chat export and returns its key.
func (uc *ExportUseCase) ExportChat(ctx context.Context) (string, error) {
	now := uc.now()
	data, err := BuildChatExport(uc.sessions.Snapshot(), now)
	if err != nil {
		return "", err
	}
	return uc.save(ctx, "chat_export_"+now.Format(exportFileLayout)+".json", data)
}

func (uc *ExportUseCase) ExportDocuments(ctx context.Context) (string, error) {
	data, err := BuildDocumentsExport(uc.sessions.Snapshot(), uc.now())
	if err != nil {
		return "", err
	}
	return uc.save(ctx, DocumentsExportKey, data)
}

func (uc *ExportUseCase) ExportReport(ctx context.Context) (string, error) {
	if uc.report == nil {
		return "", fmt.Errorf("export report: no report renderer configured")
	}
	now := uc.now()
	data, err := uc.report.RenderReport(uc.sessions.Snapshot(), now)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return uc.save(ctx, "documents_report_"+now.Format(exportFileLayout)+".xlsx", data)
}

func (uc *ExportUseCase) save(ctx context.Context, key string, data []byte) (string, error) {
	if err := uc.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("save export %s: %w", key, err)
	}
	slog.Info("export_saved", "key", key, "bytes", len(data))
	return key, nil
}
