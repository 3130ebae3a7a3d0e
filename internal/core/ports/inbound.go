package ports

import (
	"context"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

// DocumentUploader is the inbound contract for the upload workflow.
type DocumentUploader interface {
	Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error)
}

// QuestionAsker is the inbound contract for the query workflow.
type QuestionAsker interface {
	Ask(ctx context.Context, question string) (*domain.Conversation, int, error)
}
