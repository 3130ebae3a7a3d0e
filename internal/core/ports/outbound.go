package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

// RAGAPI is the remote retrieval service. Every error it returns is a *domain.APIError.
type RAGAPI interface {
	CheckHealth(ctx context.Context) (domain.HealthInfo, error)
	ListDocuments(ctx context.Context) (int, error)
	UploadDocument(ctx context.Context, req domain.UploadRequest) (domain.UploadResponse, error)
	Query(ctx context.Context, question string, scope *domain.Scope) (domain.QueryResponse, error)
}

// ObjectStorage stores exported artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReportRenderer produces the spreadsheet report of a session.
type ReportRenderer interface {
	RenderReport(snap domain.Snapshot, generatedAt time.Time) ([]byte, error)
}

// DocumentInspector checks a file before it is sent to the service.
type DocumentInspector interface {
	Inspect(filename string, content []byte) (domain.FileInfo, error)
}

// EventPublisher fans session events out to external consumers.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error
}

// ProgressReporter renders upload progress.
type ProgressReporter interface {
	Start(total int)
	Update(current int, message string)
	Finish()
}

// CallObserver records remote call outcomes.
type CallObserver interface {
	ObserveCall(operation string, outcome string, seconds float64)
}
