package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
)

const (
	progressUploading  = 30
	progressProcessing = 60
	progressResponse   = 90
	progressDone       = 100
)

// UploadTimeoutMessage is shown when the service does not answer an upload in time.
const UploadTimeoutMessage = "Upload timed out after 3 minutes. Try a smaller file."

// ProgressFactory creates one reporter per upload.
type ProgressFactory func() ports.ProgressReporter

type UploadDocumentUseCase struct {
	api       ports.RAGAPI
	sessions  *session.Controller
	inspector ports.DocumentInspector
	progress  ProgressFactory
	validate  *validator.Validate
	now       func() time.Time

	busy atomic.Bool
}

func NewUploadDocumentUseCase(
	api ports.RAGAPI,
	sessions *session.Controller,
	inspector ports.DocumentInspector,
	progress ProgressFactory,
) *UploadDocumentUseCase {
	return &UploadDocumentUseCase{
		api:       api,
		sessions:  sessions,
		inspector: inspector,
		progress:  progress,
		validate:  validator.New(),
		now:       time.Now,
	}
}

func (uc *UploadDocumentUseCase) Upload(ctx context.Context, req domain.UploadRequest) (*domain.Document, error) {
	if !uc.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("upload document: %w", domain.ErrBusy)
	}
	defer uc.busy.Store(false)

	if name := strings.TrimSpace(req.Filename); name != "" {
		req.Filename = filepath.Base(name)
	} else {
		req.Filename = ""
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		req.DisplayName = domain.DefaultDisplayName(req.Filename)
	}
	if err := uc.validate.Struct(req); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate upload", err)
	}

	snap := uc.sessions.Snapshot()
	for _, doc := range snap.Documents {
		if doc.Name == req.DisplayName {
			return nil, domain.WrapError(domain.ErrDuplicateDocument, "upload document", fmt.Errorf("%q is already uploaded", req.DisplayName))
		}
	}

	if uc.inspector != nil {
		info, err := uc.inspector.Inspect(req.Filename, req.Content)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "inspect upload", err)
		}
		if req.MimeType == "" {
			req.MimeType = info.MimeType
		}
		if info.Warning != "" {
			slog.Warn("upload_inspected", "filename", req.Filename, "mime_type", info.MimeType, "pages", info.Pages, "error", info.Warning)
		} else {
			slog.Info("upload_inspected", "filename", req.Filename, "mime_type", info.MimeType, "pages", info.Pages)
		}
	}

	progress := uc.newProgress()
	progress.Start(progressDone)
	defer progress.Finish()

	progress.Update(progressUploading, "Uploading file...")
	start := uc.now()
	resp, err := uc.api.UploadDocument(ctx, req)
	if err != nil {
		if domain.IsAPIErrorKind(err, domain.APIErrorTimeout) {
			progress.Update(progressDone, "Timeout")
		} else {
			progress.Update(progressDone, "Failed")
		}
		slog.Warn("upload_failed",
			"filename", req.Filename,
			"document_name", req.DisplayName,
			"duration_ms", uc.now().Sub(start).Milliseconds(),
			"error", err,
		)
		return nil, fmt.Errorf("upload document: %w", err)
	}
	progress.Update(progressProcessing, "Processing...")
	progress.Update(progressResponse, "Response received")

	now := uc.now()
	documentID := resp.DocumentID
	if documentID == "" {
		documentID = domain.SynthesizeDocumentID(req.Filename, now)
	}
	doc := domain.Document{
		Name:             req.DisplayName,
		OriginalFilename: req.Filename,
		DocumentID:       documentID,
		SizeMB:           domain.SizeInMB(len(req.Content)),
		ChunkCount:       resp.ChunksAdded,
		ChunkSize:        req.ChunkSize,
		ChunkOverlap:     req.ChunkOverlap,
		Status:           domain.StatusProcessed,
		CreatedAt:        now,
		UploadResponse:   resp.Raw,
	}
	if err := uc.sessions.AddDocument(doc); err != nil {
		progress.Update(progressDone, "Failed")
		return nil, fmt.Errorf("register document: %w", err)
	}
	progress.Update(progressDone, "Success!")

	slog.Info("upload_completed",
		"document_name", doc.Name,
		"document_id", doc.DocumentID,
		"chunks", doc.ChunkCount,
		"size_mb", doc.SizeMB,
		"duration_ms", now.Sub(start).Milliseconds(),
	)
	return &doc, nil
}

func (uc *UploadDocumentUseCase) newProgress() ports.ProgressReporter {
	if uc.progress == nil {
		return noopProgress{}
	}
	if reporter := uc.progress(); reporter != nil {
		return reporter
	}
	return noopProgress{}
}

// UploadFailureMessage turns an upload error into the status line shown to the user.
func UploadFailureMessage(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := domain.AsAPIError(err); ok {
		switch apiErr.Kind {
		case domain.APIErrorTimeout:
			return UploadTimeoutMessage
		case domain.APIErrorBadStatus:
			return fmt.Sprintf("Upload failed: %d", apiErr.StatusCode)
		default:
			return "Upload failed: " + apiErr.Message
		}
	}
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "Upload failed: another upload is still running"
	case errors.Is(err, domain.ErrDuplicateDocument):
		return "Upload failed: a document with this name already exists"
	}
	return "Upload failed: " + err.Error()
}

type noopProgress struct{}

func (noopProgress) Start(int)          {}
func (noopProgress) Update(int, string) {}
func (noopProgress) Finish()            {}
