package domain

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusProcessed DocumentStatus = "processed"
	StatusFailed    DocumentStatus = "failed"
)

type Document struct {
	Name             string          `json:"name"`
	OriginalFilename string          `json:"original_filename"`
	DocumentID       string          `json:"document_id"`
	SizeMB           float64         `json:"size_mb"`
	ChunkCount       int             `json:"chunks"`
	ChunkSize        int             `json:"chunk_size"`
	ChunkOverlap     int             `json:"chunk_overlap"`
	Status           DocumentStatus  `json:"status"`
	CreatedAt        time.Time       `json:"timestamp"`
	UploadResponse   json.RawMessage `json:"upload_response,omitempty"`
}

// Ref returns the selection reference for the document.
func (d Document) Ref() DocumentRef {
	return DocumentRef{Name: d.Name, DocumentID: d.DocumentID}
}

type DocumentRef struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id"`
}

// UploadRequest is the validated input of the upload workflow.
type UploadRequest struct {
	Filename     string `validate:"required"`
	MimeType     string
	DisplayName  string `validate:"required,max=200"`
	ChunkSize    int    `validate:"min=500,max=2000"`
	ChunkOverlap int    `validate:"min=0,max=500"`
	Content      []byte `validate:"required,min=1"`
}

const (
	MinChunkSize        = 500
	MaxChunkSize        = 2000
	DefaultChunkSize    = 1000
	MaxChunkOverlap     = 500
	DefaultChunkOverlap = 200
)

// DefaultDisplayName strips the extension from a filename.
func DefaultDisplayName(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" {
		return base
	}
	return name
}

// SynthesizeDocumentID builds a client-side id for upload responses that carry none.
func SynthesizeDocumentID(filename string, now time.Time) string {
	prefix := []rune(filename)
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	return fmt.Sprintf("doc_%d_%s", now.Unix(), string(prefix))
}

func SizeInMB(n int) float64 {
	return float64(n) / (1024 * 1024)
}

// FileInfo describes an inspected upload. Warning is set when the file was
// accepted but could not be fully read locally; Pages is zero then.
type FileInfo struct {
	MimeType string
	Pages    int
	Warning  string
}
