// Package pdf checks uploads before they are sent to the service.
package pdf

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

const mimeType = "application/pdf"

type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

// Inspect rejects files that are not PDFs by name or header. A PDF the local
// parser cannot read is still accepted, with a warning, because the service
// repairs many files this parser refuses.
func (i *Inspector) Inspect(filename string, content []byte) (domain.FileInfo, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return domain.FileInfo{}, fmt.Errorf("unsupported file type %q: only PDF files are accepted", filepath.Ext(filename))
	}
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return domain.FileInfo{}, fmt.Errorf("%s is not a PDF file", filename)
	}

	pages, err := countPages(content)
	if err != nil {
		return domain.FileInfo{MimeType: mimeType, Warning: fmt.Sprintf("parse pdf %s: %v", filename, err)}, nil
	}
	return domain.FileInfo{MimeType: mimeType, Pages: pages}, nil
}

func countPages(content []byte) (pages int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
