// Package xlsx renders the session report workbook.
package xlsx

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rag-document-assistant/internal/core/analytics"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

const (
	DocumentsSheet = "Documents"
	UsageSheet     = "Usage"

	timestampLayout = "2006-01-02 15:04:05"
)

var documentHeader = []any{"Name", "Original filename", "Document ID", "Size (MB)", "Chunks", "Chunk size", "Chunk overlap", "Status", "Uploaded"}

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) RenderReport(snap domain.Snapshot, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DocumentsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeDocuments(f, snap.Documents); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(UsageSheet); err != nil {
		return nil, fmt.Errorf("create usage sheet: %w", err)
	}
	if err := writeUsage(f, snap, generatedAt); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeDocuments(f *excelize.File, docs []domain.Document) error {
	if err := setRow(f, DocumentsSheet, 1, documentHeader); err != nil {
		return err
	}
	for i, doc := range docs {
		row := []any{
			doc.Name,
			doc.OriginalFilename,
			doc.DocumentID,
			fmt.Sprintf("%.2f", doc.SizeMB),
			doc.ChunkCount,
			doc.ChunkSize,
			doc.ChunkOverlap,
			string(doc.Status),
			doc.CreatedAt.Format(timestampLayout),
		}
		if err := setRow(f, DocumentsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeUsage(f *excelize.File, snap domain.Snapshot, generatedAt time.Time) error {
	summary := analytics.Summarize(snap)
	rows := [][]any{
		{"Metric", "Value"},
		{"Generated", generatedAt.Format(timestampLayout)},
		{"Session", snap.SessionID},
		{"Documents", summary.TotalDocuments},
		{"Total chunks", summary.TotalChunks},
		{"Conversations", summary.TotalConversations},
		{"Average answer words", analytics.FormatAverage(summary.AverageAnswerWords)},
		{"Positive feedback", summary.PositiveFeedback},
		{"Negative feedback", summary.NegativeFeedback},
		{"Satisfaction", analytics.FormatPercent(summary.Satisfaction)},
		{},
		{"Scope", "Questions"},
	}
	for _, sc := range summary.ScopeCounts {
		rows = append(rows, []any{sc.Scope, sc.Count})
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := setRow(f, UsageSheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
