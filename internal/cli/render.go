package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"

	"github.com/kirillkom/rag-document-assistant/internal/core/analytics"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/usecase"
)

const (
	sourceExcerptLimit = 300
	errorDetailLimit   = 200
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

type renderer struct {
	out io.Writer
}

func (r renderer) heading(format string, args ...any) {
	headingColor.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) success(format string, args ...any) {
	successColor.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) failure(format string, args ...any) {
	errorColor.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) warn(format string, args ...any) {
	warnColor.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) caption(format string, args ...any) {
	dimColor.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) line(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r renderer) answer(conv *domain.Conversation, index int, err error) {
	if conv == nil {
		return
	}
	if conv.IsError {
		r.failure("%s", conv.Answer)
		if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Kind == domain.APIErrorBadStatus && apiErr.Message != "" {
			r.caption("Details: %s", truncate(apiErr.Message, errorDetailLimit))
		}
		return
	}
	r.line("%s", conv.Answer)
	if conv.DocumentScope != domain.AllDocumentsScope {
		r.caption("Searched in: %s", conv.DocumentScope)
	} else {
		r.caption("Searched across all documents")
	}
	r.sources(conv.Sources)
	if index >= 0 {
		r.caption("Rate this answer with /good %d or /bad %d", index+1, index+1)
	}
}

func (r renderer) sources(sources []domain.Source) {
	if len(sources) == 0 {
		return
	}
	r.heading("Sources (%d)", len(sources))
	for i, src := range sources {
		r.line("  [%d] %s", i+1, truncate(src.Content, sourceExcerptLimit))
	}
}

func (r renderer) documents(snap domain.Snapshot, docs []domain.Document, indexes []int) {
	if len(snap.Documents) == 0 {
		r.caption("No documents uploaded yet")
		return
	}
	if len(docs) == 0 {
		r.caption("No documents match")
		return
	}
	r.heading("Documents (%d)", len(snap.Documents))
	for i, doc := range docs {
		marker := " "
		if ref := snap.Selection.SelectedDocument; ref != nil && ref.DocumentID == doc.DocumentID {
			marker = "*"
		} else if name := snap.Selection.FocusedDocument; name != nil && *name == doc.Name {
			marker = ">"
		}
		r.line("%s %d. %s  (%d chunks, %.2f MB, %s)", marker, indexes[i]+1, doc.Name, doc.ChunkCount, doc.SizeMB, doc.CreatedAt.Format("2006-01-02 15:04:05"))
		r.caption("     ID: %s", doc.DocumentID)
	}
	r.scope(snap)
}

func (r renderer) scope(snap domain.Snapshot) {
	switch scope := usecase.ResolveScope(snap); {
	case scope != nil:
		r.caption("Searching within: %s", scope.DocumentName)
	case len(snap.Documents) > 0:
		r.caption("Searching across all uploaded documents")
	}
}

func (r renderer) uploaded(doc *domain.Document) {
	r.success("%s uploaded successfully!", doc.OriginalFilename)
	r.line("  Name: %s", doc.Name)
	r.line("  Chunks: %d", doc.ChunkCount)
	r.line("  Size: %.2f MB", doc.SizeMB)
	r.caption("  Document ID: %s", doc.DocumentID)
}

func (r renderer) history(snap domain.Snapshot) {
	if len(snap.Conversations) == 0 {
		r.caption("No conversations yet")
		return
	}
	r.heading("Conversation history (%d)", len(snap.Conversations))
	for i, conv := range snap.Conversations {
		rating := ""
		if fb, ok := snap.Feedback[i]; ok {
			rating = " [" + string(fb.Type) + "]"
		}
		r.line("%d. Q: %s%s", i+1, conv.Question, rating)
		if conv.IsError {
			errorColor.Fprintf(r.out, "   A: %s\n", truncate(conv.Answer, errorDetailLimit))
		} else {
			r.line("   A: %s", truncate(conv.Answer, errorDetailLimit))
		}
		r.caption("   %s, %s", conv.DocumentScope, conv.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func (r renderer) stats(summary analytics.Summary) {
	r.heading("Analytics")
	r.line("  Conversations: %d", summary.TotalConversations)
	r.line("  Documents: %d", summary.TotalDocuments)
	r.line("  Total chunks: %d", summary.TotalChunks)
	r.line("  Average answer length: %s words", analytics.FormatAverage(summary.AverageAnswerWords))
	if len(summary.ScopeCounts) > 0 {
		r.heading("Questions per document")
		for _, sc := range summary.ScopeCounts {
			r.line("  %s: %d", sc.Scope, sc.Count)
		}
	}
	r.heading("Feedback")
	r.line("  Positive: %d", summary.PositiveFeedback)
	r.line("  Negative: %d", summary.NegativeFeedback)
	r.line("  Satisfaction: %s", analytics.FormatPercent(summary.Satisfaction))
	if len(summary.RecentConversations) > 0 {
		r.heading("Recent conversations")
		for _, conv := range summary.RecentConversations {
			r.line("  Q: %s", truncate(conv.Question, 50))
		}
	}
	if len(summary.RecentDocuments) > 0 {
		r.heading("Recent documents")
		for _, doc := range summary.RecentDocuments {
			r.line("  %s (%d chunks)", doc.Name, doc.ChunkCount)
		}
	}
}

func (r renderer) status(status usecase.SystemStatus) {
	switch status.APIStatus {
	case usecase.APIOnline:
		r.success("API: %s", status.APIStatus)
	case usecase.APIOffline:
		r.warn("API: %s", status.APIStatus)
	default:
		r.failure("API: %s", status.APIStatus)
	}
	if status.APIStatus != usecase.APIError {
		r.line("Documents loaded: %s", status.DocumentsLabel())
	}
	r.line("Endpoint: %s", status.Endpoint)
	if status.Error != "" {
		r.caption("Error: %s", status.Error)
	}
}

func (r renderer) health(connected bool, info domain.HealthInfo) {
	if connected {
		r.success("Connected")
	} else {
		r.failure("Disconnected")
	}
	for _, key := range sortedKeys(info) {
		r.line("  %s: %v", key, info[key])
	}
}

func (r renderer) diagnostics(results []usecase.CheckResult) {
	for _, result := range results {
		switch {
		case result.OK:
			r.success("%s: OK %d", result.Name, result.StatusCode)
		case result.StatusCode != 0:
			r.failure("%s: FAILED %d", result.Name, result.StatusCode)
		default:
			r.failure("%s: FAILED %s", result.Name, result.Error)
		}
	}
}

func (r renderer) examples(categories []usecase.ExampleCategory) {
	n := 1
	for _, category := range categories {
		r.heading("%s", category.Name)
		for _, question := range category.Questions {
			r.line("  %d. %s", n, question)
			n++
		}
	}
	r.caption("Use /example N to stage a question")
}

func (r renderer) help() {
	r.heading("Commands")
	for _, line := range helpLines {
		r.line("  %s", line)
	}
	r.caption("Anything else is sent as a question.")
}

var helpLines = []string{
	"/docs [filter]        list uploaded documents",
	"/upload PATH [NAME]   upload a PDF",
	"/remove N             remove document N from the list",
	"/select N|all         search only document N, or all documents",
	"/focus N|off          chat with document N",
	"/examples             show example questions",
	"/example N            stage example question N",
	"/dismiss              drop the staged question",
	"/good N, /bad N       rate answer N",
	"/history              show the conversation log",
	"/clear                clear conversations and feedback",
	"/export chat|docs|xlsx",
	"/stats                usage analytics",
	"/status, /health      check the service",
	"/quit                 leave the shell",
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func sortedKeys(info domain.HealthInfo) []string {
	return slices.Sorted(maps.Keys(info))
}
