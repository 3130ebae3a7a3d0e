package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/kirillkom/rag-document-assistant/internal/bootstrap"
	"github.com/kirillkom/rag-document-assistant/internal/core/analytics"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/usecase"
)

// Shell is the interactive front-end. It renders from the latest session
// snapshot it was notified with.
type Shell struct {
	app *bootstrap.App
	in  LineReader
	out renderer

	mu   sync.Mutex
	snap domain.Snapshot
}

func NewShell(app *bootstrap.App, in LineReader, out io.Writer) *Shell {
	s := &Shell{
		app:  app,
		in:   in,
		out:  renderer{out: out},
		snap: app.Sessions.Snapshot(),
	}
	return s
}

func (s *Shell) onSession(_ domain.SessionEvent, snap domain.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *Shell) snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Shell) Run(ctx context.Context) error {
	unsubscribe := s.app.Sessions.Subscribe(s.onSession)
	defer unsubscribe()

	s.out.heading("RAG Document Assistant")
	s.out.caption("Connected to %s. Type /help for commands.", s.app.StatusUC.Endpoint())
	if s.app.Config.UsesDefaultAPIKey() {
		s.out.warn("Using the local development API key. Set RAG_API_KEY for a real service.")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		snap := s.snapshot()
		pending := ""
		if snap.Selection.PendingQuestion != nil {
			pending = *snap.Selection.PendingQuestion
		}
		line, err := s.in.ReadLine(promptLabel(snap), pending)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if quit := s.Handle(ctx, line); quit {
			return nil
		}
	}
}

func promptLabel(snap domain.Snapshot) string {
	if scope := usecase.ResolveScope(snap); scope != nil {
		return "Ask [" + scope.DocumentName + "]"
	}
	return "Ask"
}

// Handle executes one line of input and reports whether the shell should exit.
func (s *Shell) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.ask(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		s.out.help()
	case "/docs":
		s.listDocuments(strings.Join(args, " "))
	case "/upload":
		s.upload(ctx, args)
	case "/remove":
		s.removeDocument(args)
	case "/select":
		s.selectDocument(args)
	case "/focus":
		s.focusDocument(args)
	case "/examples":
		s.out.examples(usecase.ExampleCategories())
	case "/example":
		s.stageExample(args)
	case "/dismiss":
		usecase.DismissExample(s.app.Sessions)
		s.out.caption("Staged question dismissed")
	case "/good":
		s.rate(args, domain.FeedbackGood)
	case "/bad":
		s.rate(args, domain.FeedbackBad)
	case "/history":
		s.out.history(s.app.Sessions.Snapshot())
	case "/clear":
		s.app.Sessions.ClearAll()
		s.out.success("Chat history cleared")
	case "/export":
		s.export(ctx, args)
	case "/stats":
		s.out.stats(analytics.Summarize(s.app.Sessions.Snapshot()))
	case "/status":
		s.out.status(s.app.StatusUC.Status(ctx))
	case "/health":
		s.out.health(s.app.StatusUC.CheckConnection(ctx))
	case "/diagnose":
		s.out.diagnostics(s.app.StatusUC.Diagnose(ctx))
	default:
		s.out.failure("Unknown command %s. Type /help for commands.", name)
	}
	return false
}

func (s *Shell) ask(ctx context.Context, question string) {
	conv, index, err := s.app.QueryUC.Ask(ctx, question)
	switch {
	case errors.Is(err, domain.ErrBusy):
		s.out.warn("A question is already being answered")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		s.out.failure("Please enter a question")
		return
	}
	s.out.answer(conv, index, err)
}

func (s *Shell) listDocuments(filter string) {
	snap := s.app.Sessions.Snapshot()
	docs, indexes := analytics.FilterDocuments(snap.Documents, filter)
	s.out.documents(snap, docs, indexes)
}

func (s *Shell) upload(ctx context.Context, args []string) {
	if len(args) == 0 {
		s.out.failure("Usage: /upload PATH [NAME]")
		return
	}
	doc, err := uploadFile(ctx, s.app, args[0], strings.Join(args[1:], " "), s.app.Config.ChunkSize, s.app.Config.ChunkOverlap)
	if err != nil {
		s.out.failure("%s", usecase.UploadFailureMessage(err))
		return
	}
	s.out.uploaded(doc)
}

func (s *Shell) removeDocument(args []string) {
	index, ok := s.documentIndex(args, "Usage: /remove N")
	if !ok {
		return
	}
	doc, err := s.app.Sessions.RemoveDocument(index)
	if err != nil {
		s.out.failure("No document %d", index+1)
		return
	}
	s.out.success("Removed %s from the list", doc.Name)
}

func (s *Shell) selectDocument(args []string) {
	snap := s.app.Sessions.Snapshot()
	if len(args) == 1 && strings.EqualFold(args[0], "all") {
		_ = s.app.Sessions.SetSelectedDocument(nil)
		s.out.caption("Searching across all uploaded documents")
		return
	}

	var index int
	if len(args) == 0 {
		if len(snap.Documents) == 0 {
			s.out.caption("No documents uploaded yet")
			return
		}
		items := make([]string, 0, len(snap.Documents)+1)
		items = append(items, "All Documents")
		for _, doc := range snap.Documents {
			items = append(items, doc.Name)
		}
		choice, err := s.in.Choose("Search in", items)
		if err != nil {
			s.out.failure("%v", err)
			return
		}
		if choice == 0 {
			_ = s.app.Sessions.SetSelectedDocument(nil)
			s.out.caption("Searching across all uploaded documents")
			return
		}
		index = choice - 1
	} else {
		var ok bool
		if index, ok = s.documentIndex(args, "Usage: /select N|all"); !ok {
			return
		}
	}

	if index < 0 || index >= len(snap.Documents) {
		s.out.failure("No document %d", index+1)
		return
	}
	ref := snap.Documents[index].Ref()
	if err := s.app.Sessions.SetSelectedDocument(&ref); err != nil {
		s.out.failure("%v", err)
		return
	}
	s.out.caption("Searching within: %s", ref.Name)
}

func (s *Shell) focusDocument(args []string) {
	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		_ = s.app.Sessions.SetFocusedDocument(nil)
		s.out.caption("Document chat ended")
		return
	}
	index, ok := s.documentIndex(args, "Usage: /focus N|off")
	if !ok {
		return
	}
	snap := s.app.Sessions.Snapshot()
	if index < 0 || index >= len(snap.Documents) {
		s.out.failure("No document %d", index+1)
		return
	}
	name := snap.Documents[index].Name
	if err := s.app.Sessions.SetFocusedDocument(&name); err != nil {
		s.out.failure("%v", err)
		return
	}
	s.out.caption("Chatting with: %s", name)
}

func (s *Shell) stageExample(args []string) {
	n, ok := parseNumber(args)
	if !ok {
		s.out.failure("Usage: /example N")
		return
	}
	question, err := usecase.StageExample(s.app.Sessions, n)
	if err != nil {
		s.out.failure("No example %d", n)
		return
	}
	s.out.caption("Staged: %s (press Enter to ask, /dismiss to drop)", question)
}

func (s *Shell) rate(args []string, feedbackType domain.FeedbackType) {
	n, ok := parseNumber(args)
	if !ok {
		s.out.failure("Usage: /%s N", feedbackType)
		return
	}
	if err := s.app.Sessions.SetFeedback(n-1, feedbackType); err != nil {
		s.out.failure("No answer %d", n)
		return
	}
	s.out.success("Thanks for the feedback on answer %d", n)
}

func (s *Shell) export(ctx context.Context, args []string) {
	if len(args) != 1 {
		s.out.failure("Usage: /export chat|docs|xlsx")
		return
	}
	var (
		key string
		err error
	)
	switch strings.ToLower(args[0]) {
	case "chat":
		key, err = s.app.ExportUC.ExportChat(ctx)
	case "docs":
		key, err = s.app.ExportUC.ExportDocuments(ctx)
	case "xlsx":
		key, err = s.app.ExportUC.ExportReport(ctx)
	default:
		s.out.failure("Usage: /export chat|docs|xlsx")
		return
	}
	if err != nil {
		slog.Warn("export_failed", "kind", args[0], "error", err)
		s.out.failure("Export failed: %v", err)
		return
	}
	path, _ := s.app.Storage.Path(key)
	s.out.success("Exported to %s", path)
}

func (s *Shell) documentIndex(args []string, usage string) (int, bool) {
	n, ok := parseNumber(args)
	if !ok {
		s.out.failure("%s", usage)
		return 0, false
	}
	return n - 1, true
}

func parseNumber(args []string) (int, bool) {
	if len(args) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// uploadFile reads path and runs the upload workflow with the given chunking.
func uploadFile(ctx context.Context, app *bootstrap.App, path, name string, chunkSize, chunkOverlap int) (*domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return app.UploadUC.Upload(ctx, domain.UploadRequest{
		Filename:     path,
		DisplayName:  name,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Content:      content,
	})
}
