package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"

	"github.com/kirillkom/rag-document-assistant/internal/bootstrap"
	"github.com/kirillkom/rag-document-assistant/internal/config"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

type scriptedReader struct {
	lines  []string
	labels []string
	choice int
}

func (s *scriptedReader) ReadLine(label, defaultValue string) (string, error) {
	s.labels = append(s.labels, label)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

func (s *scriptedReader) Choose(string, []string) (int, error) {
	return s.choice, nil
}

type ragServer struct {
	mu      sync.Mutex
	queries []url.Values
	uploads []string
}

func (s *ragServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("GET /documents", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[{"id":"doc-1"}]}`))
	})
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.uploads = append(s.uploads, r.FormValue("document_name"))
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"document_id":"doc-1","chunks_added":7}`))
	})
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.Query())
		s.mu.Unlock()
		answer := "Answer to " + r.URL.Query().Get("question")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":  answer,
			"sources": []map[string]any{{"content": "excerpt from page 2", "page": 2}},
		})
	})
	return mux
}

func newTestApp(t *testing.T, serverURL string) *bootstrap.App {
	t.Helper()
	cfg := config.Config{
		APIURL:       serverURL,
		APIKey:       "test-key",
		ExportDir:    filepath.Join(t.TempDir(), "exports"),
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		t.Fatalf("bootstrap.New() error = %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, minimalPDF(), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

func TestShellUploadSelectAskAndExport(t *testing.T) {
	color.NoColor = true
	rag := &ragServer{}
	server := httptest.NewServer(rag.handler())
	defer server.Close()

	app := newTestApp(t, server.URL)
	pdfPath := writePDF(t, "report.pdf")
	in := &scriptedReader{lines: []string{
		"/upload " + pdfPath + " Q3 Report",
		"/docs",
		"/select 1",
		"What was revenue?",
		"/good 1",
		"/example 1",
		"",
		"/stats",
		"/export chat",
		"/quit",
		"never read",
	}}
	var out bytes.Buffer

	if err := NewShell(app, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"report.pdf uploaded successfully!",
		"Chunks: 7",
		"1. Q3 Report",
		"Searching within: Q3 Report",
		"Answer to What was revenue?",
		"Searched in: Q3 Report",
		"[1] excerpt from page 2",
		"Thanks for the feedback on answer 1",
		"Staged: What are the main findings?",
		"Answer to What are the main findings?",
		"Conversations: 2",
		"Q3 Report: 2",
		"Satisfaction: 100.00%",
		"Exported to ",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q\n%s", want, text)
		}
	}

	if len(rag.uploads) != 1 || rag.uploads[0] != "Q3 Report" {
		t.Fatalf("unexpected uploads: %v", rag.uploads)
	}
	if len(rag.queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(rag.queries))
	}
	for _, q := range rag.queries {
		if q.Get("document_id") != "doc-1" || q.Get("document_name") != "Q3 Report" {
			t.Fatalf("query was not scoped: %v", q)
		}
	}
	if len(in.lines) != 1 {
		t.Fatalf("shell kept reading after /quit: %v", in.lines)
	}
	if in.labels[len(in.labels)-1] != "Ask [Q3 Report]" {
		t.Fatalf("unexpected prompt label: %q", in.labels[len(in.labels)-1])
	}

	snap := app.Sessions.Snapshot()
	if snap.Selection.PendingQuestion != nil {
		t.Fatalf("pending question should be cleared after asking")
	}
	entries, err := os.ReadDir(app.Storage.BasePath())
	if err != nil || len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "chat_export_") {
		t.Fatalf("expected one chat export, got %v (err %v)", entries, err)
	}
}

func TestShellSelectPickerAndFocus(t *testing.T) {
	color.NoColor = true
	rag := &ragServer{}
	server := httptest.NewServer(rag.handler())
	defer server.Close()

	app := newTestApp(t, server.URL)
	if err := app.Sessions.AddDocument(domain.Document{Name: "Alpha", DocumentID: "a-1"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}
	if err := app.Sessions.AddDocument(domain.Document{Name: "Beta", DocumentID: "b-1"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	var out bytes.Buffer
	in := &scriptedReader{choice: 2}
	shell := NewShell(app, in, &out)
	ctx := context.Background()

	shell.Handle(ctx, "/select")
	if ref := app.Sessions.Snapshot().Selection.SelectedDocument; ref == nil || ref.Name != "Beta" {
		t.Fatalf("picker should select Beta, got %+v", ref)
	}

	shell.Handle(ctx, "/select all")
	shell.Handle(ctx, "/focus 1")
	shell.Handle(ctx, "Summarize")
	if got := rag.queries[0].Get("document_name"); got != "Alpha" {
		t.Fatalf("focused query should target Alpha, got %q", got)
	}

	shell.Handle(ctx, "/remove 1")
	if name := app.Sessions.Snapshot().Selection.FocusedDocument; name != nil {
		t.Fatalf("removing the focused document should clear focus, got %q", *name)
	}

	shell.Handle(ctx, "/focus 9")
	shell.Handle(ctx, "/bogus")
	text := out.String()
	for _, want := range []string{"Searching within: Beta", "Chatting with: Alpha", "Removed Alpha", "No document 9", "Unknown command /bogus"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q\n%s", want, text)
		}
	}
}

func TestShellReportsQueryFailure(t *testing.T) {
	color.NoColor = true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	app := newTestApp(t, server.URL)
	var out bytes.Buffer
	NewShell(app, &scriptedReader{}, &out).Handle(context.Background(), "Hello?")

	text := out.String()
	if !strings.Contains(text, "Error: API returned 500") || !strings.Contains(text, "Details: model overloaded") {
		t.Fatalf("unexpected output:\n%s", text)
	}
	if convs := app.Sessions.Snapshot().Conversations; len(convs) != 1 || !convs[0].IsError {
		t.Fatalf("expected one error conversation, got %+v", convs)
	}
}

// setCommandEnv points config.Load at the test server and keeps the
// command's logger and exports inside a temp dir.
func setCommandEnv(t *testing.T, serverURL string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RAG_API_URL", serverURL)
	t.Setenv("RAG_API_KEY", "test-key")
	t.Setenv("RAG_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("RAG_SECRETS_FILE", filepath.Join(dir, "missing.yaml"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "ragclient.log"))
	t.Setenv("NATS_URL", "")
	t.Setenv("METRICS_PORT", "")

	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestAskCommandUploadsAndScopes(t *testing.T) {
	color.NoColor = true
	rag := &ragServer{}
	server := httptest.NewServer(rag.handler())
	defer server.Close()

	setCommandEnv(t, server.URL)

	pdfPath := writePDF(t, "annual.pdf")
	cmd := newRootCommand(&scriptedReader{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ask", "Who signed it?", "--upload", pdfPath, "--doc", "annual"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "Answer to Who signed it?") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if len(rag.queries) != 1 || rag.queries[0].Get("document_name") != "annual" {
		t.Fatalf("unexpected queries: %v", rag.queries)
	}
}

func TestAskCommandRejectsUnknownDocument(t *testing.T) {
	rag := &ragServer{}
	server := httptest.NewServer(rag.handler())
	defer server.Close()

	setCommandEnv(t, server.URL)

	cmd := newRootCommand(&scriptedReader{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"ask", "Anything?", "--doc", "missing"})

	err := cmd.ExecuteContext(context.Background())
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if len(rag.queries) != 0 {
		t.Fatalf("no query should be sent, got %v", rag.queries)
	}
}

func TestScriptReaderUsesDefaultOnBlankLine(t *testing.T) {
	r := newScriptReader(strings.NewReader("first\n\n"))
	if line, _ := r.ReadLine("Ask", "staged"); line != "first" {
		t.Fatalf("unexpected first line %q", line)
	}
	if line, _ := r.ReadLine("Ask", "staged"); line != "staged" {
		t.Fatalf("blank line should return default, got %q", line)
	}
	if _, err := r.ReadLine("Ask", ""); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := r.Choose("Pick", []string{"a"}); err == nil {
		t.Fatalf("Choose should fail without a terminal")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate() = %q", got)
	}
	if got := truncate("héllo world", 5); got != "héllo..." {
		t.Fatalf("truncate() = %q", got)
	}
}

func TestPromptLabel(t *testing.T) {
	if got := promptLabel(domain.Snapshot{}); got != "Ask" {
		t.Fatalf("promptLabel() = %q", got)
	}
	name := "Alpha"
	snap := domain.Snapshot{
		Documents: []domain.Document{{Name: "Alpha", DocumentID: "a-1"}},
		Selection: domain.Selection{FocusedDocument: &name},
	}
	if got := promptLabel(snap); got != "Ask [Alpha]" {
		t.Fatalf("promptLabel() = %q", got)
	}
}

// minimalPDF builds a one-page PDF with a valid cross-reference table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestShellUploadsPDFTheLocalParserCannotRead(t *testing.T) {
	color.NoColor = true
	rag := &ragServer{}
	server := httptest.NewServer(rag.handler())
	defer server.Close()

	app := newTestApp(t, server.URL)
	path := filepath.Join(t.TempDir(), "scan.pdf")
	padded := append(minimalPDF(), make([]byte, 2048)...)
	if err := os.WriteFile(path, padded, 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	var out bytes.Buffer
	NewShell(app, &scriptedReader{}, &out).Handle(context.Background(), "/upload "+path)

	if !strings.Contains(out.String(), "scan.pdf uploaded successfully!") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if len(rag.uploads) != 1 || len(app.Sessions.Snapshot().Documents) != 1 {
		t.Fatalf("expected the padded file to reach the service, uploads=%v", rag.uploads)
	}
}
