package ragapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveCall(operation string, outcome string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, operation+":"+outcome)
}

func TestCheckHealthSendsAPIKeyAndDecodesBody(t *testing.T) {
	var gotKey, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("X-API-Key")
		gotRequestID = r.Header.Get("X-Request-Id")
		_, _ = w.Write([]byte(`{"status":"healthy","version":"1.2"}`))
	}))
	defer server.Close()

	observer := &recordingObserver{}
	client := NewWithOptions(server.URL+"/", "secret", Options{Observer: observer})
	info, err := client.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth() error = %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotRequestID == "" {
		t.Fatalf("expected request id header")
	}
	if info["status"] != "healthy" {
		t.Fatalf("unexpected health info: %v", info)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "health:success" {
		t.Fatalf("unexpected observed outcomes: %v", observer.outcomes)
	}
}

func TestListDocumentsCountsEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":[{"id":1},{"id":2},{"id":3}]}`))
	}))
	defer server.Close()

	count, err := New(server.URL, "k").ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 documents, got %d", count)
	}
}

func TestListDocumentsWithoutArrayIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "k").ListDocuments(context.Background())
	if !domain.IsAPIErrorKind(err, domain.APIErrorMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestUploadSendsMultipartForm(t *testing.T) {
	var (
		gotFilename, gotFileType, gotFile string
		gotChunkSize, gotOverlap, gotName string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		gotFilename = header.Filename
		gotFileType = header.Header.Get("Content-Type")
		gotFile = string(content)
		gotChunkSize = r.FormValue("chunk_size")
		gotOverlap = r.FormValue("chunk_overlap")
		gotName = r.FormValue("document_name")
		_, _ = w.Write([]byte(`{"document_id":"abc-1","chunks_added":12}`))
	}))
	defer server.Close()

	resp, err := New(server.URL, "k").UploadDocument(context.Background(), domain.UploadRequest{
		Filename:     "report.pdf",
		MimeType:     "application/pdf",
		DisplayName:  "Q3 Report",
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Content:      []byte("%PDF-1.4 body"),
	})
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if resp.DocumentID != "abc-1" || resp.ChunksAdded != 12 {
		t.Fatalf("unexpected upload response: %+v", resp)
	}
	if gotFilename != "report.pdf" || gotFileType != "application/pdf" || gotFile != "%PDF-1.4 body" {
		t.Fatalf("unexpected file part: %q %q %q", gotFilename, gotFileType, gotFile)
	}
	if gotChunkSize != "1000" || gotOverlap != "200" || gotName != "Q3 Report" {
		t.Fatalf("unexpected form fields: %q %q %q", gotChunkSize, gotOverlap, gotName)
	}
}

func TestUploadAcceptsAlternateIdentifierFields(t *testing.T) {
	cases := map[string]string{
		`{"id":"x-9"}`:        "x-9",
		`{"file_id":42}`:      "42",
		`{"status":"queued"}`: "",
	}
	for body, want := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		resp, err := New(server.URL, "k").UploadDocument(context.Background(), domain.UploadRequest{
			Filename: "a.pdf", DisplayName: "a", ChunkSize: 1000, Content: []byte("x"),
		})
		server.Close()
		if err != nil {
			t.Fatalf("%s: UploadDocument() error = %v", body, err)
		}
		if resp.DocumentID != want {
			t.Fatalf("%s: expected id %q, got %q", body, want, resp.DocumentID)
		}
	}
}

func TestQueryScopedSendsDocumentParams(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"answer":"Revenue rose.","sources":[{"content":"excerpt","page":3}]}`))
	}))
	defer server.Close()

	resp, err := New(server.URL, "k").Query(context.Background(), "What rose?", &domain.Scope{DocumentName: "Q3 Report", DocumentID: "abc-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Answer != "Revenue rose." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Content != "excerpt" || string(resp.Sources[0].Metadata["page"]) != "3" {
		t.Fatalf("unexpected sources: %+v", resp.Sources)
	}
	for key, want := range map[string]string{
		"question":        "What rose?",
		"document_name":   "Q3 Report",
		"document_filter": "Q3 Report",
		"document_id":     "abc-1",
	} {
		if got := gotQuery[key]; len(got) != 1 || got[0] != want {
			t.Fatalf("expected %s=%q, got %v", key, want, got)
		}
	}
}

func TestQueryUnscopedSendsOnlyQuestion(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer server.Close()

	resp, err := New(server.URL, "k").Query(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(gotQuery) != 1 || gotQuery["question"][0] != "hello" {
		t.Fatalf("unexpected params: %v", gotQuery)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Fatalf("expected empty sources, got %#v", resp.Sources)
	}
}

func TestQueryMissingAnswerIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sources":[]}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "k").Query(context.Background(), "q", nil)
	if !domain.IsAPIErrorKind(err, domain.APIErrorMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestBadStatusCarriesCodeAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index not ready", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := New(server.URL, "k").Query(context.Background(), "q", nil)
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.Kind != domain.APIErrorBadStatus || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !strings.Contains(apiErr.Message, "index not ready") {
		t.Fatalf("expected response body in message, got %q", apiErr.Message)
	}
}

func TestNonOKSuccessCodesAreBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"document_id":"x"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "k").UploadDocument(context.Background(), domain.UploadRequest{
		Filename: "a.pdf", DisplayName: "a", ChunkSize: 1000, Content: []byte("x"),
	})
	if !domain.IsAPIErrorKind(err, domain.APIErrorBadStatus) {
		t.Fatalf("expected bad status, got %v", err)
	}
}

func TestTimeoutIsReportedAsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, "k", Options{Timeouts: Timeouts{Health: 50 * time.Millisecond}})
	_, err := client.CheckHealth(context.Background())
	if !domain.IsAPIErrorKind(err, domain.APIErrorTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, "k").ListDocuments(context.Background())
	if !domain.IsAPIErrorKind(err, domain.APIErrorUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
	if !IsTemporary(err) {
		t.Fatalf("expected unreachable error to be temporary")
	}
}

func TestExecutorRetriesHealthButNotQuery(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.URL.Path]++
		mu.Unlock()
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
		BreakerEnabled:      false,
	})
	client := NewWithOptions(server.URL, "k", Options{ResilienceExecutor: executor})

	if _, err := client.CheckHealth(context.Background()); !domain.IsAPIErrorKind(err, domain.APIErrorBadStatus) {
		t.Fatalf("expected bad status from health, got %v", err)
	}
	if _, err := client.Query(context.Background(), "q", nil); !domain.IsAPIErrorKind(err, domain.APIErrorBadStatus) {
		t.Fatalf("expected bad status from query, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls["/health"] != 3 {
		t.Fatalf("expected 3 health attempts, got %d", calls["/health"])
	}
	if calls["/query"] != 1 {
		t.Fatalf("expected 1 query attempt, got %d", calls["/query"])
	}
}

func TestOpenBreakerIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        1,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})
	client := NewWithOptions(server.URL, "k", Options{ResilienceExecutor: executor})

	for i := 0; i < 2; i++ {
		_, _ = client.ListDocuments(context.Background())
	}
	_, err := client.ListDocuments(context.Background())
	if !domain.IsAPIErrorKind(err, domain.APIErrorUnreachable) {
		t.Fatalf("expected unreachable with open breaker, got %v", err)
	}
}
