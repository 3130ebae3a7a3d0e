package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
)

type ragAPIFake struct {
	mu sync.Mutex

	health    domain.HealthInfo
	healthErr error
	docCount  int
	docsErr   error

	uploadResp domain.UploadResponse
	uploadErr  error
	uploads    []domain.UploadRequest
	onUpload   func()

	queryResp    domain.QueryResponse
	queryErr     error
	queries      []string
	queryScopes  []*domain.Scope
	queryGate    chan struct{}
	queryEntered chan struct{}
}

func (f *ragAPIFake) CheckHealth(context.Context) (domain.HealthInfo, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return f.health, nil
}

func (f *ragAPIFake) ListDocuments(context.Context) (int, error) {
	if f.docsErr != nil {
		return 0, f.docsErr
	}
	return f.docCount, nil
}

func (f *ragAPIFake) UploadDocument(_ context.Context, req domain.UploadRequest) (domain.UploadResponse, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	f.mu.Unlock()
	if f.onUpload != nil {
		f.onUpload()
	}
	if f.uploadErr != nil {
		return domain.UploadResponse{}, f.uploadErr
	}
	return f.uploadResp, nil
}

func (f *ragAPIFake) Query(_ context.Context, question string, scope *domain.Scope) (domain.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, question)
	if scope != nil {
		copyScope := *scope
		scope = &copyScope
	}
	f.queryScopes = append(f.queryScopes, scope)
	f.mu.Unlock()
	if f.queryEntered != nil {
		f.queryEntered <- struct{}{}
	}
	if f.queryGate != nil {
		<-f.queryGate
	}
	if f.queryErr != nil {
		return domain.QueryResponse{}, f.queryErr
	}
	return f.queryResp, nil
}

type inspectorFake struct {
	info domain.FileInfo
	err  error
}

func (f inspectorFake) Inspect(string, []byte) (domain.FileInfo, error) {
	return f.info, f.err
}

type progressFake struct {
	started  bool
	finished bool
	values   []int
	messages []string
}

func (p *progressFake) Start(int) { p.started = true }
func (p *progressFake) Update(current int, message string) {
	p.values = append(p.values, current)
	p.messages = append(p.messages, message)
}
func (p *progressFake) Finish() { p.finished = true }

type exportStorageFake struct {
	saved map[string][]byte
	err   error
}

func (f *exportStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return nil
}

func (f *exportStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type reportRendererFake struct {
	data []byte
	err  error
}

func (f reportRendererFake) RenderReport(domain.Snapshot, time.Time) ([]byte, error) {
	return f.data, f.err
}

func newSessions() *session.Controller {
	return session.NewController(session.NewStore("session-1"))
}

func testDocument(name, id string) domain.Document {
	return domain.Document{
		Name:       name,
		DocumentID: id,
		ChunkCount: 5,
		Status:     domain.StatusProcessed,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func strPtr(s string) *string {
	return &s
}
