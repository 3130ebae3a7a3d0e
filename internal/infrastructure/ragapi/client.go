// Package ragapi is the HTTP client for the remote RAG service.
package ragapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
)

const (
	opHealth    = "health"
	opDocuments = "documents"
	opUpload    = "upload"
	opQuery     = "query"
)

type Timeouts struct {
	Health    time.Duration
	Documents time.Duration
	Upload    time.Duration
	Query     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Health:    5 * time.Second,
		Documents: 5 * time.Second,
		Upload:    180 * time.Second,
		Query:     30 * time.Second,
	}
}

type Options struct {
	Timeouts           Timeouts
	RateLimitRPS       float64
	RateLimitBurst     int
	ResilienceExecutor *resilience.Executor
	Observer           ports.CallObserver
	HTTPClient         *http.Client
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeouts   Timeouts
	limiter    *rate.Limiter
	executor   *resilience.Executor
	observer   ports.CallObserver
}

func New(baseURL, apiKey string) *Client {
	return NewWithOptions(baseURL, apiKey, Options{})
}

func NewWithOptions(baseURL, apiKey string, options Options) *Client {
	timeouts := options.Timeouts
	def := DefaultTimeouts()
	if timeouts.Health <= 0 {
		timeouts.Health = def.Health
	}
	if timeouts.Documents <= 0 {
		timeouts.Documents = def.Documents
	}
	if timeouts.Upload <= 0 {
		timeouts.Upload = def.Upload
	}
	if timeouts.Query <= 0 {
		timeouts.Query = def.Query
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		// Deadlines come from the per-operation context.
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if options.RateLimitRPS > 0 {
		burst := options.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(options.RateLimitRPS), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		timeouts:   timeouts,
		limiter:    limiter,
		executor:   options.ResilienceExecutor,
		observer:   options.Observer,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) CheckHealth(ctx context.Context) (domain.HealthInfo, error) {
	var info domain.HealthInfo
	err := c.call(ctx, resilience.Operation{Name: opHealth, Idempotent: true}, c.timeouts.Health, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
		if err != nil {
			return err
		}
		raw, err := c.do(req, opHealth)
		if err != nil {
			return err
		}
		info = domain.HealthInfo{}
		if err := json.Unmarshal(raw, &info); err != nil {
			return malformed(opHealth, "decode health response", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) ListDocuments(ctx context.Context) (int, error) {
	count := 0
	err := c.call(ctx, resilience.Operation{Name: opDocuments, Idempotent: true}, c.timeouts.Documents, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodGet, "/documents", nil, nil)
		if err != nil {
			return err
		}
		raw, err := c.do(req, opDocuments)
		if err != nil {
			return err
		}
		var payload struct {
			Documents []json.RawMessage `json:"documents"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return malformed(opDocuments, "decode documents response", err)
		}
		if payload.Documents == nil {
			return malformed(opDocuments, "documents array missing", nil)
		}
		count = len(payload.Documents)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Client) UploadDocument(ctx context.Context, upload domain.UploadRequest) (domain.UploadResponse, error) {
	body, contentType, err := buildUploadBody(upload)
	if err != nil {
		return domain.UploadResponse{}, &domain.APIError{
			Kind:      domain.APIErrorUnreachable,
			Operation: opUpload,
			Message:   "build multipart body: " + err.Error(),
			Err:       err,
		}
	}

	var out domain.UploadResponse
	err = c.call(ctx, resilience.Operation{Name: opUpload}, c.timeouts.Upload, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/upload", nil, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		raw, err := c.do(req, opUpload)
		if err != nil {
			return err
		}
		parsed, err := parseUploadResponse(raw)
		if err != nil {
			return malformed(opUpload, "decode upload response", err)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return domain.UploadResponse{}, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, question string, scope *domain.Scope) (domain.QueryResponse, error) {
	var out domain.QueryResponse
	err := c.call(ctx, resilience.Operation{Name: opQuery}, c.timeouts.Query, func(ctx context.Context) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/query", QueryParams(question, scope), nil)
		if err != nil {
			return err
		}
		raw, err := c.do(req, opQuery)
		if err != nil {
			return err
		}
		parsed, err := parseQueryResponse(raw)
		if err != nil {
			return malformed(opQuery, "decode query response", err)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return domain.QueryResponse{}, err
	}
	return out, nil
}

// QueryParams builds the URL parameters sent with a question.
func QueryParams(question string, scope *domain.Scope) url.Values {
	params := url.Values{}
	for key, value := range scope.QueryParams(question) {
		params.Set(key, value)
	}
	return params
}

func buildUploadBody(upload domain.UploadRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := upload.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(upload.Filename)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(upload.Content); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	fields := [][2]string{
		{"chunk_size", strconv.Itoa(upload.ChunkSize)},
		{"chunk_overlap", strconv.Itoa(upload.ChunkOverlap)},
		{"document_name", upload.DisplayName},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func parseUploadResponse(raw []byte) (domain.UploadResponse, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return domain.UploadResponse{}, err
	}
	if payload == nil {
		return domain.UploadResponse{}, fmt.Errorf("upload response is not an object")
	}

	out := domain.UploadResponse{Raw: append(json.RawMessage(nil), raw...)}
	for _, key := range []string{"document_id", "id", "file_id"} {
		if id := idString(payload[key]); id != "" {
			out.DocumentID = id
			break
		}
	}
	if n, ok := payload["chunks_added"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			out.ChunksAdded = int(v)
		} else if f, err := n.Float64(); err == nil {
			out.ChunksAdded = int(f)
		}
	}
	return out, nil
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func parseQueryResponse(raw []byte) (domain.QueryResponse, error) {
	var payload struct {
		Answer  *string         `json:"answer"`
		Sources json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.QueryResponse{}, err
	}
	if payload.Answer == nil {
		return domain.QueryResponse{}, fmt.Errorf("answer field missing")
	}

	sources := []domain.Source{}
	if len(payload.Sources) > 0 && string(payload.Sources) != "null" {
		if err := json.Unmarshal(payload.Sources, &sources); err != nil {
			return domain.QueryResponse{}, fmt.Errorf("sources: %w", err)
		}
	}
	return domain.QueryResponse{
		Answer:  *payload.Answer,
		Sources: sources,
		Raw:     append(json.RawMessage(nil), raw...),
	}, nil
}
