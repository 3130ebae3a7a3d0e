package ragapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-Id"
	maxErrorBody    = 2048
	maxResponseBody = 32 << 20
)

// call bounds fn, including retries and rate-limit waits, by timeout and
// normalizes whatever comes back into a *domain.APIError.
func (c *Client) call(ctx context.Context, op resilience.Operation, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	attempt := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn(ctx)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(callCtx, resilience.Operation{Name: "ragapi." + op.Name, Idempotent: op.Idempotent}, attempt, classifyRAGError)
	} else {
		err = attempt(callCtx)
	}

	apiErr := normalizeError(callCtx, op.Name, timeout, err)
	if c.observer != nil {
		outcome := "success"
		if apiErr != nil {
			outcome = string(apiErr.Kind)
		}
		c.observer.ObserveCall(op.Name, outcome, time.Since(start).Seconds())
	}
	if apiErr != nil {
		return apiErr
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", strings.TrimPrefix(path, "/"), err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and returns the body of a 200 response.
func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rag api %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, formatHTTPError(operation, resp)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	return raw, nil
}

func formatHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.APIError{
		Kind:       domain.APIErrorBadStatus,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

func malformed(operation, message string, err error) error {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &domain.APIError{
		Kind:      domain.APIErrorMalformedResponse,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
