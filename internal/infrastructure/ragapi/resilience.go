package ragapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/infrastructure/resilience"
)

func classifyRAGError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	if apiErr, ok := domain.AsAPIError(err); ok {
		switch apiErr.Kind {
		case domain.APIErrorBadStatus:
			retryable := isRetryableHTTPStatus(apiErr.StatusCode)
			return resilience.ErrorClassification{
				Retryable:     retryable,
				RecordFailure: retryable,
			}
		case domain.APIErrorMalformedResponse:
			return resilience.ErrorClassification{
				Retryable:     false,
				RecordFailure: true,
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// normalizeError maps every failure onto the four-kind taxonomy.
func normalizeError(ctx context.Context, operation string, timeout time.Duration, err error) *domain.APIError {
	if err == nil {
		return nil
	}

	if apiErr, ok := domain.AsAPIError(err); ok {
		out := *apiErr
		out.Operation = operation
		return &out
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
		return &domain.APIError{
			Kind:      domain.APIErrorTimeout,
			Operation: operation,
			Message:   fmt.Sprintf("no response within %s", timeout),
			Err:       err,
		}
	}

	if resilience.IsCircuitOpen(err) {
		return &domain.APIError{
			Kind:      domain.APIErrorUnreachable,
			Operation: operation,
			Message:   "circuit open after repeated failures",
			Err:       err,
		}
	}

	return &domain.APIError{
		Kind:      domain.APIErrorUnreachable,
		Operation: operation,
		Message:   err.Error(),
		Err:       err,
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTemporary reports failures worth retrying by the user later.
func IsTemporary(err error) bool {
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		return false
	}
	switch apiErr.Kind {
	case domain.APIErrorUnreachable, domain.APIErrorTimeout:
		return true
	case domain.APIErrorBadStatus:
		return isRetryableHTTPStatus(apiErr.StatusCode)
	default:
		return false
	}
}
