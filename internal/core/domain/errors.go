package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDuplicateDocument = errors.New("document name already in use")
	ErrInvalidInput      = errors.New("invalid input")
	ErrBusy              = errors.New("operation already in progress")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type APIErrorKind string

const (
	APIErrorUnreachable       APIErrorKind = "unreachable"
	APIErrorTimeout           APIErrorKind = "timeout"
	APIErrorBadStatus         APIErrorKind = "bad_status"
	APIErrorMalformedResponse APIErrorKind = "malformed_response"
)

// APIError is the only error shape returned by the remote API client.
type APIError struct {
	Kind       APIErrorKind
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e == nil {
		return "rag api error"
	}
	switch e.Kind {
	case APIErrorBadStatus:
		if e.Message == "" {
			return fmt.Sprintf("rag api %s: status %d", e.Operation, e.StatusCode)
		}
		return fmt.Sprintf("rag api %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("rag api %s: %s: %s", e.Operation, e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsAPIError extracts the normalized remote error, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsAPIErrorKind(err error, kind APIErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}
