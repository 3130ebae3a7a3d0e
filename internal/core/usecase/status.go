package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/ports"
)

type APIStatus string

const (
	APIOnline  APIStatus = "Online"
	APIOffline APIStatus = "Offline"
	APIError   APIStatus = "Error"
)

// DocumentCountPlaceholder is reported when the service cannot list documents.
const DocumentCountPlaceholder = "Check upload tab"

type SystemStatus struct {
	APIStatus       APIStatus
	DocumentsLoaded *int
	Endpoint        string
	Error           string
}

// DocumentsLabel renders the document count or its placeholder.
func (s SystemStatus) DocumentsLabel() string {
	if s.DocumentsLoaded == nil {
		return DocumentCountPlaceholder
	}
	return fmt.Sprintf("%d", *s.DocumentsLoaded)
}

func (s SystemStatus) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"api_status": s.APIStatus,
		"endpoint":   s.Endpoint,
	}
	if s.APIStatus != APIError {
		if s.DocumentsLoaded != nil {
			out["documents_loaded"] = *s.DocumentsLoaded
		} else {
			out["documents_loaded"] = DocumentCountPlaceholder
		}
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return json.Marshal(out)
}

type CheckResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type StatusUseCase struct {
	api      ports.RAGAPI
	endpoint string
}

func NewStatusUseCase(api ports.RAGAPI, endpoint string) *StatusUseCase {
	return &StatusUseCase{api: api, endpoint: endpoint}
}

func (uc *StatusUseCase) Endpoint() string {
	return uc.endpoint
}

// CheckConnection reports whether the service answers its health check. On
// failure the returned info carries a single "error" entry.
func (uc *StatusUseCase) CheckConnection(ctx context.Context) (bool, domain.HealthInfo) {
	info, err := uc.api.CheckHealth(ctx)
	if err == nil {
		return true, info
	}
	if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Kind == domain.APIErrorBadStatus {
		return false, domain.HealthInfo{"error": fmt.Sprintf("API returned status %d", apiErr.StatusCode)}
	}
	return false, domain.HealthInfo{"error": errorText(err)}
}

// Status combines the health check with a best-effort document count.
func (uc *StatusUseCase) Status(ctx context.Context) SystemStatus {
	status := SystemStatus{Endpoint: uc.endpoint}
	_, err := uc.api.CheckHealth(ctx)
	if domain.IsAPIErrorKind(err, domain.APIErrorMalformedResponse) {
		// The service answered 200; only the body was not JSON.
		err = nil
	}
	if err != nil {
		if !domain.IsAPIErrorKind(err, domain.APIErrorBadStatus) {
			status.APIStatus = APIError
			status.Error = errorText(err)
			return status
		}
		status.APIStatus = APIOffline
	} else {
		status.APIStatus = APIOnline
	}

	if count, err := uc.api.ListDocuments(ctx); err == nil {
		status.DocumentsLoaded = &count
	} else {
		slog.Debug("document_count_unavailable", "error", err)
	}
	return status
}

// Diagnose calls each remote endpoint once. The test query is not recorded
// in the conversation log.
func (uc *StatusUseCase) Diagnose(ctx context.Context) []CheckResult {
	checks := []struct {
		name string
		call func(context.Context) error
	}{
		{"Health", func(ctx context.Context) error {
			_, err := uc.api.CheckHealth(ctx)
			return err
		}},
		{"Documents", func(ctx context.Context) error {
			_, err := uc.api.ListDocuments(ctx)
			return err
		}},
		{"Query", func(ctx context.Context) error {
			_, err := uc.api.Query(ctx, "test", nil)
			return err
		}},
	}

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		err := check.call(ctx)
		result := CheckResult{Name: check.name, OK: err == nil}
		switch apiErr, ok := domain.AsAPIError(err); {
		case err == nil:
			result.StatusCode = http.StatusOK
		case ok && apiErr.Kind == domain.APIErrorBadStatus:
			result.StatusCode = apiErr.StatusCode
		default:
			result.Error = errorText(err)
		}
		results = append(results, result)
	}
	return results
}

func errorText(err error) string {
	if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
