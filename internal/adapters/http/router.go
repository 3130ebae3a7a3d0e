package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/kirillkom/rag-document-assistant/internal/core/analytics"
	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/usecase"
)

type StatusReader interface {
	Status(ctx context.Context) usecase.SystemStatus
}

type SessionReader interface {
	Snapshot() domain.Snapshot
}

type ExportReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Router serves the local admin endpoints next to the interactive client:
// metrics, service status, the session summary and saved exports.
type Router struct {
	status   StatusReader
	sessions SessionReader
	exports  ExportReader
	metrics  http.Handler
}

func NewRouter(status StatusReader, sessions SessionReader, exports ExportReader, metrics http.Handler) *Router {
	return &Router{
		status:   status,
		sessions: sessions,
		exports:  exports,
		metrics:  metrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics)
	}
	mux.HandleFunc("GET /v1/status", rt.getStatus)
	mux.HandleFunc("GET /v1/session/summary", rt.getSummary)
	mux.HandleFunc("GET /v1/session/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/exports/{key}", rt.getExport)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.status.Status(r.Context()))
}

func (rt *Router) getSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, analytics.Summarize(rt.sessions.Snapshot()))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	snap := rt.sessions.Snapshot()
	docs, _ := analytics.FilterDocuments(snap.Documents, r.URL.Query().Get("q"))
	if docs == nil {
		docs = []domain.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":    docs,
		"total_chunks": analytics.TotalChunks(snap.Documents),
	})
}

func (rt *Router) getExport(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rc, err := rt.exports.Open(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", exportContentType(key))
	w.Header().Set("Content-Disposition", `attachment; filename="`+key+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("export_stream_failed", "key", key, "error", err)
	}
}

func exportContentType(key string) string {
	switch filepath.Ext(key) {
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
