package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

type ClientMetrics struct {
	registry *prometheus.Registry

	callTotal    *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	questionsTotal   *prometheus.CounterVec
	documentsAdded   prometheus.Counter
	feedbackTotal    *prometheus.CounterVec
	sessionDocuments prometheus.Gauge
	sessionQuestions prometheus.Gauge
	sessionRatings   prometheus.Gauge
}

func NewClientMetrics(service string) *ClientMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	callTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "rag",
			Subsystem:   "api",
			Name:        "calls_total",
			Help:        "Remote API calls by operation and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "outcome"},
	)
	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "rag",
			Subsystem:   "api",
			Name:        "call_duration_seconds",
			Help:        "Remote API call duration in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 180},
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	questionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "rag",
			Subsystem:   "session",
			Name:        "questions_total",
			Help:        "Recorded conversations by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	documentsAdded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "rag",
			Subsystem:   "session",
			Name:        "documents_added_total",
			Help:        "Documents registered after a successful upload.",
			ConstLabels: constLabels,
		},
	)
	feedbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "rag",
			Subsystem:   "session",
			Name:        "feedback_total",
			Help:        "Feedback ratings given, including re-ratings.",
			ConstLabels: constLabels,
		},
		[]string{"type"},
	)
	sessionDocuments := newSessionGauge(constLabels, "documents", "Documents currently registered.")
	sessionQuestions := newSessionGauge(constLabels, "conversations", "Conversations currently in the log.")
	sessionRatings := newSessionGauge(constLabels, "ratings", "Conversations currently rated.")

	registry.MustRegister(
		callTotal,
		callDuration,
		questionsTotal,
		documentsAdded,
		feedbackTotal,
		sessionDocuments,
		sessionQuestions,
		sessionRatings,
	)

	return &ClientMetrics{
		registry:         registry,
		callTotal:        callTotal,
		callDuration:     callDuration,
		questionsTotal:   questionsTotal,
		documentsAdded:   documentsAdded,
		feedbackTotal:    feedbackTotal,
		sessionDocuments: sessionDocuments,
		sessionQuestions: sessionQuestions,
		sessionRatings:   sessionRatings,
	}
}

func newSessionGauge(constLabels prometheus.Labels, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "rag",
		Subsystem:   "session",
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	})
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClientMetrics) ObserveCall(operation string, outcome string, seconds float64) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.callTotal.WithLabelValues(operation, outcome).Inc()
	m.callDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveSession is a session subscriber that keeps gauges in line with the
// latest snapshot and counts the events that add data.
func (m *ClientMetrics) ObserveSession(event domain.SessionEvent, snap domain.Snapshot) {
	m.sessionDocuments.Set(float64(len(snap.Documents)))
	m.sessionQuestions.Set(float64(len(snap.Conversations)))
	m.sessionRatings.Set(float64(len(snap.Feedback)))

	switch event.Kind {
	case domain.EventDocumentAdded:
		m.documentsAdded.Inc()
	case domain.EventConversationAppended:
		if n := len(snap.Conversations); n > 0 {
			result := "success"
			if snap.Conversations[n-1].IsError {
				result = "error"
			}
			m.questionsTotal.WithLabelValues(result).Inc()
		}
	case domain.EventFeedbackSet:
		latest, ok := latestFeedback(snap.Feedback)
		if ok {
			m.feedbackTotal.WithLabelValues(string(latest.Type)).Inc()
		}
	}
}

func latestFeedback(feedback map[int]domain.Feedback) (domain.Feedback, bool) {
	var latest domain.Feedback
	found := false
	for _, fb := range feedback {
		if !found || fb.Timestamp.After(latest.Timestamp) {
			latest = fb
			found = true
		}
	}
	return latest, found
}
