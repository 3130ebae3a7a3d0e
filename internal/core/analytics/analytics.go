// Package analytics derives usage figures from a session snapshot.
package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
)

const recentLimit = 3

type ScopeCount struct {
	Scope string `json:"scope"`
	Count int    `json:"count"`
}

// Summary holds every figure shown on the analytics view. Optional values are
// nil when there is nothing to average over.
type Summary struct {
	TotalConversations  int                   `json:"total_conversations"`
	TotalDocuments      int                   `json:"total_documents"`
	TotalChunks         int                   `json:"total_chunks"`
	AverageAnswerWords  *float64              `json:"average_answer_words,omitempty"`
	ScopeCounts         []ScopeCount          `json:"scope_counts"`
	PositiveFeedback    int                   `json:"positive_feedback"`
	NegativeFeedback    int                   `json:"negative_feedback"`
	Satisfaction        *float64              `json:"satisfaction,omitempty"`
	RecentConversations []domain.Conversation `json:"recent_conversations"`
	RecentDocuments     []domain.Document     `json:"recent_documents"`
}

func Summarize(snap domain.Snapshot) Summary {
	positive, negative := FeedbackCounts(snap.Feedback)
	return Summary{
		TotalConversations:  len(snap.Conversations),
		TotalDocuments:      len(snap.Documents),
		TotalChunks:         TotalChunks(snap.Documents),
		AverageAnswerWords:  AverageAnswerWords(snap.Conversations),
		ScopeCounts:         ScopeCounts(snap.Conversations),
		PositiveFeedback:    positive,
		NegativeFeedback:    negative,
		Satisfaction:        Satisfaction(snap.Feedback),
		RecentConversations: RecentConversations(snap.Conversations),
		RecentDocuments:     RecentDocuments(snap.Documents),
	}
}

func TotalChunks(docs []domain.Document) int {
	total := 0
	for _, doc := range docs {
		total += doc.ChunkCount
	}
	return total
}

func AverageAnswerWords(convs []domain.Conversation) *float64 {
	if len(convs) == 0 {
		return nil
	}
	words := 0
	for _, conv := range convs {
		words += len(strings.Fields(conv.Answer))
	}
	avg := float64(words) / float64(len(convs))
	return &avg
}

// ScopeCounts counts conversations per searched scope, most used first.
func ScopeCounts(convs []domain.Conversation) []ScopeCount {
	counts := make(map[string]int)
	for _, conv := range convs {
		scope := conv.DocumentScope
		if scope == "" {
			scope = domain.AllDocumentsScope
		}
		counts[scope]++
	}
	out := make([]ScopeCount, 0, len(counts))
	for scope, count := range counts {
		out = append(out, ScopeCount{Scope: scope, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

func FeedbackCounts(feedback map[int]domain.Feedback) (positive, negative int) {
	for _, fb := range feedback {
		switch fb.Type {
		case domain.FeedbackGood:
			positive++
		case domain.FeedbackBad:
			negative++
		}
	}
	return positive, negative
}

// Satisfaction is the share of good ratings in percent, nil without ratings.
func Satisfaction(feedback map[int]domain.Feedback) *float64 {
	positive, negative := FeedbackCounts(feedback)
	total := positive + negative
	if total == 0 {
		return nil
	}
	pct := float64(positive) / float64(total) * 100
	return &pct
}

// RecentConversations returns up to three latest conversations, newest first.
func RecentConversations(convs []domain.Conversation) []domain.Conversation {
	n := min(len(convs), recentLimit)
	out := make([]domain.Conversation, 0, n)
	for i := len(convs) - 1; i >= len(convs)-n; i-- {
		out = append(out, convs[i])
	}
	return out
}

func RecentDocuments(docs []domain.Document) []domain.Document {
	n := min(len(docs), recentLimit)
	out := make([]domain.Document, 0, n)
	for i := len(docs) - 1; i >= len(docs)-n; i-- {
		out = append(out, docs[i])
	}
	return out
}

// FilterDocuments keeps documents whose name contains query, ignoring case.
// The original indexes are returned alongside so callers can address them.
func FilterDocuments(docs []domain.Document, query string) ([]domain.Document, []int) {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Document, 0, len(docs))
	indexes := make([]int, 0, len(docs))
	for i, doc := range docs {
		if query == "" || strings.Contains(strings.ToLower(doc.Name), query) {
			out = append(out, doc)
			indexes = append(indexes, i)
		}
	}
	return out, indexes
}

// FormatPercent renders an optional percentage with two decimals.
func FormatPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func FormatAverage(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}
