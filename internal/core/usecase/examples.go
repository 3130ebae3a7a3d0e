package usecase

import (
	"fmt"

	"github.com/kirillkom/rag-document-assistant/internal/core/domain"
	"github.com/kirillkom/rag-document-assistant/internal/core/session"
)

type ExampleCategory struct {
	Name      string
	Questions []string
}

var exampleCategories = []ExampleCategory{
	{Name: "Analysis", Questions: []string{
		"What are the main findings?",
		"Summarize the key points",
		"What methodology was used?",
	}},
	{Name: "Details", Questions: []string{
		"List all recommendations",
		"What data sources were referenced?",
		"What metrics are mentioned?",
	}},
	{Name: "Insights", Questions: []string{
		"What are the conclusions?",
		"Explain the main arguments",
		"What limitations are discussed?",
	}},
}

func ExampleCategories() []ExampleCategory {
	out := make([]ExampleCategory, len(exampleCategories))
	for i, category := range exampleCategories {
		out[i] = ExampleCategory{Name: category.Name, Questions: append([]string(nil), category.Questions...)}
	}
	return out
}

// ExampleQuestions flattens the catalogue in display order.
func ExampleQuestions() []string {
	var out []string
	for _, category := range exampleCategories {
		out = append(out, category.Questions...)
	}
	return out
}

// StageExample sets the numbered example (1-based) as the pending question.
func StageExample(sessions *session.Controller, number int) (string, error) {
	questions := ExampleQuestions()
	if number < 1 || number > len(questions) {
		return "", domain.WrapError(domain.ErrInvalidInput, "stage example", fmt.Errorf("example %d out of range 1..%d", number, len(questions)))
	}
	question := questions[number-1]
	sessions.SetPendingQuestion(&question)
	return question, nil
}

func DismissExample(sessions *session.Controller) {
	sessions.SetPendingQuestion(nil)
}
