package domain

import (
	"encoding/json"
	"time"
)

// AllDocumentsScope tags conversations that were not restricted to one document.
const AllDocumentsScope = "All Documents"

// Source is one cited excerpt. Fields other than content are kept verbatim.
type Source struct {
	Content  string                     `json:"-"`
	Metadata map[string]json.RawMessage `json:"-"`
}

func (s Source) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Metadata)+1)
	for k, v := range s.Metadata {
		out[k] = v
	}
	// A non-string content value was kept raw in Metadata.
	if _, ok := out["content"]; !ok {
		content, err := json.Marshal(s.Content)
		if err != nil {
			return nil, err
		}
		out["content"] = content
	}
	return json.Marshal(out)
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Content = ""
	s.Metadata = nil
	for k, v := range raw {
		if k == "content" {
			var content string
			if err := json.Unmarshal(v, &content); err == nil {
				s.Content = content
				continue
			}
		}
		if s.Metadata == nil {
			s.Metadata = make(map[string]json.RawMessage)
		}
		s.Metadata[k] = v
	}
	return nil
}

type Conversation struct {
	Question      string            `json:"question"`
	Answer        string            `json:"answer"`
	Sources       []Source          `json:"sources"`
	DocumentScope string            `json:"document_searched"`
	QueryParams   map[string]string `json:"query_params,omitempty"`
	IsError       bool              `json:"error"`
	CreatedAt     time.Time         `json:"timestamp"`
}

// Scope restricts a query to one document. A nil *Scope searches everything.
type Scope struct {
	DocumentName string
	DocumentID   string
}

// Label is the value recorded as a conversation's document scope.
func (s *Scope) Label() string {
	if s == nil {
		return AllDocumentsScope
	}
	return s.DocumentName
}

// QueryParams lists the parameters a question is sent with.
func (s *Scope) QueryParams(question string) map[string]string {
	params := map[string]string{"question": question}
	if s == nil {
		return params
	}
	params["document_name"] = s.DocumentName
	params["document_filter"] = s.DocumentName
	if s.DocumentID != "" {
		params["document_id"] = s.DocumentID
	}
	return params
}

type HealthInfo map[string]any

type UploadResponse struct {
	DocumentID  string
	ChunksAdded int
	Raw         json.RawMessage
}

type QueryResponse struct {
	Answer  string
	Sources []Source
	Raw     json.RawMessage
}
