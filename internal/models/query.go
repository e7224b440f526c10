package models

import (
	"fmt"
	"strings"
)

// AskRequest is the body of POST /ask/.
type AskRequest struct {
	Query string `json:"query"`
}

// Validate trims the query and rejects an empty one.
func (r *AskRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// AskResponse is the success body of POST /ask/.
type AskResponse struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Answer is the outcome of one question, with the chunks it was grounded on.
type Answer struct {
	Query   string          `json:"query"`
	Text    string          `json:"answer"`
	Sources []*SearchResult `json:"sources,omitempty"`
}
