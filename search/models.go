package search

import "strings"

// Document is one shaped hit from the document index.
type Document struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ArchitectureURL string  `json:"architecture_url"`
	Content         string  `json:"content"`
	Score           float64 `json:"score"`
}

// Response is the stable response contract for both search tools.
type Response struct {
	Documents []Document `json:"documents"`
}

// Request is the payload for a query search.
type Request struct {
	Query string `json:"query"`
}

// ByIDRequest is the payload for a key lookup.
type ByIDRequest struct {
	DocID string `json:"doc_id"`
}

// combinedContent assembles the sectioned content body callers consume, one
// delimited block per populated field.
func combinedContent(name, architectureURL, content string) string {
	var parts []string
	if name != "" {
		parts = append(parts, "=== NAME ===\n"+name+"\n=== END NAME ===")
	}
	if architectureURL != "" {
		parts = append(parts, "=== URL ===\n"+architectureURL+"\n=== END URL ===")
	}
	if content != "" {
		parts = append(parts, "=== CONTENT ===\n"+content+"\n=== END CONTENT ===")
	}
	return strings.Join(parts, "\n\n")
}
