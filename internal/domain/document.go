package domain

import "time"

// Document is the core entity flowing through the pipeline: a single post or
// article fetched from a feed, fingerprinted, and driven through the
// classification stages.
type Document struct {
	PostID      string
	Source      string
	Title       string
	Content     string
	URL         string
	PublishedAt time.Time
	FetchedAt   time.Time

	// Simhash is the 64-bit near-duplicate fingerprint computed at ingestion.
	Simhash uint64

	Status         Status
	Relevance      *bool
	RelevanceScore float64
	Category       string
	Subcategory    string
	Confidence     float64

	ErrorCount int
	LastError  string
	Delivered  bool
	UpdatedAt  time.Time
}

// Text returns the title and body joined the way every downstream consumer
// (fingerprinting, token estimation, prompts) sees the document.
func (d Document) Text() string {
	switch {
	case d.Title == "":
		return d.Content
	case d.Content == "":
		return d.Title
	default:
		return d.Title + " " + d.Content
	}
}
