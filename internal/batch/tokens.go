// Package batch groups documents awaiting a classification stage into
// token-bounded, optionally topic-coherent batches for a single external
// model call.
package batch

import (
	"fmt"
	"unicode"

	"NewsFlow/internal/domain"
)

// Estimator provides a monotonic, size-correlated token estimate. It is a
// heuristic bound, not a tokenizer: Cyrillic-heavy text averages about six
// characters per model token, everything else about four.
type Estimator struct{}

const (
	latinCharsPerToken    = 4
	cyrillicCharsPerToken = 6
)

// EstimateText estimates model tokens for raw text.
func (Estimator) EstimateText(text string) int {
	if text == "" {
		return 0
	}

	var total, cyrillic int
	for _, r := range text {
		total++
		if unicode.Is(unicode.Cyrillic, r) {
			cyrillic++
		}
	}

	if cyrillic*2 > total {
		return total/cyrillicCharsPerToken + 1
	}
	return total/latinCharsPerToken + 1
}

// FrameDocument renders a document exactly the way classifier prompts embed
// it, anchored by the post identifier the model must echo back.
func FrameDocument(doc domain.Document) string {
	return fmt.Sprintf("[POST_ID:%s] [%s] %s\n%s", doc.PostID, doc.Source, doc.Title, doc.Content)
}

// EstimateDocument estimates tokens for a document framed the way the
// classifier prompt renders it.
func (e Estimator) EstimateDocument(doc domain.Document) int {
	return e.EstimateText(FrameDocument(doc))
}
