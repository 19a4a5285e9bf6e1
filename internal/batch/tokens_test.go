package batch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"NewsFlow/internal/domain"
)

func TestEstimateTextEmpty(t *testing.T) {
	t.Parallel()

	var e Estimator
	assert.Zero(t, e.EstimateText(""))
}

func TestEstimateTextLatinRatio(t *testing.T) {
	t.Parallel()

	var e Estimator
	text := strings.Repeat("word ", 100) // 500 chars
	assert.Equal(t, 500/4+1, e.EstimateText(text))
}

func TestEstimateTextCyrillicRatio(t *testing.T) {
	t.Parallel()

	var e Estimator
	text := strings.Repeat("слово ", 100) // 600 chars, mostly Cyrillic
	assert.Equal(t, 600/6+1, e.EstimateText(text))
}

func TestEstimateTextMonotonic(t *testing.T) {
	t.Parallel()

	var e Estimator
	short := e.EstimateText(strings.Repeat("a", 100))
	long := e.EstimateText(strings.Repeat("a", 1000))
	assert.Greater(t, long, short)
}

func TestEstimateDocumentIncludesFraming(t *testing.T) {
	t.Parallel()

	var e Estimator
	doc := domain.Document{PostID: "p1", Source: "feed", Title: "title", Content: "body"}
	assert.Greater(t, e.EstimateDocument(doc), e.EstimateText("title\nbody"))
}
