package batch

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsFlow/internal/domain"
)

func pendingDoc(id string, age time.Duration, content string) domain.Document {
	return domain.Document{
		PostID:      id,
		Source:      "feed-a",
		Content:     content,
		PublishedAt: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

// Fifty ~100-token documents against a 4000-token budget must split into
// exactly two batches, both under budget minus the safety reserve.
func TestBuildSplitsFiftyDocumentsIntoTwoBatches(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{TokenBudget: 4000, SafetyReserve: 100})

	// ~380 latin chars of content put each framed document near 100 tokens.
	content := strings.Repeat("steady news flow ", 22)
	docs := make([]domain.Document, 0, 50)
	for i := 0; i < 50; i++ {
		docs = append(docs, pendingDoc(fmt.Sprintf("p%02d", i), time.Duration(50-i)*time.Minute, content))
	}

	batches := b.Build(docs)
	require.Len(t, batches, 2)

	var members int
	for _, batch := range batches {
		assert.LessOrEqual(t, batch.EstimatedTokens, 4000-100)
		assert.False(t, batch.Oversized)
		members += len(batch.Documents)
	}
	assert.Equal(t, 50, members, "no document may be dropped")
	assert.Greater(t, len(batches[0].Documents), len(batches[1].Documents))
}

func TestBuildNeverExceedsUsableBudget(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{TokenBudget: 1000, SafetyReserve: 200})
	var e Estimator

	var docs []domain.Document
	for i := 0; i < 30; i++ {
		docs = append(docs, pendingDoc(fmt.Sprintf("p%02d", i), time.Duration(i)*time.Minute,
			strings.Repeat("x", 50+i*37)))
	}

	for _, batch := range b.Build(docs) {
		if batch.Oversized {
			continue
		}
		var sum int
		for _, doc := range batch.Documents {
			sum += e.EstimateDocument(doc)
		}
		assert.LessOrEqual(t, sum, 800)
		assert.Equal(t, sum, batch.EstimatedTokens)
	}
}

func TestBuildOldestFirstOrdering(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{TokenBudget: 100000, SafetyReserve: 1000})
	docs := []domain.Document{
		pendingDoc("young", time.Hour, "recent story content here"),
		pendingDoc("old", 48*time.Hour, "stale story content here"),
		pendingDoc("middle", 12*time.Hour, "middling story content here"),
	}

	batches := b.Build(docs)
	require.Len(t, batches, 1)
	ids := []string{batches[0].Documents[0].PostID, batches[0].Documents[1].PostID, batches[0].Documents[2].PostID}
	assert.Equal(t, []string{"old", "middle", "young"}, ids)
}

func TestBuildSourcePriorityOrdering(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{
		TokenBudget:    100000,
		SafetyReserve:  1000,
		Order:          OrderSourcePriority,
		SourcePriority: map[string]int{"wire": 10, "blog": 1},
	})

	low := pendingDoc("low", 48*time.Hour, "blog content")
	low.Source = "blog"
	high := pendingDoc("high", time.Hour, "wire content")
	high.Source = "wire"

	batches := b.Build([]domain.Document{low, high})
	require.Len(t, batches, 1)
	assert.Equal(t, "high", batches[0].Documents[0].PostID)
}

func TestBuildOversizedDocumentGetsOwnFlaggedBatch(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{TokenBudget: 500, SafetyReserve: 100})

	giant := pendingDoc("giant", 2*time.Hour, strings.Repeat("verybigstory ", 400))
	small := pendingDoc("small", time.Hour, strings.Repeat("tiny story ", 10))

	batches := b.Build([]domain.Document{giant, small})
	require.Len(t, batches, 2)

	assert.True(t, batches[0].Oversized)
	assert.Equal(t, "giant", batches[0].Documents[0].PostID)
	assert.Greater(t, batches[0].EstimatedTokens, 400)

	assert.False(t, batches[1].Oversized)
	assert.Equal(t, "small", batches[1].Documents[0].PostID)
}

func TestBuildTopicThresholdSplitsIncoherentBatch(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{TokenBudget: 100000, SafetyReserve: 1000, TopicThreshold: 0.3})

	finance1 := pendingDoc("f1", 4*time.Hour, strings.Repeat("bank market shares funding investors capital ", 5))
	finance2 := pendingDoc("f2", 3*time.Hour, strings.Repeat("bank market profits funding investors dividend ", 5))
	sports := pendingDoc("s1", 2*time.Hour, strings.Repeat("hockey goal championship overtime shootout arena ", 5))

	batches := b.Build([]domain.Document{finance1, finance2, sports})
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Documents, 2)
	assert.Equal(t, "s1", batches[1].Documents[0].PostID)
}

func TestBuildEmptyInput(t *testing.T) {
	t.Parallel()

	b := NewBuilder(Config{})
	assert.Nil(t, b.Build(nil))
}
