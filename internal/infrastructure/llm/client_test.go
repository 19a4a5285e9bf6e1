package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsFlow/internal/config"
	"NewsFlow/internal/domain"
	"NewsFlow/internal/pipeerr"
)

type memAudit struct {
	mu      sync.Mutex
	records []domain.AIRequest
}

func (a *memAudit) RecordAIRequest(_ context.Context, req domain.AIRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, req)
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc, audit *memAudit) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.LLMConfig{
		Endpoint:       server.URL,
		Model:          "test-model",
		RequestTimeout: 5 * time.Second,
		RequestsPerMin: 6000,
	}
	class := config.ClassificationConfig{
		RelevanceTopics: "technology news",
		Categories:      map[string][]string{"Technology": {"AI", "Security"}},
	}
	return NewClient(cfg, class, NewKeyRing([]string{"k1", "k2"}), audit, nil)
}

func chatResponse(content string) []byte {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func testDocs() []domain.Document {
	return []domain.Document{
		{PostID: "p1", Source: "wire", Title: "AI chip launch", Content: "a new accelerator"},
		{PostID: "p2", Source: "wire", Title: "Local bake sale", Content: "cookies downtown"},
	}
}

func TestEvaluateRelevanceParsesProseWrappedJSON(t *testing.T) {
	t.Parallel()

	audit := &memAudit{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		content := "Here are the verdicts:\n```json\n" +
			`[{"post_id":"p1","relevant":true,"score":0.92},{"post_id":"p2","relevant":false,"score":0.1}]` +
			"\n```"
		_, _ = w.Write(chatResponse(content))
	}, audit)

	results, err := client.EvaluateRelevance(context.Background(), testDocs(), false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results["p1"].Relevant)
	assert.InDelta(t, 0.92, results["p1"].Score, 1e-9)
	assert.False(t, results["p2"].Relevant)

	require.Len(t, audit.records, 1)
	rec := audit.records[0]
	assert.Equal(t, "relevance", rec.Stage)
	assert.Equal(t, "key-1", rec.KeyLabel)
	assert.Equal(t, 2, rec.DocumentCount)
	assert.Equal(t, domain.AIOutcomeSuccess, rec.Outcome)
	assert.NotEmpty(t, rec.ID)
	assert.Greater(t, rec.PromptChars, 0)
}

func TestCategorizeSkipsEntriesWithoutCategory(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		content := `[{"post_id":"p1","category":"Technology","subcategory":"AI","confidence":0.8},` +
			`{"post_id":"p2","category":"","subcategory":"","confidence":0}]`
		_, _ = w.Write(chatResponse(content))
	}, &memAudit{})

	results, err := client.Categorize(context.Background(), testDocs(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Technology", results["p1"].Category)
	assert.Equal(t, "AI", results["p1"].Subcategory)
}

func TestCallQuotaError(t *testing.T) {
	t.Parallel()

	audit := &memAudit{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}, audit)

	_, err := client.EvaluateRelevance(context.Background(), testDocs(), false)
	require.Error(t, err)
	assert.True(t, pipeerr.IsQuota(err))

	require.Len(t, audit.records, 1)
	assert.Equal(t, domain.AIOutcomeError, audit.records[0].Outcome)
}

func TestCallTransientOnServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}, &memAudit{})

	_, err := client.EvaluateRelevance(context.Background(), testDocs(), false)
	require.Error(t, err)
	assert.False(t, pipeerr.IsQuota(err))
	assert.False(t, pipeerr.IsMalformed(err))
}

func TestCallMalformedOnGarbageContent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatResponse("I cannot help with that."))
	}, &memAudit{})

	_, err := client.EvaluateRelevance(context.Background(), testDocs(), false)
	require.Error(t, err)
	assert.True(t, pipeerr.IsMalformed(err))
}

func TestSummarizeReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatResponse("\n  Today in tech: a new accelerator launched.  \n"))
	}, &memAudit{})

	digest, err := client.Summarize(context.Background(), testDocs())
	require.NoError(t, err)
	assert.Equal(t, "Today in tech: a new accelerator launched.", digest)
}

func TestDecodeJSONArrayRejectsMissingArray(t *testing.T) {
	t.Parallel()

	var v []struct{}
	assert.Error(t, decodeJSONArray("no array here", &v))
	assert.Error(t, decodeJSONArray("] backwards [", &v))
}
