package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"NewsFlow/internal/batch"
	"NewsFlow/internal/config"
	"NewsFlow/internal/domain"
	"NewsFlow/internal/pipeerr"
	"NewsFlow/internal/ports"
)

const (
	stageRelevance  = "relevance"
	stageCategorize = "categorize"
	stageSummarize  = "summarize"

	// Content cap applied when a document alone exceeds the batch budget.
	truncatedContentChars = 12000
)

// Client implements ports.Classifier backed by OpenAI-compatible chat APIs.
// Every call is rate limited, audited, and mapped onto the pipeline error
// taxonomy so the coordinator can rotate keys and schedule retries.
type Client struct {
	endpoint    string
	model       string
	temperature float64
	topics      string
	categories  map[string][]string
	keys        *KeyRing
	httpClient  *http.Client
	limiter     *rate.Limiter
	audit       ports.AuditLog
	estimator   batch.Estimator
	logger      *slog.Logger
}

var _ ports.Classifier = (*Client)(nil)

// NewClient builds a classifier client from configuration.
func NewClient(cfg config.LLMConfig, class config.ClassificationConfig, keys *KeyRing, audit ports.AuditLog, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	perMin := cfg.RequestsPerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topics:      class.RelevanceTopics,
		categories:  class.Categories,
		keys:        keys,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1),
		audit:       audit,
		logger:      log,
	}
}

// EvaluateRelevance asks the model whether each document matches the
// configured topics. Documents missing from the response map were skipped by
// the model and stay retryable.
func (c *Client) EvaluateRelevance(ctx context.Context, docs []domain.Document, truncate bool) (map[string]ports.RelevanceResult, error) {
	system := fmt.Sprintf(
		"You are a news relevance filter. The topics of interest are: %s. "+
			"For every document respond with a JSON array of objects "+
			`{"post_id": string, "relevant": bool, "score": number between 0 and 1}. `+
			"Echo each post_id exactly as given. Output only the JSON array.",
		c.topics)

	content, err := c.call(ctx, stageRelevance, system, renderDocuments(docs, truncate), len(docs))
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		PostID   string  `json:"post_id"`
		Relevant bool    `json:"relevant"`
		Score    float64 `json:"score"`
	}
	if err := decodeJSONArray(content, &parsed); err != nil {
		return nil, &pipeerr.ClassifierError{Kind: pipeerr.Malformed, Err: err}
	}

	results := make(map[string]ports.RelevanceResult, len(parsed))
	for _, item := range parsed {
		if item.PostID == "" {
			continue
		}
		results[item.PostID] = ports.RelevanceResult{Relevant: item.Relevant, Score: item.Score}
	}
	return results, nil
}

// Categorize assigns each document a category and subcategory from the
// configured taxonomy.
func (c *Client) Categorize(ctx context.Context, docs []domain.Document, truncate bool) (map[string]ports.CategoryResult, error) {
	system := fmt.Sprintf(
		"You are a news categorizer. Assign each document one category and one subcategory "+
			"from this taxonomy:\n%s\n"+
			"For every document respond with a JSON array of objects "+
			`{"post_id": string, "category": string, "subcategory": string, "confidence": number between 0 and 1}. `+
			"Echo each post_id exactly as given. Output only the JSON array.",
		renderTaxonomy(c.categories))

	content, err := c.call(ctx, stageCategorize, system, renderDocuments(docs, truncate), len(docs))
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		PostID      string  `json:"post_id"`
		Category    string  `json:"category"`
		Subcategory string  `json:"subcategory"`
		Confidence  float64 `json:"confidence"`
	}
	if err := decodeJSONArray(content, &parsed); err != nil {
		return nil, &pipeerr.ClassifierError{Kind: pipeerr.Malformed, Err: err}
	}

	results := make(map[string]ports.CategoryResult, len(parsed))
	for _, item := range parsed {
		if item.PostID == "" || item.Category == "" {
			continue
		}
		results[item.PostID] = ports.CategoryResult{
			Category:    item.Category,
			Subcategory: item.Subcategory,
			Confidence:  item.Confidence,
		}
	}
	return results, nil
}

// Summarize produces a short digest text covering the given documents.
func (c *Client) Summarize(ctx context.Context, docs []domain.Document) (string, error) {
	system := "You are a news editor. Write a concise digest of the documents below, " +
		"grouped by category, a few sentences per group, plain text suitable for a chat message. " +
		"Mention the source of each highlighted story."

	content, err := c.call(ctx, stageSummarize, system, renderDocuments(docs, true), len(docs))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) call(ctx context.Context, stage, system, user string, docCount int) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Transient, Err: errors.New("classifier client misconfigured")}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Transient, Err: err}
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	})
	if err != nil {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Transient, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	key, keyLabel := c.keys.Current()
	started := time.Now()

	record := domain.AIRequest{
		ID:              uuid.NewString(),
		Stage:           stage,
		Model:           c.model,
		KeyLabel:        keyLabel,
		DocumentCount:   docCount,
		PromptChars:     len(system) + len(user),
		EstimatedTokens: c.estimator.EstimateText(system + user),
		CreatedAt:       started.UTC(),
	}

	content, callErr := c.complete(ctx, key, body)

	record.Latency = time.Since(started)
	record.ResponseChars = len(content)
	if callErr != nil {
		record.Outcome = domain.AIOutcomeError
		record.Error = callErr.Error()
	} else {
		record.Outcome = domain.AIOutcomeSuccess
	}
	c.recordAudit(ctx, record)

	return content, callErr
}

func (c *Client) complete(ctx context.Context, key string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Transient, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Transient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		reason := fmt.Errorf("provider returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
		return "", &pipeerr.ClassifierError{Kind: classifyStatus(resp.StatusCode), Err: reason}
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Malformed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(payload.Choices) == 0 {
		return "", &pipeerr.ClassifierError{Kind: pipeerr.Malformed, Err: errors.New("response carries no choices")}
	}

	return payload.Choices[0].Message.Content, nil
}

func (c *Client) recordAudit(ctx context.Context, record domain.AIRequest) {
	if c.audit == nil {
		return
	}
	if err := c.audit.RecordAIRequest(ctx, record); err != nil && c.logger != nil {
		c.logger.Warn("audit record failed", "stage", record.Stage, "error", err)
	}
}

func classifyStatus(code int) pipeerr.ClassifierErrorKind {
	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusPaymentRequired:
		return pipeerr.Quota
	default:
		return pipeerr.Transient
	}
}

func renderDocuments(docs []domain.Document, truncate bool) string {
	var b strings.Builder
	for i, doc := range docs {
		if truncate && len(doc.Content) > truncatedContentChars {
			doc.Content = capBytes(doc.Content, truncatedContentChars)
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(batch.FrameDocument(doc))
	}
	return b.String()
}

// capBytes cuts s to at most max bytes without splitting a rune.
func capBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func renderTaxonomy(categories map[string][]string) string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		if subs := categories[name]; len(subs) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(subs, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// decodeJSONArray extracts the first JSON array in content, tolerating prose
// and code fences around it.
func decodeJSONArray(content string, v any) error {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON array in response")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("parse JSON array: %w", err)
	}
	return nil
}
