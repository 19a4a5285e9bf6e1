package feeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/scanner"
)

const userAgent = "NewsFlow/1.0"

// RSSScanner polls RSS and Atom feeds and extracts documents newer than the
// requested cutoff.
type RSSScanner struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewRSSScanner wires an HTTP client; a nil client gets a 30s-timeout default.
func NewRSSScanner(client *http.Client) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RSSScanner{client: client, parser: gofeed.NewParser()}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan downloads the feed and returns its items published after req.Since,
// oldest first as the feed lists them.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Document, error) {
	if req.Source.FeedURL == "" {
		return nil, fmt.Errorf("source %s has no feed url", req.Source.ID)
	}

	feed, err := s.fetchFeed(ctx, req.Source.FeedURL)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	docs := make([]domain.Document, 0, len(feed.Items))
	seen := map[string]struct{}{}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		publishedAt := itemTime(item, now)
		if !req.Since.IsZero() && publishedAt.Before(req.Since) {
			continue
		}

		doc := domain.Document{
			PostID:      itemID(req.Source.ID, item),
			Source:      req.Source.ID,
			Title:       strings.TrimSpace(item.Title),
			Content:     itemContent(item),
			URL:         strings.TrimSpace(item.Link),
			PublishedAt: publishedAt,
			FetchedAt:   now,
			Status:      domain.StatusPending,
		}

		if _, ok := seen[doc.PostID]; ok {
			continue
		}
		seen[doc.PostID] = struct{}{}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (s *RSSScanner) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

func itemID(sourceID string, item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	sum := sha256.Sum256([]byte(sourceID + "|" + item.Link + "|" + item.Title))
	return hex.EncodeToString(sum[:16])
}

func itemTime(item *gofeed.Item, fallback time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return fallback
}

func itemContent(item *gofeed.Item) string {
	raw := item.Content
	if strings.TrimSpace(raw) == "" {
		raw = item.Description
	}
	return StripHTML(raw)
}

// StripHTML reduces feed HTML to plain text. Malformed markup degrades to the
// raw string rather than an error.
func StripHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "<") {
		return raw
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	text := doc.Text()
	return strings.Join(strings.Fields(text), " ")
}
