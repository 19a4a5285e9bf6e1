// Package dedup implements the two-stage duplicate gate in front of the
// document store: a cheap simhash Hamming comparison over a bounded recent
// window, then a TF-IDF cosine comparison over a shorter window for the
// paraphrase bursts the coarse stage misses.
package dedup

import (
	"log/slog"
	"time"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/fingerprint"
)

// Config carries the filter thresholds. Zero values fall back to defaults.
type Config struct {
	// WindowSize bounds how many recent documents are remembered.
	WindowSize int
	// CoarseMaxAge bounds the age of fingerprints compared in stage one.
	CoarseMaxAge time.Duration
	// FineMaxAge bounds the age of documents compared in stage two.
	// Paraphrase bursts are time-local, so this window is the shorter one.
	FineMaxAge time.Duration
	// MaxHammingDistance at or below which stage one rejects.
	MaxHammingDistance int
	// MaxCosineSimilarity above which stage two rejects.
	MaxCosineSimilarity float64
	// MinContentLength below which a document is rejected as too thin to
	// compare or classify.
	MinContentLength int
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 2000
	}
	if c.CoarseMaxAge <= 0 {
		c.CoarseMaxAge = 48 * time.Hour
	}
	if c.FineMaxAge <= 0 {
		c.FineMaxAge = 24 * time.Hour
	}
	if c.MaxHammingDistance <= 0 {
		c.MaxHammingDistance = 3
	}
	if c.MaxCosineSimilarity <= 0 {
		c.MaxCosineSimilarity = 0.85
	}
	if c.MinContentLength <= 0 {
		c.MinContentLength = 100
	}
	return c
}

// Stage names reported in verdicts.
const (
	StageLength = "length"
	StageCoarse = "coarse"
	StageFine   = "fine"
)

// Verdict is the outcome of screening one document. A duplicate verdict is an
// expected filter outcome, not an error, and is never persisted.
type Verdict struct {
	Duplicate  bool
	Stage      string
	MatchedID  string
	Distance   int
	Similarity float64
}

// Filter owns the rolling fingerprint window and the TF-IDF corpus state.
// It is not safe for concurrent use; the coordinator's non-overlap rule for
// ingestion runs is the guard.
type Filter struct {
	cfg    Config
	window *window
	now    func() time.Time
	logger *slog.Logger
}

// NewFilter builds the two-stage gate.
func NewFilter(cfg Config, logger *slog.Logger) *Filter {
	cfg = cfg.withDefaults()
	return &Filter{
		cfg:    cfg,
		window: newWindow(cfg.WindowSize, cfg.CoarseMaxAge),
		now:    time.Now,
		logger: logger,
	}
}

// Screen fingerprints the document, runs both stages in order and, when the
// document survives, admits it into the rolling window. The computed simhash
// is written back onto the document either way.
func (f *Filter) Screen(doc *domain.Document) Verdict {
	text := doc.Text()
	doc.Simhash = fingerprint.Simhash(text)

	if len([]rune(text)) < f.cfg.MinContentLength {
		f.debug("rejected short document", "post_id", doc.PostID, "length", len([]rune(text)))
		return Verdict{Duplicate: true, Stage: StageLength}
	}

	now := f.now()
	f.window.pruneExpired(now)

	// Stage one: cheap bit-distance comparison catches exact and
	// near-exact reposts.
	for _, e := range f.window.recent(now, f.cfg.CoarseMaxAge) {
		d := fingerprint.HammingDistance(doc.Simhash, e.simhash)
		if d <= f.cfg.MaxHammingDistance {
			f.debug("coarse duplicate", "post_id", doc.PostID, "matched", e.postID, "distance", d)
			return Verdict{Duplicate: true, Stage: StageCoarse, MatchedID: e.postID, Distance: d}
		}
	}

	// Stage two: cosine similarity over the short window catches rewrites
	// the coarse stage misses.
	terms := fingerprint.TermFrequencies(text)
	vec := f.window.vectorize(terms)
	for _, e := range f.window.recent(now, f.cfg.FineMaxAge) {
		sim := fingerprint.Cosine(vec, f.window.vectorize(e.terms))
		if sim > f.cfg.MaxCosineSimilarity {
			f.debug("fine duplicate", "post_id", doc.PostID, "matched", e.postID, "similarity", sim)
			return Verdict{Duplicate: true, Stage: StageFine, MatchedID: e.postID, Similarity: sim}
		}
	}

	f.window.add(entry{
		postID:  doc.PostID,
		source:  doc.Source,
		simhash: doc.Simhash,
		terms:   terms,
		seenAt:  now,
	}, now)

	return Verdict{}
}

// Warm preloads the window from documents already in the store so a restart
// does not re-admit recent near-duplicates. Documents are expected oldest
// first.
func (f *Filter) Warm(docs []domain.Document) {
	now := f.now()
	for _, doc := range docs {
		seen := doc.FetchedAt
		if seen.IsZero() {
			seen = now
		}
		f.window.add(entry{
			postID:  doc.PostID,
			source:  doc.Source,
			simhash: doc.Simhash,
			terms:   fingerprint.TermFrequencies(doc.Text()),
			seenAt:  seen,
		}, now)
	}
}

// Forget evicts the given documents from the rolling window. Screen admits a
// survivor before it is persisted; when persistence fails the caller rolls the
// admission back here, otherwise the window would reject the same feed item as
// a duplicate of its own lost copy on the next run.
func (f *Filter) Forget(postIDs []string) {
	for _, id := range postIDs {
		f.window.remove(id)
	}
}

// WindowSize reports how many documents the rolling window currently holds.
func (f *Filter) WindowSize() int { return f.window.size() }

// Capacity reports the configured window bound.
func (f *Filter) Capacity() int { return f.cfg.WindowSize }

// CoarseMaxAge reports the configured age bound of the wider window.
func (f *Filter) CoarseMaxAge() time.Duration { return f.cfg.CoarseMaxAge }

func (f *Filter) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
