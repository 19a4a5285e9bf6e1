package batch

import (
	"sort"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/fingerprint"
)

// Order selects the priority key used to sort candidates before filling.
type Order string

const (
	// OrderOldestFirst processes the longest-waiting documents first.
	OrderOldestFirst Order = "oldest"
	// OrderSourcePriority prefers documents from higher-priority sources,
	// oldest first within a source.
	OrderSourcePriority Order = "source"
)

// Batch is an ephemeral, ordered group of documents submitted together to one
// classifier call. Membership is decided once at formation time; a document
// that does not fit starts the next batch.
type Batch struct {
	Documents       []domain.Document
	EstimatedTokens int
	// Oversized marks a single document whose own estimate exceeds the
	// usable budget. The downstream consumer truncates it; it is never
	// silently dropped.
	Oversized bool

	centroid fingerprint.Vector
}

// Config tunes batch formation.
type Config struct {
	// TokenBudget is the hard per-call input limit.
	TokenBudget int
	// SafetyReserve is subtracted from the budget to absorb estimator
	// under-counting. The summed estimate never exceeds budget − reserve.
	SafetyReserve int
	// TopicThreshold, when positive, closes the current batch as soon as a
	// candidate's similarity to the batch centroid falls below it.
	TopicThreshold float64
	// Order is the candidate priority key.
	Order Order
	// SourcePriority maps source names to priorities for OrderSourcePriority.
	SourcePriority map[string]int
}

func (c Config) withDefaults() Config {
	if c.TokenBudget <= 0 {
		c.TokenBudget = 27000
	}
	if c.SafetyReserve <= 0 {
		c.SafetyReserve = 2000
	}
	if c.Order == "" {
		c.Order = OrderOldestFirst
	}
	return c
}

// Builder forms token-bounded batches from stage candidates.
type Builder struct {
	cfg       Config
	estimator Estimator
}

// NewBuilder constructs a batch builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

// Build sorts the candidates by the configured priority key and greedily
// fills batches while the summed token estimate stays under the usable budget
// (budget minus safety reserve). With a topic threshold configured, the batch
// also closes when the next candidate strays from the batch centroid, budget
// notwithstanding.
func (b *Builder) Build(candidates []domain.Document) []Batch {
	if len(candidates) == 0 {
		return nil
	}

	docs := make([]domain.Document, len(candidates))
	copy(docs, candidates)
	b.sortCandidates(docs)

	usable := b.cfg.TokenBudget - b.cfg.SafetyReserve

	var vectors []fingerprint.Vector
	if b.cfg.TopicThreshold > 0 {
		vectors = vectorizeSet(docs)
	}

	var (
		batches []Batch
		current Batch
	)
	flush := func() {
		if len(current.Documents) > 0 {
			batches = append(batches, current)
		}
		current = Batch{}
	}

	for i, doc := range docs {
		tokens := b.estimator.EstimateDocument(doc)

		if tokens > usable {
			// The document does not fit even alone: emit it as an
			// explicitly flagged oversized batch.
			flush()
			batches = append(batches, Batch{
				Documents:       []domain.Document{doc},
				EstimatedTokens: tokens,
				Oversized:       true,
			})
			continue
		}

		if current.EstimatedTokens+tokens > usable {
			flush()
		}

		if b.cfg.TopicThreshold > 0 && len(current.Documents) > 0 {
			if fingerprint.Cosine(vectors[i], current.centroid) < b.cfg.TopicThreshold {
				flush()
			}
		}

		current.Documents = append(current.Documents, doc)
		current.EstimatedTokens += tokens
		if b.cfg.TopicThreshold > 0 {
			current.centroid = mergeCentroid(current.centroid, vectors[i], len(current.Documents))
		}
	}
	flush()

	return batches
}

func (b *Builder) sortCandidates(docs []domain.Document) {
	switch b.cfg.Order {
	case OrderSourcePriority:
		sort.SliceStable(docs, func(i, j int) bool {
			pi := b.cfg.SourcePriority[docs[i].Source]
			pj := b.cfg.SourcePriority[docs[j].Source]
			if pi != pj {
				return pi > pj
			}
			return docs[i].PublishedAt.Before(docs[j].PublishedAt)
		})
	default:
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].PublishedAt.Before(docs[j].PublishedAt)
		})
	}
}

// vectorizeSet computes TF-IDF vectors with document frequencies taken from
// the candidate set itself; centroid comparisons only need to be internally
// consistent.
func vectorizeSet(docs []domain.Document) []fingerprint.Vector {
	termFreqs := make([]map[string]int, len(docs))
	docFreq := make(map[string]int)
	for i, doc := range docs {
		termFreqs[i] = fingerprint.TermFrequencies(doc.Text())
		for term := range termFreqs[i] {
			docFreq[term]++
		}
	}

	vectors := make([]fingerprint.Vector, len(docs))
	for i := range docs {
		vectors[i] = fingerprint.Vectorize(termFreqs[i], docFreq, len(docs))
	}
	return vectors
}

// mergeCentroid folds the n-th member vector into the running mean.
func mergeCentroid(centroid, v fingerprint.Vector, n int) fingerprint.Vector {
	if n <= 1 || len(centroid) == 0 {
		out := make(fingerprint.Vector, len(v))
		for term, w := range v {
			out[term] = w
		}
		return out
	}

	prev := float64(n-1) / float64(n)
	next := 1 / float64(n)
	out := make(fingerprint.Vector, len(centroid)+len(v))
	for term, w := range centroid {
		out[term] = w * prev
	}
	for term, w := range v {
		out[term] += w * next
	}
	return out
}
