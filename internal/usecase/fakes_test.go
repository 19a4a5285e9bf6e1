package usecase

import (
	"context"
	"sync"
	"time"

	"NewsFlow/internal/domain"
	"NewsFlow/internal/ports"
)

// fakeStore satisfies both ports.DocumentStore and the state machine's
// narrower Store interface.
type fakeStore struct {
	mu sync.Mutex

	recent     []domain.Document
	inserted   []domain.Document
	relCands   []domain.Document
	catCands   []domain.Document
	digestDocs []domain.Document

	claims      map[string]domain.Status
	relevance   map[string]bool
	scores      map[string]float64
	categories  map[string]string
	failures    map[string]string
	attempts    map[string]int
	delivered   []string
	reclaimed   int64
	insertCalls int
	insertErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:     map[string]domain.Status{},
		relevance:  map[string]bool{},
		scores:     map[string]float64{},
		categories: map[string]string{},
		failures:   map[string]string{},
		attempts:   map[string]int{},
	}
}

func (s *fakeStore) InsertPending(_ context.Context, docs []domain.Document) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertCalls++
	if err := s.insertErr; err != nil {
		s.insertErr = nil
		return 0, err
	}
	s.inserted = append(s.inserted, docs...)
	return len(docs), nil
}

func (s *fakeStore) RecentDocuments(context.Context, time.Time, int) ([]domain.Document, error) {
	return s.recent, nil
}

func (s *fakeStore) RelevanceCandidates(context.Context, int, time.Time, int) ([]domain.Document, error) {
	return s.relCands, nil
}

func (s *fakeStore) CategorizationCandidates(context.Context, int, time.Time, int) ([]domain.Document, error) {
	return s.catCands, nil
}

func (s *fakeStore) ClaimForStage(_ context.Context, ids []string, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.claims[id] = to
	}
	return nil
}

func (s *fakeStore) SaveRelevance(_ context.Context, postID string, relevant bool, score float64, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relevance[postID] = relevant
	s.scores[postID] = score
	s.claims[postID] = to
	return nil
}

func (s *fakeStore) SaveCategories(_ context.Context, postID, category, _ string, _ float64, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[postID] = category
	s.claims[postID] = to
	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, postID, message string, countAttempt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[postID] = message
	if countAttempt {
		s.attempts[postID]++
	}
	return nil
}

func (s *fakeStore) ReclaimStale(context.Context, time.Time) (int64, error) {
	return s.reclaimed, nil
}

func (s *fakeStore) ProcessedForDigest(context.Context, time.Time, int) ([]domain.Document, error) {
	return s.digestDocs, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, ids...)
	return nil
}

func (s *fakeStore) StatusCounts(context.Context) (map[domain.Status]int, error) {
	return map[domain.Status]int{}, nil
}

type fakeCatalog struct {
	sources   []domain.Source
	successes []string
	fails     []string
}

func (c *fakeCatalog) UpsertSources(context.Context, []domain.Source) error { return nil }

func (c *fakeCatalog) ListActiveSources(context.Context) ([]domain.Source, error) {
	return c.sources, nil
}

func (c *fakeCatalog) RecordSourceSuccess(_ context.Context, id string) error {
	c.successes = append(c.successes, id)
	return nil
}

func (c *fakeCatalog) RecordSourceFailure(_ context.Context, id string, _ int) error {
	c.fails = append(c.fails, id)
	return nil
}

type fakeSource struct {
	results []ports.SourceResult
}

func (f *fakeSource) FetchSince(context.Context, []domain.Source, time.Time) []ports.SourceResult {
	return f.results
}

// fakeClassifier returns scripted outcomes, consuming one error per call
// while errs lasts.
type fakeClassifier struct {
	errs       []error
	relevance  map[string]ports.RelevanceResult
	categories map[string]ports.CategoryResult
	summary    string
	calls      int
}

func (f *fakeClassifier) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeClassifier) EvaluateRelevance(context.Context, []domain.Document, bool) (map[string]ports.RelevanceResult, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.relevance, nil
}

func (f *fakeClassifier) Categorize(context.Context, []domain.Document, bool) (map[string]ports.CategoryResult, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.categories, nil
}

func (f *fakeClassifier) Summarize(context.Context, []domain.Document) (string, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return "", err
	}
	return f.summary, nil
}

type fakeRotator struct {
	canRotate bool
	rotations int
}

func (f *fakeRotator) Rotate() bool {
	if !f.canRotate {
		return false
	}
	f.rotations++
	return true
}

type fakeNotifier struct {
	published []string
	err       error
}

func (f *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, digest)
	return nil
}

type fakeScheduler struct {
	jobs    map[string]string
	started bool
	stopped bool
}

func (f *fakeScheduler) Schedule(name, spec string, _ func(context.Context)) error {
	if f.jobs == nil {
		f.jobs = map[string]string{}
	}
	f.jobs[name] = spec
	return nil
}

func (f *fakeScheduler) Start(context.Context) error {
	f.started = true
	return nil
}

func (f *fakeScheduler) Stop(context.Context) error {
	f.stopped = true
	return nil
}
