package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsFlow/internal/domain"
)

type fakeStore struct {
	relevanceCandidates []domain.Document
	categoryCandidates  []domain.Document

	claimedIDs    []string
	claimedTo     domain.Status
	relevanceSets map[string]struct {
		relevant bool
		score    float64
		to       domain.Status
	}
	categorySets map[string]domain.Status
	failures     map[string]string
	reclaimed    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		relevanceSets: map[string]struct {
			relevant bool
			score    float64
			to       domain.Status
		}{},
		categorySets: map[string]domain.Status{},
		failures:     map[string]string{},
	}
}

func (f *fakeStore) RelevanceCandidates(context.Context, int, time.Time, int) ([]domain.Document, error) {
	return f.relevanceCandidates, nil
}

func (f *fakeStore) CategorizationCandidates(context.Context, int, time.Time, int) ([]domain.Document, error) {
	return f.categoryCandidates, nil
}

func (f *fakeStore) ClaimForStage(_ context.Context, ids []string, to domain.Status) error {
	f.claimedIDs = append(f.claimedIDs, ids...)
	f.claimedTo = to
	return nil
}

func (f *fakeStore) SaveRelevance(_ context.Context, postID string, relevant bool, score float64, to domain.Status) error {
	f.relevanceSets[postID] = struct {
		relevant bool
		score    float64
		to       domain.Status
	}{relevant, score, to}
	return nil
}

func (f *fakeStore) SaveCategories(_ context.Context, postID, _, _ string, _ float64, to domain.Status) error {
	f.categorySets[postID] = to
	return nil
}

func (f *fakeStore) RecordFailure(_ context.Context, postID, message string, _ bool) error {
	f.failures[postID] = message
	return nil
}

func (f *fakeStore) ReclaimStale(context.Context, time.Time) (int64, error) {
	return f.reclaimed, nil
}

func testMachine(store Store) *Machine {
	return NewMachine(store, Config{MaxAttempts: 3, StaleAfter: 30 * time.Minute, RelevanceThreshold: 0.5}, nil)
}

func TestCanTransitionTable(t *testing.T) {
	t.Parallel()

	legal := []struct{ from, to domain.Status }{
		{domain.StatusPending, domain.StatusRelevanceChecking},
		{domain.StatusRelevanceChecking, domain.StatusIrrelevant},
		{domain.StatusRelevanceChecking, domain.StatusCategorizing},
		{domain.StatusRelevanceChecking, domain.StatusError},
		{domain.StatusCategorizing, domain.StatusProcessed},
		{domain.StatusCategorizing, domain.StatusError},
		{domain.StatusError, domain.StatusRelevanceChecking},
		{domain.StatusError, domain.StatusCategorizing},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s must be legal", tr.from, tr.to)
	}

	illegal := []struct{ from, to domain.Status }{
		{domain.StatusPending, domain.StatusProcessed},
		{domain.StatusPending, domain.StatusCategorizing},
		{domain.StatusProcessed, domain.StatusPending},
		{domain.StatusProcessed, domain.StatusError},
		{domain.StatusIrrelevant, domain.StatusCategorizing},
		{domain.StatusIrrelevant, domain.StatusRelevanceChecking},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s must be illegal", tr.from, tr.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	t.Parallel()

	for _, s := range []domain.Status{domain.StatusProcessed, domain.StatusIrrelevant} {
		assert.True(t, s.Terminal())
		assert.Empty(t, transitions[s])
	}
}

func TestNextForRelevanceClaimsPendingDocuments(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.relevanceCandidates = []domain.Document{
		{PostID: "a", Status: domain.StatusPending},
		{PostID: "b", Status: domain.StatusError},
		{PostID: "c", Status: domain.StatusProcessed}, // must be skipped
	}

	docs, err := testMachine(store).NextForRelevance(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"a", "b"}, store.claimedIDs)
	assert.Equal(t, domain.StatusRelevanceChecking, store.claimedTo)
	for _, d := range docs {
		assert.Equal(t, domain.StatusRelevanceChecking, d.Status)
	}
}

func TestNextForCategorizationRenewsClaims(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.categoryCandidates = []domain.Document{
		{PostID: "a", Status: domain.StatusCategorizing},
		{PostID: "b", Status: domain.StatusError},
	}

	docs, err := testMachine(store).NextForCategorization(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, domain.StatusCategorizing, store.claimedTo)
}

func TestRecordRelevanceAccepted(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	doc := domain.Document{PostID: "a", Status: domain.StatusRelevanceChecking}

	require.NoError(t, testMachine(store).RecordRelevance(context.Background(), doc, true, 0.9))
	saved := store.relevanceSets["a"]
	assert.True(t, saved.relevant)
	assert.InDelta(t, 0.9, saved.score, 1e-9)
	assert.Equal(t, domain.StatusCategorizing, saved.to)
}

func TestRecordRelevanceBelowThresholdIsIrrelevant(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	doc := domain.Document{PostID: "a", Status: domain.StatusRelevanceChecking}

	require.NoError(t, testMachine(store).RecordRelevance(context.Background(), doc, true, 0.3))
	saved := store.relevanceSets["a"]
	assert.False(t, saved.relevant)
	assert.Equal(t, domain.StatusIrrelevant, saved.to)
}

func TestRecordRelevanceIllegalFromTerminal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	doc := domain.Document{PostID: "a", Status: domain.StatusProcessed}

	err := testMachine(store).RecordRelevance(context.Background(), doc, true, 0.9)
	assert.Error(t, err)
	assert.Empty(t, store.relevanceSets)
}

func TestRecordCategoriesFinishesDocument(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	doc := domain.Document{PostID: "a", Status: domain.StatusCategorizing}

	require.NoError(t, testMachine(store).RecordCategories(context.Background(), doc, "Economy", "Markets", 0.8))
	assert.Equal(t, domain.StatusProcessed, store.categorySets["a"])
}

func TestFailRecordsRetryableError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	doc := domain.Document{PostID: "a", Status: domain.StatusRelevanceChecking}

	require.NoError(t, testMachine(store).Fail(context.Background(), doc, errors.New("timeout")))
	assert.Equal(t, "timeout", store.failures["a"])
}

func TestReclaimStale(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.reclaimed = 4

	n, err := testMachine(store).ReclaimStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
