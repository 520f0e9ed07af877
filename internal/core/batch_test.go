package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse/internal/engagement"
)

type fakeHarvester struct {
	mu       sync.Mutex
	payloads map[string]engagement.RawPayload
	failures map[string]error
	calls    []string
}

func (f *fakeHarvester) Harvest(_ context.Context, url string) (engagement.RawPayload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.failures[url]; ok {
		return engagement.RawPayload{}, err
	}
	return f.payloads[url], nil
}

type memStore struct {
	mu         sync.Mutex
	nextBatch  int
	results    map[int][]savedResult
	grandTotal map[int]int64
}

type savedResult struct {
	url string
	m   engagement.Metrics
}

func newMemStore() *memStore {
	return &memStore{
		results:    map[int][]savedResult{},
		grandTotal: map[int]int64{},
	}
}

func (s *memStore) CreateBatch(_ context.Context, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBatch++
	return s.nextBatch, nil
}

func (s *memStore) SaveResult(_ context.Context, batchID int, url string, m engagement.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[batchID] = append(s.results[batchID], savedResult{url: url, m: m})
	return nil
}

func (s *memStore) FinishBatch(_ context.Context, id int, grandTotal int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grandTotal[id] = grandTotal
	return nil
}

func TestScrapeBatchIsolatesFailures(t *testing.T) {
	const (
		urlA = "https://www.facebook.com/a/posts/1"
		urlB = "https://www.facebook.com/b/posts/2"
		urlC = "https://www.facebook.com/c/posts/3"
	)
	h := &fakeHarvester{
		payloads: map[string]engagement.RawPayload{
			urlA: {AggregateReactionCandidates: []string{"375"}, CommentCountTexts: []string{"20"}, ShareCountTexts: []string{"5"}},
			urlC: {ItemizedReactionLabels: []string{"Like: 100 people", "Love: 50 people"}},
		},
		failures: map[string]error{
			urlB: errors.New("navigate: context deadline exceeded"),
		},
	}
	st := newMemStore()
	svc := NewBatchService(st, h)

	batchID, results, grandTotal, err := svc.ScrapeBatch(context.Background(), []string{urlA, urlB, urlC})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Submission order preserved.
	assert.Equal(t, urlA, results[0].URL)
	assert.Equal(t, urlB, results[1].URL)
	assert.Equal(t, urlC, results[2].URL)

	assert.Equal(t, engagement.StatusOK, results[0].Status)
	assert.Equal(t, 400, results[0].Total)

	// The failing URL yields exactly one collection_failed record and does
	// not disturb its neighbors.
	assert.Equal(t, engagement.StatusCollectionFailed, results[1].Status)
	assert.NotEmpty(t, results[1].FailureReason)
	assert.Zero(t, results[1].Total)

	assert.Equal(t, engagement.StatusOK, results[2].Status)
	assert.Equal(t, 150, results[2].Likes)

	assert.Equal(t, int64(550), grandTotal, "failed URL contributes zero")
	assert.Equal(t, int64(550), st.grandTotal[batchID])
	assert.Len(t, st.results[batchID], 3)
}

func TestScrapeBatchNormalizesAndDeduplicates(t *testing.T) {
	h := &fakeHarvester{
		payloads: map[string]engagement.RawPayload{
			"https://www.facebook.com/a/posts/1": {CommentCountTexts: []string{"7"}},
		},
	}
	st := newMemStore()
	svc := NewBatchService(st, h)

	_, results, grandTotal, err := svc.ScrapeBatch(context.Background(), []string{
		"https://m.facebook.com/a/posts/1?fbclid=xyz",
		"  https://www.facebook.com/a/posts/1  ",
		"",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://www.facebook.com/a/posts/1", results[0].URL)
	assert.Equal(t, int64(7), grandTotal)
	assert.Equal(t, []string{"https://www.facebook.com/a/posts/1"}, h.calls)
}

func TestScrapeBatchRejectsEmptyInput(t *testing.T) {
	svc := NewBatchService(newMemStore(), &fakeHarvester{})
	_, _, _, err := svc.ScrapeBatch(context.Background(), []string{"", "   "})
	assert.Error(t, err)
}

func TestScrapeBatchNoSignalStatus(t *testing.T) {
	url := "https://www.facebook.com/a/posts/9"
	h := &fakeHarvester{payloads: map[string]engagement.RawPayload{url: {}}}
	svc := NewBatchService(newMemStore(), h)

	_, results, grandTotal, err := svc.ScrapeBatch(context.Background(), []string{url})
	require.NoError(t, err)
	assert.Equal(t, engagement.StatusNoSignal, results[0].Status)
	assert.Zero(t, grandTotal)
}
