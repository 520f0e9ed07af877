package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/store"
)

// memTrackerStore mimics the posts listing: unscraped posts come first,
// scraped ones rotate to the back.
type memTrackerStore struct {
	mu        sync.Mutex
	posts     []store.Post
	scraped   map[int]bool
	snapshots map[int]int
	markFail  bool
	listCalls int
}

func newMemTrackerStore(n int) *memTrackerStore {
	s := &memTrackerStore{
		scraped:   map[int]bool{},
		snapshots: map[int]int{},
	}
	for i := 1; i <= n; i++ {
		s.posts = append(s.posts, store.Post{
			ID:  i,
			URL: fmt.Sprintf("https://www.facebook.com/someone/posts/%d", i),
		})
	}
	return s
}

func (s *memTrackerStore) ListPosts(_ context.Context, limit, offset int) ([]store.Post, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++

	var fresh, done []store.Post
	for _, p := range s.posts {
		if s.scraped[p.ID] {
			done = append(done, p)
		} else {
			fresh = append(fresh, p)
		}
	}
	ordered := append(fresh, done...)
	if offset > len(ordered) {
		offset = len(ordered)
	}
	page := ordered[offset:]
	if len(page) > limit {
		page = page[:limit]
	}
	return page, len(s.posts), nil
}

func (s *memTrackerStore) MarkPostScraped(_ context.Context, id int, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markFail {
		return fmt.Errorf("mark post %d: store down", id)
	}
	s.scraped[id] = true
	return nil
}

func (s *memTrackerStore) SaveSnapshot(_ context.Context, postID int, _ engagement.Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[postID]++
	return nil
}

func (s *memTrackerStore) DeleteOldSnapshots(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func TestScrapeOncePagesThroughAllTrackedPosts(t *testing.T) {
	st := newMemTrackerStore(450)
	batches := NewBatchService(newMemStore(), &fakeHarvester{})
	tr := NewTrackerService(st, batches)

	tr.scrapeOnce(context.Background())

	require.Len(t, st.snapshots, 450, "every tracked post gets a snapshot in one pass")
	for id, n := range st.snapshots {
		assert.Equal(t, 1, n, "post %d scraped once", id)
	}
	assert.GreaterOrEqual(t, st.listCalls, 3)
}

func TestScrapeOnceTerminatesWhenMarkingFails(t *testing.T) {
	st := newMemTrackerStore(450)
	st.markFail = true
	batches := NewBatchService(newMemStore(), &fakeHarvester{})
	tr := NewTrackerService(st, batches)

	done := make(chan struct{})
	go func() {
		tr.scrapeOnce(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scrape pass did not terminate")
	}
	for id, n := range st.snapshots {
		assert.Equal(t, 1, n, "post %d scraped once", id)
	}
}
