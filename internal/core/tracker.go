package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/observability"
	"github.com/postpulse/postpulse/internal/store"
)

// TrackerStore is the slice of the store the re-scrape loop needs.
type TrackerStore interface {
	ListPosts(ctx context.Context, limit, offset int) ([]store.Post, int, error)
	MarkPostScraped(ctx context.Context, id int, status string) error
	SaveSnapshot(ctx context.Context, postID int, m engagement.Metrics) error
	DeleteOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TrackerService periodically re-scrapes tracked posts, recording one
// snapshot per pass, and prunes snapshots past retention.
type TrackerService struct {
	store   TrackerStore
	batches *BatchService
}

func NewTrackerService(trackerStore TrackerStore, batches *BatchService) *TrackerService {
	return &TrackerService{store: trackerStore, batches: batches}
}

func (t *TrackerService) Start(ctx context.Context) {
	go t.scrapeLoop(ctx, 30*time.Minute)
	go t.cleanupLoop(ctx, 24*time.Hour, 30*24*time.Hour)
}

func (t *TrackerService) scrapeLoop(ctx context.Context, interval time.Duration) {
	t.scrapeOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scrapeOnce(ctx)
		}
	}
}

const trackerPageSize = 200

// scrapeOnce visits every tracked post exactly once. Marking a post scraped
// rotates it to the back of the listing order, so each iteration refetches
// the front page; the seen set keeps the loop finite when marking fails.
func (t *TrackerService) scrapeOnce(ctx context.Context) {
	seen := make(map[int]struct{})
	for {
		posts, _, err := t.store.ListPosts(ctx, trackerPageSize, 0)
		if err != nil {
			slog.Error("tracker: failed to list posts", "error", err)
			return
		}

		progress := false
		for _, post := range posts {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}
			progress = true

			m := t.batches.scrapeOne(ctx, post.URL)
			if err := t.store.SaveSnapshot(ctx, post.ID, m); err != nil {
				slog.Error("tracker: failed to save snapshot", "post", post.ID, "error", err)
			}
			if err := t.store.MarkPostScraped(ctx, post.ID, string(m.Status)); err != nil {
				slog.Error("tracker: failed to mark post scraped", "post", post.ID, "error", err)
			}
		}
		if !progress || len(posts) < trackerPageSize {
			return
		}
	}
}

func (t *TrackerService) cleanupLoop(ctx context.Context, interval, retention time.Duration) {
	t.cleanup(ctx, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanup(ctx, retention)
		}
	}
}

func (t *TrackerService) cleanup(ctx context.Context, retention time.Duration) {
	deleted, err := t.store.DeleteOldSnapshots(ctx, retention)
	if err != nil {
		observability.IncError(observability.ErrorUnknown, "tracker")
		slog.Error("tracker: snapshot cleanup failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("tracker: snapshot cleanup", "deleted", deleted)
	}
}
