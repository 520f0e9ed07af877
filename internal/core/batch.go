package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/harvest"
	"github.com/postpulse/postpulse/internal/observability"
	"github.com/postpulse/postpulse/internal/urlutil"
)

// BatchStore is the slice of the store the batch service writes through.
type BatchStore interface {
	CreateBatch(ctx context.Context, urlCount int) (int, error)
	SaveResult(ctx context.Context, batchID int, url string, m engagement.Metrics) error
	FinishBatch(ctx context.Context, id int, grandTotal int64) error
}

// URLResult pairs one submitted URL with its resolved metrics.
type URLResult struct {
	URL string `json:"url"`
	engagement.Metrics
}

const defaultBatchWorkers = 4

// ErrNoScrapeableURLs reports a submission whose URLs were all empty,
// malformed, or unsupported. The only ScrapeBatch error that is the
// caller's fault.
var ErrNoScrapeableURLs = errors.New("no scrapeable urls in batch")

// BatchService scrapes a submitted list of post URLs. Every URL is handled
// in isolation: a page that cannot be collected yields exactly one
// collection_failed record and never aborts the rest of the batch.
type BatchService struct {
	store     BatchStore
	harvester harvest.Harvester
	workers   int
}

func NewBatchService(store BatchStore, harvester harvest.Harvester) *BatchService {
	return &BatchService{
		store:     store,
		harvester: harvester,
		workers:   defaultBatchWorkers,
	}
}

// ScrapeBatch harvests and resolves every URL, persists the batch, and
// returns results in submission order plus the grand total across them.
// Collection failures contribute zero to the grand total.
func (s *BatchService) ScrapeBatch(ctx context.Context, urls []string) (int, []URLResult, int64, error) {
	cleaned := cleanURLs(urls)
	if len(cleaned) == 0 {
		return 0, nil, 0, ErrNoScrapeableURLs
	}

	batchID, err := s.store.CreateBatch(ctx, len(cleaned))
	if err != nil {
		return 0, nil, 0, fmt.Errorf("create batch: %w", err)
	}

	results := make([]URLResult, len(cleaned))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, u := range cleaned {
		g.Go(func() error {
			results[i] = URLResult{URL: u, Metrics: s.scrapeOne(gctx, u)}
			return nil
		})
	}
	// Workers never return errors; failures are encoded per result.
	_ = g.Wait()

	var grandTotal int64
	for _, r := range results {
		grandTotal += int64(r.Total)
		if err := s.store.SaveResult(ctx, batchID, r.URL, r.Metrics); err != nil {
			slog.Error("batch: failed to save result", "batch", batchID, "url", r.URL, "error", err)
		}
	}
	if err := s.store.FinishBatch(ctx, batchID, grandTotal); err != nil {
		slog.Error("batch: failed to finish batch", "batch", batchID, "error", err)
	}

	return batchID, results, grandTotal, nil
}

// scrapeOne harvests a single URL and resolves its payload. All failure is
// folded into the returned metrics record.
func (s *BatchService) scrapeOne(ctx context.Context, url string) engagement.Metrics {
	start := time.Now()
	payload, err := s.harvester.Harvest(ctx, url)
	if err != nil {
		kind := observability.ClassifyHarvestError(err)
		observability.IncError(kind, "batch")
		observability.IncCollectionFailure()
		slog.Warn("batch: collection failed", "url", url, "kind", kind, "error", err)
		return engagement.CollectionFailure(fmt.Sprintf("%s: %v", kind, err))
	}
	observability.ObserveHarvestDuration("batch", time.Since(start).Seconds())

	m := engagement.Resolve(payload)
	observability.IncPayloadsResolved(string(m.Status))
	return m
}

func cleanURLs(urls []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		normalized, _, err := urlutil.Normalize(raw)
		if err != nil || !urlutil.IsHarvestable(normalized) {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
