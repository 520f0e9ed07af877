package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/postpulse/postpulse/internal/engagement"
)

type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RunMigrations(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func clampLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Post is a tracked post URL that the re-scrape loop revisits.
type Post struct {
	ID            int        `json:"id"`
	URL           string     `json:"url"`
	PostType      string     `json:"post_type"`
	AddedAt       time.Time  `json:"added_at"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
	LastStatus    string     `json:"last_status,omitempty"`
}

// Batch is one submitted list of URLs scraped together.
type Batch struct {
	ID          int       `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
	URLCount    int       `json:"url_count"`
	GrandTotal  int64     `json:"grand_total"`
}

// Result is the resolved engagement record for one URL of a batch.
type Result struct {
	ID            int       `json:"id"`
	BatchID       int       `json:"batch_id"`
	URL           string    `json:"url"`
	Likes         int       `json:"likes"`
	Comments      int       `json:"comments"`
	Shares        int       `json:"shares"`
	Total         int       `json:"total"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Store) AddPost(ctx context.Context, url, postType string) (int, bool, error) {
	var (
		id      int
		existed bool
	)
	err := s.db.QueryRowContext(ctx, `
INSERT INTO posts (url, post_type)
VALUES ($1, $2)
ON CONFLICT (url) DO UPDATE SET post_type = EXCLUDED.post_type
RETURNING id, (xmax <> 0)
`, url, postType).Scan(&id, &existed)
	return id, existed, err
}

func (s *Store) ListPosts(ctx context.Context, limit, offset int) ([]Post, int, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, post_type, added_at, last_scraped_at, COALESCE(last_status, '')
FROM posts
ORDER BY last_scraped_at NULLS FIRST, added_at ASC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p           Post
			lastScraped sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.URL, &p.PostType, &p.AddedAt, &lastScraped, &p.LastStatus); err != nil {
			return nil, 0, err
		}
		if lastScraped.Valid {
			t := lastScraped.Time
			p.LastScrapedAt = &t
		}
		posts = append(posts, p)
	}
	return posts, total, rows.Err()
}

func (s *Store) DeletePost(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	return err
}

func (s *Store) MarkPostScraped(ctx context.Context, id int, status string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts
SET last_scraped_at = NOW(), last_status = $2
WHERE id = $1
`, id, status)
	return err
}

func (s *Store) CreateBatch(ctx context.Context, urlCount int) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `
INSERT INTO batches (url_count) VALUES ($1) RETURNING id
`, urlCount).Scan(&id)
	return id, err
}

func (s *Store) FinishBatch(ctx context.Context, id int, grandTotal int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE batches SET grand_total = $2 WHERE id = $1
`, id, grandTotal)
	return err
}

func (s *Store) SaveResult(ctx context.Context, batchID int, url string, m engagement.Metrics) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO results (batch_id, url, likes, comments, shares, total, status, failure_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
`, batchID, url, m.Likes, m.Comments, m.Shares, m.Total, string(m.Status), m.FailureReason)
	return err
}

func (s *Store) GetBatch(ctx context.Context, id int) (Batch, []Result, error) {
	var b Batch
	err := s.db.QueryRowContext(ctx, `
SELECT id, submitted_at, url_count, grand_total FROM batches WHERE id = $1
`, id).Scan(&b.ID, &b.SubmittedAt, &b.URLCount, &b.GrandTotal)
	if err != nil {
		return Batch{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, batch_id, url, likes, comments, shares, total, status, COALESCE(failure_reason, ''), created_at
FROM results
WHERE batch_id = $1
ORDER BY id ASC
`, id)
	if err != nil {
		return Batch{}, nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.BatchID, &r.URL, &r.Likes, &r.Comments, &r.Shares, &r.Total, &r.Status, &r.FailureReason, &r.CreatedAt); err != nil {
			return Batch{}, nil, err
		}
		results = append(results, r)
	}
	return b, results, rows.Err()
}

func (s *Store) ListBatches(ctx context.Context, limit, offset int) ([]Batch, int, error) {
	limit = clampLimit(limit, 20, 200)
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, submitted_at, url_count, grand_total
FROM batches
ORDER BY submitted_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.SubmittedAt, &b.URLCount, &b.GrandTotal); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

func (s *Store) SaveSnapshot(ctx context.Context, postID int, m engagement.Metrics) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots (post_id, likes, comments, shares, total, status, failure_reason)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
`, postID, m.Likes, m.Comments, m.Shares, m.Total, string(m.Status), m.FailureReason)
	return err
}

func (s *Store) DeleteOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM snapshots WHERE scraped_at < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
