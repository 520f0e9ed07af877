package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse/internal/core"
	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/store"
)

type fakeScraper struct {
	lastURLs []string
	err      error
}

func (f *fakeScraper) ScrapeBatch(_ context.Context, urls []string) (int, []core.URLResult, int64, error) {
	f.lastURLs = urls
	if f.err != nil {
		return 0, nil, 0, f.err
	}
	results := []core.URLResult{
		{URL: urls[0], Metrics: engagement.Metrics{Likes: 1200, Comments: 34, Shares: 5, Total: 1239, Status: engagement.StatusOK}},
		{URL: "https://www.facebook.com/x/posts/2", Metrics: engagement.Metrics{Status: engagement.StatusNoSignal}},
	}
	return 7, results, 1239, nil
}

type fakeStore struct {
	posts   []store.Post
	batches []store.Batch
}

func (f *fakeStore) ListBatches(_ context.Context, limit, offset int) ([]store.Batch, int, error) {
	return f.batches, len(f.batches), nil
}

func (f *fakeStore) GetBatch(_ context.Context, id int) (store.Batch, []store.Result, error) {
	for _, b := range f.batches {
		if b.ID == id {
			return b, []store.Result{{BatchID: id, URL: "https://www.facebook.com/x/posts/1", Total: 10, Status: "ok"}}, nil
		}
	}
	return store.Batch{}, nil, fmt.Errorf("no batch %d", id)
}

func (f *fakeStore) ListPosts(_ context.Context, limit, offset int) ([]store.Post, int, error) {
	return f.posts, len(f.posts), nil
}

func (f *fakeStore) AddPost(_ context.Context, url, postType string) (int, bool, error) {
	for _, p := range f.posts {
		if p.URL == url {
			return p.ID, true, nil
		}
	}
	p := store.Post{ID: len(f.posts) + 1, URL: url, PostType: postType}
	f.posts = append(f.posts, p)
	return p.ID, false, nil
}

func (f *fakeStore) DeletePost(_ context.Context, id int) error {
	for i, p := range f.posts {
		if p.ID == id {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestServer() (*Server, *fakeScraper, *fakeStore) {
	scraper := &fakeScraper{}
	st := &fakeStore{}
	return NewServer(st, scraper), scraper, st
}

func TestHandleScrapeBatch(t *testing.T) {
	srv, scraper, _ := newTestServer()

	body := `{"urls": ["https://www.facebook.com/x/posts/1", "https://www.facebook.com/x/posts/2"]}`
	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, scraper.lastURLs, 2)

	var resp struct {
		BatchID           int    `json:"batch_id"`
		GrandTotal        int64  `json:"grand_total"`
		GrandTotalDisplay string `json:"grand_total_display"`
		Results           []struct {
			URL          string `json:"url"`
			Total        int    `json:"total"`
			Status       string `json:"status"`
			TotalDisplay string `json:"total_display"`
			Uncertain    bool   `json:"uncertain"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.BatchID)
	assert.Equal(t, int64(1239), resp.GrandTotal)
	assert.Equal(t, "1,239", resp.GrandTotalDisplay)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "1,239", resp.Results[0].TotalDisplay)
	assert.False(t, resp.Results[0].Uncertain)
	assert.Equal(t, "no_signal", resp.Results[1].Status)
	assert.True(t, resp.Results[1].Uncertain, "no_signal must surface as uncertain, not a confirmed zero")
}

func TestHandleScrapeBatchRejectsEmptyBody(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(`{"urls": []}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScrapeBatchNoScrapeableURLsIsClientError(t *testing.T) {
	srv, scraper, _ := newTestServer()
	scraper.err = core.ErrNoScrapeableURLs

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(`{"urls": ["not a url"]}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleScrapeBatchStoreFailureIsServerError(t *testing.T) {
	srv, scraper, _ := newTestServer()
	scraper.err = fmt.Errorf("create batch: %w", errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(`{"urls": ["https://www.facebook.com/x/posts/1"]}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleTrackPostNormalizesURL(t *testing.T) {
	srv, _, st := newTestServer()

	body := `{"url": "https://m.facebook.com/someone/posts/123?fbclid=abc"}`
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		URL     string `json:"url"`
		Existed bool   `json:"existed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://www.facebook.com/someone/posts/123", resp.URL)
	assert.False(t, resp.Existed)
	require.Len(t, st.posts, 1)
	assert.Equal(t, "permalink", st.posts[0].PostType)
}

func TestHandleTrackPostRejectsUnsupportedHost(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"url": "https://example.com/foo"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetBatchNotFound(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/batches/99", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
