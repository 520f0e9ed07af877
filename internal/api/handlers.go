package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/postpulse/postpulse/internal/core"
	"github.com/postpulse/postpulse/internal/engagement"
	"github.com/postpulse/postpulse/internal/observability"
	"github.com/postpulse/postpulse/internal/store"
	"github.com/postpulse/postpulse/internal/urlutil"
)

type ScrapeBatchRequest struct {
	URLs []string `json:"urls"`
}

type batchResultView struct {
	core.URLResult
	TotalDisplay string `json:"total_display"`
	// Uncertain marks no_signal results: a zero that may mean either no
	// engagement or nothing found, and must not be shown as a confirmed 0.
	Uncertain bool `json:"uncertain"`
}

func (s *Server) handleScrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req ScrapeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "At least one URL is required")
		return
	}

	batchID, results, grandTotal, err := s.scraper.ScrapeBatch(r.Context(), req.URLs)
	if err != nil {
		// Unusable input is the client's fault; anything else (store
		// failures) is ours.
		if errors.Is(err, core.ErrNoScrapeableURLs) {
			respondError(w, http.StatusBadRequest, "No scrapeable URLs in request")
			return
		}
		respondError(w, http.StatusInternalServerError, "Scrape failed: "+err.Error())
		return
	}

	views := make([]batchResultView, 0, len(results))
	for _, res := range results {
		views = append(views, batchResultView{
			URLResult:    res,
			TotalDisplay: s.printer.Sprintf("%d", res.Total),
			Uncertain:    res.Status == engagement.StatusNoSignal,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batch_id":            batchID,
		"results":             views,
		"grand_total":         grandTotal,
		"grand_total_display": s.printer.Sprintf("%d", grandTotal),
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20)

	batches, total, err := s.store.ListBatches(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch batches: "+err.Error())
		return
	}
	if batches == nil {
		batches = []store.Batch{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  batches,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	batch, results, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if results == nil {
		results = []store.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batch":   batch,
		"results": results,
	})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, 20)

	posts, total, err := s.store.ListPosts(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch posts: "+err.Error())
		return
	}
	if posts == nil {
		posts = []store.Post{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  posts,
		"limit":  limit,
		"offset": offset,
		"total":  total,
	})
}

type TrackPostRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleTrackPost(w http.ResponseWriter, r *http.Request) {
	var req TrackPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}

	normalized, host, err := urlutil.Normalize(req.URL)
	if err != nil || !urlutil.IsSupportedHost(host) {
		respondError(w, http.StatusBadRequest, "Not a supported post URL")
		return
	}

	id, existed, err := s.store.AddPost(r.Context(), normalized, urlutil.DetectPostType(normalized))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save post: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"url":     normalized,
		"existed": existed,
	})
}

func (s *Server) handleUntrackPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	if err := s.store.DeletePost(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete post: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, observability.Snapshot())
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
