package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/postpulse/postpulse/internal/core"
	"github.com/postpulse/postpulse/internal/store"
)

// Scraper runs a batch scrape on demand.
type Scraper interface {
	ScrapeBatch(ctx context.Context, urls []string) (int, []core.URLResult, int64, error)
}

// Store is the slice of persistence the handlers read and write.
type Store interface {
	ListBatches(ctx context.Context, limit, offset int) ([]store.Batch, int, error)
	GetBatch(ctx context.Context, id int) (store.Batch, []store.Result, error)
	ListPosts(ctx context.Context, limit, offset int) ([]store.Post, int, error)
	AddPost(ctx context.Context, url, postType string) (int, bool, error)
	DeletePost(ctx context.Context, id int) error
}

type Server struct {
	router  *chi.Mux
	store   Store
	scraper Scraper
	printer *message.Printer
}

func NewServer(st Store, scraper Scraper) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		store:   st,
		scraper: scraper,
		printer: message.NewPrinter(language.English),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Post("/batches", s.handleScrapeBatch)
	s.router.Get("/batches", s.handleListBatches)
	s.router.Get("/batches/{id}", s.handleGetBatch)
	s.router.Get("/posts", s.handleListPosts)
	s.router.Post("/posts", s.handleTrackPost)
	s.router.Delete("/posts/{id}", s.handleUntrackPost)

	// Serve the submission form UI
	workDir, _ := os.Getwd()
	filesDir := http.Dir(filepath.Join(workDir, "web"))
	FileServer(s.router, "/", filesDir)
}

func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit any URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, r)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
