package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/conorfennell/yomu/internal/srs"
	"github.com/conorfennell/yomu/internal/storage"
)

// Analyzer tokenizes text for the reader.
type Analyzer interface {
	Analyze(text string) []domain.Token
	Engine() string
}

// Definer looks up a gloss for a word. It must not fail.
type Definer interface {
	Lookup(ctx context.Context, word string) string
}

// ArticleFetcher extracts a readable text from a web page.
type ArticleFetcher interface {
	Fetch(ctx context.Context, rawURL string) (domain.Text, error)
}

// Option configures optional parts of a Server.
type Option func(*Server)

// WithReposDir sets where git sources are cloned by POST /sync.
func WithReposDir(dir string) Option {
	return func(s *Server) { s.reposDir = dir }
}

// WithArticles enables POST /articles.
func WithArticles(f ArticleFetcher) Option {
	return func(s *Server) { s.articles = f }
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	analyzer Analyzer
	definer  Definer
	articles ArticleFetcher
	reposDir string
	srs      *srs.Params
	validate *validator.Validate
	router   *http.ServeMux
	handler  http.Handler
	now      func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, analyzer Analyzer, definer Definer, opts ...Option) *Server {
	s := &Server{
		db:       db,
		analyzer: analyzer,
		definer:  definer,
		reposDir: "repos",
		srs:      srs.DefaultParams(),
		validate: validator.New(),
		router:   http.NewServeMux(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.handler = logRequests(allowCORS(s.router))
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /{$}", s.handleStatus())
	s.router.HandleFunc("POST /analyze", s.handleAnalyze())
	s.router.HandleFunc("GET /definition", s.handleDefinition())

	s.router.HandleFunc("POST /cards", s.handleCreateCard())
	s.router.HandleFunc("GET /reviews", s.handleGetReviews())
	s.router.HandleFunc("POST /review", s.handlePostReview())

	s.router.HandleFunc("POST /texts", s.handleSaveText())
	s.router.HandleFunc("GET /texts", s.handleListTexts())
	s.router.HandleFunc("GET /texts/{id}", s.handleGetText())
	s.router.HandleFunc("DELETE /texts/{id}", s.handleDeleteText())
	s.router.HandleFunc("POST /articles", s.handleImportArticle())

	// Source management routes
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

// allowCORS permits every origin, method and header and answers preflights.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			h.Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
