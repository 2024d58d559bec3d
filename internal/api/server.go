// Package api exposes the price pipeline over HTTP. Handlers only decode
// requests, call the service and map errors to status codes.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"jssprz/pricewatcher/internal/bgg"
	"jssprz/pricewatcher/internal/render"
	"jssprz/pricewatcher/internal/scraper"
	"jssprz/pricewatcher/internal/storage"
	"jssprz/pricewatcher/logger"
	"jssprz/pricewatcher/pkg/errors"
)

// PriceScraper runs one on-demand scrape
type PriceScraper interface {
	ScrapeAndInsertExternalPrice(ctx context.Context, variantID, rawURL string) (*scraper.Result, error)
}

// BoardGames is the read-only BGG surface
type BoardGames interface {
	Thing(ctx context.Context, ids []string, stats bool) ([]bgg.Thing, error)
	Search(ctx context.Context, query string, exact bool) ([]bgg.SearchResult, error)
	Hot(ctx context.Context, kind string) ([]bgg.HotItem, error)
}

// Options configures the HTTP adapter
type Options struct {
	// RateLimit is the allowed requests per second per client IP
	RateLimit      float64
	AllowedOrigins []string
	// BGG is optional; its routes are not registered when nil
	BGG BoardGames
}

// Server is the HTTP adapter
type Server struct {
	scraper PriceScraper
	repo    storage.Repository
	bgg     BoardGames
	log     *logger.Logger
	handler http.Handler
}

// NewServer wires routes and middleware
func NewServer(s PriceScraper, repo storage.Repository, opts Options) *Server {
	srv := &Server{
		scraper: s,
		repo:    repo,
		bgg:     opts.BGG,
		log:     logger.ForAPI(),
	}

	r := mux.NewRouter()
	r.Use(srv.loggingMiddleware)
	r.Use(rateLimitMiddleware(opts.RateLimit))

	r.HandleFunc("/health", srv.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/variants/{id}/scrape-price", srv.scrapePrice).Methods(http.MethodPost)
	api.HandleFunc("/variants/{id}/prices", srv.latestPrices).Methods(http.MethodGet)
	api.HandleFunc("/variants/{id}/stores/{storeId}/history", srv.history).Methods(http.MethodGet)

	if srv.bgg != nil {
		api.HandleFunc("/bgg/search", srv.bggSearch).Methods(http.MethodGet)
		api.HandleFunc("/bgg/things", srv.bggThings).Methods(http.MethodGet)
		api.HandleFunc("/bgg/hot", srv.bggHot).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	srv.handler = c.Handler(r)
	return srv
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP adapter listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	OK     bool            `json:"ok"`
	Result *scraper.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Type   string          `json:"type,omitempty"`
}

func (s *Server) scrapePrice(w http.ResponseWriter, r *http.Request) {
	variantID := mux.Vars(r)["id"]

	var req scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, scrapeResponse{
			Error: "invalid request body",
			Type:  string(errors.ErrorTypeValidation),
		})
		return
	}

	result, err := s.scraper.ScrapeAndInsertExternalPrice(r.Context(), variantID, req.URL)
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusServiceUnavailable {
			if wait := render.RetryAfter(err); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
			}
		}
		if status >= http.StatusInternalServerError {
			s.log.Error().Err(err).Str("variant_id", variantID).Str("url", req.URL).Msg("Scrape failed")
		}
		writeJSON(w, status, scrapeResponse{
			Result: result,
			Error:  err.Error(),
			Type:   string(errors.TypeOf(err)),
		})
		return
	}

	writeJSON(w, http.StatusOK, scrapeResponse{OK: true, Result: result})
}

func (s *Server) latestPrices(w http.ResponseWriter, r *http.Request) {
	observations, err := s.repo.LatestForVariant(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load latest prices")
		writeError(w, http.StatusInternalServerError, "failed to load prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "observations": observations})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	observations, err := s.repo.History(r.Context(), vars["id"], vars["storeId"])
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load price history")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "observations": observations})
}

func (s *Server) bggSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("q")) == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	results, err := s.bgg.Search(r.Context(), q.Get("q"), q.Get("exact") == "1")
	s.writeBGG(w, results, err)
}

func (s *Server) bggThings(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	things, err := s.bgg.Thing(r.Context(), ids, r.URL.Query().Get("stats") == "1")
	s.writeBGG(w, things, err)
}

func (s *Server) bggHot(w http.ResponseWriter, r *http.Request) {
	items, err := s.bgg.Hot(r.Context(), r.URL.Query().Get("type"))
	s.writeBGG(w, items, err)
}

func (s *Server) writeBGG(w http.ResponseWriter, items any, err error) {
	if err != nil {
		s.log.Error().Err(err).Msg("BGG request failed")
		writeError(w, http.StatusBadGateway, "boardgamegeek request failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// StatusFor maps a pipeline error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.IsType(err, errors.ErrorTypeValidation):
		return http.StatusBadRequest
	case errors.IsType(err, errors.ErrorTypeConfiguration):
		return http.StatusNotFound
	case errors.IsType(err, errors.ErrorTypeStorage):
		return http.StatusInternalServerError
	case errors.IsType(err, errors.ErrorTypeNotFound):
		return http.StatusUnprocessableEntity
	case errors.IsType(err, errors.ErrorTypeNavigation):
		return http.StatusBadGateway
	case errors.IsType(err, errors.ErrorTypeRateLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func rateLimitMiddleware(perSecond float64) mux.MiddlewareFunc {
	lmt := tollbooth.NewLimiter(perSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if httpErr := tollbooth.LimitByKeys(lmt, []string{clientIP(r)}); httpErr != nil {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if r.URL.Path == "/health" {
			return
		}
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}
