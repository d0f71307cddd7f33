package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/queue"
	"github.com/aridsondez/queuestore/internal/queue/store"
)

// Server exposes health, metrics and read-only queue inspection. It is an
// operator surface, not a queue client protocol.
type Server struct {
	store   store.Store
	addr    string
	timeout time.Duration
	log     zerolog.Logger
}

func NewServer(addr string, s store.Store, log zerolog.Logger) *http.Server {
	srv := &Server{
		store:   s,
		addr:    addr,
		timeout: 5 * time.Second,
		log:     log.With().Str("component", "api").Logger(),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(srv.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(srv.timeout))

	r.Get("/healthz", srv.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		// list: GET /admin/queues
		r.Get("/queues", srv.handleListQueues)

		// get: GET /admin/queues/{queue}
		r.Get("/queues/{queue}", srv.handleGetQueue)
	})

	return &http.Server{
		Addr:              srv.addr,
		Handler:           r,
		ReadHeaderTimeout: srv.timeout,
	}
}

type queueResponse struct {
	Name                           string `json:"name"`
	DefaultVisibilityTimeoutMillis int64  `json:"default_visibility_timeout_ms"`
}

func toResponse(q queue.Queue) queueResponse {
	return queueResponse{
		Name:                           q.Name,
		DefaultVisibilityTimeoutMillis: q.DefaultVisibilityTimeout.Milliseconds(),
	}
}

// ---------- Handlers ----------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		httpError(w, http.StatusServiceUnavailable, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	qs, err := s.store.ListQueues(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "list queues failed: %v", err)
		return
	}
	resp := make([]queueResponse, 0, len(qs))
	for _, q := range qs {
		resp = append(resp, toResponse(q))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	if name == "" {
		httpError(w, http.StatusBadRequest, "missing queue path param")
		return
	}
	q, ok, err := s.store.LookupQueue(r.Context(), name)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "lookup queue failed: %v", err)
		return
	}
	if !ok {
		httpError(w, http.StatusNotFound, "queue %q not found", name)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(q))
}

// ---------- helpers ----------

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.RequestURI()).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
