package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"avisflow/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the operational API: checkpoint statistics, batch
// inspection and failed-item triage. It is not the generation data path.
type Server struct {
	checkpoints *usecase.CheckpointStore
	auth        *AuthManager
	apiKey      string
	ready       func(ctx context.Context) error
	log         *zerolog.Logger
}

func NewServer(
	checkpoints *usecase.CheckpointStore,
	auth *AuthManager,
	apiKey string,
	ready func(ctx context.Context) error,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		checkpoints: checkpoints,
		auth:        auth,
		apiKey:      apiKey,
		ready:       ready,
		log:         logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthzHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/auth/session", s.sessionCreateHandler())
	r.Delete("/api/v1/auth/session", s.sessionClearHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/checkpoints/stats", statsHandler(s.checkpoints))
		r.Get("/api/v1/batches", batchesListHandler(s.checkpoints))
		r.Get("/api/v1/failed-items", failedItemsListHandler(s.checkpoints))
		r.Post("/api/v1/failed-items/{id}/retry", itemRetryHandler(s.checkpoints))
		r.Post("/api/v1/failed-items/{id}/resolve", itemResolveHandler(s.checkpoints))
	})
	return r
}

// authMiddleware admits either the static operator API key or a session
// token minted by the auth manager.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("ops API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if hdr := r.Header.Get("Authorization"); hdr != "" {
			parts := strings.SplitN(hdr, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
				return
			}
			if parts[1] == s.apiKey {
				next.ServeHTTP(w, r)
				return
			}
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.ready(ctx); err != nil {
				s.log.Warn().Err(err).Msg("healthz probe failed")
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

type sessionCreateRequest struct {
	APIKey string `json:"api_key"`
}

// sessionCreateHandler exchanges the static API key for a short-lived
// session token so browser tooling does not have to hold the key.
func (s *Server) sessionCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || s.apiKey == "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		var req sessionCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.APIKey != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			s.log.Error().Err(err).Msg("mint session token")
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"token": token})
	}
}

func (s *Server) sessionClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			s.auth.Clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
