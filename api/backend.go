package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rhombus-tech/POC4/core"
)

// BackendServer serves a single core.Backend with the endpoints a
// regions.Client expects: POST /execute, GET /attestations, GET /health.
type BackendServer struct {
	log     logging.Logger
	router  *chi.Mux
	backend core.Backend
	addr    string
}

// NewBackendServer requires a bearer token on every route when token is
// non-empty.
func NewBackendServer(addr string, backend core.Backend, token string, log logging.Logger) *BackendServer {
	s := &BackendServer{
		log:     log,
		router:  chi.NewRouter(),
		backend: backend,
		addr:    addr,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(loggingMiddleware(log))
	s.router.Use(metricsMiddleware)
	if token != "" {
		s.router.Use(bearerAuth(token))
	}

	s.router.Post("/execute", s.handleExecute)
	s.router.Get("/attestations", s.handleAttestations)
	s.router.Get("/health", s.handleHealth)
	return s
}

func (s *BackendServer) Router() *chi.Mux {
	return s.router
}

func (s *BackendServer) Run(ctx context.Context) error {
	return serve(ctx, s.addr, s.router, s.log)
}

func (s *BackendServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var payload core.ExecutionPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.backend.Execute(r.Context(), &payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *BackendServer) handleAttestations(w http.ResponseWriter, r *http.Request) {
	atts, err := s.backend.Attestations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, atts)
}

func (s *BackendServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, err := s.backend.HealthCheck(r.Context())
	switch {
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
	case !healthy:
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
	default:
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
