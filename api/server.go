package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/tee"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 60 * time.Second
	maxBodySize       = 4 << 20
)

// Server exposes the accumulator and the paired executor over HTTP.
// Either dependency may be nil, in which case its routes are not mounted.
type Server struct {
	log         logging.Logger
	router      *chi.Mux
	accumulator *accumulator.Accumulator
	executor    *tee.PairedExecutor
	addr        string
}

func NewServer(addr string, acc *accumulator.Accumulator, executor *tee.PairedExecutor, log logging.Logger) *Server {
	s := &Server{
		log:         log,
		router:      chi.NewRouter(),
		accumulator: acc,
		executor:    executor,
		addr:        addr,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(loggingMiddleware(log))
	s.router.Use(metricsMiddleware)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	if s.accumulator != nil {
		s.router.Route("/v1/accumulator", func(r chi.Router) {
			r.Get("/", s.handleState)
			r.Post("/init", s.handleInit)
			r.Post("/attestations", s.handleRegister)
			r.Post("/verify", s.handleVerify)
			r.Post("/executions/verify", s.handleVerifyExecution)
			r.Get("/executors/{executor}", s.handleExecutor)
		})
	}
	if s.executor != nil {
		s.router.Post("/v1/execute", s.handleExecute)
		s.router.Get("/v1/attestations", s.handleAttestations)
	}
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	return serve(ctx, s.addr, s.router, s.log)
}

func serve(ctx context.Context, addr string, handler http.Handler, log logging.Logger) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down", zap.String("addr", addr))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped", zap.String("addr", addr))
	return nil
}

func loggingMiddleware(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealthz reports 503 when either backend of the pair is down.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.executor != nil {
		if err := s.executor.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
