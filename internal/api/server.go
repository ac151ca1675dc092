package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/diogoX451/jackson/internal/api/dto"
	"github.com/diogoX451/jackson/internal/core/ports"
	"github.com/diogoX451/jackson/internal/metrics"
)

// SessionHeader carries the client session id on wiring requests.
const SessionHeader = "X-Jackson-Session"

const version = "0.1.0"

// Server is the HTTP face of the server-side Connector.
type Server struct {
	router    *chi.Mux
	connector ports.Connector
	journal   ports.Journal
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewServer(connector ports.Connector, journal ports.Journal, m *metrics.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		router:    chi.NewRouter(),
		connector: connector,
		journal:   journal,
		metrics:   m,
		log:       log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(accessLog(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Use(jsonContentType)

		r.Get("/health", s.handleHealth)
		r.Get("/init", s.handleInit)
		r.Patch("/connect", s.handleConnect)
		r.Get("/sessions/{id}/connections", s.handleSessionConnections)
	})

	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
	})
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("session", r.Header.Get(SessionHeader)))
		})
	}
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
