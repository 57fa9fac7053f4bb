package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aiguard/proxy/internal/config"
	"github.com/aiguard/proxy/pkg/registry"
)

// Server holds the HTTP server dependencies: the top-level router plus an
// AdminRouter sub-router for the authenticated /_api/* management surface.
// The proxy's own catch-all handler (pkg/pipeline.Pipeline) is mounted by
// the caller directly on Router, since it must see every path and method.
type Server struct {
	Router      *chi.Mux
	AdminRouter chi.Router
	Logger      *slog.Logger
	Mongo       *mongo.Client
	Redis       *redis.Client
	startedAt   time.Time
}

// NewServer creates an HTTP server with ambient middleware and health/ready/
// metrics endpoints mounted. Domain routers (pat, user, project, audit) are
// mounted on AdminRouter by the caller; the proxy handler is mounted
// directly on Router after this call returns.
func NewServer(cfg *config.Config, logger *slog.Logger, mongoClient *mongo.Client, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Mongo:     mongoClient,
		Redis:     rdb,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-AI-Guard-Provider", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/health", s.handleHealthz)
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/ready", s.handleReadyz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.AdminRouter = chi.NewRouter()
	s.Router.Mount("/_api", s.AdminRouter)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.Mongo.Ping(ctx, nil); err != nil {
		s.Logger.Error("readiness check: mongo ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	providers := make([]string, 0, len(registry.All()))
	for _, e := range registry.All() {
		providers = append(providers, string(e.Tag))
	}
	Respond(w, http.StatusOK, map[string]any{"status": "ready", "providers": providers})
}
