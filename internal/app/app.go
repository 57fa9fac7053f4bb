// Package app wires configuration, infrastructure connections, and every
// domain package into the running process, and splits "api" (serve HTTP)
// from "worker" (run the counter-rollover scheduler) modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aiguard/proxy/internal/audit"
	"github.com/aiguard/proxy/internal/config"
	"github.com/aiguard/proxy/internal/httpserver"
	"github.com/aiguard/proxy/internal/platform"
	"github.com/aiguard/proxy/internal/rollover"
	"github.com/aiguard/proxy/internal/telemetry"
	"github.com/aiguard/proxy/pkg/authn"
	"github.com/aiguard/proxy/pkg/credential"
	"github.com/aiguard/proxy/pkg/forwarder"
	"github.com/aiguard/proxy/pkg/identity"
	"github.com/aiguard/proxy/pkg/model"
	"github.com/aiguard/proxy/pkg/pat"
	"github.com/aiguard/proxy/pkg/pipeline"
	"github.com/aiguard/proxy/pkg/project"
	"github.com/aiguard/proxy/pkg/ratelimit"
	"github.com/aiguard/proxy/pkg/repo"
	"github.com/aiguard/proxy/pkg/usage"
	"github.com/aiguard/proxy/pkg/user"
	"github.com/aiguard/proxy/pkg/vault"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting aiguard proxy", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	mongoClient, db, err := platform.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("disconnecting mongo", "error", err)
		}
	}()

	store := repo.New(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensuring indexes: %w", err)
	}

	// Shared rate-limit backend is optional: an empty REDIS_URL falls back
	// to the in-process limiter (pkg/ratelimit.LocalBackend).
	var rdb *redis.Client
	var rateBackend ratelimit.Backend
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		rateBackend = ratelimit.NewSharedBackend(rdb, logger)
		logger.Info("rate limiting: shared redis backend")
	} else {
		rateBackend = ratelimit.NewLocalBackend()
		logger.Info("rate limiting: in-process local backend (REDIS_URL not set)")
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, mongoClient, store, rdb, rateBackend, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, store)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, mongoClient *mongo.Client, store *repo.Store, rdb *redis.Client, rateBackend ratelimit.Backend, metricsReg *prometheus.Registry) error {
	v, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("initializing credential vault: %w", err)
	}

	verifier := identity.NewHTTPVerifier(cfg.IdentityVerifierURL)
	validator := authn.New(store, store, verifier)

	credResolver := credential.New(store, v, credential.SystemDefaults{
		model.ProviderOpenAI:    cfg.OpenAIAPIKey,
		model.ProviderAnthropic: cfg.AnthropicAPIKey,
		model.ProviderGemini:    cfg.GeminiAPIKey,
	})

	fwd := forwarder.New(forwarder.Policy{
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})

	usageTracker := usage.New(store, store, logger)
	usageTracker.Start(ctx)
	defer usageTracker.Close()

	auditWriter := audit.NewWriter(store, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	proxyPipeline := &pipeline.Pipeline{
		Validator:      validator,
		RateLimiter:    rateBackend,
		Projects:       store,
		Credentials:    credResolver,
		Forwarder:      fwd,
		Usage:          usageTracker,
		Audit:          auditWriter,
		Logger:         logger,
		MaxRequestSize: cfg.MaxRequestSize,
	}

	srv := httpserver.NewServer(cfg, logger, mongoClient, rdb, metricsReg)

	authFailed := func(w http.ResponseWriter, r *http.Request, err error) {
		httpserver.RespondError(w, http.StatusUnauthorized, "authentication_failed", "authentication failed")
	}

	patHandler := pat.NewHandler(store, auditWriter, logger)
	userHandler := user.NewHandler(store, auditWriter, logger)
	projectHandler := project.NewHandler(store, store, v, auditWriter, logger)
	auditHandler := audit.NewHandler(store, logger)

	srv.AdminRouter.Group(func(ar chi.Router) {
		ar.Use(authn.Middleware(validator, authFailed))
		usersRouter := userHandler.Routes()
		usersRouter.Mount("/tokens", patHandler.Routes())
		ar.Mount("/users", usersRouter)
		ar.Mount("/projects", projectHandler.Routes())
	})

	// /_api/admin/* accepts either the X-Admin-Key override or a PAT
	// carrying the admin scope.
	srv.AdminRouter.Route("/admin", func(ar chi.Router) {
		ar.Use(authn.AdminGuard(validator, cfg.AdminSecretKey, authFailed))
		ar.Mount("/users", userHandler.AdminRoutes())
		ar.Mount("/audit-log", auditHandler.Routes())
	})

	// Every other path/method is a proxied provider call.
	srv.Router.NotFound(proxyPipeline.ServeHTTP)
	srv.Router.MethodNotAllowed(proxyPipeline.ServeHTTP)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses must not be cut off
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *repo.Store) error {
	loc, err := time.LoadLocation(cfg.RateLimitTimezone)
	if err != nil {
		logger.Warn("unknown rate limit timezone, falling back to UTC", "timezone", cfg.RateLimitTimezone, "error", err)
		loc = time.UTC
	}

	logger.Info("worker started", "timezone", loc.String())
	scheduler := rollover.New(store, loc, logger)
	scheduler.Run(ctx)
	return nil
}
