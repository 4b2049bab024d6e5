package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchscout/internal/config"
	dbRedis "github.com/kailas-cloud/searchscout/internal/db/redis"
	"github.com/kailas-cloud/searchscout/internal/domain"
	logpkg "github.com/kailas-cloud/searchscout/internal/logger"
	"github.com/kailas-cloud/searchscout/internal/metrics"
	budgetrepo "github.com/kailas-cloud/searchscout/internal/repository/budget"
	"github.com/kailas-cloud/searchscout/internal/repository/embcache"
	windowrepo "github.com/kailas-cloud/searchscout/internal/repository/window"
	chiTransport "github.com/kailas-cloud/searchscout/internal/transport/chi"
	openaiLLM "github.com/kailas-cloud/searchscout/internal/transport/openai"
	"github.com/kailas-cloud/searchscout/internal/transport/searxng"
	aiuc "github.com/kailas-cloud/searchscout/internal/usecase/ai"
	"github.com/kailas-cloud/searchscout/internal/usecase/citation"
	"github.com/kailas-cloud/searchscout/internal/usecase/enrich"
	"github.com/kailas-cloud/searchscout/internal/usecase/extract"
	healthuc "github.com/kailas-cloud/searchscout/internal/usecase/health"
	"github.com/kailas-cloud/searchscout/internal/usecase/quota"
	"github.com/kailas-cloud/searchscout/internal/usecase/ratelimit"
	searchuc "github.com/kailas-cloud/searchscout/internal/usecase/search"
	usageuc "github.com/kailas-cloud/searchscout/internal/usecase/usage"
	"github.com/kailas-cloud/searchscout/internal/version"
)

const providerOpenAI = "openai"

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchscout API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("searxng_url", cfg.Search.SearxngURL),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Bool("ai_enabled", cfg.AI.Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Search backend
	backend, err := searxng.NewClient(cfg.Search.SearxngURL,
		time.Duration(cfg.Search.TimeoutSec)*time.Second, logger.Named("searxng"))
	if err != nil {
		logger.Fatal("Invalid search backend", zap.Error(err))
	}
	if err := backend.HealthCheck(ctx); err != nil {
		logger.Warn("SearXNG not reachable at startup, continuing", zap.Error(err))
	} else {
		logger.Info("Connected to SearXNG")
	}

	extractor := extract.New(extract.Config{
		Timeout:          time.Duration(cfg.Extract.TimeoutSec) * time.Second,
		MaxContentLength: cfg.Extract.MaxContentLength,
		UserAgent:        cfg.Extract.UserAgent,
		MaxConcurrency:   cfg.Pipeline.MaxConcurrency,
	}, logger.Named("extract")).WithMetrics(metrics.ExtractionTotal, metrics.ExtractionDuration)

	// Shared store: rate windows (redis backend), token budget counters, embedding cache.
	var store *dbRedis.Store
	if len(cfg.Database.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Addrs))
	}

	// Language model. Pass nil interfaces (not typed nil pointers) when AI is disabled.
	var (
		model     domain.LanguageModel
		aiChecker healthuc.Checker
		budgetRdr usageuc.BudgetReader
	)
	if cfg.AI.Enabled() {
		llm := openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:            cfg.AI.APIKey,
			BaseURL:           cfg.AI.BaseURL,
			SummaryModel:      cfg.AI.SummaryModel,
			EmbeddingModel:    cfg.AI.EmbeddingModel,
			Timeout:           time.Duration(cfg.AI.TimeoutSec) * time.Second,
			RequestsPerMinute: cfg.AI.RequestsPerMinute,
			Burst:             cfg.AI.Burst,
			Logger:            logger.Named("openai"),
		})
		model, aiChecker = llm, llm

		if cfg.AI.EmbeddingCache.Enabled && store != nil {
			model = embcache.New(model, store, cfg.AI.EmbeddingModel,
				time.Duration(cfg.AI.EmbeddingCache.TTLSec)*time.Second,
				metrics.EmbeddingCacheTotal, logger.Named("embcache"))
			logger.Info("Embedding cache enabled")
		}

		tracker := quota.NewTracker(providerOpenAI, cfg.AI.Budget.DailyTokens, cfg.AI.Budget.MonthlyTokens,
			quota.Action(cfg.AI.Budget.Action), logger.Named("budget"))
		if store != nil {
			tracker.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
		model = quota.NewMeteredModel(model, providerOpenAI, tracker, logger.Named("budget"))
		budgetRdr = tracker
	}
	augmenter := aiuc.New(model, cfg.AI.Threshold(), logger.Named("ai"))

	// Rate gate
	var (
		gate          searchuc.Gate
		windowsPinger healthuc.Pinger
	)
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		gate = ratelimit.NewSharedGate(windowrepo.New(store), cfg.RateLimit.PerMinute, logger.Named("ratelimit")).
			WithMetrics(metrics.RateLimitDecisionsTotal)
	default:
		memGate := ratelimit.NewGate(cfg.RateLimit.PerMinute, logger.Named("ratelimit")).
			WithSweep(
				time.Duration(cfg.RateLimit.SweepIntervalSec)*time.Second,
				time.Duration(cfg.RateLimit.RetentionSec)*time.Second,
			).
			WithMetrics(metrics.RateLimitDecisionsTotal)
		go memGate.Run(ctx)
		gate = memGate
	}
	if store != nil {
		windowsPinger = store
	}

	// Use case services
	searchSvc := searchuc.New(searchuc.Deps{
		Backend:   backend,
		Extractor: extractor,
		Enricher:  enrich.NewDefault(),
		Citations: citation.NewDefault(),
		AI:        augmenter,
		Gate:      gate,
	}, searchuc.Config{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		ExtractTimeout: time.Duration(cfg.Extract.TimeoutSec) * time.Second,
	}, logger.Named("search")).WithMetrics(metrics.EnrichedResultsTotal, metrics.DedupDroppedTotal)

	healthSvc := healthuc.New(backend, aiChecker, windowsPinger)
	usageSvc := usageuc.New(budgetRdr)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, backend, usageSvc, healthSvc, chiTransport.Limits{
		DefaultResults: cfg.Search.DefaultResults,
		MaxResults:     cfg.Search.MaxResults,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		ExposedHeaders: []string{
			"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
			"X-AI-Tokens",
		},
		MaxAge: 300,
	}))
	r.Use(chiTransport.APIKeyMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	chiTransport.HandlerWithOptions(server, chiTransport.ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: chiTransport.WriteBindError,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:      chiTransport.ErrorCodeInternalError,
						Message:   "internal error",
						RequestID: chiMiddleware.GetReqID(r.Context()),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.Query().Get("q")),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
