package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/embedkit/ragchat/internal/config"
	"github.com/embedkit/ragchat/internal/db"
	dbRedis "github.com/embedkit/ragchat/internal/db/redis"
	"github.com/embedkit/ragchat/internal/llm"
	logpkg "github.com/embedkit/ragchat/internal/logger"
	"github.com/embedkit/ragchat/internal/metrics"
	"github.com/embedkit/ragchat/internal/rag"
	sessionrepo "github.com/embedkit/ragchat/internal/repository/session"
	chiTransport "github.com/embedkit/ragchat/internal/transport/chi"
	chatuc "github.com/embedkit/ragchat/internal/usecase/chat"
	healthuc "github.com/embedkit/ragchat/internal/usecase/health"
	streamuc "github.com/embedkit/ragchat/internal/usecase/stream"
	"github.com/embedkit/ragchat/internal/version"
)

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

	logger.Info("Starting ragchat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("memory_driver", cfg.Memory.Driver),
		zap.Bool("rag_enabled", cfg.RAG.Enabled),
	)

	ctx := context.Background()

	// Session history store — in-process by default, redis when configured.
	var (
		history chatuc.History
		store   db.Store
	)
	switch cfg.Memory.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Memory.Addrs,
			Password: cfg.Memory.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create session store", zap.Error(err))
		}
		defer store.Close()
		readiness := time.Duration(cfg.Memory.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Session store not ready", zap.Error(err))
		}
		logger.Info("Connected to session store")
		history = sessionrepo.NewRedis(store, cfg.Memory.MaxTurns)
	default:
		history = sessionrepo.NewMemory(cfg.Memory.MaxTurns)
	}

	// Register chat metrics explicitly (no init())
	metrics.RegisterChatMetrics()

	// Retrieval index — built synchronously at startup, empty when the
	// corpus is absent or retrieval is disabled.
	retriever := rag.NewRetriever(logger)
	if cfg.RAG.Enabled {
		docs, err := rag.LoadCorpus(cfg.RAG.DocsPath, rag.LoaderConfig{
			MaxDocChars:  cfg.RAG.MaxDocChars,
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
		})
		if err != nil {
			logger.Error("Corpus load failed, serving without context", zap.Error(err))
		}
		retriever.Rebuild(docs)
	}

	// Provider selection happens here, not via runtime type checks.
	var provider chatuc.Generator
	if cfg.LLM.APIKey != "" {
		provider = llm.NewResilient(llm.NewOpenAIProvider(&llm.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
			Logger:      logger,
		}), logger)
	} else {
		provider = llm.NewDisabled()
	}
	logger.Info("LLM provider configured",
		zap.Bool("enabled", provider.Enabled()),
		zap.String("model", cfg.LLM.Model),
	)

	topK := 0
	if cfg.RAG.Enabled {
		topK = cfg.RAG.TopK
	}
	chatSvc := chatuc.New(retriever, provider, history, chatuc.NewRegistry(), topK, logger)
	streamSvc := streamuc.New(chatSvc, streamuc.Config{
		MaxConcurrent:  cfg.Stream.MaxConcurrent,
		TokenDelay:     time.Duration(cfg.Stream.TokenDelayMs) * time.Millisecond,
		TargetDuration: time.Duration(cfg.Stream.TargetTotalMs) * time.Millisecond,
		Heartbeat:      time.Duration(cfg.Stream.HeartbeatMs) * time.Millisecond,
	}, logger)

	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(pinger, retriever, provider.Enabled())

	server := chiTransport.NewServer(chatSvc, streamSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// WriteTimeout must outlive the longest SSE session, so it follows
		// the stream config rather than the usual request timeout.
		WriteTimeout: time.Duration(cfg.Stream.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
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
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
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

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
