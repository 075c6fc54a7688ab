// Package main is the entry point for the sequencer.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexusbridge/sequencer/internal/adminapi"
	"github.com/nexusbridge/sequencer/internal/auctioncache"
	"github.com/nexusbridge/sequencer/internal/bidingest"
	"github.com/nexusbridge/sequencer/internal/chainreader"
	"github.com/nexusbridge/sequencer/internal/executor"
	"github.com/nexusbridge/sequencer/internal/hooks"
	"github.com/nexusbridge/sequencer/internal/liquiditycache"
	"github.com/nexusbridge/sequencer/internal/metrics"
	"github.com/nexusbridge/sequencer/internal/middleware"
	"github.com/nexusbridge/sequencer/internal/relay"
	"github.com/nexusbridge/sequencer/internal/relay/backends"
	"github.com/nexusbridge/sequencer/pkg/cache"
	"github.com/nexusbridge/sequencer/pkg/logger"
)

func main() {
	port := flag.String("port", "8000", "Admin API port")
	redisURL := flag.String("redis-url", envOr("REDIS_URL", "redis://localhost:6379/0"), "Redis connection URL")
	indexerURL := flag.String("indexer-url", envOr("INDEXER_URL", "http://localhost:5050"), "External indexer/subgraph URL")
	relayerRefresh := flag.Duration("relayer-refresh", 30*time.Second, "Relayer config refresh period")
	hooksEnabled := flag.Bool("hooks-enabled", false, "Enable lifecycle hooks")
	flag.Parse()

	logger.Init(logger.DefaultConfig())
	log := logger.Log

	log.Info().
		Str("port", *port).
		Str("indexer_url", *indexerURL).
		Bool("hooks_enabled", *hooksEnabled).
		Msg("starting sequencer")

	m := metrics.NewMetrics("sequencer")
	log.Info().Msg("prometheus metrics enabled")

	store, err := cache.New(*redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer store.Close()

	auctions := auctioncache.New(store)
	liquidity := liquiditycache.New(store)
	chainReader := chainreader.NewIndexerClient(*indexerURL, 500*time.Millisecond)

	hookSvc := hooks.NewService(&hooks.ServiceConfig{
		Enabled:        *hooksEnabled,
		DefaultTimeout: 200 * time.Millisecond,
		FailOpen:       true,
	})

	registry := relay.NewRegistry(store, *relayerRefresh)
	registerRelayerFactories(registry)
	if err := registry.Start(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial relayer config load failed, starting with none configured")
	}

	ingestor := bidingest.New(auctions, store, hookSvc, m)
	_ = ingestor // wired to the message-broker bid receiver, out of this process's HTTP boundary (spec §6)

	exec := executor.New(auctions, liquidity, chainReader, registry, nil, executor.DefaultConfig(), hookSvc, m)
	execCtx, cancelExec := context.WithCancel(context.Background())
	go exec.Run(execCtx)
	log.Info().Msg("executor loop started")

	cors := middleware.NewCORS(middleware.DefaultCORSConfig())
	security := middleware.NewSecurityHeaders(middleware.DefaultSecurityConfig())
	auth := middleware.NewAuth(middleware.DefaultAuthConfig())
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	sizeLimiter := middleware.NewSizeLimiter(middleware.DefaultSizeLimitConfig())

	log.Info().
		Bool("auth_enabled", auth.IsEnabled()).
		Msg("admin API middleware initialized")

	admin := adminapi.New(auctions, registry, chainReader, m)
	mux := http.NewServeMux()
	admin.Routes(mux)
	mux.Handle("/metrics", metrics.Handler())

	handler := http.Handler(mux)
	handler = m.Middleware(handler)
	handler = rateLimiter.Middleware(handler)
	handler = auth.Middleware(handler)
	handler = sizeLimiter.Middleware(handler)
	handler = loggingMiddleware(handler)
	handler = security(handler)
	handler = cors(handler)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+*port).Msg("admin API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin API server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	cancelExec()
	rateLimiter.Stop()
	registry.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("admin API server forced to shutdown")
	}

	log.Info().Msg("sequencer stopped gracefully")
}

// registerRelayerFactories wires every known relayer type (spec's
// "ordered list of relayer backends", supplemented from the teacher's
// bidder adapters — see internal/relay/backends) into the registry
// so Refresh can build a concrete Relayer from config alone.
func registerRelayerFactories(registry *relay.Registry) {
	registry.RegisterFactory("generic", func(cfg relay.Config) (relay.Relayer, error) {
		return backends.NewGeneric(cfg.Endpoint, 2*time.Second), nil
	})
	registry.RegisterFactory("signature", func(cfg relay.Config) (relay.Relayer, error) {
		return backends.NewSignature(cfg.Endpoint, cfg.APIKey, 2*time.Second), nil
	})
	registry.RegisterFactory("poll", func(cfg relay.Config) (relay.Relayer, error) {
		return backends.NewPoll(cfg.Endpoint, cfg.Endpoint+"/status/%s", 2*time.Second, 200*time.Millisecond, 10), nil
	})
	registry.RegisterFactory("batch", func(cfg relay.Config) (relay.Relayer, error) {
		return backends.NewBatch(cfg.Endpoint, 20, 100*time.Millisecond), nil
	})
}

// loggingMiddleware logs HTTP requests with structured logging.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		event := logger.Log.Info()
		if wrapped.statusCode >= 400 {
			event = logger.Log.Warn()
		}
		if wrapped.statusCode >= 500 {
			event = logger.Log.Error()
		}

		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", duration).
			Str("remote_addr", r.RemoteAddr).
			Msg("admin API request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
