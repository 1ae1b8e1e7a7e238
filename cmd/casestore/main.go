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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/epiwatch/casestore/internal/config"
	"github.com/epiwatch/casestore/internal/domain/schema"
	"github.com/epiwatch/casestore/internal/geocode"
	logpkg "github.com/epiwatch/casestore/internal/logger"
	"github.com/epiwatch/casestore/internal/metrics"
	"github.com/epiwatch/casestore/internal/store"
	storeMemory "github.com/epiwatch/casestore/internal/store/memory"
	storeMongo "github.com/epiwatch/casestore/internal/store/mongo"
	chiTransport "github.com/epiwatch/casestore/internal/transport/chi"
	casesuc "github.com/epiwatch/casestore/internal/usecase/cases"
	"github.com/epiwatch/casestore/internal/version"
)

func main() {
	_ = godotenv.Load()

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

	logger.Info("Starting casestore API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	reg := schema.NewRegistry()

	// Create the store backend based on driver
	var (
		st     store.Store
		pinger chiTransport.Pinger
	)
	switch cfg.Database.Driver {
	case "memory":
		mem := storeMemory.New(reg)
		st, pinger = mem, mem
	case "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mg, err := storeMongo.New(ctx, storeMongo.Config{
			URI:        cfg.Database.URI,
			Database:   cfg.Database.Database,
			Collection: cfg.Database.Collection,
		}, reg, logger)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to mongodb", zap.Error(err))
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			if err := mg.Close(closeCtx); err != nil {
				logger.Error("Error closing mongodb client", zap.Error(err))
			}
		}()
		st, pinger = mg, mg
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	logger.Info("Connected to store", zap.String("driver", cfg.Database.Driver))

	// Register geocoder metrics explicitly (no init())
	metrics.RegisterGeocodeMetrics()

	geocoder := geocode.NewClient(&geocode.Config{
		BaseURL: cfg.Geocoder.BaseURL,
		Timeout: time.Duration(cfg.Geocoder.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	casesSvc := casesuc.New(st, reg, geocoder, logger).
		WithPagination(int64(cfg.Pagination.DefaultPageSize), int64(cfg.Pagination.MaxPageSize))

	server := chiTransport.NewServer(casesSvc, pinger, logger).
		WithMaxBatchSize(cfg.Pagination.MaxBatchSize)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
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
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
