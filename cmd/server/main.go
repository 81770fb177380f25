// Package main is the entry point for the chat server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhieu79/Torilab-backend-test/internal/api"
	"github.com/bhieu79/Torilab-backend-test/internal/chat"
	"github.com/bhieu79/Torilab-backend-test/internal/config"
	"github.com/bhieu79/Torilab-backend-test/internal/health"
	"github.com/bhieu79/Torilab-backend-test/internal/llm"
	"github.com/bhieu79/Torilab-backend-test/internal/media"
	"github.com/bhieu79/Torilab-backend-test/internal/middleware"
	"github.com/bhieu79/Torilab-backend-test/internal/store"
	"github.com/bhieu79/Torilab-backend-test/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Chat Server")
		fmt.Println()
		fmt.Println("Usage: server [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	for key, value := range cfg.LogSummary() {
		logger.Debug("config", slog.String(key, value))
	}

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "chat-server",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := store.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSchema(ctx, db)
	cancel()
	if err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	chatStore := store.NewPostgresStore(db, logger)

	var mediaStore media.Store
	if cfg.R2Enabled() {
		mediaStore, err = media.NewS3Store(media.S3Config{
			Bucket:          cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize object storage", "error", err)
			os.Exit(1)
		}
		logger.Info("media storage: object storage", "bucket", cfg.R2BucketName)
	} else {
		mediaStore, err = media.NewDiskStore(cfg.MediaRoot, logger)
		if err != nil {
			logger.Error("failed to initialize media storage", "error", err)
			os.Exit(1)
		}
		logger.Info("media storage: local disk", "root", cfg.MediaRoot)
	}

	llmClient := llm.NewOpenAIClient(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		BaseURL:     cfg.OpenAIAPIBase,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	}, logger)

	registry := prometheus.NewRegistry()
	chatMetrics := chat.NewMetrics()
	if err := chatMetrics.Register(registry); err != nil {
		logger.Error("failed to register chat metrics", "error", err)
		os.Exit(1)
	}
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}

	connRegistry := chat.NewRegistry(logger, chatMetrics)
	validator := chat.NewValidator(logger)
	processor := chat.NewProcessor(chatStore, mediaStore, llmClient, logger, chatMetrics)
	chatServer := chat.NewServer(connRegistry, validator, processor, chatStore, logger)

	wsHandlers := api.NewWSHandlers(chatServer, logger)
	historyHandlers := api.NewHistoryHandlers(chatStore, logger)
	healthHandlers := api.NewHealthHandlers(connRegistry, health.NewDBChecker(db))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandlers.ServeWS)
	mux.HandleFunc("GET /chat-history/{clientID}", historyHandlers.GetChatHistory)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/media/", http.StripPrefix("/media/",
		http.FileServer(http.Dir(cfg.MediaRoot))))

	// Middleware chain: RequestID -> Tracing -> Logging -> HTTPMetrics -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         300,
	})(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("chat-server")(handler)
	}
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     handler,
		ReadTimeout: 0, // websocket connections stay open indefinitely
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.Addr(), "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	connRegistry.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
