// Product picker service - owns selection lists and picker sessions for the
// product picker widget and proxies catalog search.
// Designed for Cloud Run deployment; state lives in memory per instance.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-picker/internal/catalog"
	"product-picker/internal/config"
	"product-picker/internal/handler"
	"product-picker/internal/middleware"
	"product-picker/internal/negotiation"
	"product-picker/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("catalog_url", cfg.Catalog.URL),
		slog.Float64("catalog_rate_limit", cfg.Catalog.RateLimit),
		slog.Bool("tls_fingerprint", cfg.Catalog.TLSFingerprint),
		slog.Duration("debounce", cfg.Picker.Debounce),
		slog.Int("page_size", cfg.Picker.PageSize),
		slog.String("empty_entry_policy", string(cfg.Picker.EmptyEntryPolicy)),
	)

	searcher, err := catalog.New(catalog.Config{
		SearchURL:   cfg.Catalog.URL,
		APIKey:      cfg.Catalog.APIKey,
		PageSize:    cfg.Picker.PageSize,
		RateLimit:   cfg.Catalog.RateLimit,
		Fingerprint: cfg.Catalog.TLSFingerprint,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating catalog client: %w", err)
	}

	s := store.New(store.Config{
		Catalog:            searcher,
		Debounce:           cfg.Picker.Debounce,
		PageSize:           cfg.Picker.PageSize,
		EmptyEntryPolicy:   cfg.Picker.EmptyEntryPolicy,
		PropagateDiscounts: cfg.Picker.PropagateDiscounts,
		SessionTTL:         cfg.Picker.SessionTTL,
		Logger:             logger,
	})

	// Abandoned picker dialogs are expired in the background
	go s.RunJanitor(ctx, 0)

	h := handler.New(s, cfg.MinClientVersion, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery, request id, logging, client version gate
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		negotiation.Middleware(cfg.MinClientVersion, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stop()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	stats := s.Stats()
	logger.Info("server stopped",
		slog.Int("widgets", stats.Widgets),
		slog.Int("open_sessions", stats.Sessions),
	)
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
