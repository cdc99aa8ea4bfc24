/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the clinical supply forecasting server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults <- YAML file <- environment)
  3. Initialize SQLite run-history store
  4. Build the credential pool and Gemini client
  5. Create API handler with dependencies
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: supply.db)
           Use ":memory:" for in-memory database
  -config  Optional YAML config file

ENVIRONMENT:
  GEMINI_API_KEY, GEMINI_API_KEY_1..3  Credential pool (in order)
  GEMINI_MODEL                          Override the model name
  GEMINI_BASE_URL                       Override the API endpoint

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/supply.db"

  # Run with a config file
  ./server -config="./supply.yaml"

SEE ALSO:
  - api/server.go: Router configuration
  - pipeline/orchestrator.go: Batch execution
  - store/sqlite/sqlite.go: Run history
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/supply-engine/api"
	"github.com/warp/supply-engine/gemini"
	"github.com/warp/supply-engine/pipeline"
	"github.com/warp/supply-engine/store/sqlite"
	"github.com/warp/supply-engine/supply"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "supply.db", "SQLite database path")
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Configuration: defaults <- file <- environment
	cfg := supply.Default()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Justification client. With no keys the pipeline still runs; every
	// report then carries a null llm object.
	var justifier pipeline.Justifier
	if len(cfg.APIKeys) > 0 {
		pool := gemini.NewCredentialPool(cfg.APIKeys)
		justifier = gemini.New(cfg, pool, logger.Named("gemini"))
		logger.Info("justification enabled", zap.Int("credentials", pool.Size()))
	} else {
		logger.Warn("no API keys configured, justification disabled")
	}

	orch := pipeline.New(cfg, justifier, logger.Named("pipeline"))
	handler := api.NewHandler(store, orch, logger.Named("api"))
	handler.Credentials = len(cfg.APIKeys)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute, // batches with LLM calls take a while
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.Int("port", *port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
