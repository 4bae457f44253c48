/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fiscal obligation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Configure zerolog
  3. Initialize SQLite store
  4. Load the eligibility rule table (built-in AEAT defaults or JSON file)
  5. Create API handler, router and nightly scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080)
  -db       SQLite database path (default: fiscal.db)
            Use ":memory:" for in-memory database
  -rules    Path to a JSON rule table; empty selects the built-in table
  -sweep    Cron spec for the nightly sweep+generate job (default "0 2 * * *")
  -no-sweep Disable the scheduler entirely
  -pretty   Human-readable console log output

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for a running job)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/fiscal.db"

  # Run with custom rules and an hourly sweep
  ./server -rules=./rules.json -sweep="0 * * * *"

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Nightly jobs
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/rs/zerolog"

	"github.com/gestora/fiscal-engine/api"
	"github.com/gestora/fiscal-engine/factory"
	"github.com/gestora/fiscal-engine/fiscal"
	"github.com/gestora/fiscal-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "fiscal.db", "SQLite database path")
	rulesPath := flag.String("rules", "", "JSON rule table path (empty = built-in AEAT table)")
	sweepSpec := flag.String("sweep", "", "cron spec for the nightly job (empty = 02:00 daily)")
	noSweep := flag.Bool("no-sweep", false, "disable the nightly scheduler")
	pretty := flag.Bool("pretty", false, "human-readable log output")
	flag.Parse()

	// Logging
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Eligibility rules
	rules := fiscal.DefaultRules()
	if *rulesPath != "" {
		rules, err = factory.LoadRules(*rulesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *rulesPath).Msg("failed to load rule table")
		}
		log.Info().Str("path", *rulesPath).Int("models", len(rules)).Msg("rule table loaded")
	}

	// Handler, router, scheduler
	handler := api.NewHandler(store, rules, log)
	router := api.NewRouter(handler)

	scheduler := api.NewScheduler(handler, *sweepSpec)
	scheduler.Enabled = !*noSweep
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Str("spec", *sweepSpec).Msg("failed to start scheduler")
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Msgf("server starting on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
