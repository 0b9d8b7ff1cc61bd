/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the carnival agenda service: configuration,
  SQLite store, feed syncer, optional sync scheduler, and the HTTP server
  with graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults -> YAML -> .env/environment)
  3. Initialize SQLite store (schema auto-migrates)
  4. Build the feed syncer and, if scheduled, start the cron trigger
  5. Start the HTTP server

COMMAND-LINE FLAGS:
  -config  Path to the YAML config file (default: config.yaml)

ENVIRONMENT:
  PORT, DB_PATH, FEED_SOURCE_URL, ADMIN_TOKEN, SYNC_SCHEDULE override the
  file. A .env file is honored in development.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sync scheduler (waits for a running sync)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Settings layers
  - api/server.go: Router configuration
  - feed/sync.go: The reconciliation pipeline
*/
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ljunqueira/AgendaBlocoCarnaval/api"
	"github.com/ljunqueira/AgendaBlocoCarnaval/config"
	"github.com/ljunqueira/AgendaBlocoCarnaval/feed"
	"github.com/ljunqueira/AgendaBlocoCarnaval/store/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	fetcher := feed.NewFetcher(cfg.Feed.SourceURL, cfg.FeedTimeout())
	syncer := feed.NewSyncer(store, fetcher, clockwork.NewRealClock())

	scheduler := feed.NewSyncScheduler(syncer, cfg.Sync.Schedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start sync scheduler: %v", err)
	}
	defer scheduler.Stop()

	handler := api.NewHandler(store, syncer, cfg.Admin.Token)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s (feed: %s)", cfg.ServerAddress(), cfg.Feed.SourceURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
