/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the tariff indexation engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, config.toml, TARIFF_* env vars)
  2. Initialize SQLite store and document blob store
  3. Create API handler with dependencies
  4. Start the advisory due reminder
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete
  3. Stop the reminder, close both stores
  4. Exit

CONFIGURATION:
  TARIFF_PORT           HTTP port (default 8080)
  TARIFF_DB_PATH        SQLite path (default ./data/tariffs.db;
                        ":memory:" for ephemeral runs)
  TARIFF_BLOB_PATH      Blob store directory (empty disables documents)
  TARIFF_COMPANY_NAME   Letterhead name on rate sheets

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linehaul/tariff-engine/api"
	"github.com/linehaul/tariff-engine/config"
	"github.com/linehaul/tariff-engine/store/blob"
	"github.com/linehaul/tariff-engine/store/sqlite"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.New()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	var blobs *blob.Store
	if cfg.BlobPath != "" {
		blobs, err = blob.Open(cfg.BlobPath)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize blob store")
		}
		defer blobs.Close()
	} else {
		log.Warn("no blob path configured; document uploads will keep metadata only")
	}

	handler := api.NewHandler(store, blobs, cfg.CompanyName, log)
	router := api.NewRouter(handler)

	reminder := api.NewDueReminder(handler.Orchestrator, log)
	reminder.CheckInterval = cfg.ReminderInterval
	reminder.Start()
	defer reminder.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr()).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}
	log.Info("server stopped")
}
