/*
main.go - Lineage query API entry point

PURPOSE:
  Loads a transaction ledger once, builds the provenance graph, and
  serves read-only lineage queries over HTTP for BI dashboards.

STARTUP SEQUENCE:
  1. Load .env and environment configuration
  2. Load the ledger (file or SQLite archive)
  3. Build the lineage graph (single synchronization barrier - the
     server only starts listening after the build completes)
  4. Configure the chi router
  5. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides LINEAGE_SERVER_PORT)
  -ledger  Transaction export path (overrides LINEAGE_LEDGER_PATH)
  -from-db SQLite archive path (overrides LINEAGE_ARCHIVE_PATH)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, exit.

SEE ALSO:
  - api/server.go: Router configuration
  - cmd/lineage/main.go: One-shot CLI over the same engine
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

	"github.com/joho/godotenv"

	"github.com/cellarworks/lineage-engine/api"
	"github.com/cellarworks/lineage-engine/config"
	"github.com/cellarworks/lineage-engine/ledger"
	"github.com/cellarworks/lineage-engine/lineage"
	"github.com/cellarworks/lineage-engine/logging"
	"github.com/cellarworks/lineage-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides env)")
	ledgerPath := flag.String("ledger", "", "transaction export path (overrides env)")
	fromDB := flag.String("from-db", "", "SQLite archive path (overrides env)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Options{
		Service: "lineage-api",
		Level:   logging.ParseLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
	})

	if *port == 0 {
		*port = cfg.Server.Port
	}
	if *ledgerPath == "" {
		*ledgerPath = cfg.Data.LedgerPath
	}
	if *fromDB == "" {
		*fromDB = cfg.Data.ArchivePath
	}

	ctx := context.Background()

	var records []*ledger.Record
	switch {
	case *ledgerPath != "":
		records, _, err = ledger.LoadFile(*ledgerPath, log)
	case *fromDB != "":
		archive, aerr := sqlite.New(*fromDB)
		if aerr != nil {
			err = aerr
			break
		}
		records, err = archive.LoadAll(ctx)
		archive.Close()
	default:
		err = fmt.Errorf("no ledger configured: set -ledger, -from-db, or LINEAGE_LEDGER_PATH")
	}
	if err != nil {
		log.Error().Err(err).Msg("ledger load failed")
		os.Exit(1)
	}

	// Build completes before the listener starts; from here the graph
	// is immutable and queries are lock-free pure reads.
	graph := lineage.Build(records, log)
	engine := lineage.NewEngine(graph)

	handler := api.NewHandler(engine, log)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("lineage query API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
