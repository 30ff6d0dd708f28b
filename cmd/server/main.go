/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load YAML configuration
  2. Open the SQLite store (or the in-memory store for demos)
  3. Seed reference data (chart of accounts, VAT codes, cash books)
  4. Build the purchase and sales ledger engines
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML configuration path (optional)
  -addr    Listen address, overrides config (default: :8080)
  -db      SQLite database path, overrides config
           Use ":memory:" for in-memory database, "" for the
           non-persistent memory store

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with a configuration file
  ./server -config=./config.yaml

SEE ALSO:
  - config/config.go: Configuration and seeding
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/warp/purchase-ledger/api"
	"github.com/warp/purchase-ledger/config"
	"github.com/warp/purchase-ledger/ledger"
	memstore "github.com/warp/purchase-ledger/ledger/store"
	"github.com/warp/purchase-ledger/purchase"
	"github.com/warp/purchase-ledger/sales"
	"github.com/warp/purchase-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration path")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	var store ledger.TxStore
	if cfg.Database.Path != "" {
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer s.Close()
		store = s
	} else {
		log.Println("No database configured, using the in-memory store")
		store = memstore.NewTxMemory()
	}

	ctx := context.Background()
	if err := config.Seed(ctx, store, cfg); err != nil {
		log.Fatalf("Failed to seed reference data: %v", err)
	}

	accounts := cfg.SystemAccounts()
	engines := []*ledger.Engine{
		purchase.NewEngine(store, accounts),
		sales.NewEngine(store, accounts),
	}
	for _, e := range engines {
		e.Observe(ledger.ObserverFunc(func(_ context.Context, ev ledger.Event) {
			log.Printf("%s %s transaction %d (%s)",
				ev.Module, ev.Action, ev.Header.ID, ev.Header.Ref)
		}))
	}

	handler := api.NewHandler(store, engines...)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
