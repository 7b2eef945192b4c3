// worldlined is the worldline simulation runtime's process entrypoint: it
// loads configuration, opens the SQLite store, wires the Simulation
// Service, Runner, Event Bus and Provider Registry, re-attaches a Runner
// task to every persisted session, and serves the HTTP/WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/worldline/pkg/api"
	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/database"
	"github.com/codeready-toolchain/worldline/pkg/events"
	"github.com/codeready-toolchain/worldline/pkg/memory"
	"github.com/codeready-toolchain/worldline/pkg/prompt"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/secret"
	"github.com/codeready-toolchain/worldline/pkg/simulation"
	"github.com/codeready-toolchain/worldline/pkg/store"
	"github.com/codeready-toolchain/worldline/pkg/version"
)

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to a .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: could not load %s: %v (continuing with existing environment)", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Printf("Starting %s", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, database.Config{Path: cfg.DBURL})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()
	log.Println("Connected to SQLite store at", cfg.DBURL)

	keyer, err := secret.NewKeyer(cfg.AppSecretKey)
	if err != nil {
		log.Fatalf("Failed to derive secret key: %v", err)
	}

	st := store.New(dbClient.DB(), keyer)
	registry := providers.NewRegistry()
	builder := prompt.NewBuilder()
	bus := events.NewBus()

	var collaborator memory.Collaborator = memory.NewNoop()
	if cfg.MemoryMode != config.MemoryOff {
		// §6.4/§1: the memory/RAG module is an external collaborator out of
		// scope for this system. Wiring a real vector-backed implementation
		// behind MemoryMode happens in the memory service's own deployment;
		// here we only honor the "always non-nil, failures swallowed"
		// contract via the no-op until that collaborator is attached.
		slog.Warn("MEMORY_MODE is not off but no external memory collaborator is wired; falling back to no-op", "mode", cfg.MemoryMode)
	}
	safeMemory := memory.NewSafe(collaborator)

	sim := simulation.New(ctx, st, registry, builder, bus, safeMemory, cfg.EventDice)
	defer sim.Shutdown()

	if err := reattachSessions(ctx, st, sim); err != nil {
		log.Fatalf("Failed to reattach sessions: %v", err)
	}

	server := api.NewServer(cfg, dbClient, st, sim, bus)

	addr := fmt.Sprintf("%s:%d", cfg.AppHost, cfg.AppPort)
	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	case err := <-errCh:
		log.Printf("HTTP server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during HTTP shutdown: %v", err)
	}
}

// reattachSessions gives every persisted session a live Runner task again
// at startup (§1 Non-goals: "the generation loop must be reinitiated by
// an explicit resume" — Attach restarts the task in IDLE whatever Running
// was persisted as, without itself issuing Start).
func reattachSessions(ctx context.Context, st *store.Store, sim *simulation.Service) error {
	sessions, err := st.ListSessions(ctx, 100000)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, sess := range sessions {
		sim.Attach(sess.SessionID)
	}
	log.Printf("Reattached %d session(s)", len(sessions))
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
