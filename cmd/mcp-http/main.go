// Package main provides the Streamable HTTP MCP server entry point for recall.
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/internal/mcp"
	"github.com/thebtf/recall/internal/search"
)

// Version is set at build time via ldflags.
var Version = "dev"

// requestTimeout bounds one HTTP request end to end.
const requestTimeout = 60 * time.Second

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	listenPort := cfg.HTTPPort
	if *port > 0 {
		listenPort = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down MCP HTTP server")
		cancel()
	}()

	store, err := db.NewStore(db.Config{
		DSN:            cfg.DatabaseDSN,
		MaxConns:       cfg.MaxConns,
		AcquireTimeout: cfg.AcquireTimeout(),
		ListLimit:      cfg.SearchLimit,
		MaxListLimit:   config.MaxSearchLimit,
		LogLevel:       logger.Silent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database store")
	}
	defer store.Close()

	conversationStore := db.NewConversationStore(store)
	knowledgeStore := db.NewKnowledgeStore(store)
	statsStore := db.NewStatsStore(store)

	searchMgr := search.NewManager(conversationStore, knowledgeStore,
		cfg.SearchLimit, config.MaxSearchLimit)
	aggregator := search.NewAggregator(searchMgr, conversationStore,
		cfg.ContextLimit, config.MaxContextLimit)

	server := mcp.NewServer(conversationStore, knowledgeStore, statsStore, searchMgr, aggregator, Version)

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(middleware.RealIP)

	router.Handle("/mcp", mcp.NewStreamableHandler(server))
	router.Get("/health", handleHealth(store))
	router.Get("/resources/stats", handleStats(statsStore))
	router.Get("/resources/platforms", handlePlatforms(statsStore))

	addr := fmt.Sprintf(":%d", listenPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- httpServer.ListenAndServe()
	}()

	log.Info().Int("port", listenPort).Str("version", Version).Msg("Starting MCP HTTP server")

	select {
	case err := <-httpErrCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("MCP HTTP server error")
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("MCP HTTP server shutdown failed")
		}
	}
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// handleHealth reports liveness plus database reachability.
func handleHealth(store *db.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if err := store.Ping(); err != nil {
			status = "degraded"
		}
		writeJSON(w, map[string]string{
			"status":  status,
			"version": Version,
		})
	}
}

// handleStats serves the memory inventory as a plain REST view of the
// memory://stats resource.
func handleStats(stats *db.StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := stats.GetStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, s)
	}
}

// handlePlatforms serves the known platform list.
func handlePlatforms(stats *db.StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platforms, err := stats.GetPlatforms(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"platforms": platforms,
			"count":     len(platforms),
		})
	}
}
