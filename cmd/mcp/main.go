// Package main provides the stdio MCP server entry point for recall.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/recall/internal/config"
	"github.com/thebtf/recall/internal/db"
	"github.com/thebtf/recall/internal/mcp"
	"github.com/thebtf/recall/internal/search"
	"github.com/thebtf/recall/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// MCP uses stdout for the protocol, so log to stderr
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down MCP server")
		cancel()
	}()

	// Migrations run automatically on store init
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

	startWatchers()

	server := mcp.NewServer(conversationStore, knowledgeStore, statsStore, searchMgr, aggregator, Version)
	log.Info().Str("version", Version).Msg("Starting MCP server")

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("MCP server error")
	}
}

// startWatchers initializes file watchers for config.
func startWatchers() {
	// Config changes trigger process exit; the supervisor restarts with
	// the new settings.
	configPath := config.SettingsPath()
	configWatcher, err := watcher.New(configPath, func() {
		log.Warn().Str("path", configPath).Msg("Config file changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
		return
	}
	if err := configWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		return
	}
	log.Info().Str("path", configPath).Msg("Config file watcher started")
}
