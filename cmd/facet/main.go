package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/facet-labs/facet/internal/api"
	"github.com/facet-labs/facet/internal/auth"
	"github.com/facet-labs/facet/internal/chat"
	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/llm"
	"github.com/facet-labs/facet/internal/logger"
	"github.com/facet-labs/facet/internal/seed"
	"github.com/facet-labs/facet/internal/shutdown"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("facet %s\n", Version)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate TLS configuration before starting
	if err := cfg.Server.ValidateTLS(); err != nil {
		fmt.Fprintf(os.Stderr, "TLS configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting Facet...")

	// Shutdown coordinator closes components in priority order
	shutdownCoordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))

	// Open the warehouse engine
	log.Info().
		Str("engine", cfg.Database.Engine).
		Int("max_connections", cfg.Database.MaxConnections).
		Int("max_concurrent_queries", cfg.Database.MaxConcurrentQueries).
		Int("machine_cpus", runtime.NumCPU()).
		Msg("Opening warehouse")

	store, err := database.Open(cfg, logger.Get("database"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	shutdownCoordinator.Register("database", store, shutdown.PriorityDatabase)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		cancelPing()
		log.Fatal().Err(err).Str("engine", store.Engine()).Msg("Database ping failed")
	}
	cancelPing()

	dbStats := store.Stats()
	log.Info().
		Str("engine", store.Engine()).
		Int("max_open", dbStats.MaxOpenConnections).
		Int("open", dbStats.OpenConnections).
		Msg("Warehouse connected")

	ctx := context.Background()

	// Create the retail_sales table if missing
	if err := database.EnsureTable(ctx, store); err != nil {
		log.Fatal().Err(err).Msg("Failed to create retail_sales table")
	}

	// Seed demo data when the table is empty
	if err := seed.Ensure(ctx, store, cfg.Seed, logger.Get("seed")); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed demo data")
	}

	// Scheduled refresher keeps the demo window current
	var refresher *seed.Refresher
	if cfg.Seed.Enabled && cfg.Seed.RefreshSchedule != "" {
		refresher, err = seed.NewRefresher(store, cfg.Seed, logger.Get("seed"))
		if err != nil {
			log.Fatal().
				Err(err).
				Str("schedule", cfg.Seed.RefreshSchedule).
				Msg("Invalid seed refresh schedule")
		}
		if err := refresher.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start seed refresher")
		}
		shutdownCoordinator.RegisterHook("seed-refresher", func(ctx context.Context) error {
			refresher.Stop()
			return nil
		}, shutdown.PriorityRefresher)
	}

	// Initialize auth manager (if enabled)
	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager, err = auth.NewManager(
			cfg.Auth.DBPath,
			time.Duration(cfg.Auth.CacheTTL)*time.Second,
			cfg.Auth.MaxCacheSize,
			logger.Get("auth"),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize auth manager")
		}
		shutdownCoordinator.Register("auth", authManager, shutdown.PriorityAuth)

		// The token database holds secrets, keep it owner-only
		if err := os.Chmod(cfg.Auth.DBPath, 0600); err != nil {
			log.Warn().Err(err).Str("path", cfg.Auth.DBPath).Msg("Failed to set token database file permissions")
		}

		// Create the initial admin token if this is first run
		if token, err := authManager.EnsureBootstrapToken(); err != nil {
			log.Error().Err(err).Msg("Failed to create initial admin token")
		} else if token != "" {
			printBootstrapBanner(token)
		}

		log.Info().
			Str("db_path", cfg.Auth.DBPath).
			Int("cache_ttl_sec", cfg.Auth.CacheTTL).
			Msg("Authentication enabled")
	} else {
		log.Warn().Msg("Authentication is DISABLED - all endpoints are open")
	}

	// Model client for the chat pipeline
	modelClient, err := llm.New(ctx, cfg.Model, logger.Get("model"))
	if err != nil {
		log.Fatal().
			Err(err).
			Str("provider", cfg.Model.Provider).
			Msg("Failed to initialize model client")
	}
	log.Info().Str("provider", modelClient.Name()).Msg("Model client initialized")

	chatService := chat.NewService(store, modelClient, cfg, logger.Get("chat"))

	// HTTP server
	server := api.NewServer(cfg.Server, logger.Get("server"))
	server.RegisterRoutes()

	// Authentication middleware; health and verify endpoints stay open
	if authManager != nil {
		server.GetApp().Use(auth.NewMiddleware(auth.MiddlewareConfig{
			Manager:      authManager,
			PublicRoutes: []string{"/healthz", "/ready", "/api/v1/auth/verify"},
		}))
	}

	// API handlers share one stats block
	stats := &api.Stats{}

	queryHandler := api.NewQueryHandler(store, cfg.Query.MaxSQLLength, cfg.Query.MaxRows, stats, logger.Get("query-api"))
	queryHandler.RegisterRoutes(server.GetApp())

	importHandler := api.NewImportHandler(store, stats, logger.Get("import-api"))
	importHandler.RegisterRoutes(server.GetApp())

	chatHandler := api.NewChatHandler(chatService, stats, logger.Get("chat-api"))
	chatHandler.RegisterRoutes(server.GetApp())

	renderHandler := api.NewRenderHandler(stats, logger.Get("render-api"))
	renderHandler.RegisterRoutes(server.GetApp())

	statsHandler := api.NewStatsHandler(store, stats, refresher, authManager, logger.Get("stats-api"))
	statsHandler.RegisterRoutes(server.GetApp())

	if authManager != nil {
		tokenHandler := api.NewTokenHandler(authManager, logger.Get("token-api"))
		tokenHandler.RegisterRoutes(server.GetApp())
	}

	// Stop accepting new requests before anything else closes
	shutdownCoordinator.RegisterHook("http-server", func(ctx context.Context) error {
		return server.Shutdown(30 * time.Second)
	}, shutdown.PriorityHTTPServer)

	// Start server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	protocol := "HTTP"
	if cfg.Server.TLSEnabled {
		protocol = "HTTPS"
	}
	log.Info().
		Int("port", cfg.Server.Port).
		Str("protocol", protocol).
		Str("engine", store.Engine()).
		Str("model", modelClient.Name()).
		Str("version", Version).
		Msg("Facet is ready!")

	// Wait for shutdown signal
	sig := shutdownCoordinator.WaitForSignal()
	log.Info().Str("signal", sig.String()).Msg("Initiating graceful shutdown...")

	if err := shutdownCoordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}

	log.Info().Msg("Facet shutdown complete")
}

// printBootstrapBanner prints the first-run admin token to stderr, bypassing
// structured logging so it is readable and never ends up in the log buffer.
func printBootstrapBanner(token string) {
	const (
		cyan   = "\033[96m"
		yellow = "\033[93m"
		bold   = "\033[1m"
		reset  = "\033[0m"
	)
	banner := cyan + "======================================================================" + reset
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr, cyan+bold+"  FIRST RUN - INITIAL ADMIN TOKEN GENERATED"+reset)
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr, yellow+bold+"  Initial admin API token: "+token+reset)
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr, cyan+"  SAVE THIS TOKEN! It will not be shown again."+reset)
	fmt.Fprintln(os.Stderr, cyan+"  Use it to call the API or to mint additional tokens."+reset)
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr)
}
