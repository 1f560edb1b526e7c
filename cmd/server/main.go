package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"mailpilot/internal/accounts"
	"mailpilot/internal/ai"
	"mailpilot/internal/config"
	"mailpilot/internal/database"
	"mailpilot/internal/dispatch"
	"mailpilot/internal/ledger"
	"mailpilot/internal/lock"
	"mailpilot/internal/mailbox"
	"mailpilot/internal/scan"
	"mailpilot/internal/secrets"
	"mailpilot/internal/server"
)

// @title Mailpilot API
// @version 1.0
// @description Multi-tenant email automation: IMAP ingestion, AI replies with provider fallback and SMTP dispatch.
// @BasePath /
func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, store, vault, l := openStores(ctx, cfg, logger)
	if db != nil {
		defer db.Close()
	}
	svc := accounts.NewService(store, vault, logger)

	// AI providers
	catalog, err := ai.LoadCatalog(cfg.ProviderCatalog)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load provider catalog")
	}
	registry := ai.NewRegistryFromKeys(catalog, cfg.ProviderKeys(), logger)
	if len(registry.Names()) == 0 {
		logger.Warn().Msg("No AI provider API keys configured, automatic replies will fail until one is set")
	}
	orchestrator := ai.NewOrchestrator(registry, ai.Config{Timeout: cfg.AITimeout, MaxChain: cfg.AIMaxChain}, logger)

	// Mail transports
	var system dispatch.SystemMailer
	if cfg.SendGridAPIKey != "" {
		system = dispatch.NewSendGridTransport(cfg.SendGridAPIKey, cfg.SendGridFrom)
		logger.Info().Str("from", cfg.SendGridFrom).Msg("SendGrid system transport enabled")
	}
	dispatcher := dispatch.NewDispatcher(
		dispatch.NewSMTPTransport(cfg.SMTPTimeout), system, svc, l,
		dispatch.Config{MaxAttempts: cfg.SMTPMaxAttempts, Backoff: cfg.SMTPBackoff},
		logger,
	)
	connector := mailbox.NewConnector(
		mailbox.NewIMAPDialer(cfg.IMAPTimeout), svc, l,
		mailbox.Options{LookbackDays: cfg.IMAPLookbackDays, FetchLimit: cfg.IMAPFetchLimit},
		logger,
	)

	coordinator := scan.NewCoordinator(svc, l, connector, orchestrator, dispatcher, newLocker(ctx, cfg, logger), scan.Config{
		Interval:      cfg.ScanInterval,
		CycleTimeout:  cfg.ScanCycleTimeout,
		StaleAfter:    cfg.StaleAfter,
		MaxParallel:   cfg.ScanMaxParallel,
		MessageBudget: cfg.ScanMessageBudget,
	}, logger)

	done := make(chan struct{})
	if cfg.ScanEnabled {
		go func() {
			defer close(done)
			coordinator.Run(ctx)
		}()
	} else {
		close(done)
		logger.Info().Msg("Scan loop disabled, replies only run through the scan endpoint")
	}

	// Create and initialize server
	srv := server.New(cfg, server.Deps{
		DB:           db,
		Accounts:     svc,
		Ledger:       l,
		Orchestrator: orchestrator,
		Dispatcher:   dispatcher,
		Mailbox:      connector,
		Coordinator:  coordinator,
	}, logger)
	srv.Initialize()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}

	stop()
	<-done
	logger.Info().Msg("Server stopped")
}

// openStores returns PostgreSQL-backed stores when DATABASE_URL is set, in-memory ones seeded from SEED_FILE otherwise
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sqlx.DB, accounts.Store, secrets.Vault, ledger.Ledger) {
	key := secrets.GenerateKey()
	if cfg.SecretsKey != "" {
		parsed, err := secrets.ParseKey(cfg.SecretsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid SECRETS_KEY")
		}
		key = parsed
	} else if cfg.DatabaseURL != "" {
		logger.Fatal().Msg("SECRETS_KEY is required when DATABASE_URL is set")
	}
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create secrets cipher")
	}

	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, running on in-memory stores")
		store := accounts.NewMemoryStore()
		vault := secrets.NewMemoryVault(cipher)
		if cfg.SeedFile != "" {
			if err := accounts.LoadSeed(ctx, cfg.SeedFile, store, vault); err != nil {
				logger.Fatal().Err(err).Msg("Failed to load seed file")
			}
			logger.Info().Str("file", cfg.SeedFile).Msg("Seed data loaded")
		}
		return nil, store, vault, ledger.NewMemoryLedger()
	}

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Msg("Database connection established successfully")

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Database migration failed")
	}
	return db, accounts.NewPostgresStore(db), secrets.NewSQLVault(db, cipher), ledger.NewPostgresLedger(db)
}

// newLocker returns a Redis-backed locker when REDIS_URL is set so replicas share single-flight locks
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) lock.Locker {
	if cfg.RedisURL == "" {
		return lock.NewMemoryLocker()
	}
	rdb, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Redis connection failed")
	}
	logger.Info().Msg("Using Redis account locks")
	return lock.NewRedisLocker(rdb)
}
