package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"mailpilot/internal/config"
	"mailpilot/internal/database"
	"mailpilot/internal/secrets"
)

func main() {
	genKey := flag.Bool("gen-key", false, "print a new SECRETS_KEY and exit")
	timeout := flag.Duration("timeout", time.Minute, "migration timeout")
	flag.Parse()

	if *genKey {
		fmt.Println(hex.EncodeToString(secrets.GenerateKey()))
		return
	}

	cfg := config.Load()
	logger := cfg.SetupLogger()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("Database connection failed")
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
	logger.Info().Dur("took", time.Since(start)).Msg("Schema is up to date")
}
