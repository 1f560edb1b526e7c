package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port        string
	DatabaseURL string // PostgreSQL ledger + credential store; empty runs on in-memory stores
	RedisURL    string // Optional, enables cross-replica single-flight locks
	Version     string
	LogLevel    string
	SecretsKey  string // 32-byte key (hex or base64) used to encrypt stored credentials
	SeedFile    string // YAML tenants/accounts loaded into in-memory stores

	// Scan Coordinator
	ScanEnabled       bool
	ScanInterval      time.Duration
	ScanMaxParallel   int
	ScanMessageBudget int
	ScanCycleTimeout  time.Duration
	StaleAfter        time.Duration

	// Mailbox Connector
	IMAPTimeout      time.Duration
	IMAPLookbackDays int
	IMAPFetchLimit   int

	// AI Reply Orchestrator
	AITimeout       time.Duration
	AIMaxChain      int
	ProviderCatalog string // Optional YAML override of the built-in provider catalog
	OpenAIKey       string
	DeepSeekKey     string
	GeminiKey       string
	AnthropicKey    string

	// Dispatcher
	SMTPTimeout     time.Duration
	SMTPMaxAttempts int
	SMTPBackoff     time.Duration
	SendGridAPIKey  string
	SendGridFrom    string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Version:     getEnv("VERSION", "1.0.0"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		SecretsKey:  os.Getenv("SECRETS_KEY"),
		SeedFile:    os.Getenv("SEED_FILE"),

		ScanEnabled:       getEnvBool("SCAN_ENABLED", true),
		ScanInterval:      getEnvDuration("SCAN_INTERVAL_SECONDS", 20*time.Second),
		ScanMaxParallel:   getEnvInt("SCAN_MAX_PARALLEL", 4),
		ScanMessageBudget: getEnvInt("SCAN_MESSAGE_BUDGET", 25),
		ScanCycleTimeout:  getEnvDuration("SCAN_CYCLE_TIMEOUT_SECONDS", 5*time.Minute),
		StaleAfter:        time.Duration(getEnvInt("STALE_AFTER_MINUTES", 10)) * time.Minute,

		IMAPTimeout:      getEnvDuration("IMAP_TIMEOUT_SECONDS", 30*time.Second),
		IMAPLookbackDays: getEnvInt("IMAP_LOOKBACK_DAYS", 7),
		IMAPFetchLimit:   getEnvInt("IMAP_FETCH_LIMIT", 100),

		AITimeout:       getEnvDuration("AI_TIMEOUT_SECONDS", 60*time.Second),
		AIMaxChain:      getEnvInt("AI_MAX_CHAIN", 4),
		ProviderCatalog: os.Getenv("PROVIDER_CATALOG"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		DeepSeekKey:     os.Getenv("DEEPSEEK_API_KEY"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),

		SMTPTimeout:     getEnvDuration("SMTP_TIMEOUT_SECONDS", 30*time.Second),
		SMTPMaxAttempts: getEnvInt("SMTP_MAX_ATTEMPTS", 3),
		SMTPBackoff:     time.Duration(getEnvInt("SMTP_BACKOFF_MS", 1000)) * time.Millisecond,
		SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
		SendGridFrom:    os.Getenv("SENDGRID_FROM"),
	}

	return config
}

// ProviderKeys maps provider names to the API keys configured for them
func (c *Config) ProviderKeys() map[string]string {
	return map[string]string{
		"openai":   c.OpenAIKey,
		"deepseek": c.DeepSeekKey,
		"gemini":   c.GeminiKey,
		"claude":   c.AnthropicKey,
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration reads a whole number of seconds, falling back on anything unparsable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailpilot").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
