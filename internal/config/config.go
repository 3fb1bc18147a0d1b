package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Vault      VaultConfig
	Processing ProcessingConfig
	Notify     NotifyConfig
	Queue      QueueConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	CORSOrigins     []string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	AnthropicKey       string
	OpenAIKey          string
	DefaultProvider    string
	DefaultModel       string
	FallbackProvider   string
	MaxRetries         int
	Timeout            time.Duration
	InputPricePerMTok  float64
	OutputPricePerMTok float64
}

type VaultConfig struct {
	URL             string
	VaultID         string
	BearerToken     string
	FunctionID      string
	Table           string
	Timeout         time.Duration
	FunctionTimeout time.Duration
}

type ProcessingConfig struct {
	Strategy        string
	BreakerFailures int
	BreakerCooldown time.Duration
	LockTTL         time.Duration
	EmitTimeout     time.Duration
}

type NotifyConfig struct {
	EventsChannel string
	WebhookURL    string
	WebhookSecret string
}

type QueueConfig struct {
	Enabled     bool
	Concurrency int
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	rateLimit, err := getEnvInt("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REQUESTS: %w", err)
	}

	rateWindow, err := getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	llmTimeout, err := getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_TIMEOUT: %w", err)
	}

	inputPrice, err := getEnvFloat("LLM_INPUT_PRICE_PER_MTOK", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_INPUT_PRICE_PER_MTOK: %w", err)
	}

	outputPrice, err := getEnvFloat("LLM_OUTPUT_PRICE_PER_MTOK", 15)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_OUTPUT_PRICE_PER_MTOK: %w", err)
	}

	vaultTimeout, err := getEnvDuration("VAULT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_TIMEOUT: %w", err)
	}

	functionTimeout, err := getEnvDuration("VAULT_FUNCTION_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid VAULT_FUNCTION_TIMEOUT: %w", err)
	}

	breakerFailures, err := getEnvInt("PROCESSING_BREAKER_FAILURES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid PROCESSING_BREAKER_FAILURES: %w", err)
	}

	breakerCooldown, err := getEnvDuration("PROCESSING_BREAKER_COOLDOWN", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PROCESSING_BREAKER_COOLDOWN: %w", err)
	}

	lockTTL, err := getEnvDuration("PROCESSING_LOCK_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid PROCESSING_LOCK_TTL: %w", err)
	}

	emitTimeout, err := getEnvDuration("PROCESSING_EMIT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid PROCESSING_EMIT_TIMEOUT: %w", err)
	}

	queueEnabled, err := getEnvBool("QUEUE_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_ENABLED: %w", err)
	}

	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            port,
			CORSOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			RateLimit:       rateLimit,
			RateWindow:      rateWindow,
			ShutdownTimeout: shutdownTimeout,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			AnthropicKey:       getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
			DefaultProvider:    getEnv("LLM_DEFAULT_PROVIDER", "anthropic"),
			DefaultModel:       getEnv("LLM_DEFAULT_MODEL", "claude-3-5-sonnet-20241022"),
			FallbackProvider:   getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:         maxRetries,
			Timeout:            llmTimeout,
			InputPricePerMTok:  inputPrice,
			OutputPricePerMTok: outputPrice,
		},
		Vault: VaultConfig{
			URL:             strings.TrimRight(getEnv("VAULT_URL", ""), "/"),
			VaultID:         getEnv("VAULT_ID", ""),
			BearerToken:     getEnv("VAULT_BEARER_TOKEN", ""),
			FunctionID:      getEnv("VAULT_FUNCTION_ID", ""),
			Table:           getEnv("VAULT_TABLE", "persons"),
			Timeout:         vaultTimeout,
			FunctionTimeout: functionTimeout,
		},
		Processing: ProcessingConfig{
			Strategy:        getEnv("PROMPT_STRATEGY", "best_performing"),
			BreakerFailures: breakerFailures,
			BreakerCooldown: breakerCooldown,
			LockTTL:         lockTTL,
			EmitTimeout:     emitTimeout,
		},
		Notify: NotifyConfig{
			EventsChannel: getEnv("EVENTS_CHANNEL", "vaultmind:events"),
			WebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		},
		Queue: QueueConfig{
			Enabled:     queueEnabled,
			Concurrency: concurrency,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports the settings the vault integration cannot run without.
// Missing LLM keys are tolerated: the fallback chain degrades past them.
func (c *Config) Validate() error {
	var missing []string
	if c.Vault.URL == "" {
		missing = append(missing, "VAULT_URL")
	}
	if c.Vault.VaultID == "" {
		missing = append(missing, "VAULT_ID")
	}
	if c.Vault.BearerToken == "" {
		missing = append(missing, "VAULT_BEARER_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required env vars: %s", models.ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" && v != "placeholder" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
