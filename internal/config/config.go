package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// Config holds runtime configuration values for the assessment engine.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	ModelBaseURL      string
	ModelAPIKey       string
	ModelID           string
	ModelTimeout      time.Duration
	ModelMaxRetries   int
	ModelRetryBackoff time.Duration

	GenerationTemperature float32
	GenerationMaxTokens   int
	ContextTokenBudget    int

	ValidationTemperature float32
	ValidationMaxTokens   int
	Stages                []models.StageDescriptor
	PassThresholdDefault  float64

	DisabledStrategies []string
	CompletionCacheTTL time.Duration
	MaxConcurrentRuns  int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NALAR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Nalar API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("sqlite.path", "nalar.db")
	v.SetDefault("model.base_url", "http://localhost:1234/v1")
	v.SetDefault("model.api_key", "lm-studio")
	v.SetDefault("model.id", "gemma-3-4b-it")
	v.SetDefault("model.timeout", "60s")
	v.SetDefault("model.max_retries", 2)
	v.SetDefault("model.retry_backoff", "500ms")
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_tokens", 512)
	v.SetDefault("generation.context_token_budget", 1500)
	v.SetDefault("validation.temperature", 0.1)
	v.SetDefault("validation.max_tokens", 512)
	v.SetDefault("validation.pass_threshold", 0.6)
	v.SetDefault("completion_cache_ttl", "10m")
	v.SetDefault("max_concurrent_runs", 2)

	modelTimeout, err := time.ParseDuration(v.GetString("model.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid model timeout: %w", err)
	}

	retryBackoff, err := time.ParseDuration(v.GetString("model.retry_backoff"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid model retry backoff: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("completion_cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid completion cache ttl: %w", err)
	}

	stages, err := parseStages(v.GetString("validation.stages"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		SQLitePath:            v.GetString("sqlite.path"),
		RedisURL:              v.GetString("redis.url"),
		ModelBaseURL:          v.GetString("model.base_url"),
		ModelAPIKey:           v.GetString("model.api_key"),
		ModelID:               v.GetString("model.id"),
		ModelTimeout:          modelTimeout,
		ModelMaxRetries:       v.GetInt("model.max_retries"),
		ModelRetryBackoff:     retryBackoff,
		GenerationTemperature: float32(v.GetFloat64("generation.temperature")),
		GenerationMaxTokens:   v.GetInt("generation.max_tokens"),
		ContextTokenBudget:    v.GetInt("generation.context_token_budget"),
		ValidationTemperature: float32(v.GetFloat64("validation.temperature")),
		ValidationMaxTokens:   v.GetInt("validation.max_tokens"),
		Stages:                stages,
		PassThresholdDefault:  v.GetFloat64("validation.pass_threshold"),
		DisabledStrategies:    splitList(v.GetString("extraction.disabled_strategies")),
		CompletionCacheTTL:    cacheTTL,
		MaxConcurrentRuns:     v.GetInt64("max_concurrent_runs"),
	}

	if cfg.ModelMaxRetries < 0 {
		cfg.ModelMaxRetries = 0
	}

	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}

	if cfg.ContextTokenBudget <= 0 {
		cfg.ContextTokenBudget = 1500
	}

	return cfg, nil
}

// parseStages decodes the ordered stage descriptor list from its JSON form.
// An empty value falls back to the default stage sequence.
func parseStages(raw string) ([]models.StageDescriptor, error) {
	if strings.TrimSpace(raw) == "" {
		return models.DefaultStages(), nil
	}

	var stages []models.StageDescriptor
	if err := json.Unmarshal([]byte(raw), &stages); err != nil {
		return nil, fmt.Errorf("invalid validation stages: %w", err)
	}

	if len(stages) == 0 {
		return models.DefaultStages(), nil
	}

	for _, stage := range stages {
		if stage.Name == "" {
			return nil, fmt.Errorf("invalid validation stages: stage name must not be empty")
		}
		if stage.Weight < 0 {
			return nil, fmt.Errorf("invalid validation stages: stage %q has negative weight", stage.Name)
		}
	}

	return stages, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
