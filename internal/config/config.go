package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the errtrack server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Ingest   IngestConfig   `yaml:"ingest"`
	AI       AIConfig       `yaml:"ai"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the storage backend. Driver "memory" keeps all data
// in process and needs no URL.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MigrationsDir   string        `yaml:"migrations_dir"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional; without a URL, rate limiting runs in process and
// API-key lookups are not cached.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type IngestConfig struct {
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	APIKeyCacheTTL     time.Duration `yaml:"api_key_cache_ttl"`
	StoreTimeout       time.Duration `yaml:"store_timeout"`
}

// AIConfig selects the language model behind the help assistant. Provider
// "none" answers from built-in keyword responses only.
type AIConfig struct {
	Provider         string          `yaml:"provider"`
	InferenceTimeout time.Duration   `yaml:"inference_timeout"`
	OpenAI           OpenAIConfig    `yaml:"openai"`
	Ollama           OllamaConfig    `yaml:"ollama"`
	Anthropic        AnthropicConfig `yaml:"anthropic"`
}

// OpenAIConfig covers any OpenAI-compatible chat completions endpoint
// (OpenAI, Groq, vLLM).
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

var validProviders = map[string]bool{
	ProviderNone:      true,
	ProviderOpenAI:    true,
	ProviderOllama:    true,
	ProviderAnthropic: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Env:             "development",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MigrationsDir:   "migrations",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "errtrack",
			TokenTTL: 24 * time.Hour,
		},
		Ingest: IngestConfig{
			RateLimitPerMinute: 600,
			APIKeyCacheTTL:     5 * time.Minute,
			StoreTimeout:       5 * time.Second,
		},
		AI: AIConfig{
			Provider:         ProviderNone,
			InferenceTimeout: 30 * time.Second,
			OpenAI: OpenAIConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama-3.1-8b-instant",
			},
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3",
			},
			Anthropic: AnthropicConfig{
				BaseURL: "https://api.anthropic.com",
				Model:   "claude-sonnet-4-5-20250929",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// ERRTRACK_CONFIG_FILE (if set), then environment variables, and validates it.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("ERRTRACK_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("ERRTRACK_PORT", c.Server.Port)
	c.Server.Env = envString("ERRTRACK_ENV", c.Server.Env)
	c.Server.ShutdownTimeout = envDuration("ERRTRACK_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = envString("DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MigrationsDir = envString("DATABASE_MIGRATIONS_DIR", c.Database.MigrationsDir)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.Auth.JWTSecret = envString("ERRTRACK_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = envString("ERRTRACK_JWT_ISSUER", c.Auth.Issuer)
	c.Auth.TokenTTL = envDuration("ERRTRACK_JWT_TTL", c.Auth.TokenTTL)

	c.Ingest.RateLimitPerMinute = envInt("ERRTRACK_RATE_LIMIT_PER_MINUTE", c.Ingest.RateLimitPerMinute)
	c.Ingest.APIKeyCacheTTL = envDuration("ERRTRACK_API_KEY_CACHE_TTL", c.Ingest.APIKeyCacheTTL)
	c.Ingest.StoreTimeout = envDuration("ERRTRACK_STORE_TIMEOUT", c.Ingest.StoreTimeout)

	c.AI.Provider = strings.ToLower(envString("AI_PROVIDER", c.AI.Provider))
	c.AI.InferenceTimeout = envDuration("AI_INFERENCE_TIMEOUT", c.AI.InferenceTimeout)
	c.AI.OpenAI.BaseURL = envString("OPENAI_BASE_URL", c.AI.OpenAI.BaseURL)
	c.AI.OpenAI.APIKey = envString("OPENAI_API_KEY", c.AI.OpenAI.APIKey)
	c.AI.OpenAI.Model = envString("OPENAI_MODEL", c.AI.OpenAI.Model)
	c.AI.Ollama.BaseURL = envString("OLLAMA_BASE_URL", c.AI.Ollama.BaseURL)
	c.AI.Ollama.Model = envString("OLLAMA_MODEL", c.AI.Ollama.Model)
	c.AI.Anthropic.BaseURL = envString("ANTHROPIC_BASE_URL", c.AI.Anthropic.BaseURL)
	c.AI.Anthropic.APIKey = envString("ANTHROPIC_API_KEY", c.AI.Anthropic.APIKey)
	c.AI.Anthropic.Model = envString("ANTHROPIC_MODEL", c.AI.Anthropic.Model)

	c.Log.Level = strings.ToLower(envString("ERRTRACK_LOG_LEVEL", c.Log.Level))
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ERRTRACK_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER is postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, memory; got %q", c.Database.Driver)
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("ERRTRACK_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("ERRTRACK_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("ERRTRACK_JWT_TTL must be positive")
	}

	if c.Ingest.RateLimitPerMinute <= 0 {
		return fmt.Errorf("ERRTRACK_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Ingest.RateLimitPerMinute)
	}
	if c.Ingest.StoreTimeout <= 0 {
		return fmt.Errorf("ERRTRACK_STORE_TIMEOUT must be positive")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of none, openai, ollama, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == ProviderOpenAI && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == ProviderAnthropic && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT must be positive")
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("ERRTRACK_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
