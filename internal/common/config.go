// Package common provides shared utilities for the screener
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the screener
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Parser      ParserConfig  `toml:"parser"`
	Screen      ScreenConfig  `toml:"screen"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig selects and configures the bar store.
// Backend "surrealdb" also enables the parse audit sink; "file" reads JSON bars from DataPath.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	DataPath  string `toml:"data_path"`
}

// ParserConfig configures the model fallback tier of the query parser.
// Providers are tried strictly in the order listed.
type ParserConfig struct {
	AttemptTimeout string           `toml:"attempt_timeout"`
	RateLimit      int              `toml:"rate_limit"` // requests per second, per provider client
	MaxTokens      int              `toml:"max_tokens"`
	Providers      []ProviderConfig `toml:"providers"`
}

// GetAttemptTimeout parses and returns the per-provider timeout
func (c *ParserConfig) GetAttemptTimeout() time.Duration {
	d, err := time.ParseDuration(c.AttemptTimeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

// ProviderConfig describes one model candidate.
type ProviderConfig struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"` // "openai" (any OpenAI-compatible endpoint) or "gemini"
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APIKeyEnv string `toml:"api_key_env"`
}

// ResolveAPIKey returns the configured key, falling back to the named environment variable.
func (p *ProviderConfig) ResolveAPIKey() (string, error) {
	if p.APIKey != "" {
		return p.APIKey, nil
	}
	if p.APIKeyEnv != "" {
		if v := os.Getenv(p.APIKeyEnv); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("API key for provider '%s' not found in config or environment", p.Name)
}

// ScreenConfig holds screening limits
type ScreenConfig struct {
	MinBars    int `toml:"min_bars"`
	MaxResults int `toml:"max_results"`
	Workers    int `toml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Format   string   `toml:"format"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Storage: StorageConfig{
			Backend:   "file",
			Address:   "ws://localhost:8000/rpc",
			Namespace: "vire",
			Database:  "screener",
			Username:  "root",
			Password:  "root",
			DataPath:  "data/bars",
		},
		Parser: ParserConfig{
			AttemptTimeout: "20s",
			RateLimit:      2,
			MaxTokens:      400,
			Providers: []ProviderConfig{
				{
					Name:      "kimi",
					Kind:      "openai",
					Model:     "moonshotai/kimi-k2-instruct",
					BaseURL:   "https://api.novita.ai/v3/openai",
					APIKeyEnv: "NOVITA_API_KEY",
				},
				{
					Name:      "gemini",
					Kind:      "gemini",
					Model:     "gemini-2.0-flash",
					APIKeyEnv: "GEMINI_API_KEY",
				},
			},
		},
		Screen: ScreenConfig{
			MinBars:    50,
			MaxResults: 50,
			Workers:    4,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"console"},
		},
	}
}

// LoadConfig loads configuration from files with .env and environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// a file that lists providers replaces the list rather than extending it
		prev := config.Parser.Providers
		config.Parser.Providers = nil
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if config.Parser.Providers == nil {
			config.Parser.Providers = prev
		}
	}

	// .env next to the config (or working dir) supplies provider keys; real env wins
	loadDotEnv(paths...)

	applyEnvOverrides(config)

	return config, nil
}

// loadDotEnv loads .env files without overriding variables already set.
func loadDotEnv(paths ...string) {
	candidates := []string{".env"}
	for _, p := range paths {
		if p != "" {
			candidates = append(candidates, filepath.Join(filepath.Dir(p), ".env"))
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			_ = godotenv.Load(c)
		}
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("VIRE_SCREENER_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("VIRE_SCREENER_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("VIRE_SCREENER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("VIRE_SCREENER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("VIRE_SCREENER_STORAGE"); backend != "" {
		config.Storage.Backend = strings.ToLower(backend)
	}
	if addr := os.Getenv("VIRE_SCREENER_SURREAL_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}
	if path := os.Getenv("VIRE_SCREENER_DATA_PATH"); path != "" {
		config.Storage.DataPath = path
	}

	if t := os.Getenv("VIRE_SCREENER_ATTEMPT_TIMEOUT"); t != "" {
		config.Parser.AttemptTimeout = t
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the list of config problems that prevent startup.
// An empty provider list is allowed: the parser then runs on pattern rules only.
func (c *Config) ValidateRequired() []string {
	var missing []string
	switch c.Storage.Backend {
	case "file":
		if c.Storage.DataPath == "" {
			missing = append(missing, "storage.data_path")
		}
	case "surrealdb":
		if c.Storage.Address == "" {
			missing = append(missing, "storage.address")
		}
	default:
		missing = append(missing, "storage.backend (file|surrealdb)")
	}
	for i, p := range c.Parser.Providers {
		if p.Name == "" {
			missing = append(missing, fmt.Sprintf("parser.providers[%d].name", i))
		}
		if p.Model == "" {
			missing = append(missing, fmt.Sprintf("parser.providers[%d].model", i))
		}
		if p.Kind != "openai" && p.Kind != "gemini" {
			missing = append(missing, fmt.Sprintf("parser.providers[%d].kind (openai|gemini)", i))
		}
	}
	return missing
}
