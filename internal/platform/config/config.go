// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store engines.
const (
	EngineMemory   = "memory"
	EnginePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Lookup      LookupConfig
	Reaction    ReactionConfig
	Log         LogConfig
	CatalogPath string
	CORSOrigins []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// StoreConfig selects where KCs and history live.
type StoreConfig struct {
	Engine string // "memory" or "postgres"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis settings for lookup caching.
type CacheConfig struct {
	Enabled bool
	URL     string
	TTL     time.Duration
}

// LookupConfig holds credentials and limits for the external providers.
type LookupConfig struct {
	OpenCageAPIKey    string
	OpenWeatherAPIKey string
	GoogleAPIKey      string
	Timeout           time.Duration
}

// ReactionConfig tunes the task decision engine.
type ReactionConfig struct {
	RadiusMeters int
	HotF         float64
	Language     string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEARN_SERVER_PORT", 8080),
			Host: envStr("LEARN_SERVER_HOST", "0.0.0.0"),
		},
		Store: StoreConfig{
			Engine: strings.ToLower(envStr("LEARN_STORE_ENGINE", EngineMemory)),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			Enabled: envBool("LEARN_CACHE_ENABLED", false),
			URL:     envStr("LEARN_CACHE_URL", "redis://localhost:6379"),
			TTL:     envDuration("LEARN_CACHE_TTL", 10*time.Minute),
		},
		Lookup: LookupConfig{
			OpenCageAPIKey:    envStr("LEARN_GEOCODING_OPENCAGE_API_KEY", os.Getenv("OPENCAGE_API_KEY")),
			OpenWeatherAPIKey: envStr("LEARN_WEATHER_OPENWEATHER_API_KEY", os.Getenv("OPENWEATHER_API_KEY")),
			GoogleAPIKey:      envStr("LEARN_PLACES_GOOGLE_API_KEY", os.Getenv("GOOGLE_API_KEY")),
			Timeout:           envDuration("LEARN_LOOKUP_TIMEOUT", 12*time.Second),
		},
		Reaction: ReactionConfig{
			RadiusMeters: envInt("LEARN_REACTION_RADIUS_METERS", 1000),
			HotF:         envFloat("LEARN_REACTION_HOT_F", 96),
			Language:     envStr("LEARN_REACTION_LANGUAGE", "es"),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
		CatalogPath: envStr("LEARN_CATALOG_PATH", ""),
		CORSOrigins: envList("LEARN_CORS_ORIGINS", []string{"*"}),
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Engine {
	case EngineMemory:
	case EnginePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("LEARN_DATABASE_URL is required when LEARN_STORE_ENGINE is %q", EnginePostgres)
		}
	default:
		return fmt.Errorf("LEARN_STORE_ENGINE must be 'memory' or 'postgres', got %q", c.Store.Engine)
	}

	if c.Reaction.RadiusMeters <= 0 {
		return fmt.Errorf("LEARN_REACTION_RADIUS_METERS must be positive, got %d", c.Reaction.RadiusMeters)
	}

	if c.Reaction.HotF <= 0 {
		return fmt.Errorf("LEARN_REACTION_HOT_F must be positive, got %v", c.Reaction.HotF)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.Lookup.Timeout <= 0 {
		return fmt.Errorf("LEARN_LOOKUP_TIMEOUT must be positive, got %s", c.Lookup.Timeout)
	}

	return nil
}

// UsePostgres reports whether stores are backed by PostgreSQL.
func (c *Config) UsePostgres() bool {
	return c.Store.Engine == EnginePostgres
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
