// Package config handles application configuration using Viper: defaults,
// an optional YAML file, and LISTING_-prefixed environment variables, merged
// in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sellkit/listing-pipeline/internal/usage"
)

// Config is the root configuration struct.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Vision    VisionConfig    `mapstructure:"vision"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	TextGen   TextGenConfig   `mapstructure:"textgen"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ProviderConfig is the shared shape for one external provider. Priority 1
// is tried first; zero values fall back to the provider's built-in defaults.
type ProviderConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	Model         string  `mapstructure:"model"`
	Priority      int     `mapstructure:"priority"`
	CostPerCall   float64 `mapstructure:"cost_per_call"`
	RatePerMinute int     `mapstructure:"rate_per_minute"`
}

type VisionConfig struct {
	GoogleVision ProviderConfig `mapstructure:"googlevision"`
	Gemini       ProviderConfig `mapstructure:"gemini"`
	OpenAI       ProviderConfig `mapstructure:"openai"`
}

type PricingConfig struct {
	SerpAPI   ProviderConfig `mapstructure:"serpapi"`
	UPCItemDB ProviderConfig `mapstructure:"upcitemdb"`
}

// TextGenConfig controls the content generation backends. ProviderOrder is
// the fallback order: first entry is primary.
type TextGenConfig struct {
	ProviderOrder []string       `mapstructure:"provider_order"`
	Anthropic     ProviderConfig `mapstructure:"anthropic"`
	OpenAI        ProviderConfig `mapstructure:"openai"`
}

// CacheConfig sets the memoization TTLs. Vision results are deterministic
// per image so they keep the longest TTL; market prices drift daily;
// identifier lookups are stable for a month.
type CacheConfig struct {
	VisionTTL     time.Duration `mapstructure:"vision_ttl"`
	PricingTTL    time.Duration `mapstructure:"pricing_ttl"`
	IdentifierTTL time.Duration `mapstructure:"identifier_ttl"`
}

type UsageConfig struct {
	Alerts []usage.AlertConfig `mapstructure:"alerts"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.database_path", "./storage/listing-pipeline.db")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("vision.googlevision.priority", 1)
	v.SetDefault("vision.googlevision.cost_per_call", 0.006)
	v.SetDefault("vision.gemini.priority", 2)
	v.SetDefault("vision.gemini.cost_per_call", 0.002)
	v.SetDefault("vision.gemini.model", "gemini-2.5-flash")
	v.SetDefault("vision.openai.priority", 3)
	v.SetDefault("vision.openai.cost_per_call", 0.01)
	v.SetDefault("vision.openai.model", "gpt-4o")

	v.SetDefault("pricing.serpapi.priority", 1)
	v.SetDefault("pricing.serpapi.cost_per_call", 0.015)
	v.SetDefault("pricing.upcitemdb.priority", 2)
	v.SetDefault("pricing.upcitemdb.cost_per_call", 0.005)

	v.SetDefault("textgen.provider_order", []string{"anthropic", "openai"})
	v.SetDefault("textgen.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("textgen.anthropic.cost_per_call", 0.02)
	v.SetDefault("textgen.openai.model", "gpt-4o")
	v.SetDefault("textgen.openai.cost_per_call", 0.015)

	v.SetDefault("cache.vision_ttl", "168h")
	v.SetDefault("cache.pricing_ttl", "24h")
	v.SetDefault("cache.identifier_ttl", "720h")

	v.SetDefault("log.level", "info")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// A missing config file is fine when the path was not explicit; defaults
	// plus environment variables are a complete configuration.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// LISTING_ prefix + nested keys: LISTING_SERVER_PORT=9090 → server.port.
	v.SetEnvPrefix("LISTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Address returns the listen address string like "0.0.0.0:8080".
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
