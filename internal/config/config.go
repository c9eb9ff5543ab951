package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the paper-trading service.
type Config struct {
	// Server
	Port      string
	JWTSecret string

	// Storage
	DataDir string

	// Market data
	UpstreamMarketURL string
	QuoteTimeout      time.Duration

	// Engine
	EngineInterval time.Duration
	DefaultSymbol  string

	// Environment: "development" allows synthetic market-data fallback,
	// "production" surfaces upstream errors.
	Env string

	// Optional event bus. Empty disables publishing.
	NatsURL string
}

// Load reads configuration from .env (if present) and the environment.
func Load() *Config {
	godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("UPSTREAM_MARKET_URL", "https://query1.finance.yahoo.com/v8/finance")
	v.SetDefault("QUOTE_TIMEOUT", "10s")
	v.SetDefault("ENGINE_INTERVAL", "60s")
	v.SetDefault("DEFAULT_SYMBOL", "AAPL")
	v.SetDefault("NODE_ENV", "development")
	v.SetDefault("NATS_URL", "")

	return &Config{
		Port:              v.GetString("PORT"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		DataDir:           v.GetString("DATA_DIR"),
		UpstreamMarketURL: v.GetString("UPSTREAM_MARKET_URL"),
		QuoteTimeout:      v.GetDuration("QUOTE_TIMEOUT"),
		EngineInterval:    v.GetDuration("ENGINE_INTERVAL"),
		DefaultSymbol:     v.GetString("DEFAULT_SYMBOL"),
		Env:               v.GetString("NODE_ENV"),
		NatsURL:           v.GetString("NATS_URL"),
	}
}

// IsDevelopment reports whether synthetic market data may be served when the
// upstream source is unavailable.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}
