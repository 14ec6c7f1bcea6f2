// Package config loads ukcgt settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/etnz/cgt/fx"
	"github.com/etnz/cgt/fx/ecb"
	"github.com/etnz/cgt/fx/hmrc"
	"github.com/joho/godotenv"
)

// Config holds the application settings.
type Config struct {
	DBPath           string        // sqlite rate cache
	Strategy         fx.Strategy   // initially active rate strategy
	LogLevel         string        // debug, info, warn, error
	LogPretty        bool          // console output instead of JSON
	HMRCBaseURL      string        // HMRC rates service
	ECBBaseURL       string        // ECB data API
	HTTPTimeout      time.Duration // per request
	FetchConcurrency int           // concurrent rate resolutions
	HTTPDiskCache    bool          // cache HTTP responses on disk
	HTTPCacheDir     string        // disk cache location, the temp dir when empty

	// Warnings lists the invalid values replaced by defaults. They are
	// reported once the logger exists.
	Warnings []string
}

// Load reads the .env files, "./.env" when none is given, then the
// environment. A missing .env file is not an error.
func Load(envFiles ...string) Config {
	_ = godotenv.Load(envFiles...)

	c := Config{
		DBPath:       getEnv("CGT_DB_PATH", "cgt-rates.db"),
		LogLevel:     getEnv("CGT_LOG_LEVEL", "info"),
		HMRCBaseURL:  getEnv("CGT_HMRC_BASE_URL", hmrc.DefaultBaseURL),
		ECBBaseURL:   getEnv("CGT_ECB_BASE_URL", ecb.DefaultBaseURL),
		HTTPCacheDir: getEnv("CGT_HTTP_CACHE_DIR", ""),
	}
	c.LogPretty = c.getEnvAsBool("CGT_LOG_PRETTY", true)
	c.HTTPDiskCache = c.getEnvAsBool("CGT_HTTP_DISK_CACHE", true)
	c.HTTPTimeout = c.getEnvAsDuration("CGT_HTTP_TIMEOUT", 20*time.Second)
	c.FetchConcurrency = c.getEnvAsInt("CGT_FETCH_CONCURRENCY", 4)
	if c.FetchConcurrency < 1 {
		c.warn("CGT_FETCH_CONCURRENCY", strconv.Itoa(c.FetchConcurrency), "4")
		c.FetchConcurrency = 4
	}

	raw := getEnv("CGT_STRATEGY", fx.Monthly.String())
	s, err := fx.ParseStrategy(raw)
	if err != nil {
		c.warn("CGT_STRATEGY", raw, fx.Monthly.String())
	}
	c.Strategy = s
	return c
}

func (c *Config) warn(key, value, fallback string) {
	c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s value %q, using default %s", key, value, fallback))
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func (c *Config) getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	c.warn(key, valueStr, strconv.Itoa(fallback))
	return fallback
}

func (c *Config) getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	c.warn(key, valueStr, fallback.String())
	return fallback
}

func (c *Config) getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	c.warn(key, valueStr, strconv.FormatBool(fallback))
	return fallback
}
