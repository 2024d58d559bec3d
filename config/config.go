package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Database configuration
	DatabaseDriver string
	DatabaseURL    string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration; empty means an in-process cache
	MemcacheAddr string

	// Renderer configuration
	Renderer          string
	BrowserBin        string
	NavigationTimeout time.Duration
	HostDelay         time.Duration
	BotUserAgent      string
	BrowserLocale     string

	// Extraction configuration
	DefaultCurrency string
	TemplatesFile   string

	// Refresh worker configuration
	RefreshSchedule    string
	RefreshConcurrency int

	// HTTP adapter configuration
	APIAddr        string
	APIRateLimit   float64
	AllowedOrigins []string

	// BoardGameGeek client configuration
	BGGBaseURL  string
	BGGRate     time.Duration
	BGGCacheTTL time.Duration

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "10000"))
	navTimeout, _ := strconv.Atoi(getEnv("NAVIGATION_TIMEOUT_SECONDS", "45"))
	hostDelay, _ := strconv.Atoi(getEnv("HOST_DELAY_MS", "5000"))
	concurrency, _ := strconv.Atoi(getEnv("REFRESH_CONCURRENCY", "1"))
	apiRateLimit, _ := strconv.ParseFloat(getEnv("API_RATE_LIMIT", "2"), 64)
	bggRate, _ := strconv.Atoi(getEnv("BGG_RATE_MS", "1100"))
	bggCacheTTL, _ := strconv.Atoi(getEnv("BGG_CACHE_TTL_SECONDS", "60"))

	return Config{
		DatabaseDriver:       getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "price-observations"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLength,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		Renderer:             getEnv("RENDERER", "browser"),
		BrowserBin:           getEnv("BROWSER_BIN", ""),
		NavigationTimeout:    time.Duration(navTimeout) * time.Second,
		HostDelay:            time.Duration(hostDelay) * time.Millisecond,
		BotUserAgent:         getEnv("BOT_USER_AGENT", "PriceBot/1.0 (+contact@ludo2go.cl)"),
		BrowserLocale:        getEnv("BROWSER_LOCALE", "es-CL"),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", "CLP"),
		TemplatesFile:        getEnv("TEMPLATES_FILE", ""),
		RefreshSchedule:      getEnv("REFRESH_SCHEDULE", "0 0 */12 * * *"),
		RefreshConcurrency:   concurrency,
		APIAddr:              getEnv("API_ADDR", ""),
		APIRateLimit:         apiRateLimit,
		AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		BGGBaseURL:           getEnv("BGG_BASE_URL", "https://boardgamegeek.com/xmlapi2"),
		BGGRate:              time.Duration(bggRate) * time.Millisecond,
		BGGCacheTTL:          time.Duration(bggCacheTTL) * time.Second,
		Environment:          getEnv("PRICEWATCH_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the services cannot start with
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want postgres or sqlite)", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	switch c.Renderer {
	case "browser", "http":
	default:
		return fmt.Errorf("unsupported RENDERER %q (want browser or http)", c.Renderer)
	}

	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation timeout must be greater than 0")
	}
	if c.HostDelay < 0 {
		return fmt.Errorf("host delay cannot be negative")
	}
	if c.RefreshConcurrency < 1 {
		return fmt.Errorf("refresh concurrency must be at least 1")
	}
	if c.RedisStreamCount < 1 {
		return fmt.Errorf("redis stream count must be at least 1")
	}
	if c.BotUserAgent == "" {
		return fmt.Errorf("bot user agent cannot be empty")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default currency must be a 3-letter ISO code, got %q", c.DefaultCurrency)
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("api rate limit must be greater than 0")
	}

	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
