package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	HistoryBackendCSV      = "csv"
	HistoryBackendPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	History  HistoryConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CheckCacheTTL   time.Duration
}

type ScraperConfig struct {
	ProductsFile string
	DelayMin     time.Duration
	DelayMax     time.Duration
	ProductPause time.Duration
	RetryEnabled bool
	MaxRetries   int
	RetryDelay   time.Duration
	// BlockFailOpen treats unreadable pages as not blocked.
	BlockFailOpen bool
	Scroll        bool
	NetworkIdle   time.Duration
	Seed          int64
	UserAgents    []string
}

type BrowserConfig struct {
	Engine         string
	Headless       bool
	Stealth        bool
	Timeout        time.Duration
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type HistoryConfig struct {
	Backend string
	File    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	AlertStream  string
	RelayEnabled bool
	RelayPoll    time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment after applying any .env
// file in the working directory. Variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CheckCacheTTL:   getDurationOrDefault("CHECK_CACHE_TTL", 10*time.Minute),
		},
		Scraper: ScraperConfig{
			ProductsFile:  getEnvOrDefault("PRODUCTS_FILE", "configs/products.yaml"),
			DelayMin:      getDurationOrDefault("SCRAPER_DELAY_MIN", 2*time.Second),
			DelayMax:      getDurationOrDefault("SCRAPER_DELAY_MAX", 4*time.Second),
			ProductPause:  getDurationOrDefault("SCRAPER_PRODUCT_PAUSE", 3*time.Second),
			RetryEnabled:  getBoolOrDefault("SCRAPER_RETRY_ENABLED", false),
			MaxRetries:    getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:    getDurationOrDefault("SCRAPER_RETRY_DELAY", 2*time.Second),
			BlockFailOpen: getBoolOrDefault("SCRAPER_BLOCK_FAIL_OPEN", true),
			Scroll:        getBoolOrDefault("SCRAPER_SCROLL", false),
			NetworkIdle:   getDurationOrDefault("SCRAPER_NETWORK_IDLE", 0),
			Seed:          int64(getIntOrDefault("SCRAPER_SEED", 0)),
			UserAgents:    getStringSliceOrDefault("SCRAPER_USER_AGENTS", nil),
		},
		Browser: BrowserConfig{
			Engine:         getEnvOrDefault("BROWSER_ENGINE", "chromium"),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Stealth:        getBoolOrDefault("BROWSER_STEALTH", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		History: HistoryConfig{
			Backend: strings.ToLower(getEnvOrDefault("HISTORY_BACKEND", HistoryBackendCSV)),
			File:    getEnvOrDefault("HISTORY_FILE", "data/price_history.csv"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "price_tracker"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 4),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", ""),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			AlertStream:  getEnvOrDefault("ALERT_STREAM", "stream:price_alerts"),
			RelayEnabled: getBoolOrDefault("RELAY_ENABLED", true),
			RelayPoll:    getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.DelayMin < 0 || c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("BROWSER_TIMEOUT must be positive")
	}

	switch c.Browser.Engine {
	case "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("BROWSER_ENGINE must be chromium, firefox or webkit, got %q", c.Browser.Engine)
	}

	switch c.History.Backend {
	case HistoryBackendCSV:
		if c.History.File == "" {
			return fmt.Errorf("HISTORY_FILE is required for the csv backend")
		}
	case HistoryBackendPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres backend")
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be csv or postgres, got %q", c.History.Backend)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, "|")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
