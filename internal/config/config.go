// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/trinistocks/pipeline/internal/utils"
)

// Config holds application configuration. It is built once at startup and
// passed down explicitly; nothing reads the environment after Load.
type Config struct {
	DBDriver string // sqlite or mysql
	DBDSN    string
	CacheDir string // PDF/JSON/CSV report cache, always absolute

	LogLevel         string
	LogPretty        bool
	LogFile          string
	LogMailThreshold int
	SMTP             SMTPConfig

	ExchangeBaseURL   string
	FXBaseURL         string
	PahoIndexURL      string
	AggregatorBaseURL string
	BrokerIndexURL    string
	ReportsDir        string
	CovidCountry      string

	ProxyListURL       string
	UseBrowser         bool
	StaticHosts        []string
	FetchRatePerSecond float64
	FetchTimeout       time.Duration
	FetchAttempts      int

	Archive ArchiveConfig

	PushgatewayURL string
	StatusPort     int
	ScraperBinary  string
	Workers        int // 0 means one per CPU
}

// SMTPConfig holds the relay used for the exit-time error report.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// ArchiveConfig holds the S3-compatible bucket mirroring the report cache.
type ArchiveConfig struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cacheDir := getEnv("TRINISTOCKS_CACHE_DIR", "")
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "trinistocks")
	}
	absCacheDir, err := filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	if err := os.MkdirAll(absCacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cfg := &Config{
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", filepath.Join(absCacheDir, "trinistocks.db")),
		CacheDir: absCacheDir,

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", true),
		LogFile:          getEnv("LOG_FILE", ""),
		LogMailThreshold: getEnvAsInt("LOG_MAIL_THRESHOLD", 1),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			To:       getEnvAsList("SMTP_TO"),
		},

		ExchangeBaseURL:   getEnv("EXCHANGE_BASE_URL", "https://www.stockex.co.tt"),
		FXBaseURL:         getEnv("FX_BASE_URL", "https://api.exchangerate-api.com/v4/latest"),
		PahoIndexURL:      getEnv("PAHO_INDEX_URL", "https://www.paho.org/en/situation-reports"),
		AggregatorBaseURL: getEnv("AGGREGATOR_BASE_URL", "https://raw.githubusercontent.com/trinistocks/covid-19-data/master/daily_reports"),
		BrokerIndexURL:    getEnv("BROKER_INDEX_URL", "https://www.bmcl.co.tt/daily-market-reports"),
		ReportsDir:        getEnv("REPORTS_DIR", filepath.Join(absCacheDir, "statements")),
		CovidCountry:      getEnv("COVID_COUNTRY", "Trinidad and Tobago"),

		ProxyListURL:       getEnv("PROXY_LIST_URL", ""),
		UseBrowser:         getEnvAsBool("USE_BROWSER", false),
		StaticHosts:        getEnvAsList("STATIC_HOSTS"),
		FetchRatePerSecond: getEnvAsFloat("FETCH_RATE_PER_SECOND", 2),
		FetchTimeout:       getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchAttempts:      getEnvAsInt("FETCH_ATTEMPTS", 3),

		Archive: ArchiveConfig{
			Bucket:    getEnv("ARCHIVE_BUCKET", ""),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
			Region:    getEnv("ARCHIVE_REGION", "auto"),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Prefix:    getEnv("ARCHIVE_PREFIX", "reports"),
		},

		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
		StatusPort:     getEnvAsInt("STATUS_PORT", 8089),
		ScraperBinary:  getEnv("SCRAPER_BINARY", "scraper"),
		Workers:        getEnvAsInt("WORKERS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("FETCH_ATTEMPTS must be at least 1")
	}
	if c.FetchRatePerSecond <= 0 {
		return fmt.Errorf("FETCH_RATE_PER_SECOND must be positive")
	}
	return nil
}

// PDFCacheDir is where downloaded PDF reports live.
func (c *Config) PDFCacheDir() string { return filepath.Join(c.CacheDir, "pdf") }

// JSONCacheDir is where aggregator JSON files live.
func (c *Config) JSONCacheDir() string { return filepath.Join(c.CacheDir, "json") }

// CSVCacheDir is where parsed report records are kept as CSV.
func (c *Config) CSVCacheDir() string { return filepath.Join(c.CacheDir, "csv") }

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	return utils.ParseCSV(os.Getenv(key))
}
