// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. .env file (optional, loaded into the environment first)
//  2. YAML file (config.yaml)
//  3. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	params, err := cfg.Reconciliation.Params()
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Config represents the entire application configuration
type Config struct {
	Storage        StorageConfig        `yaml:"storage"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	API            APIConfig            `yaml:"api"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ReconciliationConfig holds matching and reconciliation thresholds.
// Money values are decimal strings so they never pass through float64.
type ReconciliationConfig struct {
	Tolerance              string  `yaml:"tolerance"`
	LargeVarianceThreshold string  `yaml:"large_variance_threshold"`
	FuzzyDateWindowDays    int     `yaml:"fuzzy_date_window_days"`
	SimilarityThreshold    float64 `yaml:"similarity_threshold"`
	NSFFee                 string  `yaml:"nsf_fee"`
	AutoPost               bool    `yaml:"auto_post"`
}

// ReconciliationParams are the parsed reconciliation settings
type ReconciliationParams struct {
	Tolerance              decimal.Decimal
	LargeVarianceThreshold decimal.Decimal
	FuzzyDateWindowDays    int
	SimilarityThreshold    float64
	NSFFee                 decimal.Decimal
	AutoPost               bool
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	ReportCacheTTL string   `yaml:"report_cache_ttl"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default values
const (
	DefaultDatabasePath           = "propledger.db"
	DefaultTolerance              = "0.01"
	DefaultLargeVarianceThreshold = "5000.00"
	DefaultFuzzyDateWindowDays    = 5
	DefaultSimilarityThreshold    = 0.6
	DefaultNSFFee                 = "35.00"
	DefaultPort                   = 8085
	DefaultReportCacheTTL         = "5m"
)

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${PROPLEDGER_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("PROPLEDGER_DB_PATH", DefaultDatabasePath),
		},
		Reconciliation: ReconciliationConfig{
			Tolerance:              getEnv("RECON_TOLERANCE", DefaultTolerance),
			LargeVarianceThreshold: getEnv("RECON_LARGE_VARIANCE_THRESHOLD", DefaultLargeVarianceThreshold),
			FuzzyDateWindowDays:    getEnvInt("RECON_FUZZY_DATE_WINDOW_DAYS", DefaultFuzzyDateWindowDays),
			SimilarityThreshold:    getEnvFloat("RECON_SIMILARITY_THRESHOLD", DefaultSimilarityThreshold),
			NSFFee:                 getEnv("RECON_NSF_FEE", DefaultNSFFee),
			AutoPost:               getEnv("RECON_AUTO_POST", "false") == "true",
		},
		API: APIConfig{
			Port:           getEnvInt("API_PORT", DefaultPort),
			AllowedOrigins: splitList(os.Getenv("API_ALLOWED_ORIGINS")),
			RateLimitRPS:   getEnvFloat("API_RATE_LIMIT_RPS", 0),
			RateLimitBurst: getEnvInt("API_RATE_LIMIT_BURST", 0),
			ReportCacheTTL: getEnv("API_REPORT_CACHE_TTL", DefaultReportCacheTTL),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables.
// A .env file in the working directory is loaded first when present; it never
// overrides variables that are already set.
func LoadOrEnv_WithPath(path string) *Config {
	_ = godotenv.Load()

	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = DefaultDatabasePath
	}

	r := &c.Reconciliation
	if r.Tolerance == "" {
		r.Tolerance = DefaultTolerance
	}
	if r.LargeVarianceThreshold == "" {
		r.LargeVarianceThreshold = DefaultLargeVarianceThreshold
	}
	if r.FuzzyDateWindowDays <= 0 {
		r.FuzzyDateWindowDays = DefaultFuzzyDateWindowDays
	}
	if r.SimilarityThreshold <= 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if r.NSFFee == "" {
		r.NSFFee = DefaultNSFFee
	}

	if c.API.Port == 0 {
		c.API.Port = DefaultPort
	}
	if c.API.ReportCacheTTL == "" {
		c.API.ReportCacheTTL = DefaultReportCacheTTL
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Params parses the decimal settings
func (r ReconciliationConfig) Params() (ReconciliationParams, error) {
	tolerance, err := money.Parse(r.Tolerance)
	if err != nil {
		return ReconciliationParams{}, fmt.Errorf("reconciliation.tolerance: %w", err)
	}
	threshold, err := money.Parse(r.LargeVarianceThreshold)
	if err != nil {
		return ReconciliationParams{}, fmt.Errorf("reconciliation.large_variance_threshold: %w", err)
	}
	fee, err := money.Parse(r.NSFFee)
	if err != nil {
		return ReconciliationParams{}, fmt.Errorf("reconciliation.nsf_fee: %w", err)
	}

	return ReconciliationParams{
		Tolerance:              tolerance,
		LargeVarianceThreshold: threshold,
		FuzzyDateWindowDays:    r.FuzzyDateWindowDays,
		SimilarityThreshold:    r.SimilarityThreshold,
		NSFFee:                 fee,
		AutoPost:               r.AutoPost,
	}, nil
}

// CacheTTL parses the report cache TTL, falling back to the default
func (a APIConfig) CacheTTL() time.Duration {
	d, err := time.ParseDuration(a.ReportCacheTTL)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultReportCacheTTL)
	}
	return d
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		var result float64
		if _, err := fmt.Sscanf(val, "%g", &result); err == nil {
			return result
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
