package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/creatorpulse/backend/internal/domain"
)

const (
	CatalogTypeHTTP   = "http"
	CatalogTypeAmazon = "amazon"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Log      LogConfig                `mapstructure:"log"`
	Database DatabaseConfig           `mapstructure:"database"`
	Cache    CacheConfig              `mapstructure:"cache"`
	Matching MatchingConfig           `mapstructure:"matching"`
	Run      RunConfig                `mapstructure:"run"`
	Catalogs map[string]CatalogConfig `mapstructure:"catalogs"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig holds the persistence settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
	// MaxEntries bounds the memory cache
	MaxEntries int `mapstructure:"max_entries"`
}

// MatchingConfig holds the scoring weights and thresholds
type MatchingConfig struct {
	BrandWeight float64 `mapstructure:"brand_weight"`
	TitleWeight float64 `mapstructure:"title_weight"`
	PriceWeight float64 `mapstructure:"price_weight"`

	TitleCosineWeight float64 `mapstructure:"title_cosine_weight"`
	TitleEditWeight   float64 `mapstructure:"title_edit_weight"`
	PriceTolerance    float64 `mapstructure:"price_tolerance"`

	CategoryGateThreshold float64 `mapstructure:"category_gate_threshold"`
	MinConfidence         int     `mapstructure:"min_confidence"`
	HighTierMin           int     `mapstructure:"high_tier_min"`
	MediumTierMin         int     `mapstructure:"medium_tier_min"`

	BrandTitleBrandMin float64 `mapstructure:"brand_title_brand_min"`
	BrandTitleTitleMin float64 `mapstructure:"brand_title_title_min"`
	FuzzyTitleMin      float64 `mapstructure:"fuzzy_title_min"`

	DefaultTopN int           `mapstructure:"default_top_n"`
	PendingTTL  time.Duration `mapstructure:"pending_ttl"`
}

// RunConfig holds matching run concurrency and retry settings
type RunConfig struct {
	Workers         int           `mapstructure:"workers"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	RateWaitTimeout time.Duration `mapstructure:"rate_wait_timeout"`
	SearchLimit     int           `mapstructure:"search_limit"`
}

// CatalogConfig describes one marketplace catalog and its shared rate budget
type CatalogConfig struct {
	Type              string        `mapstructure:"type"` // "http" or "amazon"
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Currency          string        `mapstructure:"currency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/creatorpulse/")

	// CREATORPULSE_SERVER_PORT overrides server.port
	v.SetEnvPrefix("CREATORPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile exports the variables of ./.env that are not already set. A missing file is fine.
func loadEnvFile() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("log.level", "info")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:creatorpulse.db?_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.max_entries", 10000)

	// Matching defaults
	v.SetDefault("matching.brand_weight", 0.3)
	v.SetDefault("matching.title_weight", 0.5)
	v.SetDefault("matching.price_weight", 0.2)
	v.SetDefault("matching.title_cosine_weight", 0.6)
	v.SetDefault("matching.title_edit_weight", 0.4)
	v.SetDefault("matching.price_tolerance", 0.2)
	v.SetDefault("matching.category_gate_threshold", 0.85)
	v.SetDefault("matching.min_confidence", 30)
	v.SetDefault("matching.high_tier_min", 85)
	v.SetDefault("matching.medium_tier_min", 60)
	v.SetDefault("matching.brand_title_brand_min", 0.8)
	v.SetDefault("matching.brand_title_title_min", 0.7)
	v.SetDefault("matching.fuzzy_title_min", 0.5)
	v.SetDefault("matching.default_top_n", 5)
	v.SetDefault("matching.pending_ttl", "336h") // 14 days

	// Run defaults
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.max_attempts", 4)
	v.SetDefault("run.base_backoff", "500ms")
	v.SetDefault("run.rate_wait_timeout", "10s")
	v.SetDefault("run.search_limit", 20)

	// Catalog defaults
	v.SetDefault("catalogs.amazon.type", CatalogTypeAmazon)
	v.SetDefault("catalogs.amazon.base_url", "https://www.amazon.com")
	v.SetDefault("catalogs.amazon.api_key", "")
	v.SetDefault("catalogs.amazon.currency", "USD")
	v.SetDefault("catalogs.amazon.requests_per_second", 1)
	v.SetDefault("catalogs.amazon.burst", 1)
	v.SetDefault("catalogs.amazon.timeout", "20s")

	v.SetDefault("catalogs.tiktok.type", CatalogTypeHTTP)
	v.SetDefault("catalogs.tiktok.base_url", "https://open-api.tiktokglobalshop.com")
	v.SetDefault("catalogs.tiktok.api_key", "")
	v.SetDefault("catalogs.tiktok.currency", "USD")
	v.SetDefault("catalogs.tiktok.requests_per_second", 5)
	v.SetDefault("catalogs.tiktok.burst", 5)
	v.SetDefault("catalogs.tiktok.timeout", "30s")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return fmt.Errorf("database driver must be 'postgres' or 'sqlite', got: %s", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set CREATORPULSE_DATABASE_DSN)")
	}

	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}
	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if err := validateMatching(config.Matching); err != nil {
		return err
	}

	if config.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1, got: %d", config.Run.Workers)
	}
	if config.Run.MaxAttempts < 1 {
		return fmt.Errorf("run.max_attempts must be at least 1, got: %d", config.Run.MaxAttempts)
	}

	if len(config.Catalogs) == 0 {
		return fmt.Errorf("at least one catalog must be configured")
	}
	for name, c := range config.Catalogs {
		if err := validateCatalog(name, c); err != nil {
			return err
		}
	}
	return nil
}

func validateMatching(m MatchingConfig) error {
	weights := map[string]float64{
		"brand_weight":            m.BrandWeight,
		"title_weight":            m.TitleWeight,
		"price_weight":            m.PriceWeight,
		"title_cosine_weight":     m.TitleCosineWeight,
		"title_edit_weight":       m.TitleEditWeight,
		"category_gate_threshold": m.CategoryGateThreshold,
		"brand_title_brand_min":   m.BrandTitleBrandMin,
		"brand_title_title_min":   m.BrandTitleTitleMin,
		"fuzzy_title_min":         m.FuzzyTitleMin,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("matching.%s must be within [0,1], got: %v", name, w)
		}
	}
	if sum := m.BrandWeight + m.TitleWeight + m.PriceWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("matching brand, title and price weights must sum to 1, got: %v", sum)
	}
	if sum := m.TitleCosineWeight + m.TitleEditWeight; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("matching title cosine and edit weights must sum to 1, got: %v", sum)
	}
	if m.PriceTolerance <= 0 {
		return fmt.Errorf("matching.price_tolerance must be positive, got: %v", m.PriceTolerance)
	}
	if m.MinConfidence < 0 || m.MinConfidence > 100 {
		return fmt.Errorf("matching.min_confidence must be within [0,100], got: %d", m.MinConfidence)
	}
	if m.MediumTierMin > m.HighTierMin || m.HighTierMin > 100 {
		return fmt.Errorf("matching tiers must satisfy medium <= high <= 100, got: %d/%d", m.MediumTierMin, m.HighTierMin)
	}
	if m.DefaultTopN < 1 {
		return fmt.Errorf("matching.default_top_n must be at least 1, got: %d", m.DefaultTopN)
	}
	return nil
}

func validateCatalog(name string, c CatalogConfig) error {
	if _, err := domain.ParsePlatform(name); err != nil {
		return fmt.Errorf("catalog %q is not a known marketplace", name)
	}
	if c.RequestsPerSecond <= 0 || c.Burst <= 0 {
		return fmt.Errorf("catalog %q needs a positive requests_per_second and burst", name)
	}
	switch c.Type {
	case CatalogTypeAmazon:
	case CatalogTypeHTTP:
		if c.BaseURL == "" {
			return fmt.Errorf("catalog %q needs a base_url", name)
		}
		if c.APIKey == "" {
			return fmt.Errorf("catalog %q API key is required (set CREATORPULSE_CATALOGS_%s_API_KEY)", name, strings.ToUpper(name))
		}
	default:
		return fmt.Errorf("catalog %q type must be 'http' or 'amazon', got: %s", name, c.Type)
	}
	return nil
}

// Platforms returns the configured marketplaces keyed by platform
func (c *Config) Platforms() map[domain.Platform]CatalogConfig {
	out := make(map[domain.Platform]CatalogConfig, len(c.Catalogs))
	for name, cat := range c.Catalogs {
		if p, err := domain.ParsePlatform(name); err == nil {
			out[p] = cat
		}
	}
	return out
}
