package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gearrent/internal/models"
	"gearrent/internal/pricing"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig        `yaml:"app"`
	Database    DatabaseConfig   `yaml:"database"`
	Backup      BackupConfig     `yaml:"backup"`
	Redis       RedisConfig      `yaml:"redis"`
	Locking     LockingConfig    `yaml:"locking"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
	API         APIConfig        `yaml:"api"`
	Pricing     PricingConfig    `yaml:"pricing"`
	CatalogPath string           `yaml:"catalog_path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

const (
	DatabaseSQLite = "sqlite"
	DatabaseMemory = "memory"
)

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// LockingConfig selects how booking operations are serialized per equipment unit.
type LockingConfig struct {
	Backend      string        `yaml:"backend"`
	TTL          time.Duration `yaml:"ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// PricingConfig keeps percentages as strings so they reach decimal without a float detour.
type PricingConfig struct {
	MembershipDiscounts map[string]string `yaml:"membership_discounts"`
	LongRentalMinDays   int               `yaml:"long_rental_min_days"`
	LongRentalPercent   string            `yaml:"long_rental_percent"`
	MaxBookingDays      int               `yaml:"max_booking_days"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DatabaseSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DatabaseMemory:
		if c.Backup.Enabled {
			return errors.New("backups need the sqlite database driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup storage path is required")
	}

	switch c.Locking.Backend {
	case LockBackendMemory:
	case LockBackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("unknown lock backend %q", c.Locking.Backend)
	}

	if _, err := c.Pricing.ToPricing(); err != nil {
		return err
	}
	return nil
}

// ToPricing converts the section into a validated pricing.Config. Unset
// fields fall back to pricing.DefaultConfig.
func (p PricingConfig) ToPricing() (pricing.Config, error) {
	cfg := pricing.DefaultConfig()

	if p.LongRentalMinDays != 0 {
		cfg.LongRentalMinDays = p.LongRentalMinDays
	}
	if p.MaxBookingDays != 0 {
		cfg.MaxBookingDays = p.MaxBookingDays
	}
	if p.LongRentalPercent != "" {
		pct, err := decimal.NewFromString(p.LongRentalPercent)
		if err != nil {
			return pricing.Config{}, fmt.Errorf("invalid long_rental_percent %q: %w", p.LongRentalPercent, err)
		}
		cfg.LongRentalPercent = pct
	}
	for name, raw := range p.MembershipDiscounts {
		tier := models.MembershipTier(strings.ToUpper(name))
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return pricing.Config{}, fmt.Errorf("invalid membership discount for %s %q: %w", name, raw, err)
		}
		cfg.MembershipDiscounts[tier] = pct
	}

	if err := cfg.Validate(); err != nil {
		return pricing.Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "gearrent"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DatabaseSQLite
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = 5 * time.Second
	}
	if c.Locking.Backend == "" {
		c.Locking.Backend = LockBackendMemory
	}
	if c.Locking.TTL == 0 {
		c.Locking.TTL = 30 * time.Second
	}
	if c.Locking.PollInterval == 0 {
		c.Locking.PollInterval = 25 * time.Millisecond
	}
	if c.Locking.Retry.MaxRetries == 0 {
		c.Locking.Retry.MaxRetries = 3
	}
	if c.Locking.Retry.InitialDelay == 0 {
		c.Locking.Retry.InitialDelay = 20 * time.Millisecond
	}
	if c.Locking.Retry.MaxDelay == 0 {
		c.Locking.Retry.MaxDelay = 500 * time.Millisecond
	}
}
