package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Facility   FacilityConfig   `yaml:"facility"`
	Booking    BookingConfig    `yaml:"booking"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Environment string `yaml:"environment"` // "production" or "development"
}

// FacilityConfig describes where the library is.
type FacilityConfig struct {
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// BookingConfig holds reservation rules that vary per deployment.
type BookingConfig struct {
	HorizonDays              int           `yaml:"horizon_days"`
	InitialStatus            string        `yaml:"initial_status"`
	CommitTimeoutSeconds     int           `yaml:"commit_timeout_seconds"`
	CommitTimeout            time.Duration `yaml:"-"`
	StrictGeneralSpaceShifts bool          `yaml:"strict_general_space_shifts"`
	IdempotencyTTLHours      int           `yaml:"idempotency_ttl_hours"`
	IdempotencyTTL           time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableConstraints      bool   `yaml:"enable_constraints"`
	LogLevel               string `yaml:"log_level"`
}

// AuthConfig controls how the caller identity is read.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	UserHeader string `yaml:"user_header"`
	RoleHeader string `yaml:"role_header"`
}

// InventoryConfig holds the upstream inventory sync configuration.
type InventoryConfig struct {
	Enabled         bool             `yaml:"enabled"`
	IntervalSeconds int              `yaml:"interval_seconds"`
	Interval        time.Duration    `yaml:"-"` // Ignored by YAML parser
	HTTPProxy       string           `yaml:"http_proxy"`
	Request         InventoryRequest `yaml:"request"`
}

// InventoryRequest defines the HTTP request for the inventory sync.
type InventoryRequest struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"pageSize"`
	Payload  map[string]any    `yaml:"payload"`
}

// SweeperConfig controls the background status sweeper.
type SweeperConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path. Values from a local .env
// file and the process environment override secrets in the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, using process environment")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"DATABASE_DRIVER":   &cfg.Database.Driver,
		"DATABASE_DSN":      &cfg.Database.DSN,
		"AUTH_JWT_SECRET":   &cfg.Auth.JWTSecret,
		"VAPID_PUBLIC_KEY":  &cfg.Push.PublicKey,
		"VAPID_PRIVATE_KEY": &cfg.Push.PrivateKey,
		"APP_ENV":           &cfg.Log.Environment,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 15
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}

	if cfg.Facility.Timezone == "" {
		cfg.Facility.Timezone = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(cfg.Facility.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Facility.Timezone, err)
	}
	cfg.Facility.Location = loc

	if cfg.Booking.HorizonDays <= 0 {
		cfg.Booking.HorizonDays = 90
	}
	switch cfg.Booking.InitialStatus {
	case "":
		cfg.Booking.InitialStatus = "confirmed"
	case "pending", "confirmed":
	default:
		return fmt.Errorf("booking.initial_status must be pending or confirmed, got %q", cfg.Booking.InitialStatus)
	}
	if cfg.Booking.CommitTimeoutSeconds <= 0 {
		cfg.Booking.CommitTimeoutSeconds = 5
	}
	cfg.Booking.CommitTimeout = time.Duration(cfg.Booking.CommitTimeoutSeconds) * time.Second
	if cfg.Booking.IdempotencyTTLHours <= 0 {
		cfg.Booking.IdempotencyTTLHours = 24
	}
	cfg.Booking.IdempotencyTTL = time.Duration(cfg.Booking.IdempotencyTTLHours) * time.Hour

	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Auth.UserHeader == "" {
		cfg.Auth.UserHeader = "X-User-ID"
	}
	if cfg.Auth.RoleHeader == "" {
		cfg.Auth.RoleHeader = "X-User-Role"
	}

	if cfg.Inventory.IntervalSeconds <= 0 {
		cfg.Inventory.IntervalSeconds = 300
	}
	cfg.Inventory.Interval = time.Duration(cfg.Inventory.IntervalSeconds) * time.Second
	if cfg.Inventory.Request.PageSize <= 0 {
		cfg.Inventory.Request.PageSize = 100
	}

	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 60
	}
	cfg.Sweeper.Interval = time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return nil
}
