// Package config loads the furniture-lead application configuration on top
// of the reusable core configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	coreconfig "github.com/m3rciful/mebelbot/core/config"
	coredatabase "github.com/m3rciful/mebelbot/core/database"
	"github.com/m3rciful/mebelbot/internal/pricing"
	"github.com/m3rciful/mebelbot/internal/session"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = coredatabase.DriverPostgres
	DriverSQLite   = coredatabase.DriverSQLite
)

// StorageConfig selects where leads and sessions live.
type StorageConfig struct {
	Leads      string        `yaml:"leads" envconfig:"STORAGE_LEADS"`
	Sessions   string        `yaml:"sessions" envconfig:"STORAGE_SESSIONS"`
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`

	// LeadRetention removes processed and deleted leads untouched for that
	// long; 0 keeps everything.
	LeadRetention time.Duration `yaml:"lead_retention" envconfig:"LEAD_RETENTION"`
}

// RedisConfig points at the Redis server used by the redis drivers.
type RedisConfig struct {
	URL       string `yaml:"url" envconfig:"REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// HTTPConfig configures the public and admin HTTP API.
type HTTPConfig struct {
	Listen      string   `yaml:"listen" envconfig:"HTTP_LISTEN"`
	CORSOrigins []string `yaml:"cors_origins" envconfig:"HTTP_CORS_ORIGINS"`
	// PublicRatePerMinute limits form submissions per client IP; 0 -> default.
	PublicRatePerMinute int `yaml:"public_rate_per_minute" envconfig:"HTTP_PUBLIC_RATE_PER_MINUTE"`
}

// AdminConfig protects the admin panel.
type AdminConfig struct {
	// PasswordHash is a bcrypt hash; an empty value disables the admin API.
	PasswordHash string        `yaml:"password_hash" envconfig:"ADMIN_PASSWORD_HASH"`
	JWTSecret    string        `yaml:"jwt_secret" envconfig:"ADMIN_JWT_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" envconfig:"ADMIN_TOKEN_TTL"`
}

// Enabled reports whether admin login is configured.
func (a AdminConfig) Enabled() bool { return a.PasswordHash != "" }

// BusinessConfig holds customer-facing details.
type BusinessConfig struct {
	CompanyName   string `yaml:"company_name" envconfig:"BUSINESS_COMPANY_NAME"`
	FallbackPhone string `yaml:"fallback_phone" envconfig:"BUSINESS_FALLBACK_PHONE"`
	PhoneRegion   string `yaml:"phone_region" envconfig:"BUSINESS_PHONE_REGION"`

	// Timezone is used for timestamps shown to operators.
	Timezone string `yaml:"timezone" envconfig:"BUSINESS_TIMEZONE"`
}

// EmailConfig enables the optional e-mail operator channel.
type EmailConfig struct {
	Host     string   `yaml:"host" envconfig:"SMTP_HOST"`
	Port     int      `yaml:"port" envconfig:"SMTP_PORT"`
	Username string   `yaml:"username" envconfig:"SMTP_USERNAME"`
	Password string   `yaml:"password" envconfig:"SMTP_PASSWORD"`
	From     string   `yaml:"from" envconfig:"SMTP_FROM"`
	To       []string `yaml:"to" envconfig:"SMTP_TO"`
}

// Enabled reports whether an SMTP host and recipients are configured.
func (e EmailConfig) Enabled() bool { return e.Host != "" && len(e.To) > 0 }

// AppConfig is the complete application configuration.
type AppConfig struct {
	coreconfig.Config `yaml:",inline"`

	Storage  StorageConfig       `yaml:"storage"`
	Database coredatabase.Config `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	HTTP     HTTPConfig          `yaml:"http"`
	Admin    AdminConfig         `yaml:"admin"`
	Business BusinessConfig      `yaml:"business"`
	Email    EmailConfig         `yaml:"email"`
	// Pricing overrides entries of the built-in price table.
	Pricing pricing.Table `yaml:"pricing" ignored:"true"`
}

// CoreConfig exposes the embedded core configuration.
func (c *AppConfig) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads .env (when present), the YAML file at path and the environment,
// then validates the result.
func Load(path string) (*AppConfig, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DotEnvPath is the optional dotenv file read by Load.
var DotEnvPath = ".env"

// loadDotEnv tolerates a missing file but not a malformed one.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Leads = strings.ToLower(strings.TrimSpace(cfg.Storage.Leads))
	if cfg.Storage.Leads == "" {
		cfg.Storage.Leads = DriverMemory
	}
	switch cfg.Storage.Leads {
	case DriverMemory, DriverRedis, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid storage.leads %q; allowed: memory, redis, postgres, sqlite", cfg.Storage.Leads)
	}
	cfg.Storage.Sessions = strings.ToLower(strings.TrimSpace(cfg.Storage.Sessions))
	if cfg.Storage.Sessions == "" {
		cfg.Storage.Sessions = DriverMemory
	}
	switch cfg.Storage.Sessions {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("invalid storage.sessions %q; allowed: memory, redis", cfg.Storage.Sessions)
	}
	if cfg.Storage.SessionTTL <= 0 {
		cfg.Storage.SessionTTL = session.DefaultTTL
	}
	if cfg.Storage.LeadRetention < 0 {
		return fmt.Errorf("storage.lead_retention must be >= 0")
	}
	if cfg.UsesRedis() && strings.TrimSpace(cfg.Redis.URL) == "" {
		return fmt.Errorf("redis.url is required for the redis storage driver")
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "mebel:"
	}
	if cfg.Storage.Leads == DriverPostgres && (cfg.Database.Host == "" || cfg.Database.Name == "") {
		return fmt.Errorf("database.host and database.name are required for the postgres driver")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.HTTP.PublicRatePerMinute <= 0 {
		cfg.HTTP.PublicRatePerMinute = 10
	}

	if cfg.Admin.Enabled() {
		if len(cfg.Admin.JWTSecret) < 16 {
			return fmt.Errorf("admin.jwt_secret must be at least 16 characters")
		}
		if !strings.HasPrefix(cfg.Admin.PasswordHash, "$2") {
			return fmt.Errorf("admin.password_hash must be a bcrypt hash")
		}
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}

	if cfg.Business.CompanyName == "" {
		cfg.Business.CompanyName = "Мебель на заказ"
	}
	if cfg.Business.FallbackPhone == "" {
		return fmt.Errorf("business.fallback_phone is required")
	}
	if cfg.Business.PhoneRegion == "" {
		cfg.Business.PhoneRegion = "RU"
	}
	if cfg.Business.Timezone == "" {
		cfg.Business.Timezone = "Europe/Moscow"
	}
	if _, err := time.LoadLocation(cfg.Business.Timezone); err != nil {
		return fmt.Errorf("invalid business.timezone %q: %w", cfg.Business.Timezone, err)
	}

	if cfg.Email.Enabled() {
		if cfg.Email.From == "" {
			return fmt.Errorf("email.from is required when email.host is set")
		}
		if cfg.Email.Port == 0 {
			cfg.Email.Port = 587
		}
	}

	table := pricing.DefaultTable().Merge(cfg.Pricing)
	if err := table.Validate(); err != nil {
		return fmt.Errorf("invalid pricing table: %w", err)
	}
	cfg.Pricing = table
	return nil
}

// UsesRedis reports whether any storage driver needs Redis.
func (c *AppConfig) UsesRedis() bool {
	return c.Storage.Leads == DriverRedis || c.Storage.Sessions == DriverRedis
}

// Location returns the business timezone; call after Normalize.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Business.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SQLDriver returns the SQL driver for lead storage, or "" when leads are not in SQL.
func (c *AppConfig) SQLDriver() string {
	switch c.Storage.Leads {
	case DriverPostgres, DriverSQLite:
		return c.Storage.Leads
	}
	return ""
}
