// Package config loads server configuration from defaults, an optional YAML
// file and BUILDING_LEDGER_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BUILDING_LEDGER_"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CORS     CORSConfig     `yaml:"cors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Billing  BillingConfig  `yaml:"billing"`
	Audit    AuditConfig    `yaml:"audit"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BillingConfig bounds the unpaid-apartment pagination window.
type BillingConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// AuditConfig schedules the periodic pre-debt drift audit.
type AuditConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "./data/ledger.db",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Metrics: MetricsConfig{Enabled: true},
		Billing: BillingConfig{DefaultPageSize: 20, MaxPageSize: 200},
		Audit:   AuditConfig{Enabled: true, Interval: time.Hour},
	}
}

// Load reads .env (if present), then the YAML file at path (skipped when
// path is empty), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	var err error
	if v, ok := lookup("PORT"); ok {
		if cfg.Server.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("READ_TIMEOUT"); ok {
		if cfg.Server.ReadTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%sREAD_TIMEOUT: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("WRITE_TIMEOUT"); ok {
		if cfg.Server.WriteTimeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%sWRITE_TIMEOUT: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("DB_DRIVER"); ok {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v, ok := lookup("DB_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = splitCSV(v)
	}
	if v, ok := lookup("METRICS_ENABLED"); ok {
		if cfg.Metrics.Enabled, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%sMETRICS_ENABLED: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("DEFAULT_PAGE_SIZE"); ok {
		if cfg.Billing.DefaultPageSize, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%sDEFAULT_PAGE_SIZE: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("MAX_PAGE_SIZE"); ok {
		if cfg.Billing.MaxPageSize, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%sMAX_PAGE_SIZE: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("AUDIT_ENABLED"); ok {
		if cfg.Audit.Enabled, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("%sAUDIT_ENABLED: %w", envPrefix, err)
		}
	}
	if v, ok := lookup("AUDIT_INTERVAL"); ok {
		if cfg.Audit.Interval, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("%sAUDIT_INTERVAL: %w", envPrefix, err)
		}
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database dsn required")
	}
	if c.Billing.DefaultPageSize <= 0 || c.Billing.MaxPageSize < c.Billing.DefaultPageSize {
		return fmt.Errorf("config: page sizes must satisfy 0 < default (%d) <= max (%d)",
			c.Billing.DefaultPageSize, c.Billing.MaxPageSize)
	}
	if c.Audit.Enabled && c.Audit.Interval <= 0 {
		return fmt.Errorf("config: audit interval must be positive, got %s", c.Audit.Interval)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
