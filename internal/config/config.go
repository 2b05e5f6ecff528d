package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const (
	envPrefix     = "GATEWAY_"
	configFileEnv = "GATEWAY_CONFIG_FILE"

	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Primary   Primary         `koanf:"primary"`
	Server    ServerConfig    `koanf:"server"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Retry     RetryConfig     `koanf:"retry"`
	Registry  RegistryConfig  `koanf:"registry"`
	Database  DatabaseConfig  `koanf:"database" validate:"-"`
	Logger    LoggerConfig    `koanf:"logger"`
	Worker    WorkerConfig    `koanf:"worker"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port            string        `koanf:"port" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required"`
	ResourcePath    string        `koanf:"resource_path" validate:"required"`
	ResourceName    string        `koanf:"resource_name" validate:"required"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For and
	// X-Real-IP headers are believed. Everyone else is keyed by the socket address.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"omitempty,dive,cidr|ip"`
}

// LedgerConfig describes the payment contract and the network it lives on.
// Everything except RPCURL, ContractAddress and CallTimeout is advertised to
// clients in the 402 challenge.
type LedgerConfig struct {
	RPCURL          string        `koanf:"rpc_url" validate:"required,url"`
	ContractAddress string        `koanf:"contract_address" validate:"required"`
	ChainID         int64         `koanf:"chain_id" validate:"required"`
	Network         string        `koanf:"network" validate:"required"`
	NetworkName     string        `koanf:"network_name" validate:"required"`
	Currency        string        `koanf:"currency" validate:"required"`
	ExplorerURL     string        `koanf:"explorer_url"`
	CallTimeout     time.Duration `koanf:"call_timeout" validate:"required"`
	FallbackPrice   string        `koanf:"fallback_price" validate:"required,numeric"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxDelay   time.Duration `koanf:"max_delay"`
	MaxRetries int           `koanf:"max_retries"`
}

type RegistryConfig struct {
	Backend            string        `koanf:"backend" validate:"required,oneof=memory postgres"`
	TTL                time.Duration `koanf:"ttl" validate:"required"`
	ExpiredGrace       time.Duration `koanf:"expired_grace"`
	FulfilledRetention time.Duration `koanf:"fulfilled_retention"`
	MaxIDAttempts      int           `koanf:"max_id_attempts" validate:"required,min=1"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type LoggerConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

type WorkerConfig struct {
	Interval time.Duration `koanf:"interval" validate:"required"`
}

type RateLimitConfig struct {
	Enabled           bool          `koanf:"enabled"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	IdleTTL           time.Duration `koanf:"idle_ttl"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"primary.env": "development",

		"server.port":             "3000",
		"server.read_timeout":     "15s",
		"server.write_timeout":    "15s",
		"server.idle_timeout":     "60s",
		"server.request_timeout":  "30s",
		"server.shutdown_timeout": "30s",
		"server.resource_path":    "/api/premium-data",
		"server.resource_name":    "premium crypto market data",
		"server.allowed_origins":  []string{"*"},
		"server.trusted_proxies":  []string{},

		"ledger.rpc_url":        "https://testnet-rpc.plasma.to",
		"ledger.chain_id":       9746,
		"ledger.network":        "plasma-testnet",
		"ledger.network_name":   "Plasma Testnet",
		"ledger.currency":       "XPL",
		"ledger.explorer_url":   "https://testnet.plasmascan.to",
		"ledger.call_timeout":   "10s",
		"ledger.fallback_price": "0.01",

		"retry.base_delay":  "200ms",
		"retry.max_delay":   "2s",
		"retry.max_retries": 3,

		"registry.backend":             BackendMemory,
		"registry.ttl":                 "1h",
		"registry.expired_grace":       "1h",
		"registry.fulfilled_retention": "0s",
		"registry.max_id_attempts":     5,

		"database.port":               5432,
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     10,
		"database.max_idle_conns":     2,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"logger.level":  "info",
		"logger.format": "json",

		"worker.interval": "1m",

		"rate_limit.enabled":             true,
		"rate_limit.requests_per_second": 5.0,
		"rate_limit.burst":               20,
		"rate_limit.idle_ttl":            "10m",
	}
}

// LoadConfig layers defaults, an optional YAML file named by GATEWAY_CONFIG_FILE
// and GATEWAY_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load defaults", "error", err)
		return nil, err
	}

	if path := os.Getenv(configFileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			logger.Error("failed to load config file", "path", path, "error", err)
			return nil, err
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		if s == configFileEnv {
			return ""
		}
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	if err := mainConfig.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Registry.Backend == BackendPostgres {
		if err := validate.Struct(&c.Database); err != nil {
			return fmt.Errorf("database config required for postgres backend: %w", err)
		}
	}

	return nil
}

// NewLogger builds the process logger from the configured level and format.
func (c LoggerConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}

	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func (c LoggerConfig) level() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
