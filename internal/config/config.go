package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rl1809/shop-stock/internal/core/domain"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
	BackendSQLite = "sqlite"
)

const (
	AdjustModeAtomic    = "atomic"
	AdjustModeLastWrite = "last-write"
)

// Config is the process configuration, read once at startup.
type Config struct {
	AppID            string        `env:"STOCK_APP_ID"             envDefault:"default-app-id"`
	Backend          string        `env:"STOCK_BACKEND"            envDefault:"memory"`
	RedisAddr        string        `env:"STOCK_REDIS_ADDR"`
	MySQLDSN         string        `env:"STOCK_MYSQL_DSN"`
	SQLitePath       string        `env:"STOCK_SQLITE_PATH"`
	PollInterval     time.Duration `env:"STOCK_POLL_INTERVAL"      envDefault:"1s"`
	AuthSecret       string        `env:"STOCK_AUTH_SECRET"`
	InitialAuthToken string        `env:"STOCK_INITIAL_AUTH_TOKEN"`
	ReorderPoint     int           `env:"STOCK_REORDER_POINT"      envDefault:"5"`
	AdjustMode       string        `env:"STOCK_ADJUST_MODE"        envDefault:"atomic"`
	HTTPAddr         string        `env:"STOCK_HTTP_ADDR"          envDefault:":8080"`
	GRPCAddr         string        `env:"STOCK_GRPC_ADDR"          envDefault:":50051"`
	OTelEndpoint     string        `env:"STOCK_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, domain.WrapError(domain.KindConfiguration, "parse env", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.AppID = strings.TrimSpace(c.AppID)
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	c.AdjustMode = strings.ToLower(strings.TrimSpace(c.AdjustMode))
	c.RedisAddr = strings.TrimSpace(c.RedisAddr)
	c.MySQLDSN = strings.TrimSpace(c.MySQLDSN)
	c.SQLitePath = strings.TrimSpace(c.SQLitePath)
}

func (c Config) Validate() error {
	if c.AppID == "" {
		return configError("STOCK_APP_ID is required")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return configError("STOCK_REDIS_ADDR is required for the redis backend")
		}
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return configError("STOCK_MYSQL_DSN is required for the mysql backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return configError("STOCK_SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return configError(fmt.Sprintf("unknown backend %q", c.Backend))
	}

	switch c.AdjustMode {
	case AdjustModeAtomic, AdjustModeLastWrite:
	default:
		return configError(fmt.Sprintf("unknown adjust mode %q", c.AdjustMode))
	}

	if c.ReorderPoint < 0 {
		return configError("STOCK_REORDER_POINT must not be negative")
	}
	if c.PollInterval <= 0 {
		return configError("STOCK_POLL_INTERVAL must be positive")
	}
	if c.InitialAuthToken != "" && c.AuthSecret == "" {
		return configError("STOCK_AUTH_SECRET is required when STOCK_INITIAL_AUTH_TOKEN is set")
	}
	return nil
}

func configError(message string) error {
	return domain.NewError(domain.KindConfiguration, message)
}
