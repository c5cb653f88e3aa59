// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrInvalidHorizon is returned by ParseHorizon for non-positive or
// non-integer input.
var ErrInvalidHorizon = errors.New("config: invalid forecast horizon")

type Config struct {
	App      AppConfig
	Log      LogConfig
	Forecast ForecastConfig
	Pricing  PricingConfig
}

type AppConfig struct {
	Port        string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	RedisURL    string        `envconfig:"REDIS_URL"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"30s" validate:"gte=0"`
	AutoMigrate bool          `envconfig:"AUTO_MIGRATE" default:"false"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text console"`
	File   string `envconfig:"LOG_FILE"`
}

type ForecastConfig struct {
	HorizonDays    int           `envconfig:"FORECAST_HORIZON_DAYS" default:"30" validate:"min=1"`
	Model          string        `envconfig:"FORECAST_MODEL" default:"holt" validate:"oneof=holt moving_average linear"`
	FillPolicy     string        `envconfig:"FORECAST_FILL_POLICY" default:"forward" validate:"oneof=forward zero linear"`
	MaxHistoryDays int           `envconfig:"FORECAST_MAX_HISTORY_DAYS" default:"0" validate:"min=0"`
	MAWindow       int           `envconfig:"FORECAST_MA_WINDOW" default:"7" validate:"min=1"`
	CacheTTL       time.Duration `envconfig:"FORECAST_CACHE_TTL" default:"5m" validate:"gte=0"`
}

type PricingConfig struct {
	GridSize   int     `envconfig:"PRICING_GRID_SIZE" default:"50" validate:"min=2"`
	Elasticity float64 `envconfig:"PRICING_ELASTICITY" default:"-1.2"`
	Workers    int     `envconfig:"PRICING_WORKERS" default:"8" validate:"min=1"`
	MaxBatch   int     `envconfig:"PRICING_MAX_BATCH" default:"1000" validate:"min=1"`
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv parses and validates the process environment without touching
// .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// ParseHorizon converts a caller-supplied horizon. Empty input yields def.
func ParseHorizon(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidHorizon, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidHorizon, n)
	}
	return n, nil
}
