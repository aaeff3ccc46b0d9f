package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/weather/providers"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type AppConfig struct {
	Port string `env:"PORT" envDefault:"8080" validate:"required,numeric"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite" validate:"oneof=sqlite memory"`
	StorePath   string `env:"STORE_PATH" envDefault:"weather-favorites.db" validate:"required_if=StoreDriver sqlite"`

	// Outbound HTTP.
	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	HTTPMaxRetries     int           `env:"HTTP_MAX_RETRIES" envDefault:"2" validate:"gte=0,lte=10"`
	HTTPBackoffInitial time.Duration `env:"HTTP_BACKOFF_INITIAL" envDefault:"500ms" validate:"gt=0"`
	HTTPBackoffMax     time.Duration `env:"HTTP_BACKOFF_MAX" envDefault:"5s" validate:"gtefield=HTTPBackoffInitial"`
	UserAgent          string        `env:"USER_AGENT" envDefault:"weather-favorites/1.0 github.com/i474232898/weather-favorites" validate:"required"`

	// Base URLs, empty for the public endpoints.
	MetNoForecastURL string `env:"METNO_FORECAST_URL"`
	MetNoSunURL      string `env:"METNO_SUN_URL"`
	NominatimURL     string `env:"NOMINATIM_URL"`
	OpenMeteoURL     string `env:"OPENMETEO_URL"`

	// Cache lifetimes.
	MemoryCacheTTL   time.Duration `env:"MEMORY_CACHE_TTL" envDefault:"5m" validate:"gt=0"`
	WeatherCacheTTL  time.Duration `env:"WEATHER_CACHE_TTL" envDefault:"30m" validate:"gt=0"`
	SunriseCacheTTL  time.Duration `env:"SUNRISE_CACHE_TTL" envDefault:"12h" validate:"gt=0"`
	GraphCacheTTL    time.Duration `env:"GRAPH_CACHE_TTL" envDefault:"1h" validate:"gt=0"`
	LocationCacheTTL time.Duration `env:"LOCATION_CACHE_TTL" envDefault:"24h" validate:"gt=0"`

	// Housekeeping. PrefetchInterval 0 disables the warm-up job.
	GraphCleanupInterval time.Duration `env:"GRAPH_CLEANUP_INTERVAL" envDefault:"1h" validate:"gte=1m"`
	GraphCleanupMaxAge   time.Duration `env:"GRAPH_CLEANUP_MAX_AGE" envDefault:"24h" validate:"gt=0"`
	PrefetchInterval     time.Duration `env:"PREFETCH_INTERVAL" envDefault:"30m" validate:"eq=0|gte=1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads configuration from the environment, after loading .env when
// one exists.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (*AppConfig, error) {
	cfg, err := env.ParseAsWithOptions[AppConfig](opts)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// TTLPolicy returns the per-prefix cache lifetimes.
func (c *AppConfig) TTLPolicy() cache.TTLPolicy {
	return cache.TTLPolicy{
		Weather:  c.WeatherCacheTTL,
		Sunrise:  c.SunriseCacheTTL,
		Graph:    c.GraphCacheTTL,
		Location: c.LocationCacheTTL,
	}
}

// Backoff returns the retry settings of the upstream clients.
func (c *AppConfig) Backoff() providers.BackoffConfig {
	return providers.BackoffConfig{
		MaxRetries:      c.HTTPMaxRetries,
		InitialInterval: c.HTTPBackoffInitial,
		MaxInterval:     c.HTTPBackoffMax,
	}
}
