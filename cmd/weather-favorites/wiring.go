package main

import (
	"fmt"
	"net/http"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/config"
	"github.com/i474232898/weather-favorites/internal/favorites"
	"github.com/i474232898/weather-favorites/internal/forecast"
	"github.com/i474232898/weather-favorites/internal/graph"
	"github.com/i474232898/weather-favorites/internal/store"
	"github.com/i474232898/weather-favorites/internal/weather"
	"github.com/i474232898/weather-favorites/internal/weather/providers"
)

// components is the wired application.
type components struct {
	cfg       *config.AppConfig
	service   *forecast.Service
	favorites *favorites.Store
	close     func() error
}

func openStore(cfg *config.AppConfig) (store.Store, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemoryStore(), func() error { return nil }, nil
	case config.DriverSQLite:
		s, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func wire(cfg *config.AppConfig) (*components, error) {
	kv, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.HTTPClientConfig{
		Client:    &http.Client{Timeout: cfg.HTTPTimeout},
		Backoff:   cfg.Backoff(),
		UserAgent: cfg.UserAgent,
	}

	ttl := cache.NewTTL(kv)
	svc := forecast.NewService(forecast.Deps{
		Forecasters: []weather.ForecastProvider{
			providers.NewMetNoForecastProvider(httpCfg, cfg.MetNoForecastURL),
			providers.NewOpenMeteoProvider(httpCfg, cfg.OpenMeteoURL),
		},
		Sun:      providers.NewMetNoSunProvider(httpCfg, cfg.MetNoSunURL),
		Geocoder: providers.NewNominatimGeocoder(httpCfg, cfg.NominatimURL),
		Cache:    cache.NewManager(ttl, cfg.TTLPolicy(), cfg.MemoryCacheTTL),
		Graphs:   graph.NewCache(ttl, cfg.GraphCacheTTL),
		Renderer: graph.MarkdownRenderer{},
	})

	return &components{
		cfg:       cfg,
		service:   svc,
		favorites: favorites.New(kv),
		close:     closeStore,
	}, nil
}
