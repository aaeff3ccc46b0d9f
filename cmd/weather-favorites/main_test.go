package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-favorites/internal/config"
	"github.com/i474232898/weather-favorites/internal/favorites"
)

func memoryConfig() *config.AppConfig {
	return &config.AppConfig{
		Port:               "0",
		StoreDriver:        config.DriverMemory,
		HTTPTimeout:        time.Second,
		HTTPMaxRetries:     0,
		HTTPBackoffInitial: time.Millisecond,
		HTTPBackoffMax:     time.Millisecond,
		UserAgent:          "test",
		MemoryCacheTTL:     time.Minute,
		WeatherCacheTTL:    time.Minute,
		SunriseCacheTTL:    time.Minute,
		GraphCacheTTL:      time.Minute,
		LocationCacheTTL:   time.Minute,
		GraphCleanupMaxAge: time.Hour,
	}
}

func execute(t *testing.T, comp *components, args ...string) string {
	t.Helper()
	c := newCLI(func() (*components, error) { return comp, nil })
	var out bytes.Buffer
	c.root.SetArgs(args)
	c.root.SetOut(&out)
	c.root.SetErr(&out)
	require.NoError(t, c.root.ExecuteContext(context.Background()))
	return out.String()
}

func TestFavoritesList(t *testing.T) {
	comp, err := wire(memoryConfig())
	require.NoError(t, err)

	_, err = comp.favorites.Add(context.Background(), favorites.Location{ID: "12", Name: "Oslo", Lat: 59.91, Lon: 10.75})
	require.NoError(t, err)

	out := execute(t, comp, "favorites", "list")
	assert.Contains(t, out, "osm:12")
	assert.Contains(t, out, "Oslo")
}

func TestCacheCommands(t *testing.T) {
	comp, err := wire(memoryConfig())
	require.NoError(t, err)
	ctx := context.Background()
	comp.service.Cache().Set(ctx, "weather:osm:1", map[string]int{"t": 1})
	comp.service.Cache().Set(ctx, "location:oslo", []string{})

	out := execute(t, comp, "cache", "stats")
	assert.Contains(t, out, `"weather:"`)
	assert.Contains(t, out, `"graphs"`)

	out = execute(t, comp, "cache", "clear", "--prefix", "weather:")
	assert.Contains(t, out, "removed 1 entries")

	out = execute(t, comp, "cache", "cleanup", "--max-age", "1h")
	assert.Contains(t, out, "removed 0 graphs older than 1h0m0s")

	out = execute(t, comp, "cache", "clear")
	assert.Contains(t, out, "removed 1 entries")
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "postgres"
	_, err := wire(cfg)
	assert.Error(t, err)
}
