package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/favorites"
	"github.com/i474232898/weather-favorites/internal/forecast"
	"github.com/i474232898/weather-favorites/internal/graph"
	"github.com/i474232898/weather-favorites/internal/store"
	"github.com/i474232898/weather-favorites/internal/weather"
	"github.com/i474232898/weather-favorites/internal/weather/providers"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubForecaster struct{ err error }

func (stubForecaster) Name() string { return "stub" }

func (s stubForecaster) Forecast(context.Context, float64, float64) ([]weather.TimeseriesEntry, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	out := make([]weather.TimeseriesEntry, 36)
	for i := range out {
		out[i] = weather.TimeseriesEntry{
			Time:         now.Add(time.Duration(i) * time.Hour),
			TemperatureC: float64(i % 10),
			Condition:    weather.ConditionRain,
		}
	}
	return out, now, nil
}

type stubSun struct{}

func (stubSun) SunTimes(_ context.Context, _, _ float64, date time.Time) (weather.SunTimes, error) {
	return weather.SunTimes{Date: date.Format(weather.DateLayout)}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Search(_ context.Context, q string) ([]weather.Place, error) {
	return []weather.Place{{ID: "7", Name: q, DisplayName: q, Lat: 59.9, Lon: 10.7}}, nil
}

func newTestApp(t *testing.T, forecastErr error) *fiber.App {
	t.Helper()
	kv := store.NewMemoryStore()
	ttl := cache.NewTTL(kv, cache.WithClock(func() time.Time { return now }))
	svc := forecast.NewService(forecast.Deps{
		Forecasters: []weather.ForecastProvider{stubForecaster{err: forecastErr}},
		Sun:         stubSun{},
		Geocoder:    stubGeocoder{},
		Cache:       cache.NewManager(ttl, cache.DefaultTTLPolicy(), time.Minute),
		Graphs:      graph.NewCache(ttl, time.Hour),
		Now:         func() time.Time { return now },
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{
		Service:       svc,
		Favorites:     favorites.New(kv),
		CleanupMaxAge: 24 * time.Hour,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func favoriteNames(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["favorites"].([]any)
	require.True(t, ok)
	names := make([]string, 0, len(list))
	for _, item := range list {
		names = append(names, item.(map[string]any)["name"].(string))
	}
	return names
}

func TestFavoritesLifecycle(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodPost, "/api/v1/favorites", `{"id":"1","name":"Oslo","lat":59.91,"lon":10.75}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "osm:1", body["key"])

	status, body = do(t, app, http.MethodPost, "/api/v1/favorites", `{"id":"osm:1","name":"Oslo again","lat":0,"lon":0}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["added"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/favorites", `{"name":"Bergen","lat":60.39,"lon":5.32}`)
	assert.Equal(t, http.StatusCreated, status)

	status, body = do(t, app, http.MethodPost, "/api/v1/favorites/move?lat=60.39&lon=5.32&direction=up", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Bergen", "Oslo"}, favoriteNames(t, body))

	_, body = do(t, app, http.MethodGet, "/api/v1/favorites/check?id=1", "")
	assert.Equal(t, true, body["favorite"])

	status, _ = do(t, app, http.MethodDelete, "/api/v1/favorites?id=osm:1", "")
	assert.Equal(t, http.StatusNoContent, status)

	_, body = do(t, app, http.MethodGet, "/api/v1/favorites", "")
	assert.Equal(t, []string{"Bergen"}, favoriteNames(t, body))
}

func TestFavoritesValidation(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := do(t, app, http.MethodPost, "/api/v1/favorites", `{"name":"","lat":1,"lon":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, true, body["error"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/favorites/move?id=1&direction=sideways", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodGet, "/api/v1/favorites/check", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, http.MethodGet, "/api/v1/favorites/check?lat=95&lon=1", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOnboarding(t *testing.T) {
	app := newTestApp(t, nil)

	_, body := do(t, app, http.MethodGet, "/api/v1/onboarding", "")
	assert.Equal(t, true, body["firstTimeUser"])

	status, _ := do(t, app, http.MethodPost, "/api/v1/onboarding", "")
	assert.Equal(t, http.StatusOK, status)

	_, body = do(t, app, http.MethodGet, "/api/v1/onboarding", "")
	assert.Equal(t, false, body["firstTimeUser"])
}

func TestSearchLocations(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := do(t, app, http.MethodGet, "/api/v1/locations/search", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodGet, "/api/v1/locations/search?q=Oslo", "")
	require.Equal(t, http.StatusOK, status)
	places := body["places"].([]any)
	require.Len(t, places, 1)
	assert.Equal(t, "7", places[0].(map[string]any)["id"])
}

func TestForecastEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := do(t, app, http.MethodGet, "/api/v1/forecast?id=1", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodGet, "/api/v1/forecast?lat=59.91&lon=10.75", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "coord:59.910,10.750", body["location"])
	assert.Len(t, body["days"], 2)
}

func TestForecastUpstreamErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		retry  bool
	}{
		{fmt.Errorf("%w after 3 attempts", providers.ErrTransient), http.StatusServiceUnavailable, true},
		{providers.ErrCircuitOpen, http.StatusServiceUnavailable, true},
		{fmt.Errorf("%w: missing properties", providers.ErrInvalidResponse), http.StatusBadGateway, false},
		{fmt.Errorf("%w: status 403", providers.ErrClient), http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newTestApp(t, tc.err)
			status, body := do(t, app, http.MethodGet, "/api/v1/forecast?lat=1&lon=2", "")
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.retry, body["retry"])
		})
	}
}

func TestGraphEndpointAndCacheAdmin(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := do(t, app, http.MethodGet, "/api/v1/graph?lat=1&lon=2&mode=sideways", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodGet, "/api/v1/graph?id=1&name=Oslo&lat=59.9&lon=10.7&hours=6", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body["markdown"], "## Oslo, next 6 hours")

	status, _ = do(t, app, http.MethodGet, "/api/v1/graph?id=1&name=Oslo&lat=59.9&lon=10.7&mode=summary&palette=dark", "")
	require.Equal(t, http.StatusOK, status)

	_, body = do(t, app, http.MethodGet, "/api/v1/cache/stats", "")
	graphs := body["graphs"].(map[string]any)
	assert.EqualValues(t, 2, graphs["count"])

	_, body = do(t, app, http.MethodDelete, "/api/v1/cache/graphs?mode=summary", "")
	assert.EqualValues(t, 1, body["removed"])

	_, body = do(t, app, http.MethodDelete, "/api/v1/cache/graphs?location=osm:1", "")
	assert.EqualValues(t, 1, body["removed"])

	status, _ = do(t, app, http.MethodDelete, "/api/v1/cache/graphs", "")
	assert.Equal(t, http.StatusBadRequest, status)

	_, body = do(t, app, http.MethodPost, "/api/v1/cache/cleanup?maxAge=1h", "")
	assert.EqualValues(t, 0, body["removed"])

	status, _ = do(t, app, http.MethodPost, "/api/v1/cache/cleanup?maxAge=soon", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClearCache(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := do(t, app, http.MethodGet, "/api/v1/forecast?id=1&lat=59.9&lon=10.7", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodDelete, "/api/v1/cache", "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = do(t, app, http.MethodDelete, "/api/v1/cache?prefix=bogus:", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := do(t, app, http.MethodDelete, "/api/v1/cache?prefix=weather:", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["removed"])
}
