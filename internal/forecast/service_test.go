package forecast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/graph"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/store"
	"github.com/i474232898/weather-favorites/internal/weather"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeForecaster struct {
	name  string
	err   error
	n     int
	calls atomic.Int32
}

func (f *fakeForecaster) Name() string { return f.name }

func (f *fakeForecaster) Forecast(_ context.Context, _, _ float64) ([]weather.TimeseriesEntry, time.Time, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, time.Time{}, f.err
	}
	out := make([]weather.TimeseriesEntry, f.n)
	for i := range out {
		out[i] = weather.TimeseriesEntry{
			Time:         start.Add(time.Duration(i) * time.Hour),
			TemperatureC: float64(i),
			Condition:    weather.ConditionCloudy,
		}
	}
	return out, start, nil
}

type fakeSun struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (f *fakeSun) SunTimes(_ context.Context, _, _ float64, date time.Time) (weather.SunTimes, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	day := date.Format(weather.DateLayout)
	if day == f.fail {
		return weather.SunTimes{}, errors.New("boom")
	}
	d := date.Truncate(24 * time.Hour)
	return weather.SunTimes{Date: day, Sunrise: d.Add(5 * time.Hour), Sunset: d.Add(21 * time.Hour)}, nil
}

type fakeGeocoder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeGeocoder) Search(_ context.Context, q string) ([]weather.Place, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []weather.Place{{ID: "42", Name: q, DisplayName: q + ", Norway", Lat: 59.9, Lon: 10.7}}, nil
}

type fixture struct {
	svc     *Service
	primary *fakeForecaster
	backup  *fakeForecaster
	sun     *fakeSun
	geo     *fakeGeocoder
	kv      *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		primary: &fakeForecaster{name: "primary", n: 48},
		backup:  &fakeForecaster{name: "backup", n: 24},
		sun:     &fakeSun{},
		geo:     &fakeGeocoder{},
		kv:      store.NewMemoryStore(),
	}
	now := func() time.Time { return start }
	ttl := cache.NewTTL(f.kv, cache.WithClock(now))
	f.svc = NewService(Deps{
		Forecasters: []weather.ForecastProvider{f.primary, f.backup},
		Sun:         f.sun,
		Geocoder:    f.geo,
		Cache:       cache.NewManager(ttl, cache.DefaultTTLPolicy(), time.Minute),
		Graphs:      graph.NewCache(ttl, time.Hour),
		Now:         now,
	})
	return f
}

func TestForecast_CachesSuccessfulFetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := location.Resolve("42", 59.9, 10.7)

	fc, err := f.svc.Forecast(ctx, key, 59.9, 10.7)
	require.NoError(t, err)
	assert.Len(t, fc.Series, 48)
	assert.Equal(t, "osm:42", fc.LocationKey)

	_, err = f.svc.Forecast(ctx, key, 59.9, 10.7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.primary.calls.Load())

	_, err = f.kv.Get(ctx, cache.Namespace+cache.WeatherKey("osm:42"))
	assert.NoError(t, err)
}

func TestForecast_FallsBackToNextProvider(t *testing.T) {
	f := newFixture(t)
	f.primary.err = errors.New("down")

	fc, err := f.svc.Forecast(context.Background(), "osm:1", 1, 2)
	require.NoError(t, err)
	assert.Len(t, fc.Series, 24)
	assert.EqualValues(t, 1, f.backup.calls.Load())
}

func TestForecast_FailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.primary.err = errors.New("down")
	f.backup.err = errors.New("also down")
	ctx := context.Background()

	_, err := f.svc.Forecast(ctx, "osm:1", 1, 2)
	require.Error(t, err)
	assert.ErrorContains(t, err, "also down")

	keys, err := f.kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestForecast_NoProviders(t *testing.T) {
	svc := NewService(Deps{Cache: cache.NewManager(cache.NewTTL(store.NewMemoryStore()), cache.DefaultTTLPolicy(), 0)})
	_, err := svc.Forecast(context.Background(), "osm:1", 1, 2)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestSearchPlaces_CachesNormalizedQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	places, err := f.svc.SearchPlaces(ctx, "Oslo")
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, location.Key("osm:42"), places[0].LocationKey())

	_, err = f.svc.SearchPlaces(ctx, "  oslo ")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.geo.calls.Load())

	empty, err := f.svc.SearchPlaces(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.EqualValues(t, 1, f.geo.calls.Load())
}

func TestSearchPlaces_Error(t *testing.T) {
	f := newFixture(t)
	f.geo.err = errors.New("nominatim down")
	_, err := f.svc.SearchPlaces(context.Background(), "oslo")
	assert.ErrorContains(t, err, "nominatim down")
}

func TestSunTimes_Cached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.SunTimes(ctx, "osm:1", 1, 2, start)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", st.Date)

	_, err = f.svc.SunTimes(ctx, "osm:1", 1, 2, start)
	require.NoError(t, err)
	assert.Equal(t, 1, f.sun.calls)
}

func TestGraph_RendersAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := GraphRequest{ID: "42", Name: "Oslo", Lat: 59.9, Lon: 10.7, Hours: 12}

	md, err := f.svc.Graph(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, md, "Oslo")
	assert.Contains(t, md, "sunrise")

	stats := f.svc.Graphs().Stats(ctx)
	assert.Equal(t, 1, stats.Count)

	again, err := f.svc.Graph(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, md, again)
	assert.EqualValues(t, 1, f.primary.calls.Load())
}

func TestGraph_SunFailureTolerated(t *testing.T) {
	f := newFixture(t)
	f.sun.fail = "2024-05-02"

	gr, err := f.svc.BuildGraphRequest(context.Background(), GraphRequest{ID: "42", Name: "Oslo", Mode: graph.ModeSummary})
	require.NoError(t, err)
	assert.Contains(t, gr.Sun, "2024-05-01")
	assert.NotContains(t, gr.Sun, "2024-05-02")
	assert.Len(t, gr.Series, 48)
}

func TestGraph_TargetDate(t *testing.T) {
	f := newFixture(t)

	gr, err := f.svc.BuildGraphRequest(context.Background(), GraphRequest{ID: "42", Name: "Oslo", Date: "2024-05-02"})
	require.NoError(t, err)
	assert.Len(t, gr.Series, 24)
	assert.Equal(t, "2024-05-02", gr.TargetDate)

	_, err = f.svc.BuildGraphRequest(context.Background(), GraphRequest{ID: "42", Date: "2024-06-30"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGraph_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Graph(ctx, GraphRequest{ID: "42", Mode: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Graph(ctx, GraphRequest{ID: "42", Palette: "neon"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.Graph(ctx, GraphRequest{ID: "42", Date: "May 1st"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, f.primary.calls.Load())
}
