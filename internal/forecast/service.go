// Package forecast ties the upstream providers to the caches. Every read
// goes through the cache manager first; only successful fetches are
// written back, so a failing upstream never replaces a good entry.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/graph"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/weather"
)

const (
	// DefaultHours is the window of a detailed graph when none is given.
	DefaultHours = 24
	// maxSunDays caps the sunrise lookups made for one graph.
	maxSunDays = 7
	// sunConcurrency bounds parallel sunrise lookups.
	sunConcurrency = 3
)

var (
	ErrNoProviders    = errors.New("no forecast providers configured")
	ErrNoData         = errors.New("no forecast data for the requested range")
	ErrInvalidRequest = errors.New("invalid graph request")
)

// Service orchestrates providers, the cache manager and the graph cache.
type Service struct {
	forecasters []weather.ForecastProvider
	sun         weather.SunProvider
	geocoder    weather.Geocoder
	cache       *cache.Manager
	graphs      *graph.Cache
	renderer    graph.Renderer
	now         func() time.Time
	log         *zap.SugaredLogger
}

// Deps bundles the collaborators of a Service. Forecasters are tried in
// order; the first one that succeeds wins.
type Deps struct {
	Forecasters []weather.ForecastProvider
	Sun         weather.SunProvider
	Geocoder    weather.Geocoder
	Cache       *cache.Manager
	Graphs      *graph.Cache
	Renderer    graph.Renderer
	Now         func() time.Time
}

// NewService creates a new Service.
func NewService(d Deps) *Service {
	if d.Renderer == nil {
		d.Renderer = graph.MarkdownRenderer{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		forecasters: d.Forecasters,
		sun:         d.Sun,
		geocoder:    d.Geocoder,
		cache:       d.Cache,
		graphs:      d.Graphs,
		renderer:    d.Renderer,
		now:         d.Now,
		log:         logger.Get("forecast"),
	}
}

// Graphs exposes the graph cache for invalidation and stats.
func (s *Service) Graphs() *graph.Cache { return s.graphs }

// Cache exposes the cache manager.
func (s *Service) Cache() *cache.Manager { return s.cache }

// SearchPlaces geocodes query, serving repeated searches from the cache.
func (s *Service) SearchPlaces(ctx context.Context, query string) ([]weather.Place, error) {
	key := cache.LocationSearchKey(query)
	if key == cache.PrefixLocation {
		return nil, nil
	}

	var places []weather.Place
	if s.cache.Get(ctx, key, 0, &places) {
		return places, nil
	}

	places, err := s.geocoder.Search(ctx, query)
	upstreamResult("geocoder", err)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	s.cache.Set(ctx, key, places)
	return places, nil
}

// Forecast returns the forecast for a location, from cache when fresh.
func (s *Service) Forecast(ctx context.Context, key location.Key, lat, lon float64) (weather.Forecast, error) {
	var fc weather.Forecast
	if s.cache.Get(ctx, cache.WeatherKey(key.String()), 0, &fc) && len(fc.Series) > 0 {
		return fc, nil
	}
	return s.Refresh(ctx, key, lat, lon)
}

// Refresh fetches the forecast upstream regardless of the cache and stores
// it on success.
func (s *Service) Refresh(ctx context.Context, key location.Key, lat, lon float64) (weather.Forecast, error) {
	if len(s.forecasters) == 0 {
		return weather.Forecast{}, ErrNoProviders
	}

	var errs []error
	for _, p := range s.forecasters {
		series, updated, err := p.Forecast(ctx, lat, lon)
		upstreamResult(p.Name(), err)
		if err != nil {
			s.log.Warnf("provider %s forecast failed for %s: %v", p.Name(), key, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(series) == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), ErrNoData))
			continue
		}

		fc := weather.Forecast{
			LocationKey: key.String(),
			UpdatedAt:   updated,
			Series:      series,
		}
		s.cache.Set(ctx, cache.WeatherKey(key.String()), fc)
		return fc, nil
	}
	return weather.Forecast{}, errors.Join(errs...)
}

// SunTimes returns sunrise and sunset for a location on date.
func (s *Service) SunTimes(ctx context.Context, key location.Key, lat, lon float64, date time.Time) (weather.SunTimes, error) {
	day := date.UTC().Format(weather.DateLayout)
	ck := cache.SunriseKey(key.String(), day)

	var st weather.SunTimes
	if s.cache.Get(ctx, ck, 0, &st) {
		return st, nil
	}

	st, err := s.sun.SunTimes(ctx, lat, lon, date)
	upstreamResult("sunrise", err)
	if err != nil {
		return weather.SunTimes{}, fmt.Errorf("sun times %s %s: %w", key, day, err)
	}
	s.cache.Set(ctx, ck, st)
	return st, nil
}

// GraphRequest is a request to render the forecast graph of one place.
type GraphRequest struct {
	ID      string
	Name    string
	Lat     float64
	Lon     float64
	Mode    graph.Mode
	Date    string // YYYY-MM-DD, optional
	Palette graph.Palette
	Hours   int
	Force   bool
}

// Graph renders the forecast graph of a place, serving it from the graph
// cache while the underlying data is unchanged.
func (s *Service) Graph(ctx context.Context, req GraphRequest) (string, error) {
	gr, err := s.BuildGraphRequest(ctx, req)
	if err != nil {
		return "", err
	}
	return s.graphs.GenerateAndCache(ctx, gr, s.renderer, req.Force)
}

// BuildGraphRequest resolves the location and gathers the series and sun
// times a graph of req is rendered from.
func (s *Service) BuildGraphRequest(ctx context.Context, req GraphRequest) (graph.Request, error) {
	if req.Mode == "" {
		req.Mode = graph.ModeDetailed
	}
	if req.Palette == "" {
		req.Palette = graph.PaletteLight
	}
	if req.Hours <= 0 {
		req.Hours = DefaultHours
	}
	if !req.Mode.Valid() {
		return graph.Request{}, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode)
	}
	if !req.Palette.Valid() {
		return graph.Request{}, fmt.Errorf("%w: palette %q", ErrInvalidRequest, req.Palette)
	}
	if req.Date != "" {
		if _, err := time.Parse(weather.DateLayout, req.Date); err != nil {
			return graph.Request{}, fmt.Errorf("%w: date %q", ErrInvalidRequest, req.Date)
		}
	}

	key := location.Resolve(req.ID, req.Lat, req.Lon)
	fc, err := s.Forecast(ctx, key, req.Lat, req.Lon)
	if err != nil {
		return graph.Request{}, err
	}

	var series []weather.TimeseriesEntry
	switch {
	case req.Date != "":
		series = weather.FilterDate(fc.Series, req.Date)
	case req.Mode == graph.ModeDetailed:
		series = weather.Window(fc.Series, s.now(), req.Hours)
	default:
		series = fc.Series
	}
	if len(series) == 0 {
		return graph.Request{}, ErrNoData
	}

	name := req.Name
	if name == "" {
		name = key.String()
	}
	return graph.Request{
		LocationKey: key,
		Name:        name,
		Mode:        req.Mode,
		TargetDate:  req.Date,
		Palette:     req.Palette,
		Hours:       req.Hours,
		Series:      series,
		Sun:         s.sunForSeries(ctx, key, req.Lat, req.Lon, series),
	}, nil
}

// sunForSeries looks up sun times for the days the series covers. Failed
// lookups are logged and left out; a graph without sun times is still
// useful.
func (s *Service) sunForSeries(ctx context.Context, key location.Key, lat, lon float64, series []weather.TimeseriesEntry) map[string]weather.SunTimes {
	if s.sun == nil {
		return nil
	}

	var days []time.Time
	seen := make(map[string]bool)
	for _, e := range series {
		d := e.Time.UTC().Format(weather.DateLayout)
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, e.Time.UTC())
		if len(days) == maxSunDays {
			break
		}
	}

	var (
		mu  sync.Mutex
		out = make(map[string]weather.SunTimes, len(days))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sunConcurrency)
	for _, day := range days {
		g.Go(func() error {
			st, err := s.SunTimes(gctx, key, lat, lon, day)
			if err != nil {
				s.log.Debugf("skipping sun times: %v", err)
				return nil
			}
			mu.Lock()
			out[st.Date] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
