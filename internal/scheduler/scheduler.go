package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-favorites/internal/favorites"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/logger"
	"github.com/i474232898/weather-favorites/internal/weather"
)

const (
	prefetchTimeout     = 30 * time.Second
	prefetchConcurrency = 4
)

// GraphSweeper removes graph entries older than maxAge.
type GraphSweeper interface {
	Cleanup(ctx context.Context, maxAge time.Duration) int
}

// FavoritesLister lists the saved locations.
type FavoritesLister interface {
	List(ctx context.Context) ([]favorites.Location, error)
}

// Refresher refetches and caches the forecast of one location.
type Refresher interface {
	Refresh(ctx context.Context, key location.Key, lat, lon float64) (weather.Forecast, error)
}

// Config holds the job intervals. A zero PrefetchInterval disables the
// forecast warm-up.
type Config struct {
	CleanupInterval  time.Duration
	CleanupMaxAge    time.Duration
	PrefetchInterval time.Duration
}

// Scheduler runs the periodic housekeeping jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	graphs    GraphSweeper
	favorites FavoritesLister
	forecasts Refresher
	log       *zap.SugaredLogger
}

// New creates a new Scheduler.
func New(cfg Config, graphs GraphSweeper, favs FavoritesLister, forecasts Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cfg:       cfg,
		graphs:    graphs,
		favorites: favs,
		forecasts: forecasts,
		log:       logger.Get("scheduler"),
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cfg.CleanupInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.CleanupInterval).Do(func() {
			s.RunCleanup(context.Background())
		}); err != nil {
			return err
		}
	}

	if s.cfg.PrefetchInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.PrefetchInterval).Do(func() {
			s.RunPrefetch(context.Background())
		}); err != nil {
			return err
		}
	} else {
		s.log.Info("forecast prefetch disabled")
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunCleanup sweeps expired graph entries once.
func (s *Scheduler) RunCleanup(ctx context.Context) int {
	n := s.graphs.Cleanup(ctx, s.cfg.CleanupMaxAge)
	s.log.Infof("graph cleanup removed %d entries", n)
	return n
}

// RunPrefetch refreshes the forecast of every favorite once and returns how
// many refreshes succeeded.
func (s *Scheduler) RunPrefetch(ctx context.Context) int {
	favs, err := s.favorites.List(ctx)
	if err != nil {
		s.log.Warnf("prefetch: listing favorites: %v", err)
		return 0
	}
	if len(favs) == 0 {
		return 0
	}

	s.log.Debugf("prefetch: refreshing %d favorites", len(favs))
	ok := make([]bool, len(favs))

	g := new(errgroup.Group)
	g.SetLimit(prefetchConcurrency)
	for i, loc := range favs {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, prefetchTimeout)
			defer cancel()

			if _, err := s.forecasts.Refresh(ctx, loc.LocationKey(), loc.Lat, loc.Lon); err != nil {
				s.log.Warnf("prefetch failed for %s: %v", loc.LocationKey(), err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var n int
	for _, v := range ok {
		if v {
			n++
		}
	}
	s.log.Infof("prefetch: refreshed %d/%d favorites", n, len(favs))
	return n
}
