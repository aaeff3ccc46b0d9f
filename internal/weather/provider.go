package weather

import (
	"context"
	"time"
)

// ForecastProvider abstracts a forecast source (e.g. met.no locationforecast).
type ForecastProvider interface {
	Name() string
	// Forecast returns the time-ordered series for a coordinate and the time
	// the upstream model run was last updated.
	Forecast(ctx context.Context, lat, lon float64) ([]TimeseriesEntry, time.Time, error)
}

// SunProvider abstracts a sunrise/sunset source.
type SunProvider interface {
	SunTimes(ctx context.Context, lat, lon float64, date time.Time) (SunTimes, error)
}

// Geocoder abstracts a place search source (e.g. Nominatim).
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Place, error)
}
