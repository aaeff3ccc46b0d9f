package cache

import (
	"strings"
	"time"
)

// Key prefixes inside Namespace.
const (
	PrefixWeather  = "weather:"
	PrefixSunrise  = "sunrise:"
	PrefixGraph    = "graph:"
	PrefixLocation = "location:"
)

// TTLPolicy holds the default time-to-live per key prefix.
type TTLPolicy struct {
	Weather  time.Duration
	Sunrise  time.Duration
	Graph    time.Duration
	Location time.Duration
}

// DefaultTTLPolicy returns the built-in TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Weather:  30 * time.Minute,
		Sunrise:  12 * time.Hour,
		Graph:    time.Hour,
		Location: 24 * time.Hour,
	}
}

// For returns the TTL configured for key's prefix. Unknown prefixes use
// the weather TTL.
func (p TTLPolicy) For(key string) time.Duration {
	switch {
	case strings.HasPrefix(key, PrefixSunrise):
		return p.Sunrise
	case strings.HasPrefix(key, PrefixGraph):
		return p.Graph
	case strings.HasPrefix(key, PrefixLocation):
		return p.Location
	default:
		return p.Weather
	}
}

// WeatherKey is the cache key of a forecast for a location key.
func WeatherKey(locationKey string) string {
	return PrefixWeather + locationKey
}

// SunriseKey is the cache key of the sun times for a location on a date
// (YYYY-MM-DD).
func SunriseKey(locationKey, date string) string {
	return PrefixSunrise + locationKey + ":" + date
}

// LocationSearchKey is the cache key of a geocoding search. The query is
// normalized so that case and surrounding whitespace do not matter.
func LocationSearchKey(query string) string {
	return PrefixLocation + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
