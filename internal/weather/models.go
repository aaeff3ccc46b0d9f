package weather

import (
	"time"

	"github.com/i474232898/weather-favorites/internal/location"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Place is a geocoding result.
type Place struct {
	// ID is the upstream geocoder id, empty when the source has none.
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	DisplayName string  `json:"displayName"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Type        string  `json:"type,omitempty"`
}

// LocationKey resolves the canonical key of p.
func (p Place) LocationKey() location.Key {
	return location.Resolve(p.ID, p.Lat, p.Lon)
}

// TimeseriesEntry is one forecast step. Instant values describe the moment
// at Time; precipitation and symbol cover the following hour (or six hours
// further out, where hourly data is not available).
type TimeseriesEntry struct {
	Time         time.Time `json:"time"` // always UTC
	TemperatureC float64   `json:"temperatureC"`
	WindSpeedMS  float64   `json:"windSpeedMs"`
	WindFromDeg  float64   `json:"windFromDeg"`
	HumidityPct  float64   `json:"humidityPercent"`
	PressureHpa  float64   `json:"pressureHpa"`
	CloudPct     float64   `json:"cloudPercent"`
	PrecipMm     float64   `json:"precipMm"`
	Symbol       string    `json:"symbol,omitempty"`
	Condition    Condition `json:"condition"`
}

// Forecast is a time-ordered series for one location.
// Series entries are expected to be ordered by Time ascending.
type Forecast struct {
	LocationKey string            `json:"locationKey"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Series      []TimeseriesEntry `json:"series"`
}

// SunTimes holds sunrise and sunset for one date. Either may be zero during
// polar day or night.
type SunTimes struct {
	Date    string    `json:"date"` // YYYY-MM-DD
	Sunrise time.Time `json:"sunrise,omitzero"`
	Sunset  time.Time `json:"sunset,omitzero"`
}

// DailySummary aggregates the entries of one UTC day.
type DailySummary struct {
	Date         string    `json:"date"`
	MinTempC     float64   `json:"minTempC"`
	MaxTempC     float64   `json:"maxTempC"`
	PrecipMm     float64   `json:"precipMm"`
	MaxWindMS    float64   `json:"maxWindMs"`
	Condition    Condition `json:"condition"`
	EntriesCount int       `json:"entries"`
}
