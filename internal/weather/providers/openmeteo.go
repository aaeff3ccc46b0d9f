package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-favorites/internal/weather"
)

// OpenMeteoProvider implements weather.ForecastProvider for Open-Meteo's
// hourly forecast. It needs no API key and serves as the fallback source.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(cfg HTTPClientConfig, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoForecast struct {
	Hourly *struct {
		Time          []string  `json:"time" validate:"required,min=1"`
		Temperature   []float64 `json:"temperature_2m" validate:"required"`
		Humidity      []float64 `json:"relative_humidity_2m"`
		Precipitation []float64 `json:"precipitation"`
		WeatherCode   []int     `json:"weather_code"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		WindDirection []float64 `json:"wind_direction_10m"`
		Pressure      []float64 `json:"pressure_msl"`
		CloudCover    []float64 `json:"cloud_cover"`
	} `json:"hourly" validate:"required"`
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, lat, lon float64) ([]weather.TimeseriesEntry, time.Time, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
		values.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_direction_10m,pressure_msl,cloud_cover")
		values.Set("wind_speed_unit", "ms")
		values.Set("timezone", "UTC")
		values.Set("forecast_days", "10")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoForecast
	if err := decodeAndValidate(resp.Body, &payload); err != nil {
		return nil, time.Time{}, err
	}

	h := payload.Hourly
	if len(h.Temperature) != len(h.Time) {
		return nil, time.Time{}, fmt.Errorf("%w: %d timestamps but %d temperatures", ErrInvalidResponse, len(h.Time), len(h.Temperature))
	}

	series := make([]weather.TimeseriesEntry, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrInvalidResponse, raw)
		}
		code := at(h.WeatherCode, i, -1)
		series = append(series, weather.TimeseriesEntry{
			Time:         ts.UTC(),
			TemperatureC: h.Temperature[i],
			HumidityPct:  at(h.Humidity, i, 0),
			PrecipMm:     at(h.Precipitation, i, 0),
			WindSpeedMS:  at(h.WindSpeed, i, 0),
			WindFromDeg:  at(h.WindDirection, i, 0),
			PressureHpa:  at(h.Pressure, i, 0),
			CloudPct:     at(h.CloudCover, i, 0),
			Condition:    mapOpenMeteoCondition(code),
		})
	}

	// Open-Meteo does not report a model run time.
	return series, series[0].Time, nil
}

func at[T any](values []T, i int, def T) T {
	if i < len(values) {
		return values[i]
	}
	return def
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
