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

// MetNoForecastProvider implements weather.ForecastProvider for the met.no
// locationforecast API.
type MetNoForecastProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewMetNoForecastProvider(cfg HTTPClientConfig, baseURL string) *MetNoForecastProvider {
	if baseURL == "" {
		baseURL = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	}
	return &MetNoForecastProvider{
		name:    "metno",
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("metno-forecast"),
	}
}

func (p *MetNoForecastProvider) Name() string {
	return p.name
}

type metnoForecast struct {
	Properties *struct {
		Meta struct {
			UpdatedAt time.Time `json:"updated_at"`
		} `json:"meta"`
		Timeseries []metnoStep `json:"timeseries" validate:"required,min=1,dive"`
	} `json:"properties" validate:"required"`
}

type metnoStep struct {
	Time time.Time `json:"time" validate:"required"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature        float64 `json:"air_temperature"`
				WindSpeed             float64 `json:"wind_speed"`
				WindFromDirection     float64 `json:"wind_from_direction"`
				RelativeHumidity      float64 `json:"relative_humidity"`
				AirPressureAtSeaLevel float64 `json:"air_pressure_at_sea_level"`
				CloudAreaFraction     float64 `json:"cloud_area_fraction"`
			} `json:"details"`
		} `json:"instant"`
		Next1Hours *metnoPeriod `json:"next_1_hours"`
		Next6Hours *metnoPeriod `json:"next_6_hours"`
	} `json:"data"`
}

type metnoPeriod struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount float64 `json:"precipitation_amount"`
	} `json:"details"`
}

func (p *MetNoForecastProvider) Forecast(ctx context.Context, lat, lon float64) ([]weather.TimeseriesEntry, time.Time, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		// met.no asks clients to send at most four decimals.
		values.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
		values.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer resp.Body.Close()

	var payload metnoForecast
	if err := decodeAndValidate(resp.Body, &payload); err != nil {
		return nil, time.Time{}, err
	}

	series := make([]weather.TimeseriesEntry, 0, len(payload.Properties.Timeseries))
	for _, step := range payload.Properties.Timeseries {
		d := step.Data.Instant.Details
		e := weather.TimeseriesEntry{
			Time:         step.Time.UTC(),
			TemperatureC: d.AirTemperature,
			WindSpeedMS:  d.WindSpeed,
			WindFromDeg:  d.WindFromDirection,
			HumidityPct:  d.RelativeHumidity,
			PressureHpa:  d.AirPressureAtSeaLevel,
			CloudPct:     d.CloudAreaFraction,
		}

		period := step.Data.Next1Hours
		if period == nil {
			period = step.Data.Next6Hours
		}
		if period != nil {
			e.Symbol = period.Summary.SymbolCode
			e.PrecipMm = period.Details.PrecipitationAmount
		}
		e.Condition = weather.ConditionFromSymbol(e.Symbol)

		series = append(series, e)
	}

	updated := payload.Properties.Meta.UpdatedAt.UTC()
	if updated.IsZero() {
		updated = series[0].Time
	}
	return series, updated, nil
}
