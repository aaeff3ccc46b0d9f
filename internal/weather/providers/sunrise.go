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

// MetNoSunProvider implements weather.SunProvider for the met.no sunrise API.
type MetNoSunProvider struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewMetNoSunProvider(cfg HTTPClientConfig, baseURL string) *MetNoSunProvider {
	if baseURL == "" {
		baseURL = "https://api.met.no/weatherapi/sunrise/3.0/sun"
	}
	return &MetNoSunProvider{
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("metno-sunrise"),
	}
}

type metnoSun struct {
	Properties *struct {
		Sunrise *struct {
			Time string `json:"time"`
		} `json:"sunrise"`
		Sunset *struct {
			Time string `json:"time"`
		} `json:"sunset"`
	} `json:"properties" validate:"required"`
}

func (p *MetNoSunProvider) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (weather.SunTimes, error) {
	day := date.UTC().Format(weather.DateLayout)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
		values.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
		values.Set("date", day)
		values.Set("offset", "+00:00")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.SunTimes{}, err
	}
	defer resp.Body.Close()

	var payload metnoSun
	if err := decodeAndValidate(resp.Body, &payload); err != nil {
		return weather.SunTimes{}, err
	}

	st := weather.SunTimes{Date: day}
	if r := payload.Properties.Sunrise; r != nil {
		st.Sunrise = parseSunTime(r.Time)
	}
	if s := payload.Properties.Sunset; s != nil {
		st.Sunset = parseSunTime(s.Time)
	}
	return st, nil
}

// parseSunTime accepts both RFC 3339 and the minute-precision form the API
// returns ("2024-05-01T05:12+02:00"). Unparseable values are zero.
func parseSunTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
