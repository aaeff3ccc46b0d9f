package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-favorites/internal/common"
	"github.com/i474232898/weather-favorites/internal/weather"
)

// NominatimGeocoder implements weather.Geocoder for the OpenStreetMap
// Nominatim search API.
type NominatimGeocoder struct {
	baseURL string
	limit   int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewNominatimGeocoder(cfg HTTPClientConfig, baseURL string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org/search"
	}
	return &NominatimGeocoder{
		baseURL: baseURL,
		limit:   10,
		httpCfg: cfg,
		circuit: newCircuitBreaker("nominatim"),
	}
}

type nominatimPlace struct {
	OsmID       json.Number `json:"osm_id"`
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name" validate:"required"`
	Lat         string      `json:"lat" validate:"required,latitude"`
	Lon         string      `json:"lon" validate:"required,longitude"`
	Type        string      `json:"type"`
}

// nominatimResults wraps the top-level JSON array so it can be validated
// as a struct.
type nominatimResults struct {
	Places []nominatimPlace `validate:"dive"`
}

func (r *nominatimResults) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Places)
}

func (g *NominatimGeocoder) Search(ctx context.Context, query string) ([]weather.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", query)
		values.Set("format", "jsonv2")
		values.Set("limit", strconv.Itoa(g.limit))

		u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results nominatimResults
	if err := decodeAndValidate(resp.Body, &results); err != nil {
		return nil, err
	}

	places := make([]weather.Place, 0, len(results.Places))
	for _, r := range results.Places {
		lat, _ := strconv.ParseFloat(r.Lat, 64)
		lon, _ := strconv.ParseFloat(r.Lon, 64)

		short, _, _ := strings.Cut(r.DisplayName, ",")
		name := common.FirstNonEmpty(r.Name, short)
		places = append(places, weather.Place{
			ID:          r.OsmID.String(),
			Name:        name,
			DisplayName: r.DisplayName,
			Lat:         lat,
			Lon:         lon,
			Type:        r.Type,
		})
	}
	return places, nil
}
