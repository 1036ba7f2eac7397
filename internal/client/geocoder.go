package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/slack-weather/internal/models"
)

// DefaultGeocoderURL is the Google Geocoding JSON endpoint.
const DefaultGeocoderURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoder resolves a free-text address. A non-OK status is returned in the
// response, not as an error.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeocodeResponse, error)
}

// GoogleGeocoder calls the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string
	apiURL string
	http   *resty.Client
}

// NewGoogleGeocoder returns a geocoder for apiURL (DefaultGeocoderURL if empty).
func NewGoogleGeocoder(apiKey, apiURL string, timeout time.Duration) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: geocoder API key is required", ErrMissingCredentials)
	}
	if apiURL == "" {
		apiURL = DefaultGeocoderURL
	}
	return &GoogleGeocoder{apiKey: apiKey, apiURL: apiURL, http: newHTTPClient(timeout)}, nil
}

type googleGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode implements Geocoder.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (models.GeocodeResponse, error) {
	req := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address": address,
			"key":     g.apiKey,
		})
	resp, err := do(ProviderGeocoder, req, resty.MethodGet, g.apiURL)
	if err != nil {
		return models.GeocodeResponse{}, err
	}

	var raw googleGeocodeResponse
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return models.GeocodeResponse{}, fmt.Errorf("%w: parse geocoder response: %v", ErrMalformedResponse, err)
	}
	if raw.Status == "" {
		return models.GeocodeResponse{}, fmt.Errorf("%w: geocoder response has no status", ErrMalformedResponse)
	}

	out := models.GeocodeResponse{Status: raw.Status, Results: make([]models.GeocodeResult, 0, len(raw.Results))}
	for _, r := range raw.Results {
		out.Results = append(out.Results, models.GeocodeResult{
			FormattedAddress: r.FormattedAddress,
			Latitude:         r.Geometry.Location.Lat,
			Longitude:        r.Geometry.Location.Lng,
		})
	}
	return out, nil
}
