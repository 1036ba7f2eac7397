package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/slack-weather/internal/models"
	"github.com/kjstillabower/slack-weather/internal/query"
)

// DefaultForecastURL is a Dark Sky compatible forecast endpoint.
const DefaultForecastURL = "https://api.pirateweather.net/forecast"

// ForecastProvider fetches a forecast for coordinates in the given unit system.
type ForecastProvider interface {
	Forecast(ctx context.Context, lat, lon float64, units query.UnitSystem) (models.Forecast, error)
}

// DarkSkyClient calls a Dark Sky compatible API at BASE/KEY/LAT,LON.
type DarkSkyClient struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

// NewDarkSkyClient returns a forecast client for baseURL (DefaultForecastURL if empty).
func NewDarkSkyClient(apiKey, baseURL string, timeout time.Duration) (*DarkSkyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: forecast API key is required", ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = DefaultForecastURL
	}
	return &DarkSkyClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(timeout),
	}, nil
}

// Forecast implements ForecastProvider.
func (c *DarkSkyClient) Forecast(ctx context.Context, lat, lon float64, units query.UnitSystem) (models.Forecast, error) {
	coords := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("key", c.apiKey).
		SetRawPathParam("coords", coords).
		SetQueryParam("units", units.Param())
	resp, err := do(ProviderForecast, req, resty.MethodGet, c.baseURL+"/{key}/{coords}")
	if err != nil {
		return models.Forecast{}, err
	}

	var fc models.Forecast
	if err := json.Unmarshal(resp.Body(), &fc); err != nil {
		return models.Forecast{}, fmt.Errorf("%w: parse forecast response: %v", ErrMalformedResponse, err)
	}
	return fc, nil
}
