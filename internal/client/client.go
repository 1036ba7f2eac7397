// Package client holds the HTTP clients for the services a slash command
// depends on: the geocoder, the forecast provider and Slack's OAuth endpoint.
// Calls are made once; there is no retry.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kjstillabower/slack-weather/internal/observability"
)

// Provider labels for upstream metrics.
const (
	ProviderGeocoder = "geocoder"
	ProviderForecast = "forecast"
	ProviderSlack    = "slack_oauth"
)

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrUpstreamFailure    = errors.New("upstream failure")
	ErrRateLimited        = errors.New("rate limited")
	ErrMalformedResponse  = errors.New("malformed upstream response")
	ErrMissingCredentials = errors.New("missing credentials")
)

// newHTTPClient returns a resty client. A zero timeout leaves the transport's
// defaults in place.
func newHTTPClient(timeout time.Duration) *resty.Client {
	c := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "slack-weather")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// do runs a prepared request, records metrics under provider and maps HTTP
// error statuses to sentinel errors.
func do(provider string, req *resty.Request, method, url string) (*resty.Response, error) {
	if id := observability.CorrelationIDFromContext(req.Context()); id != "" {
		req.SetHeader("X-Correlation-ID", id)
	}

	start := time.Now()
	resp, err := req.Execute(method, url)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(provider, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(provider, "error").Observe(duration)
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}

	status := statusLabel(resp.StatusCode())
	observability.UpstreamCallsTotal.WithLabelValues(provider, status).Inc()
	observability.UpstreamDuration.WithLabelValues(provider, status).Observe(duration)

	if err := errorForStatus(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	return resp, nil
}

func errorForStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
