// Package service turns slash-command text into a serialized Slack reply.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/slack-weather/internal/cache"
	"github.com/kjstillabower/slack-weather/internal/client"
	"github.com/kjstillabower/slack-weather/internal/observability"
	"github.com/kjstillabower/slack-weather/internal/query"
	"github.com/kjstillabower/slack-weather/internal/slack"
)

// ErrNoGeocoderResult is returned by Refresh for addresses the geocoder
// cannot resolve. Respond never returns it; such queries get a fixed reply.
var ErrNoGeocoderResult = errors.New("address not resolved")

// WeatherService orchestrates geocoding, forecasting and formatting behind a
// cache-aside response cache.
type WeatherService struct {
	geocoder client.Geocoder
	forecast client.ForecastProvider
	cache    cache.Cache
	ttl      time.Duration
	pageURL  string
}

// NewWeatherService creates a WeatherService. A nil cache disables caching; a
// non-positive ttl uses cache.DefaultTTL. pageURL is the forecast page prefix
// (slack.DefaultForecastPageURL if empty).
func NewWeatherService(geocoder client.Geocoder, forecast client.ForecastProvider, c cache.Cache, ttl time.Duration, pageURL string) *WeatherService {
	if c == nil {
		c = cache.NopCache{}
	}
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &WeatherService{geocoder: geocoder, forecast: forecast, cache: c, ttl: ttl, pageURL: pageURL}
}

// Respond returns the JSON reply for the raw slash-command text. Help requests
// bypass the cache; everything else is served from cache when possible.
// Upstream failures are returned as errors and nothing is cached.
func (s *WeatherService) Respond(ctx context.Context, rawText, imageBaseURL string) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx)
	q := query.Normalize(rawText)
	if q.Help {
		observability.SlashCommandsTotal.WithLabelValues(observability.OutcomeHelp).Inc()
		return json.Marshal(slack.Ephemeral(query.HelpText))
	}

	key := q.CacheKey()
	observability.RecordLocationQuery(key)

	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheRequestsTotal.WithLabelValues("error").Inc()
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		observability.CacheRequestsTotal.WithLabelValues("hit").Inc()
		observability.SlashCommandsTotal.WithLabelValues(observability.OutcomeCached).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return cached, nil
	default:
		observability.CacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	body, outcome, err := s.lookup(ctx, q, imageBaseURL)
	if err != nil {
		observability.SlashCommandsTotal.WithLabelValues(observability.OutcomeError).Inc()
		return nil, err
	}
	observability.SlashCommandsTotal.WithLabelValues(outcome).Inc()
	s.store(ctx, key, body)
	logger.Debug("weather served",
		zap.String("key", key),
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}

// Lookup resolves q against the upstream services without touching the cache.
func (s *WeatherService) Lookup(ctx context.Context, q query.LocationQuery, imageBaseURL string) ([]byte, error) {
	body, _, err := s.lookup(ctx, q, imageBaseURL)
	return body, err
}

// Refresh looks up text and overwrites its cache entry. Used by the cache warmer.
func (s *WeatherService) Refresh(ctx context.Context, text, imageBaseURL string) error {
	q := query.Normalize(text)
	if q.Help {
		return nil
	}
	body, outcome, err := s.lookup(ctx, q, imageBaseURL)
	if err != nil {
		return err
	}
	s.store(ctx, q.CacheKey(), body)
	if outcome == observability.OutcomeUnresolvable {
		return fmt.Errorf("%q: %w", q.Location, ErrNoGeocoderResult)
	}
	return nil
}

// Resolve geocodes and forecasts q, returning the structured formatter input.
// The bool is false when the geocoder could not resolve the address.
func (s *WeatherService) Resolve(ctx context.Context, q query.LocationQuery, imageBaseURL string) (slack.FormatInput, bool, error) {
	geo, err := s.geocoder.Geocode(ctx, q.Location)
	if err != nil {
		return slack.FormatInput{}, false, fmt.Errorf("geocode %q: %w", q.Location, err)
	}
	if !geo.Resolved() {
		observability.LoggerFromContext(ctx).Info("address not resolved",
			zap.String("location", q.Location),
			zap.String("geocoder_status", geo.Status),
		)
		return slack.FormatInput{}, false, nil
	}

	place := geo.Results[0]
	fc, err := s.forecast.Forecast(ctx, place.Latitude, place.Longitude, q.Units)
	if err != nil {
		return slack.FormatInput{}, false, fmt.Errorf("forecast for %q: %w", place.FormattedAddress, err)
	}
	return slack.FormatInput{
		Address:      place.FormattedAddress,
		Latitude:     place.Latitude,
		Longitude:    place.Longitude,
		Forecast:     fc,
		Units:        q.Units,
		ImageBaseURL: imageBaseURL,
		PageURL:      s.pageURL,
	}, true, nil
}

func (s *WeatherService) lookup(ctx context.Context, q query.LocationQuery, imageBaseURL string) ([]byte, string, error) {
	in, resolved, err := s.Resolve(ctx, q, imageBaseURL)
	if err != nil {
		return nil, "", err
	}
	msg := slack.Ephemeral(slack.UnresolvableAddressText)
	outcome := observability.OutcomeUnresolvable
	if resolved {
		msg = slack.FormatForecast(in)
		outcome = observability.OutcomeForecast
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, "", fmt.Errorf("encode reply: %w", err)
	}
	return body, outcome, nil
}

func (s *WeatherService) store(ctx context.Context, key string, body []byte) {
	if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		observability.LoggerFromContext(ctx).Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
