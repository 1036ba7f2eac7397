package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/slack-weather/internal/observability"
)

// ResponseRefresher is implemented by the service layer to look up a command
// text and store its response. Used by CacheWarmer to avoid a circular
// dependency on the service package.
type ResponseRefresher interface {
	Refresh(ctx context.Context, text, imageBaseURL string) error
}

// CacheWarmer keeps responses for frequently requested queries in the cache.
type CacheWarmer struct {
	refresher    ResponseRefresher
	imageBaseURL string
	logger       *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer. imageBaseURL is used for thumbnails
// since there is no inbound request to derive it from.
func NewCacheWarmer(refresher ResponseRefresher, imageBaseURL string, logger *zap.Logger) *CacheWarmer {
	return &CacheWarmer{refresher: refresher, imageBaseURL: imageBaseURL, logger: logger}
}

// Warm refreshes each query concurrently. Returns an aggregated error if any failed.
func (w *CacheWarmer) Warm(ctx context.Context, queries []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("queries", len(queries)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(queries))
	for _, q := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			if err := w.refresher.Refresh(ctx, q, w.imageBaseURL); err != nil {
				errCh <- fmt.Errorf("warm %q: %w", q, err)
			}
		}(q)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("queries", len(queries)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, queries []string, interval time.Duration) error {
	if err := w.Warm(ctx, queries); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, queries); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
