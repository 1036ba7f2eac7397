package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/slack-weather/internal/cache"
	"github.com/kjstillabower/slack-weather/internal/client"
	"github.com/kjstillabower/slack-weather/internal/config"
	httphandler "github.com/kjstillabower/slack-weather/internal/http"
	"github.com/kjstillabower/slack-weather/internal/lifecycle"
	"github.com/kjstillabower/slack-weather/internal/observability"
	"github.com/kjstillabower/slack-weather/internal/query"
	"github.com/kjstillabower/slack-weather/internal/service"
)

const (
	inFlightTimeout       = 5 * time.Second
	inFlightCheckInterval = 50 * time.Millisecond
	boltSweepInterval     = time.Minute
	oauthTimeout          = 10 * time.Second
)

// cacheBackend is the selected cache plus the hooks main needs for health
// checks and shutdown. ping and close are nil for backends without connections.
type cacheBackend struct {
	cache cache.Cache
	ping  func() error
	close func() error
	bolt  *cache.BoltCache
}

func newCache(cfg *config.Config) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return cacheBackend{}, err
		}
		return cacheBackend{cache: mc, ping: mc.Ping, close: mc.Close}, nil
	case config.CacheBackendBolt:
		bc, err := cache.OpenBoltCache(cfg.BoltPath)
		if err != nil {
			return cacheBackend{}, err
		}
		return cacheBackend{cache: bc, ping: bc.Ping, close: bc.Close, bolt: bc}, nil
	case config.CacheBackendInMemory:
		return cacheBackend{cache: cache.NewInMemoryCache()}, nil
	case config.CacheBackendNone:
		return cacheBackend{cache: cache.NopCache{}}, nil
	default:
		return cacheBackend{}, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// trackedKeys maps configured query texts to the cache keys used as metric labels.
func trackedKeys(texts []string) []string {
	keys := make([]string, 0, len(texts))
	for _, text := range texts {
		if key := query.Normalize(text).CacheKey(); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	geocoder, err := client.NewGoogleGeocoder(cfg.GeocoderAPIKey, cfg.GeocoderURL, cfg.GeocoderTimeout)
	if err != nil {
		logger.Fatal("geocoder client", zap.Error(err))
	}
	forecast, err := client.NewDarkSkyClient(cfg.ForecastAPIKey, cfg.ForecastURL, cfg.ForecastTimeout)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	var oauth client.OAuthExchanger
	if cfg.OAuthEnabled() {
		oauth, err = client.NewSlackOAuthClient(cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackOAuthURL, oauthTimeout)
		if err != nil {
			logger.Fatal("slack oauth client", zap.Error(err))
		}
	} else {
		logger.Info("slack install flow disabled; SLACK_CLIENT_ID or SLACK_CLIENT_SECRET not set")
	}

	backend, err := newCache(cfg)
	if err != nil {
		logger.Fatal("cache", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend), zap.Duration("ttl", cfg.CacheTTL))

	weatherService := service.NewWeatherService(geocoder, forecast, backend.cache, cfg.CacheTTL, cfg.ForecastPageURL)

	observability.RegisterRateLimitGauges(cfg.HealthWindow)
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(trackedKeys(cfg.TrackedLocations))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.CacheWarmInterval > 0 && len(cfg.TrackedLocations) > 0 {
		if cfg.PublicURL == "" {
			logger.Warn("cache warming disabled; server.public_url is required for thumbnail links")
		} else {
			warmer := cache.NewCacheWarmer(weatherService, cfg.PublicURL, logger)
			go func() {
				if err := warmer.WarmPeriodic(bgCtx, cfg.TrackedLocations, cfg.CacheWarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}
	if backend.bolt != nil {
		go sweepBolt(bgCtx, backend.bolt, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, httphandler.Options{
		VerificationToken: cfg.SlackVerificationToken,
		SlackClientID:     cfg.SlackClientID,
		OAuth:             oauth,
		PublicURL:         cfg.PublicURL,
		Health: &httphandler.HealthConfig{
			Window:           cfg.HealthWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
			CachePing:        backend.ping,
		},
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		ImagesDir: cfg.StaticImagesDir,
		Limiter:   limiter,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.EnvName))
		lifecycle.MarkStarted(time.Now())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), inFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if backend.close != nil {
		if err := backend.close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func sweepBolt(ctx context.Context, bc *cache.BoltCache, logger *zap.Logger) {
	ticker := time.NewTicker(boltSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := bc.Sweep()
			if err != nil {
				logger.Warn("bolt cache sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("bolt cache swept", zap.Int("removed", n))
			}
		}
	}
}
