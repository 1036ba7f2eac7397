package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kjstillabower/slack-weather/internal/cli"
	"github.com/kjstillabower/slack-weather/internal/client"
	"github.com/kjstillabower/slack-weather/internal/config"
	"github.com/kjstillabower/slack-weather/internal/service"
)

// resolver builds the lookup pipeline without a response cache.
func resolver() (cli.Resolver, error) {
	cfg, err := config.LoadLookup()
	if err != nil {
		return nil, err
	}
	geocoder, err := client.NewGoogleGeocoder(cfg.GeocoderAPIKey, cfg.GeocoderURL, cfg.GeocoderTimeout)
	if err != nil {
		return nil, err
	}
	forecast, err := client.NewDarkSkyClient(cfg.ForecastAPIKey, cfg.ForecastURL, cfg.ForecastTimeout)
	if err != nil {
		return nil, err
	}
	return service.NewWeatherService(geocoder, forecast, nil, 0, cfg.ForecastPageURL), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.New(resolver).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
