package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pickupsports/mapcluster/internal/store"
	"github.com/pickupsports/mapcluster/pkg/geocode"
)

// openStore validates the config for mode and connects to the store.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// newGeocoder returns nil when geocoding is disabled.
func newGeocoder() geocode.Geocoder {
	if !cfg.Geocode.Enabled {
		return nil
	}
	timeout := time.Duration(cfg.Geocode.TimeoutSecs) * time.Second
	return geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithBenchmark(cfg.Geocode.Benchmark),
		geocode.WithRateLimit(cfg.Geocode.RPS),
		geocode.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
}
