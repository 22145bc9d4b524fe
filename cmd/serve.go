package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/mapview"
	"github.com/pickupsports/mapcluster/internal/resilience"
)

var (
	servePort          int
	serveMigrate       bool
	serveMaintainEvery time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map cluster API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if serveMigrate {
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate")
			}
		}

		profiles, err := cfg.Cluster.Profiles()
		if err != nil {
			return err
		}

		opts := mapview.Options{
			Profiles: profiles,
			Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Name:             "store",
				FailureThreshold: cfg.Breaker.FailureThreshold,
				ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSecs) * time.Second,
				// Viewport fetches are cancelled whenever the user pans.
				ShouldTrip: resilience.TripUnlessCancelled,
			}),
			RPS:         cfg.RateLimit.RPS,
			Burst:       cfg.RateLimit.Burst,
			CORSOrigins: cfg.Server.CORSOrigins,
		}
		if cfg.Cache.MaxEntries > 0 {
			opts.Cache = cluster.NewResultCache[[]byte](cfg.Cache.MaxEntries, cfg.Cache.TTL())
		}
		api := mapview.NewServer(st, opts)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Routes(),
			ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeoutSecs) * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server",
				zap.Int("port", port),
				zap.Strings("profiles", profiles.Names()),
			)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			return api.Maintain(gctx, serveMaintainEvery)
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
	serveCmd.Flags().DurationVar(&serveMaintainEvery, "maintain-every", time.Minute, "cache and rate-limiter cleanup interval")
	rootCmd.AddCommand(serveCmd)
}
