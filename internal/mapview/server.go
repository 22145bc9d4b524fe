// Package mapview serves clustered map markers over HTTP.
package mapview

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
	"github.com/pickupsports/mapcluster/internal/resilience"
)

// Source loads the records inside a bounding box, ordered by id.
type Source interface {
	FacilitiesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Facility, error)
	ChallengesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Challenge, error)
	Ping(ctx context.Context) error
}

// Options configures a Server. Zero values disable the cache and the rate
// limiter.
type Options struct {
	Profiles    cluster.Profiles
	Cache       *cluster.ResultCache[[]byte]
	Breaker     *resilience.CircuitBreaker
	RPS         float64
	Burst       int
	CORSOrigins []string
}

// Server is the map API.
type Server struct {
	src      Source
	profiles cluster.Profiles
	cache    *cluster.ResultCache[[]byte]
	breaker  *resilience.CircuitBreaker
	limiter  *clientLimiter
	origins  []string
}

// NewServer builds a Server over src.
func NewServer(src Source, opts Options) *Server {
	profiles := opts.Profiles
	if profiles == nil {
		profiles = cluster.DefaultProfiles()
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:       "store",
			ShouldTrip: resilience.TripUnlessCancelled,
		})
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		src:      src,
		profiles: profiles,
		cache:    opts.Cache,
		breaker:  breaker,
		origins:  origins,
	}
	if opts.RPS > 0 {
		s.limiter = newClientLimiter(opts.RPS, opts.Burst)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Cache", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Get("/cache/stats", s.handleStats)
		r.Get("/{kind}/clusters", s.handleClusters)
	})
	return r
}

// Maintain purges expired cache entries and idle rate-limit buckets every
// interval until ctx is done. A non-positive interval disables it.
func (s *Server) Maintain(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			purged := 0
			if s.cache != nil {
				purged = s.cache.PurgeExpired()
			}
			swept := 0
			if s.limiter != nil {
				swept = s.limiter.sweep(10 * interval)
			}
			if purged > 0 || swept > 0 {
				zap.L().Debug("mapview: maintenance",
					zap.Int("cache_purged", purged),
					zap.Int("limiters_swept", swept),
				)
			}
		}
	}
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("remote", r.RemoteAddr),
		)
	})
}
