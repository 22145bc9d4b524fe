package mapview

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
	"github.com/pickupsports/mapcluster/internal/resilience"
)

// unfilteredBuffer widens the store read for profiles without a
// visibility filter so nearby markers are loaded before the user pans.
const unfilteredBuffer = 0.5

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.src.Ping(r.Context()); err != nil {
		zap.L().Warn("mapview: store not ready", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statsResponse struct {
	Cache   *cluster.CacheStats     `json:"cache,omitempty"`
	Breaker resilience.BreakerStats `json:"breaker"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Breaker: s.breaker.Stats()}
	if s.cache != nil {
		st := s.cache.Stats()
		resp.Cache = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	opts, ok := s.profiles[string(kind)]
	if !ok {
		writeError(w, http.StatusNotFound, "no clustering profile for "+string(kind))
		return
	}

	switch kind {
	case model.KindFacilities:
		serveClusters(s, w, r, string(kind), opts, s.src.FacilitiesInBBox)
	case model.KindChallenges:
		serveClusters(s, w, r, string(kind), opts, s.src.ChallengesInBBox)
	}
}

// serveClusters loads the records around the requested region, clusters
// them with the kind's profile and writes the encoded result. Encoded
// bodies are cached by profile, format, region and point set.
func serveClusters[T cluster.Locatable](s *Server, w http.ResponseWriter, r *http.Request, profile string, opts cluster.Options, load func(context.Context, geo.BBox, int) ([]T, error)) {
	region, err := parseRegion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatGeoJSON {
		writeError(w, http.StatusBadRequest, "format must be json or geojson")
		return
	}

	buffer := unfilteredBuffer
	if opts.FilterVisible {
		buffer = opts.VisibilityBuffer
	}
	// One extra row lets the pipeline notice the ceiling was hit.
	limit := 0
	if opts.MaxPoints > 0 {
		limit = opts.MaxPoints + 1
	}

	points, err := resilience.ExecuteVal(r.Context(), s.breaker, func(ctx context.Context) ([]T, error) {
		return load(ctx, region.Bounds(buffer), limit)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			writeError(w, http.StatusServiceUnavailable, "store temporarily unavailable")
			return
		}
		zap.L().Error("mapview: load points",
			zap.String("profile", profile),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load points")
		return
	}

	contentType := "application/json"
	if format == FormatGeoJSON {
		contentType = "application/geo+json"
	}

	var key string
	if s.cache != nil {
		key = cluster.CacheKey(profile+":"+format, region, points)
		if body, ok := s.cache.Get(key); ok {
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(body)
			return
		}
	}

	res := cluster.ClusterPoints(points, region, opts)
	body, err := EncodeResult(res, format)
	if err != nil {
		zap.L().Error("mapview: encode result", zap.String("profile", profile), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}
	if res.Truncated > 0 {
		zap.L().Debug("mapview: points truncated",
			zap.String("profile", profile),
			zap.Int("max_points", opts.MaxPoints),
		)
	}
	if s.cache != nil {
		s.cache.Put(key, body)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(body)
}

// parseRegion reads lat, lng, lat_delta and lng_delta from the query.
func parseRegion(r *http.Request) (geo.Region, error) {
	q := r.URL.Query()
	var vals [4]float64
	for i, name := range []string{"lat", "lng", "lat_delta", "lng_delta"} {
		raw := q.Get(name)
		if raw == "" {
			return geo.Region{}, eris.Errorf("missing query parameter %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return geo.Region{}, eris.Errorf("invalid query parameter %q", name)
		}
		vals[i] = v
	}
	region := geo.Region{
		Latitude:       vals[0],
		Longitude:      vals[1],
		LatitudeDelta:  vals[2],
		LongitudeDelta: vals[3],
	}
	if err := region.Validate(); err != nil {
		return geo.Region{}, err
	}
	return region, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("mapview: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
