package geocode

import (
	"net/http/httptest"
	"time"

	"github.com/pickupsports/mapcluster/internal/resilience"
)

// newTestClient returns a Client aimed at srv with no rate limit and
// millisecond retry backoff.
func newTestClient(srv *httptest.Server) *Client {
	return NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(0),
		WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}),
	)
}
