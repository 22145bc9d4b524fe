// Package geocode resolves street addresses to coordinates with the US
// Census Geocoder.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pickupsports/mapcluster/internal/resilience"
)

// DefaultBaseURL is the Census Geocoder host.
const DefaultBaseURL = "https://geocoding.geo.census.gov"

// DefaultBenchmark is the Census address benchmark used for lookups.
const DefaultBenchmark = "Public_AR_Current"

// Geocoder resolves addresses. An address with no match is returned as a
// Result with Matched false, not as an error.
type Geocoder interface {
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput is an address to resolve.
type AddressInput struct {
	ID      string // correlates batch rows; assigned when empty
	Street  string
	City    string
	State   string
	ZipCode string
}

// OneLine joins the non-empty parts with ", ".
func (a AddressInput) OneLine() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State, a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Empty reports whether there is nothing to look up.
func (a AddressInput) Empty() bool {
	return a.OneLine() == ""
}

// Result is the outcome of one lookup.
type Result struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	MatchedAddress string  `json:"matched_address,omitempty"`
	Quality        string  `json:"quality,omitempty"` // "exact" or "non_exact"
	Matched        bool    `json:"matched"`
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another host, such as a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithBenchmark selects the Census benchmark.
func WithBenchmark(b string) Option {
	return func(c *Client) {
		if b != "" {
			c.benchmark = b
		}
	}
}

// WithRateLimit caps requests per second. rps <= 0 removes the cap.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// Client is a Census Geocoder client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	benchmark  string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// NewClient returns a Client with Census defaults: 10 requests per second
// and three attempts per request.
func NewClient(opts ...Option) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("geocode", "census")

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		benchmark:  DefaultBenchmark,
		limiter:    rate.NewLimiter(10, 10),
		retry:      retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
