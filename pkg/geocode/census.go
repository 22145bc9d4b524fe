package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pickupsports/mapcluster/internal/resilience"
)

const (
	oneLinePath = "/geocoder/locations/onelineaddress"
	batchPath   = "/geocoder/locations/addressbatch"

	// MaxBatch is the Census limit on addresses per batch request.
	MaxBatch = 10000
)

type oneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode looks up one address with the one-line endpoint.
func (c *Client) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	if addr.Empty() {
		return &Result{}, nil
	}
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Result, error) {
		return c.geocodeOnce(ctx, addr)
	})
}

func (c *Client) geocodeOnce(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address":   {addr.OneLine()},
		"benchmark": {c.benchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oneLinePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp oneLineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(resp.Result.AddressMatches) == 0 {
		return &Result{}, nil
	}

	m := resp.Result.AddressMatches[0]
	return &Result{
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		MatchedAddress: m.MatchedAddress,
		Quality:        "exact",
		Matched:        true,
	}, nil
}

// BatchGeocode looks up many addresses with the batch endpoint, chunked at
// MaxBatch. Results are index-aligned with addrs.
func (c *Client) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	results := make([]Result, len(addrs))
	for start := 0; start < len(addrs); start += MaxBatch {
		end := min(start+MaxBatch, len(addrs))
		chunk := addrs[start:end]
		got, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Result, error) {
			return c.batchOnce(ctx, chunk)
		})
		if err != nil {
			return nil, err
		}
		copy(results[start:end], got)
	}
	return results, nil
}

func (c *Client) batchOnce(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	var file bytes.Buffer
	w := csv.NewWriter(&file)
	index := make(map[string]int, len(addrs))
	for i, a := range addrs {
		id := a.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		index[id] = i
		if err := w.Write([]string{id, a.Street, a.City, a.State, a.ZipCode}); err != nil {
			return nil, eris.Wrap(err, "geocode: write batch file")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "geocode: write batch file")
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	if err := mw.WriteField("benchmark", c.benchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: write form")
	}
	part, err := mw.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: write form")
	}
	if _, err := part.Write(file.Bytes()); err != nil {
		return nil, eris.Wrap(err, "geocode: write form")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: write form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, &form)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build batch request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return parseBatch(body, index, len(addrs))
}

// do sends req and returns the body of a 200 response. Retryable statuses
// come back as a resilience.TransientError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("geocode: census returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

// parseBatch reads the batch CSV response:
// id, input address, Match|No_Match|Tie, Exact|Non_Exact, matched address, "lon,lat", tiger id, side.
func parseBatch(body []byte, index map[string]int, n int) ([]Result, error) {
	results := make([]Result, n)

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "geocode: parse batch response")
		}
		if len(rec) < 6 {
			continue
		}
		i, ok := index[rec[0]]
		if !ok || !strings.EqualFold(rec[2], "Match") {
			continue
		}
		lon, lat, err := parseLonLat(rec[5])
		if err != nil {
			continue
		}
		results[i] = Result{
			Latitude:       lat,
			Longitude:      lon,
			MatchedAddress: rec[4],
			Quality:        strings.ToLower(rec[3]),
			Matched:        true,
		}
	}
	return results, nil
}

func parseLonLat(s string) (lon, lat float64, err error) {
	x, y, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, eris.Errorf("geocode: invalid coordinates %q", s)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(x), 64); err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse longitude")
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(y), 64); err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse latitude")
	}
	return lon, lat, nil
}
