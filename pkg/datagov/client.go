// Package datagov provides a client for the data.gov.sg realtime transport
// APIs.
package datagov

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.data.gov.sg/v1"

// CarparkReading is one lot-type availability reading for one carpark.
type CarparkReading struct {
	CarparkNumber string
	LotType       string
	TotalLots     int
	LotsAvailable int
	UpdatedAt     time.Time
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// Client calls the data.gov.sg realtime API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	loc        *time.Location
}

// NewClient creates a Client with sensible defaults. The published fair-use
// limit for the realtime endpoints is low, so the default limiter is
// conservative.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	loc, err := time.LoadLocation("Asia/Singapore")
	if err != nil {
		loc = time.FixedZone("SGT", 8*3600)
	}
	c.loc = loc
	return c
}

// availabilityResponse mirrors the carpark-availability payload. Lot counts
// arrive as strings.
type availabilityResponse struct {
	Items []struct {
		Timestamp   string `json:"timestamp"`
		CarparkData []struct {
			CarparkNumber  string `json:"carpark_number"`
			UpdateDatetime string `json:"update_datetime"`
			CarparkInfo    []struct {
				TotalLots     string `json:"total_lots"`
				LotType       string `json:"lot_type"`
				LotsAvailable string `json:"lots_available"`
			} `json:"carpark_info"`
		} `json:"carpark_data"`
	} `json:"items"`
}

// CarparkAvailability fetches the current availability snapshot. A zero
// asOf requests the latest data.
func (c *Client) CarparkAvailability(ctx context.Context, asOf time.Time) ([]CarparkReading, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "datagov: rate limit wait")
	}

	endpoint := c.baseURL + "/transport/carpark-availability"
	if !asOf.IsZero() {
		q := url.Values{"date_time": {asOf.In(c.loc).Format("2006-01-02T15:04:05")}}
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "datagov: carpark availability")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("datagov: carpark availability: status %d", resp.StatusCode)
	}

	var payload availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, eris.Wrap(err, "datagov: decode availability")
	}

	var readings []CarparkReading
	for _, item := range payload.Items {
		for _, data := range item.CarparkData {
			updated := c.parseLocalTime(data.UpdateDatetime)
			for _, info := range data.CarparkInfo {
				readings = append(readings, CarparkReading{
					CarparkNumber: data.CarparkNumber,
					LotType:       info.LotType,
					TotalLots:     parseCount(info.TotalLots),
					LotsAvailable: parseCount(info.LotsAvailable),
					UpdatedAt:     updated,
				})
			}
		}
	}
	return readings, nil
}

// parseLocalTime parses the API's zone-less timestamps as Singapore time.
func (c *Client) parseLocalTime(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, c.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
