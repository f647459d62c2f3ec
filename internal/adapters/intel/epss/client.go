// Package epss fetches exploit probability scores from the FIRST EPSS
// API.
package epss

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/telemetry"
)

const (
	defaultBaseURL  = "https://api.first.org/data/v1/epss"
	maxResponseSize = 10 * 1024 * 1024 // 10 MB
	maxAttempts     = 3

	// The API accepts comma-separated identifiers; chunking keeps URLs
	// within practical length limits.
	batchChunkSize = 100
)

// FIRST publishes no hard rate limit; a polite budget keeps bulk
// fan-out and refresh cycles from hammering the feed.
const (
	politeBudget = 10
	politeWindow = 10 * time.Second
)

// Client queries the FIRST EPSS REST API. Scores arrive as strings and
// are parsed into floats; a CVE the model has not scored yields
// domain.ErrNotFound from Fetch and is absent from FetchBatch results.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an EPSS client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(politeWindow/time.Duration(politeBudget)), politeBudget),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the exploit record for one CVE.
func (c *Client) Fetch(ctx context.Context, cveID string) (*domain.ExploitRecord, error) {
	records, err := c.FetchBatch(ctx, []string{cveID})
	if err != nil {
		return nil, err
	}
	rec, ok := records[cveID]
	if !ok {
		telemetry.SourceRequests.WithLabelValues(string(domain.SourceExploit), "not_found").Inc()
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// FetchBatch resolves up to len(cveIDs) scores, chunking requests to the
// upstream batch limit. Unscored identifiers are absent from the map.
func (c *Client) FetchBatch(ctx context.Context, cveIDs []string) (map[string]domain.ExploitRecord, error) {
	records := make(map[string]domain.ExploitRecord, len(cveIDs))
	if len(cveIDs) == 0 {
		return records, nil
	}

	for i := 0; i < len(cveIDs); i += batchChunkSize {
		end := i + batchChunkSize
		if end > len(cveIDs) {
			end = len(cveIDs)
		}
		if err := c.fetchChunk(ctx, cveIDs[i:end], records); err != nil {
			telemetry.SourceRequests.WithLabelValues(string(domain.SourceExploit), "error").Inc()
			return nil, err
		}
	}

	telemetry.SourceRequests.WithLabelValues(string(domain.SourceExploit), "ok").Inc()
	return records, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk []string, records map[string]domain.ExploitRecord) error {
	operation := func() error {
		return c.fetchChunkOnce(ctx, chunk, records)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return &domain.SourceUnavailableError{Source: domain.SourceExploit, Err: err}
	}
	return nil
}

func (c *Client) fetchChunkOnce(ctx context.Context, chunk []string, records map[string]domain.ExploitRecord) error {
	// Every attempt, retries included, draws from the request budget.
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	u := fmt.Sprintf("%s?cve=%s", c.baseURL, strings.Join(chunk, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("epss request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("epss returned HTTP %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return backoff.Permanent(err)
	}

	var payload apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return fmt.Errorf("decoding epss response: %w", err)
	}

	fetchedAt := c.now().UTC()
	for _, d := range payload.Data {
		probability, err := strconv.ParseFloat(d.EPSS, 64)
		if err != nil {
			continue
		}
		percentile, _ := strconv.ParseFloat(d.Percentile, 64)
		records[d.CVE] = domain.ExploitRecord{
			CVEID:       d.CVE,
			Probability: probability,
			Percentile:  percentile,
			ScoreDate:   d.Date,
			FetchedAt:   fetchedAt,
		}
	}
	return nil
}

// apiResponse mirrors the FIRST API envelope. Scores are string-typed
// decimals on the wire.
type apiResponse struct {
	Status string `json:"status"`
	Total  int    `json:"total"`
	Data   []struct {
		CVE        string `json:"cve"`
		EPSS       string `json:"epss"`
		Percentile string `json:"percentile"`
		Date       string `json:"date"`
	} `json:"data"`
}
