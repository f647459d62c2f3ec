// Package nvd fetches CVE detail records from the NIST National
// Vulnerability Database 2.0 REST API.
package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/telemetry"
)

const (
	defaultBaseURL  = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	maxReferences   = 10
	maxResponseSize = 10 * 1024 * 1024 // 10 MB
	maxAttempts     = 3
)

// NVD publishes rate limits per rolling 30-second window: 5 requests
// without an API key, 50 with one.
const (
	keylessBudget = 5
	keyedBudget   = 50
)

// Client is a rate-limited NVD API client. Transient failures (network,
// 5xx, 429) are retried with exponential backoff before surfacing as
// *domain.SourceUnavailableError.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the NVD API key, which raises the request budget.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an NVD client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	budget := keylessBudget
	if c.apiKey != "" {
		budget = keyedBudget
	}
	c.limiter = rate.NewLimiter(rate.Every(30*time.Second/time.Duration(budget)), budget)
	return c
}

// Fetch returns the detail record for one CVE. An identifier unknown to
// the catalog yields domain.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, cveID string) (*domain.DetailRecord, error) {
	var rec *domain.DetailRecord
	operation := func() error {
		r, err := c.fetchOnce(ctx, cveID)
		if err != nil {
			return err
		}
		rec = r
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		if err == domain.ErrNotFound {
			telemetry.SourceRequests.WithLabelValues(string(domain.SourceDetail), "not_found").Inc()
			return nil, domain.ErrNotFound
		}
		telemetry.SourceRequests.WithLabelValues(string(domain.SourceDetail), "error").Inc()
		return nil, &domain.SourceUnavailableError{Source: domain.SourceDetail, Err: err}
	}

	telemetry.SourceRequests.WithLabelValues(string(domain.SourceDetail), "ok").Inc()
	return rec, nil
}

func (c *Client) fetchOnce(ctx context.Context, cveID string) (*domain.DetailRecord, error) {
	// Every attempt, retries included, draws from the request budget: NVD
	// enforces its limits per rolling window regardless of why we call.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	u := fmt.Sprintf("%s?cveId=%s", c.baseURL, url.QueryEscape(cveID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nvd request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, backoff.Permanent(domain.ErrNotFound)
	case resp.StatusCode == http.StatusOK:
		// fall through to parse
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("nvd returned HTTP %d", resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("nvd returned HTTP %d", resp.StatusCode))
	}

	var payload apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding nvd response: %w", err)
	}

	if len(payload.Vulnerabilities) == 0 {
		// NVD answers 200 with an empty set for unknown identifiers.
		return nil, backoff.Permanent(domain.ErrNotFound)
	}

	return c.parseCVE(payload.Vulnerabilities[0].CVE), nil
}

func (c *Client) parseCVE(item cveItem) *domain.DetailRecord {
	rec := &domain.DetailRecord{
		CVEID:         item.ID,
		Description:   englishDescription(item.Descriptions),
		PublishedDate: parseNVDTime(item.Published),
		LastModified:  parseNVDTime(item.LastModified),
		FetchedAt:     c.now().UTC(),
	}

	// Prefer CVSS v3.1, then v3.0. Reserved or awaiting-analysis CVEs
	// carry no metrics at all; HasCVSS stays false for those.
	if m := firstMetric(item.Metrics.CVSSMetricV31); m != nil {
		rec.CVSSScore = m.CVSSData.BaseScore
		rec.CVSSVector = m.CVSSData.VectorString
		rec.HasCVSS = true
	} else if m := firstMetric(item.Metrics.CVSSMetricV30); m != nil {
		rec.CVSSScore = m.CVSSData.BaseScore
		rec.CVSSVector = m.CVSSData.VectorString
		rec.HasCVSS = true
	}

	for _, w := range item.Weaknesses {
		for _, d := range w.Description {
			if strings.HasPrefix(d.Value, "CWE-") {
				rec.CWEIDs = append(rec.CWEIDs, d.Value)
			}
		}
	}

	for _, ref := range item.References {
		if ref.URL == "" {
			continue
		}
		rec.References = append(rec.References, ref.URL)
		if len(rec.References) == maxReferences {
			break
		}
	}

	return rec
}

type apiResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE cveItem `json:"cve"`
	} `json:"vulnerabilities"`
}

type cveItem struct {
	ID           string      `json:"id"`
	Published    string      `json:"published"`
	LastModified string      `json:"lastModified"`
	Descriptions []langValue `json:"descriptions"`
	Metrics      struct {
		CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
		CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
	} `json:"metrics"`
	Weaknesses []struct {
		Description []langValue `json:"description"`
	} `json:"weaknesses"`
	References []struct {
		URL string `json:"url"`
	} `json:"references"`
}

type cvssMetric struct {
	CVSSData struct {
		BaseScore    float64 `json:"baseScore"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
}

type langValue struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

func firstMetric(metrics []cvssMetric) *cvssMetric {
	if len(metrics) == 0 {
		return nil
	}
	return &metrics[0]
}

func englishDescription(descs []langValue) string {
	for _, d := range descs {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(descs) > 0 {
		return descs[0].Value
	}
	return ""
}

// parseNVDTime handles NVD's millisecond timestamps without a zone
// designator, plus RFC3339 for tolerance.
func parseNVDTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
