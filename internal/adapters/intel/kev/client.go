// Package kev maintains a local snapshot of the CISA Known Exploited
// Vulnerabilities catalog and answers membership checks against it.
package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/telemetry"
)

const (
	primaryURL  = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	fallbackURL = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"

	cacheFilename   = "known_exploited_vulnerabilities.json"
	maxResponseSize = 50 * 1024 * 1024 // 50 MB
)

// Client serves KEV membership from an in-memory snapshot. Sync refreshes
// the snapshot from CISA with a GitHub mirror fallback; the raw catalog is
// mirrored to disk so restarts and feed outages fall back to the last
// good copy.
type Client struct {
	primaryURL  string
	fallbackURL string
	cachePath   string
	httpClient  *http.Client
	now         func() time.Time

	mu         sync.RWMutex
	entries    map[string]domain.KEVRecord
	lastSynced time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithURLs overrides the primary and fallback feed URLs.
func WithURLs(primary, fallback string) Option {
	return func(c *Client) {
		c.primaryURL = primary
		c.fallbackURL = fallback
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a KEV client. cacheDir holds the on-disk catalog
// mirror; empty disables the mirror.
func NewClient(cacheDir string, opts ...Option) *Client {
	c := &Client{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		now:         time.Now,
		entries:     make(map[string]domain.KEVRecord),
	}
	if cacheDir != "" {
		c.cachePath = filepath.Join(cacheDir, cacheFilename)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch answers a membership check against the current snapshot. Absence
// from the catalog is a negative record, never ErrNotFound. An empty
// snapshot (never synced, no disk mirror) is a transient failure.
func (c *Client) Fetch(ctx context.Context, cveID string) (*domain.KEVRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.entries) == 0 {
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceKEV,
			Err:    fmt.Errorf("catalog snapshot not loaded"),
		}
	}

	if rec, ok := c.entries[cveID]; ok {
		out := rec
		out.FetchedAt = c.now().UTC()
		return &out, nil
	}
	return &domain.KEVRecord{
		CVEID:     cveID,
		Listed:    false,
		FetchedAt: c.now().UTC(),
	}, nil
}

// Sync downloads the catalog and swaps the snapshot. On download failure
// it falls back to the on-disk mirror; the previous in-memory snapshot
// is kept when both fail.
func (c *Client) Sync(ctx context.Context) (int, error) {
	data, err := c.download(ctx)
	if err != nil {
		if cached, readErr := c.loadMirror(); readErr == nil {
			slog.Warn("KEV download failed, using on-disk mirror", "error", err)
			telemetry.SourceRequests.WithLabelValues(string(domain.SourceKEV), "stale").Inc()
			return c.swapSnapshot(cached)
		}
		telemetry.SourceRequests.WithLabelValues(string(domain.SourceKEV), "error").Inc()
		return c.entryCount(), &domain.SourceUnavailableError{Source: domain.SourceKEV, Err: err}
	}

	count, err := c.swapSnapshot(data)
	if err != nil {
		telemetry.SourceRequests.WithLabelValues(string(domain.SourceKEV), "error").Inc()
		return c.entryCount(), err
	}

	c.storeMirror(data)
	telemetry.SourceRequests.WithLabelValues(string(domain.SourceKEV), "ok").Inc()
	return count, nil
}

// SeedFromFile loads a catalog snapshot from a local JSON file. Used for
// offline bootstrap and by the seeding tool.
func (c *Client) SeedFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading KEV seed file: %w", err)
	}
	count, err := c.swapSnapshot(data)
	if err != nil {
		return 0, err
	}
	c.storeMirror(data)
	return count, nil
}

// Stats describes the current snapshot.
func (c *Client) Stats() domain.KEVCatalogStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := domain.KEVCatalogStats{
		TotalCVEs:   len(c.entries),
		LastUpdated: c.lastSynced,
	}
	for _, rec := range c.entries {
		if rec.KnownRansomware {
			stats.RansomwareRelated++
		}
	}
	return stats
}

func (c *Client) entryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Client) download(ctx context.Context) ([]byte, error) {
	data, err := c.downloadFrom(ctx, c.primaryURL)
	if err == nil {
		return data, nil
	}

	data, err2 := c.downloadFrom(ctx, c.fallbackURL)
	if err2 == nil {
		return data, nil
	}

	return nil, fmt.Errorf("primary: %w; fallback: %v", err, err2)
}

func (c *Client) downloadFrom(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// swapSnapshot parses the catalog JSON and atomically replaces the
// in-memory snapshot.
func (c *Client) swapSnapshot(data []byte) (int, error) {
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return 0, fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}

	entries := make(map[string]domain.KEVRecord, len(catalog.Vulnerabilities))
	fetchedAt := c.now().UTC()
	for _, v := range catalog.Vulnerabilities {
		entries[v.CVEID] = domain.KEVRecord{
			CVEID:             v.CVEID,
			Listed:            true,
			VendorProject:     v.VendorProject,
			Product:           v.Product,
			VulnerabilityName: v.VulnerabilityName,
			DateAdded:         v.DateAdded,
			DueDate:           v.DueDate,
			RequiredAction:    v.RequiredAction,
			KnownRansomware:   v.KnownRansomwareCampaignUse == "Known",
			FetchedAt:         fetchedAt,
		}
	}

	c.mu.Lock()
	c.entries = entries
	c.lastSynced = fetchedAt
	c.mu.Unlock()
	return len(entries), nil
}

func (c *Client) loadMirror() ([]byte, error) {
	if c.cachePath == "" {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(c.cachePath)
}

func (c *Client) storeMirror(data []byte) {
	if c.cachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		slog.Warn("failed to create KEV cache dir", "error", err)
		return
	}
	if err := os.WriteFile(c.cachePath, data, 0o644); err != nil {
		slog.Warn("failed to write KEV mirror", "error", err)
	}
}

// catalogJSON mirrors the CISA feed schema.
type catalogJSON struct {
	Title           string `json:"title"`
	CatalogVersion  string `json:"catalogVersion"`
	Count           int    `json:"count"`
	Vulnerabilities []struct {
		CVEID                      string `json:"cveID"`
		VendorProject              string `json:"vendorProject"`
		Product                    string `json:"product"`
		VulnerabilityName          string `json:"vulnerabilityName"`
		DateAdded                  string `json:"dateAdded"`
		DueDate                    string `json:"dueDate"`
		RequiredAction             string `json:"requiredAction"`
		KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
	} `json:"vulnerabilities"`
}
