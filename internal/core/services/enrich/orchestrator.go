// Package enrich implements the enrichment orchestrator: the top-level
// entry point that drives cache-or-fetch, correlation, scoring and
// persistence for CVE identifiers.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
	"github.com/seclens/vulnprio/internal/core/services/correlate"
	"github.com/seclens/vulnprio/internal/core/services/scoring"
	"github.com/seclens/vulnprio/internal/telemetry"
)

// RecordSink receives scored records for persistence. The batching
// persistence manager implements this; tests use an in-memory sink.
type RecordSink interface {
	Persist(rec domain.VulnerabilityRecord)
}

// Options tune the orchestrator. Zero values fall back to defaults.
type Options struct {
	TTLs domain.SourceTTLs

	// AdapterTimeout bounds each external call. OverallTimeout bounds a
	// whole shared fetch sequence and must exceed the sum of adapter
	// timeouts so a partial-refresh path never times out spuriously.
	AdapterTimeout time.Duration
	OverallTimeout time.Duration

	// BulkConcurrency bounds the fan-out of EnrichBulk so batches
	// respect adapter rate limits in aggregate.
	BulkConcurrency int64

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTLs == (domain.SourceTTLs{}) {
		o.TTLs = domain.DefaultSourceTTLs()
	}
	if o.AdapterTimeout <= 0 {
		o.AdapterTimeout = 10 * time.Second
	}
	if o.OverallTimeout <= 0 {
		o.OverallTimeout = 45 * time.Second
	}
	if o.BulkConcurrency <= 0 {
		o.BulkConcurrency = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator deduplicates concurrent enrichment requests per
// identifier, decides partial re-fetches from cache staleness, and owns
// all writes to the enrichment cache.
type Orchestrator struct {
	detail  ports.DetailSource
	exploit ports.ExploitSource
	kev     ports.KEVSource
	cache   ports.EnrichmentCache
	sink    RecordSink

	flight singleflight.Group
	sem    *semaphore.Weighted
	opts   Options
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(detail ports.DetailSource, exploit ports.ExploitSource, kev ports.KEVSource, cache ports.EnrichmentCache, sink RecordSink, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		detail:  detail,
		exploit: exploit,
		kev:     kev,
		cache:   cache,
		sink:    sink,
		sem:     semaphore.NewWeighted(opts.BulkConcurrency),
		opts:    opts,
	}
}

// EnrichOne enriches a single identifier and scores it with the caller's
// asset context. Enrichment data is shared across concurrent callers for
// the same identifier; the score is computed per caller since context
// varies while the data does not.
func (o *Orchestrator) EnrichOne(ctx context.Context, cveID string, actx domain.AssetContext) (domain.RiskScoreResult, error) {
	start := o.opts.Now()

	id, err := domain.ParseCVEID(cveID)
	if err != nil {
		telemetry.Enrichments.WithLabelValues("invalid").Inc()
		return domain.RiskScoreResult{}, err
	}

	e, err := o.enriched(ctx, id)
	if err != nil {
		telemetry.Enrichments.WithLabelValues("error").Inc()
		return domain.RiskScoreResult{}, err
	}

	telemetry.Enrichments.WithLabelValues("ok").Inc()
	telemetry.EnrichmentDuration.Observe(o.opts.Now().Sub(start).Seconds())
	return scoring.Score(e, actx, o.opts.Now()), nil
}

// EnrichBulk fans out per identifier with bounded concurrency. One
// identifier's failure never aborts its siblings; results are keyed by
// the identifier as supplied by the caller.
func (o *Orchestrator) EnrichBulk(ctx context.Context, cveIDs []string, actx domain.AssetContext) map[string]ports.BulkResult {
	results := make(map[string]ports.BulkResult, len(cveIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, raw := range cveIDs {
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()

			if err := o.sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[raw] = ports.BulkResult{Err: err}
				mu.Unlock()
				return
			}
			defer o.sem.Release(1)

			r, err := o.EnrichOne(ctx, raw, actx)
			mu.Lock()
			if err != nil {
				results[raw] = ports.BulkResult{Err: err}
			} else {
				results[raw] = ports.BulkResult{Result: &r}
			}
			mu.Unlock()
		}(raw)
	}

	wg.Wait()
	return results
}

// enriched returns the current enriched view for a canonical identifier,
// from cache when fully fresh, otherwise through a single shared fetch.
func (o *Orchestrator) enriched(ctx context.Context, id string) (domain.EnrichedVulnerability, error) {
	if entry, ok := o.cache.Get(id); ok && entry.Fresh(o.opts.Now(), o.opts.TTLs) {
		telemetry.CacheLookups.WithLabelValues("hit").Inc()
		return entry.Enriched, nil
	}
	telemetry.CacheLookups.WithLabelValues("miss").Inc()

	// The flight runs on a context detached from the caller: one
	// caller's cancellation must not kill the fetch other waiters share.
	fctx := context.WithoutCancel(ctx)

	ch := o.flight.DoChan(id, func() (interface{}, error) {
		return o.fetchAndCorrelate(fctx, id)
	})

	select {
	case <-ctx.Done():
		return domain.EnrichedVulnerability{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.EnrichedVulnerability{}, res.Err
		}
		if res.Shared {
			telemetry.FlightsShared.Inc()
		}
		return res.Val.(domain.EnrichedVulnerability), nil
	}
}

// fetchAndCorrelate runs one fetch/correlate/score/persist sequence.
// Only sources whose cached data exceeded its TTL are re-fetched; fresh
// per-source records are reused from the cache entry.
func (o *Orchestrator) fetchAndCorrelate(ctx context.Context, id string) (domain.EnrichedVulnerability, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.OverallTimeout)
	defer cancel()

	now := o.opts.Now()
	cached, hasCached := o.cache.Get(id)

	// Re-check freshness inside the flight: a waiter may have queued
	// behind a fetch that already refreshed the entry.
	if hasCached && cached.Fresh(now, o.opts.TTLs) {
		return cached.Enriched, nil
	}

	stale := make(map[domain.Source]bool, len(domain.Sources))
	if hasCached {
		for _, s := range cached.StaleSources(now, o.opts.TTLs) {
			stale[s] = true
		}
	} else {
		for _, s := range domain.Sources {
			stale[s] = true
		}
	}

	var out correlate.Outcomes
	var detailAt, exploitAt, kevAt time.Time

	// The three fetches write disjoint fields, so a WaitGroup is all the
	// coordination needed.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if !stale[domain.SourceDetail] {
			out.Detail = cached.Enriched.Detail
			out.DetailErr = cachedOutcomeErr(cached.Enriched.Detail == nil)
			detailAt = cached.FetchedAt[domain.SourceDetail]
			return
		}
		cctx, ccancel := context.WithTimeout(ctx, o.opts.AdapterTimeout)
		defer ccancel()
		out.Detail, out.DetailErr = o.detail.Fetch(cctx, id)
		if !domain.IsUnavailable(out.DetailErr) {
			detailAt = now
		}
	}()
	go func() {
		defer wg.Done()
		if !stale[domain.SourceExploit] {
			out.Exploit = cached.Enriched.Exploit
			out.ExploitErr = cachedOutcomeErr(cached.Enriched.Exploit == nil)
			exploitAt = cached.FetchedAt[domain.SourceExploit]
			return
		}
		cctx, ccancel := context.WithTimeout(ctx, o.opts.AdapterTimeout)
		defer ccancel()
		out.Exploit, out.ExploitErr = o.exploit.Fetch(cctx, id)
		if !domain.IsUnavailable(out.ExploitErr) {
			exploitAt = now
		}
	}()
	go func() {
		defer wg.Done()
		if !stale[domain.SourceKEV] {
			out.KEV = cached.Enriched.KEV
			out.KEVErr = cachedOutcomeErr(cached.Enriched.KEV == nil)
			kevAt = cached.FetchedAt[domain.SourceKEV]
			return
		}
		cctx, ccancel := context.WithTimeout(ctx, o.opts.AdapterTimeout)
		defer ccancel()
		out.KEV, out.KEVErr = o.kev.Fetch(cctx, id)
		if !domain.IsUnavailable(out.KEVErr) {
			kevAt = now
		}
	}()
	wg.Wait()

	// A failed fetch leaves its timestamp zero, which the cache treats as
	// never-fetched: the source stays stale and is retried on the next
	// call instead of hiding behind a full TTL.
	fetchedAt := map[domain.Source]time.Time{
		domain.SourceDetail:  detailAt,
		domain.SourceExploit: exploitAt,
		domain.SourceKEV:     kevAt,
	}

	// Degrade to cached-but-stale data where a re-fetch failed; the old
	// fetch timestamp is kept so the source is retried next time.
	var fallback []domain.Source
	if hasCached {
		fallback = o.applyStaleFallback(&out, cached, fetchedAt)
	}

	e, err := correlate.Merge(id, out, now)
	if err != nil {
		return domain.EnrichedVulnerability{}, err
	}
	for _, s := range fallback {
		e.Degraded = appendSource(e.Degraded, s)
	}

	o.cache.Put(id, e, fetchedAt)

	if o.sink != nil {
		neutral := scoring.Score(e, domain.DefaultAssetContext(), now)
		o.sink.Persist(domain.NewVulnerabilityRecord(e, neutral, now))
	}

	if e.IsDegraded() {
		slog.Warn("enrichment degraded", "cve_id", id, "sources", e.Degraded)
	}
	return e, nil
}

// applyStaleFallback substitutes stale cached records for sources whose
// re-fetch failed transiently. Returns the sources that fell back.
func (o *Orchestrator) applyStaleFallback(out *correlate.Outcomes, cached *domain.CacheEntry, fetchedAt map[domain.Source]time.Time) []domain.Source {
	var fallback []domain.Source

	if domain.IsUnavailable(out.DetailErr) && cached.Enriched.Detail != nil {
		out.Detail, out.DetailErr = cached.Enriched.Detail, nil
		fetchedAt[domain.SourceDetail] = cached.FetchedAt[domain.SourceDetail]
		fallback = append(fallback, domain.SourceDetail)
	}
	if domain.IsUnavailable(out.ExploitErr) && cached.Enriched.Exploit != nil {
		out.Exploit, out.ExploitErr = cached.Enriched.Exploit, nil
		fetchedAt[domain.SourceExploit] = cached.FetchedAt[domain.SourceExploit]
		fallback = append(fallback, domain.SourceExploit)
	}
	if domain.IsUnavailable(out.KEVErr) && cached.Enriched.KEV != nil {
		out.KEV, out.KEVErr = cached.Enriched.KEV, nil
		fetchedAt[domain.SourceKEV] = cached.FetchedAt[domain.SourceKEV]
		fallback = append(fallback, domain.SourceKEV)
	}
	return fallback
}

// cachedOutcomeErr reconstructs the per-source outcome for a reused
// cache field: a nil record means the source had answered NotFound.
func cachedOutcomeErr(missing bool) error {
	if missing {
		return domain.ErrNotFound
	}
	return nil
}

func appendSource(list []domain.Source, s domain.Source) []domain.Source {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
