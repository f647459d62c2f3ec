// Package refresh keeps previously-enriched CVEs current as upstream
// intelligence changes, independent of user requests.
package refresh

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
	"github.com/seclens/vulnprio/internal/telemetry"
)

// Options tune the scheduler. Zero values fall back to defaults.
type Options struct {
	// Interval between cycles; daily matches the EPSS/KEV update cadence.
	Interval time.Duration

	// Warmup delays the first cycle so startup traffic settles first.
	Warmup time.Duration

	// ScoreDelta is the negligible-change threshold: movements at or
	// below it are not emitted to the notifier.
	ScoreDelta float64

	TTLs domain.SourceTTLs
	Now  func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 24 * time.Hour
	}
	if o.Warmup <= 0 {
		o.Warmup = time.Minute
	}
	if o.ScoreDelta <= 0 {
		o.ScoreDelta = 0.5
	}
	if o.TTLs == (domain.SourceTTLs{}) {
		o.TTLs = domain.DefaultSourceTTLs()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Scheduler periodically re-enriches stale identifiers and emits a
// change-set of meaningful score movements. Per-identifier failures are
// logged and retried next cycle; they never halt the loop.
type Scheduler struct {
	enricher ports.Enricher
	store    ports.VulnerabilityStore
	cache    ports.EnrichmentCache
	kev      ports.KEVSource
	notifier ports.ChangeNotifier
	opts     Options
}

// NewScheduler creates a refresh scheduler. The notifier may be nil.
func NewScheduler(enricher ports.Enricher, store ports.VulnerabilityStore, cache ports.EnrichmentCache, kev ports.KEVSource, notifier ports.ChangeNotifier, opts Options) *Scheduler {
	return &Scheduler{
		enricher: enricher,
		store:    store,
		cache:    cache,
		kev:      kev,
		notifier: notifier,
		opts:     opts.withDefaults(),
	}
}

// Start launches the background loop. It stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.Warmup):
		}

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		s.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	changes, err := s.RunCycle(ctx)
	if err != nil {
		telemetry.RefreshCycles.WithLabelValues("error").Inc()
		slog.Error("refresh cycle failed", "error", err)
		return
	}
	telemetry.RefreshCycles.WithLabelValues("ok").Inc()
	if len(changes) > 0 && s.notifier != nil {
		s.notifier.NotifyScoreChanges(changes)
	}
}

// RunCycle executes one refresh pass and returns the change-set of
// identifiers whose score moved by more than the configured delta.
// Exported so operators can trigger an off-schedule refresh.
func (s *Scheduler) RunCycle(ctx context.Context) ([]domain.ScoreChange, error) {
	cycleID := uuid.NewString()[:8]
	start := s.opts.Now()

	// KEV syncs per cycle, matching the catalog's publish cadence. A
	// failed sync degrades membership checks to the previous snapshot.
	if count, err := s.kev.Sync(ctx); err != nil {
		slog.Warn("KEV sync failed, keeping previous snapshot", "cycle", cycleID, "error", err)
	} else {
		slog.Info("KEV catalog synced", "cycle", cycleID, "entries", count)
	}

	ids, err := s.store.ListCVEIDs(ctx)
	if err != nil {
		// Fall back to the cache's working set so a storage hiccup
		// does not skip the whole cycle.
		slog.Warn("listing stored CVEs failed, refreshing cached set", "cycle", cycleID, "error", err)
		ids = s.cache.Keys()
	}

	var changes []domain.ScoreChange
	refreshed, skipped, failed := 0, 0, 0

	for _, id := range ids {
		if ctx.Err() != nil {
			return changes, ctx.Err()
		}

		if entry, ok := s.cache.Get(id); ok && entry.Fresh(s.opts.Now(), s.opts.TTLs) {
			skipped++
			continue
		}

		change, err := s.refreshOne(ctx, id)
		if err != nil {
			failed++
			slog.Warn("refresh failed, will retry next cycle", "cycle", cycleID, "cve_id", id, "error", err)
			continue
		}
		refreshed++
		if change != nil {
			changes = append(changes, *change)
		}
	}

	telemetry.ScoreChanges.Add(float64(len(changes)))
	slog.Info("refresh cycle complete",
		"cycle", cycleID,
		"refreshed", refreshed,
		"skipped", skipped,
		"failed", failed,
		"changes", len(changes),
		"duration", s.opts.Now().Sub(start),
	)
	return changes, nil
}

// refreshOne re-enriches one identifier with neutral context and
// reports a change when the stored score moved past the delta.
func (s *Scheduler) refreshOne(ctx context.Context, id string) (*domain.ScoreChange, error) {
	prev, err := s.store.GetVulnerability(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.enricher.EnrichOne(ctx, id, domain.DefaultAssetContext())
	if err != nil {
		return nil, err
	}

	if prev == nil || math.Abs(result.Score-prev.RiskScore) <= s.opts.ScoreDelta {
		return nil, nil
	}
	return &domain.ScoreChange{
		CVEID:       id,
		OldScore:    prev.RiskScore,
		NewScore:    result.Score,
		OldSeverity: prev.Severity,
		NewSeverity: result.Severity,
		ChangedAt:   s.opts.Now(),
	}, nil
}
