// Package persistence decouples enrichment from storage writes: records
// are queued and flushed in batches so a slow database never blocks a
// request in flight.
package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/ports"
)

// PersistenceManager handles background batch writing of vulnerability
// records to storage. Records for the same CVE coalesce within a batch;
// only the latest snapshot is written.
type PersistenceManager struct {
	store       ports.VulnerabilityStore
	persistChan chan domain.VulnerabilityRecord
	batchSize   int
	interval    time.Duration
	enabled     bool
	mu          sync.RWMutex
}

// NewPersistenceManager creates a new manager.
func NewPersistenceManager(store ports.VulnerabilityStore, bufferSize int) *PersistenceManager {
	return &PersistenceManager{
		store:       store,
		persistChan: make(chan domain.VulnerabilityRecord, bufferSize),
		batchSize:   100,
		interval:    5 * time.Second,
		enabled:     true,
	}
}

// Persist queues a record for batch writing if enabled. The send never
// blocks: when the queue is full the record is dropped and picked up
// again by the next refresh cycle.
func (p *PersistenceManager) Persist(rec domain.VulnerabilityRecord) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.enabled {
		return
	}
	select {
	case p.persistChan <- rec:
	default:
		slog.Warn("persistence queue full, dropping record", "cve_id", rec.CVEID)
	}
}

// IsEnabled returns the current persistence status.
func (p *PersistenceManager) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled toggles the persistence logic.
func (p *PersistenceManager) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Start begins the persistence loop. A final flush runs on shutdown so
// queued records are not lost.
func (p *PersistenceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	buffer := make(map[string]domain.VulnerabilityRecord)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.drain(buffer)
				p.flushBuffer(buffer)
				return
			case rec := <-p.persistChan:
				buffer[rec.CVEID] = rec
				if len(buffer) >= p.batchSize {
					p.flushBuffer(buffer)
					buffer = make(map[string]domain.VulnerabilityRecord)
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					p.flushBuffer(buffer)
					buffer = make(map[string]domain.VulnerabilityRecord)
				}
			}
		}
	}()
}

// drain pulls any records still queued at shutdown into the buffer.
func (p *PersistenceManager) drain(buffer map[string]domain.VulnerabilityRecord) {
	for {
		select {
		case rec := <-p.persistChan:
			buffer[rec.CVEID] = rec
		default:
			return
		}
	}
}

func (p *PersistenceManager) flushBuffer(buffer map[string]domain.VulnerabilityRecord) {
	if len(buffer) == 0 || p.store == nil {
		return
	}
	recs := make([]domain.VulnerabilityRecord, 0, len(buffer))
	for _, r := range buffer {
		recs = append(recs, r)
	}
	if err := p.store.UpsertVulnerabilitiesBatch(context.Background(), recs); err != nil {
		slog.Error("failed to batch save vulnerabilities", "count", len(recs), "error", err)
	}
}
