package cache

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/seclens/vulnprio/internal/core/domain"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteCache is a durable enrichment cache: a write-through sqlite
// store with the full working set mirrored in memory. Reads never touch
// the database; writes are synchronous upserts.
type SQLiteCache struct {
	mem *MemoryCache
	db  *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database and loads all
// persisted entries into memory.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	c := &SQLiteCache{mem: NewMemoryCache(), db: db}
	if err := c.warm(); err != nil {
		return nil, err
	}
	return c, nil
}

// warm loads every persisted entry into the memory mirror.
func (c *SQLiteCache) warm() error {
	rows, err := c.db.Query(`
		SELECT cve_id, enriched, detail_fetched_at, exploit_fetched_at, kev_fetched_at
		FROM enrichment_cache
	`)
	if err != nil {
		return fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var cveID, enrichedJSON string
		var detailAt, exploitAt, kevAt sql.NullTime
		if err := rows.Scan(&cveID, &enrichedJSON, &detailAt, &exploitAt, &kevAt); err != nil {
			return fmt.Errorf("failed to scan cache entry: %w", err)
		}

		var e domain.EnrichedVulnerability
		if err := json.Unmarshal([]byte(enrichedJSON), &e); err != nil {
			log.Printf("[CACHE] Skipping corrupt entry %s: %v", cveID, err)
			continue
		}

		fetchedAt := make(map[domain.Source]time.Time, 3)
		if detailAt.Valid {
			fetchedAt[domain.SourceDetail] = detailAt.Time
		}
		if exploitAt.Valid {
			fetchedAt[domain.SourceExploit] = exploitAt.Time
		}
		if kevAt.Valid {
			fetchedAt[domain.SourceKEV] = kevAt.Time
		}

		c.mem.Put(cveID, e, fetchedAt)
		loaded++
	}

	if loaded > 0 {
		log.Printf("[CACHE] Loaded %d cached enrichments", loaded)
	}
	return rows.Err()
}

// Get returns the cached entry from the memory mirror.
func (c *SQLiteCache) Get(cveID string) (*domain.CacheEntry, bool) {
	return c.mem.Get(cveID)
}

// Put updates the memory mirror and upserts the durable row.
func (c *SQLiteCache) Put(cveID string, e domain.EnrichedVulnerability, fetchedAt map[domain.Source]time.Time) {
	c.mem.Put(cveID, e, fetchedAt)

	// Persist the merged entry so stale-fallback timestamps survive too.
	entry, ok := c.mem.Get(cveID)
	if !ok {
		return
	}

	enrichedJSON, err := json.Marshal(entry.Enriched)
	if err != nil {
		log.Printf("[CACHE] Failed to marshal entry %s: %v", cveID, err)
		return
	}

	_, err = c.db.Exec(`
		INSERT INTO enrichment_cache (cve_id, enriched, detail_fetched_at, exploit_fetched_at, kev_fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(cve_id) DO UPDATE SET
			enriched = excluded.enriched,
			detail_fetched_at = excluded.detail_fetched_at,
			exploit_fetched_at = excluded.exploit_fetched_at,
			kev_fetched_at = excluded.kev_fetched_at,
			updated_at = CURRENT_TIMESTAMP
	`, cveID, string(enrichedJSON),
		nullTime(entry.FetchedAt[domain.SourceDetail]),
		nullTime(entry.FetchedAt[domain.SourceExploit]),
		nullTime(entry.FetchedAt[domain.SourceKEV]))
	if err != nil {
		log.Printf("[CACHE] Failed to persist entry %s: %v", cveID, err)
	}
}

// Keys returns all cached identifiers.
func (c *SQLiteCache) Keys() []string { return c.mem.Keys() }

// Len returns the number of cached identifiers.
func (c *SQLiteCache) Len() int { return c.mem.Len() }

// PruneOlderThan removes entries not updated since the cutoff. Retention
// policy is owned by the operator, not the pipeline; this is the hook
// for an external cleanup job.
func (c *SQLiteCache) PruneOlderThan(cutoff time.Time) (int64, error) {
	res, err := c.db.Exec("DELETE FROM enrichment_cache WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	removed, _ := res.RowsAffected()

	for _, id := range c.mem.Keys() {
		if entry, ok := c.mem.Get(id); ok && entry.UpdatedAt.Before(cutoff) {
			c.mem.mu.Lock()
			delete(c.mem.entries, id)
			c.mem.mu.Unlock()
		}
	}
	return removed, nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
