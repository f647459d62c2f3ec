package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/vulnprio/internal/core/domain"
)

func sampleEnriched(id string) domain.EnrichedVulnerability {
	return domain.EnrichedVulnerability{
		CVEID: id,
		Detail: &domain.DetailRecord{
			CVEID:     id,
			CVSSScore: 9.8,
			HasCVSS:   true,
		},
		Exploit:        &domain.ExploitRecord{CVEID: id, Probability: 0.5, Percentile: 0.9},
		KEV:            &domain.KEVRecord{CVEID: id, Listed: true},
		LastEnrichedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestMemoryCache_PutGet(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()

	_, ok := c.Get("CVE-2021-44228")
	assert.False(t, ok)

	c.Put("CVE-2021-44228", sampleEnriched("CVE-2021-44228"), map[domain.Source]time.Time{
		domain.SourceDetail:  now,
		domain.SourceExploit: now,
		domain.SourceKEV:     now,
	})

	entry, ok := c.Get("CVE-2021-44228")
	require.True(t, ok)
	assert.Equal(t, "CVE-2021-44228", entry.Enriched.CVEID)
	assert.Equal(t, 1, c.Len())
	assert.True(t, entry.Fresh(now, domain.DefaultSourceTTLs()))
}

func TestMemoryCache_PartialStaleness(t *testing.T) {
	c := NewMemoryCache()
	ttls := domain.DefaultSourceTTLs()
	now := time.Now()

	// Detail fresh, exploit and KEV past their 24h TTL.
	c.Put("CVE-2020-1234", sampleEnriched("CVE-2020-1234"), map[domain.Source]time.Time{
		domain.SourceDetail:  now.Add(-1 * time.Hour),
		domain.SourceExploit: now.Add(-25 * time.Hour),
		domain.SourceKEV:     now.Add(-30 * time.Hour),
	})

	entry, ok := c.Get("CVE-2020-1234")
	require.True(t, ok)

	stale := entry.StaleSources(now, ttls)
	assert.ElementsMatch(t, []domain.Source{domain.SourceExploit, domain.SourceKEV}, stale)
	assert.False(t, entry.Fresh(now, ttls))
}

func TestMemoryCache_OlderWriteNeverRegressesTimestamp(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	older := now.Add(-48 * time.Hour)

	c.Put("CVE-2020-1234", sampleEnriched("CVE-2020-1234"), map[domain.Source]time.Time{
		domain.SourceDetail: now,
	})
	c.Put("CVE-2020-1234", sampleEnriched("CVE-2020-1234"), map[domain.Source]time.Time{
		domain.SourceDetail: older,
	})

	entry, ok := c.Get("CVE-2020-1234")
	require.True(t, ok)
	assert.Equal(t, now.Unix(), entry.FetchedAt[domain.SourceDetail].Unix())
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.Put("CVE-2020-1234", sampleEnriched("CVE-2020-1234"), map[domain.Source]time.Time{
		domain.SourceDetail: now,
	})

	entry, _ := c.Get("CVE-2020-1234")
	entry.FetchedAt[domain.SourceDetail] = time.Time{}

	again, _ := c.Get("CVE-2020-1234")
	assert.Equal(t, now.Unix(), again.FetchedAt[domain.SourceDetail].Unix())
}

func TestSQLiteCache_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/cache.db"

	c, err := NewSQLiteCache(path)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	c.Put("CVE-2021-44228", sampleEnriched("CVE-2021-44228"), map[domain.Source]time.Time{
		domain.SourceDetail:  now,
		domain.SourceExploit: now,
		domain.SourceKEV:     now,
	})
	require.NoError(t, c.Close())

	// Reopen: the entry must survive the restart.
	c2, err := NewSQLiteCache(path)
	require.NoError(t, err)
	defer c2.Close()

	entry, ok := c2.Get("CVE-2021-44228")
	require.True(t, ok)
	assert.Equal(t, "CVE-2021-44228", entry.Enriched.CVEID)
	assert.True(t, entry.Enriched.InKEV())
	assert.Equal(t, now.Unix(), entry.FetchedAt[domain.SourceDetail].Unix())
	assert.Equal(t, 1, c2.Len())
}

func TestSQLiteCache_PruneOlderThan(t *testing.T) {
	c, err := NewSQLiteCache(t.TempDir() + "/cache.db")
	require.NoError(t, err)
	defer c.Close()

	now := time.Now()
	c.Put("CVE-2020-0001", sampleEnriched("CVE-2020-0001"), map[domain.Source]time.Time{domain.SourceDetail: now})

	removed, err := c.PruneOlderThan(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 0, c.Len())
}
