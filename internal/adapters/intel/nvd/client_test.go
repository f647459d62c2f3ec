package nvd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/seclens/vulnprio/internal/core/domain"
)

const log4shellResponse = `{
	"totalResults": 1,
	"vulnerabilities": [{
		"cve": {
			"id": "CVE-2021-44228",
			"published": "2021-12-10T10:15:09.143",
			"lastModified": "2023-11-07T03:39:38.227",
			"descriptions": [
				{"lang": "es", "value": "descripcion en espanol"},
				{"lang": "en", "value": "Apache Log4j2 JNDI features do not protect against attacker controlled LDAP."}
			],
			"metrics": {
				"cvssMetricV31": [{
					"cvssData": {"baseScore": 10.0, "vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H"}
				}]
			},
			"weaknesses": [{
				"description": [
					{"lang": "en", "value": "CWE-917"},
					{"lang": "en", "value": "NVD-CWE-Other"}
				]
			}],
			"references": [
				{"url": "https://logging.apache.org/log4j/2.x/security.html"},
				{"url": "https://www.cisa.gov/uscert/apache-log4j-vulnerability-guidance"}
			]
		}
	}]
}`

func TestFetch_ParsesDetailRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CVE-2021-44228", r.URL.Query().Get("cveId"))
		w.Write([]byte(log4shellResponse))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	rec, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)

	assert.Equal(t, "CVE-2021-44228", rec.CVEID)
	assert.True(t, rec.HasCVSS)
	assert.Equal(t, 10.0, rec.CVSSScore)
	assert.Equal(t, "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:C/C:H/I:H/A:H", rec.CVSSVector)
	assert.Contains(t, rec.Description, "Log4j2")
	assert.Equal(t, []string{"CWE-917"}, rec.CWEIDs)
	assert.Len(t, rec.References, 2)
	assert.Equal(t, 2021, rec.PublishedDate.Year())
	assert.False(t, rec.FetchedAt.IsZero())
}

func TestFetch_UnknownIdentifierIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalResults": 0, "vulnerabilities": []}`))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	_, err := c.Fetch(context.Background(), "CVE-2099-99999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(log4shellResponse))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	rec, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)
	assert.Equal(t, "CVE-2021-44228", rec.CVEID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_ExhaustedRetriesAreUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	_, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestFetch_RetriesDrawFromRequestBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// One token, no refill: the first attempt spends the whole budget,
	// so the retry must stop at the limiter instead of hitting the API.
	c := NewClient(WithBaseURL(server.URL))
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Fetch(ctx, "CVE-2021-44228")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_NoCVSSForReservedCVE(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"totalResults": 1,
			"vulnerabilities": [{
				"cve": {
					"id": "CVE-2024-0001",
					"descriptions": [{"lang": "en", "value": "Reserved."}],
					"metrics": {}
				}
			}]
		}`))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	rec, err := c.Fetch(context.Background(), "CVE-2024-0001")
	require.NoError(t, err)
	assert.False(t, rec.HasCVSS)
	assert.Zero(t, rec.CVSSScore)
}

func TestFetch_SendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apiKey")
		w.Write([]byte(log4shellResponse))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL), WithAPIKey("secret-key"))
	_, err := c.Fetch(context.Background(), "CVE-2021-44228")
	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotKey)
}

func TestFetch_ReferencesCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"totalResults": 1,
			"vulnerabilities": [{
				"cve": {
					"id": "CVE-2021-0001",
					"descriptions": [{"lang": "en", "value": "x"}],
					"references": [
						{"url": "https://a/1"}, {"url": "https://a/2"}, {"url": "https://a/3"},
						{"url": "https://a/4"}, {"url": "https://a/5"}, {"url": "https://a/6"},
						{"url": "https://a/7"}, {"url": "https://a/8"}, {"url": "https://a/9"},
						{"url": "https://a/10"}, {"url": "https://a/11"}, {"url": "https://a/12"}
					]
				}
			}]
		}`))
	}))
	defer server.Close()

	c := NewClient(WithBaseURL(server.URL))
	rec, err := c.Fetch(context.Background(), "CVE-2021-0001")
	require.NoError(t, err)
	assert.Len(t, rec.References, maxReferences)
}
