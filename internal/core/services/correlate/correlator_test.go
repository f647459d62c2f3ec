package correlate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/vulnprio/internal/core/domain"
)

const testID = "CVE-2021-44228"

func unavailable(s domain.Source) error {
	return &domain.SourceUnavailableError{Source: s, Err: errors.New("connection refused")}
}

func TestMerge_AllSourcesPresent(t *testing.T) {
	now := time.Now()
	o := Outcomes{
		Detail:  &domain.DetailRecord{CVEID: testID, CVSSScore: 10, HasCVSS: true},
		Exploit: &domain.ExploitRecord{CVEID: testID, Probability: 0.97},
		KEV:     &domain.KEVRecord{CVEID: testID, Listed: true},
	}

	e, err := Merge(testID, o, now)
	require.NoError(t, err)

	assert.Equal(t, testID, e.CVEID)
	assert.False(t, e.DetailIncomplete)
	assert.False(t, e.IsDegraded())
	assert.True(t, e.InKEV())
	assert.Equal(t, 0.97, e.EPSSProbability())
	assert.Equal(t, now, e.LastEnrichedAt)
}

func TestMerge_TotalOutageFails(t *testing.T) {
	o := Outcomes{
		DetailErr:  unavailable(domain.SourceDetail),
		ExploitErr: unavailable(domain.SourceExploit),
		KEVErr:     unavailable(domain.SourceKEV),
	}

	_, err := Merge(testID, o, time.Now())
	assert.ErrorIs(t, err, domain.ErrAllSourcesUnavailable)
}

func TestMerge_PartialOutageDegrades(t *testing.T) {
	o := Outcomes{
		Detail:     &domain.DetailRecord{CVEID: testID, CVSSScore: 7.5, HasCVSS: true},
		ExploitErr: unavailable(domain.SourceExploit),
		KEV:        &domain.KEVRecord{CVEID: testID, Listed: false},
	}

	e, err := Merge(testID, o, time.Now())
	require.NoError(t, err)

	assert.True(t, e.IsDegraded())
	assert.Equal(t, []domain.Source{domain.SourceExploit}, e.Degraded)
	assert.Equal(t, 0.0, e.EPSSProbability())
	assert.False(t, e.InKEV())
}

func TestMerge_DetailNotFoundProceedsIncomplete(t *testing.T) {
	o := Outcomes{
		DetailErr: domain.ErrNotFound,
		Exploit:   &domain.ExploitRecord{CVEID: testID, Probability: 0.3},
		KEV:       &domain.KEVRecord{CVEID: testID, Listed: true},
	}

	e, err := Merge(testID, o, time.Now())
	require.NoError(t, err)

	assert.True(t, e.DetailIncomplete)
	assert.False(t, e.IsDegraded())
	assert.True(t, e.InKEV())
}

func TestMerge_DetailUnavailableDegradesNotIncomplete(t *testing.T) {
	o := Outcomes{
		DetailErr: unavailable(domain.SourceDetail),
		Exploit:   &domain.ExploitRecord{CVEID: testID, Probability: 0.3},
		KEV:       &domain.KEVRecord{CVEID: testID, Listed: true},
	}

	e, err := Merge(testID, o, time.Now())
	require.NoError(t, err)

	// Detail-incomplete means the catalog disowned the identifier; an
	// unreachable catalog is a degradation, not a verdict.
	assert.False(t, e.DetailIncomplete)
	assert.Equal(t, []domain.Source{domain.SourceDetail}, e.Degraded)
}

func TestMerge_ExploitNotFoundDefaultsToZero(t *testing.T) {
	o := Outcomes{
		Detail:     &domain.DetailRecord{CVEID: testID, CVSSScore: 5.0, HasCVSS: true},
		ExploitErr: domain.ErrNotFound,
		KEV:        &domain.KEVRecord{CVEID: testID, Listed: false},
	}

	e, err := Merge(testID, o, time.Now())
	require.NoError(t, err)

	assert.Nil(t, e.Exploit)
	assert.Equal(t, 0.0, e.EPSSProbability())
	assert.False(t, e.IsDegraded())
}

func TestMerge_OrderIndependent(t *testing.T) {
	// The merge only reads disjoint fields, so equal outcomes always
	// produce an identical record regardless of which fetch finished
	// first. Verified via repeated merges.
	o := Outcomes{
		Detail:  &domain.DetailRecord{CVEID: testID, CVSSScore: 9.8, HasCVSS: true},
		Exploit: &domain.ExploitRecord{CVEID: testID, Probability: 0.5},
		KEVErr:  unavailable(domain.SourceKEV),
	}
	now := time.Now()

	first, err := Merge(testID, o, now)
	require.NoError(t, err)
	second, err := Merge(testID, o, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
