package licensesync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licensedesk/licensedesk/app/models"
)

func TestMatchPrefersAppIDOverEmail(t *testing.T) {
	store := newFakeStore()
	byApp := &models.License{Key: "LIC-A", ExternalAppID: "app-1"}
	byEmail := &models.License{Key: "LIC-B", ExternalEmail: "one@example.com"}
	store.add(byApp)
	store.add(byEmail)

	m := NewMatcher(store)
	match, confidence, err := m.Match(extRecord(1, "app-1", "one@example.com"))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "LIC-A", match.Key)
	assert.Equal(t, models.MATCH_BY_APP_ID, confidence)
}

func TestMatchFallsThroughToEmail(t *testing.T) {
	store := newFakeStore()
	byEmail := &models.License{Key: "LIC-B", ExternalEmail: "one@example.com"}
	store.add(byEmail)

	m := NewMatcher(store)
	match, confidence, err := m.Match(extRecord(1, "app-unknown", "one@example.com"))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "LIC-B", match.Key)
	assert.Equal(t, models.MATCH_BY_EMAIL, confidence)
}

func TestMatchFallsThroughToCountID(t *testing.T) {
	store := newFakeStore()
	byCount := &models.License{Key: "LIC-C", ExternalCountID: 42}
	store.add(byCount)

	m := NewMatcher(store)
	match, confidence, err := m.Match(extRecord(42, "", ""))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "LIC-C", match.Key)
	assert.Equal(t, models.MATCH_BY_COUNT_ID, confidence)
}

func TestMatchNoHitSignalsCreate(t *testing.T) {
	store := newFakeStore()

	m := NewMatcher(store)
	match, confidence, err := m.Match(extRecord(1, "app-1", "one@example.com"))
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Empty(t, confidence)
}

func TestMatchPropagatesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = errors.New("dial tcp: connection refused")

	m := NewMatcher(store)
	match, _, err := m.Match(extRecord(1, "app-1", ""))
	assert.Nil(t, match)
	assert.EqualError(t, err, "dial tcp: connection refused")
}
