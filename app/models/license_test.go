package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLicenseKey(t *testing.T) {
	key := NewLicenseKey()
	assert.True(t, strings.HasPrefix(key, "LIC-"))
	assert.Equal(t, key, strings.ToUpper(key))

	other := NewLicenseKey()
	assert.NotEqual(t, key, other)
}

func TestLicenseValidate(t *testing.T) {
	license := &License{
		Key:        NewLicenseKey(),
		SeatsTotal: 1,
	}
	require.NoError(t, license.Validate())

	license.Key = "x"
	assert.Error(t, license.Validate())

	license.Key = NewLicenseKey()
	license.SeatsTotal = 0
	assert.Error(t, license.Validate())
}

func TestLicenseHasExternalLink(t *testing.T) {
	assert.False(t, (&License{}).HasExternalLink())
	assert.True(t, (&License{ExternalAppID: "app-1"}).HasExternalLink())
	assert.True(t, (&License{ExternalEmail: "one@example.com"}).HasExternalLink())
	assert.True(t, (&License{ExternalCountID: 42}).HasExternalLink())
}

func TestLicenseCorrelationKey(t *testing.T) {
	l := &License{Key: "LIC-FALLBACK", ExternalAppID: "app-1", ExternalEmail: "one@example.com"}
	assert.Equal(t, "app-1", l.CorrelationKey())

	l.ExternalAppID = ""
	assert.Equal(t, "one@example.com", l.CorrelationKey())

	l.ExternalEmail = ""
	assert.Equal(t, "LIC-FALLBACK", l.CorrelationKey())
}
