package licensesync

import (
	"errors"

	"gorm.io/gorm"

	"github.com/licensedesk/licensedesk/app/models"
)

// Matcher locates the internal license for an external record using a fixed
// priority cascade: app id, then email, then count id. The first hit wins.
// App id is the most stable key (only product licenses carry one), email is
// the next-most-unique, and count id is a weak, sometimes-recycled sequence
// number used only as a last resort. Reordering the cascade would change
// matching outcomes on ambiguous records.
type Matcher struct {
	store Store
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Match returns the matched license and the correlation key that produced the
// hit, or (nil, "") when no internal record correlates, which signals
// create-new to the orchestrator. Store errors other than not-found propagate.
func (m *Matcher) Match(ext ExternalLicenseRecord) (*models.License, string, error) {
	if ext.AppID != "" {
		license, err := m.store.FindByExternalAppID(ext.AppID)
		if err == nil {
			return license, models.MATCH_BY_APP_ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
	}

	if ext.Email != "" {
		license, err := m.store.FindByExternalEmail(ext.Email)
		if err == nil {
			return license, models.MATCH_BY_EMAIL, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
	}

	if ext.CountID != 0 {
		license, err := m.store.FindByExternalCountID(ext.CountID)
		if err == nil {
			return license, models.MATCH_BY_COUNT_ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
	}

	return nil, "", nil
}
