package licensesync

import (
	"time"

	"github.com/licensedesk/licensedesk/app/models"
)

// Store is the slice of the license repository consumed by the sync engine.
// Lookups return gorm.ErrRecordNotFound when no row matches.
type Store interface {
	FindByExternalAppID(appID string) (*models.License, error)
	FindByExternalEmail(email string) (*models.License, error)
	FindByExternalCountID(countID int) (*models.License, error)
	FlushBatch(creates []*models.License, updates []*models.License) error
	MarkSyncFailed(ids []uint, message string) error
	ModifiedSinceLastSync() ([]models.License, error)
	MarkPushed(ids []uint, at time.Time) error
	RecordMirrors(rows []models.ExternalLicenseMirror) error
}
