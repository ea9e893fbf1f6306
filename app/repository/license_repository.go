package repository

import (
	"strings"
	"time"

	"github.com/licensedesk/licensedesk/app/models"
	"gorm.io/gorm"
)

// licenseRepository implements the LicenseRepository interface
type licenseRepository struct {
	db *gorm.DB
}

// NewLicenseRepository creates a new license repository instance
func NewLicenseRepository(db *gorm.DB) LicenseRepository {
	return &licenseRepository{db: db}
}

// Create creates a new license in the database
func (r *licenseRepository) Create(license *models.License) error {
	return r.db.Create(license).Error
}

// GetByID retrieves a license by its ID
func (r *licenseRepository) GetByID(id uint) (*models.License, error) {
	var license models.License
	err := r.db.First(&license, id).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GetByKey retrieves a license by its internal key
func (r *licenseRepository) GetByKey(key string) (*models.License, error) {
	var license models.License
	err := r.db.Where("`key` = ?", key).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// Update updates an existing license in the database
func (r *licenseRepository) Update(license *models.License) error {
	return r.db.Save(license).Error
}

// Delete soft deletes a license by its ID
func (r *licenseRepository) Delete(id uint) error {
	return r.db.Delete(&models.License{}, id).Error
}

// List retrieves a paginated list of licenses
func (r *licenseRepository) List(offset, limit int) ([]models.License, error) {
	var licenses []models.License
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&licenses).Error
	return licenses, err
}

// Count returns the total number of licenses
func (r *licenseRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.License{}).Count(&count).Error
	return count, err
}

// Search searches for licenses by key, DBA or external email
func (r *licenseRepository) Search(query string) ([]models.License, error) {
	var licenses []models.License
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("`key` LIKE ? OR dba LIKE ? OR external_email LIKE ?", searchPattern, searchPattern, searchPattern).
		Find(&licenses).Error
	return licenses, err
}

// FindByExternalAppID retrieves the license correlated to a vendor app id
func (r *licenseRepository) FindByExternalAppID(appID string) (*models.License, error) {
	var license models.License
	err := r.db.Where("external_app_id = ?", appID).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// FindByExternalEmail retrieves the license correlated to a vendor email
func (r *licenseRepository) FindByExternalEmail(email string) (*models.License, error) {
	var license models.License
	err := r.db.Where("external_email = ?", email).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// FindByExternalCountID retrieves the license correlated to a vendor count id
func (r *licenseRepository) FindByExternalCountID(countID int) (*models.License, error) {
	var license models.License
	err := r.db.Where("external_count_id = ?", countID).First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// FlushBatch writes one sync batch in a single transaction. Either the whole
// batch commits or none of it does; partial-row application is not possible.
func (r *licenseRepository) FlushBatch(creates []*models.License, updates []*models.License) error {
	if len(creates) == 0 && len(updates) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if len(creates) > 0 {
			if err := tx.Create(creates).Error; err != nil {
				return err
			}
		}
		for _, license := range updates {
			if err := tx.Save(license).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkSyncFailed stamps existing licenses whose batch could not be flushed.
// Best effort; the failure is already attributed in the run result.
func (r *licenseRepository) MarkSyncFailed(ids []uint, message string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(message) > 500 {
		message = message[:500]
	}
	return r.db.Model(&models.License{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"external_sync_status": models.SYNC_STATUS_FAILED,
			"external_sync_error":  message,
		}).Error
}

// ModifiedSinceLastSync returns licenses that carry a correlation key and have
// been edited in the dashboard after their last successful external sync.
// Used by the bidirectional push pass.
func (r *licenseRepository) ModifiedSinceLastSync() ([]models.License, error) {
	var licenses []models.License
	err := r.db.
		Where("(external_app_id <> '' OR external_email <> '')").
		Where("last_external_sync_at IS NOT NULL AND updated_at > last_external_sync_at").
		Find(&licenses).Error
	return licenses, err
}

// MarkPushed stamps the given licenses as externally synced at the given time
func (r *licenseRepository) MarkPushed(ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.License{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"last_external_sync_at": at,
			"external_sync_status":  models.SYNC_STATUS_SYNCED,
			"external_sync_error":   "",
		}).Error
}

// RecordMirrors persists raw vendor snapshots for auditing
func (r *licenseRepository) RecordMirrors(rows []models.ExternalLicenseMirror) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.Create(&rows).Error
}
