package repository

import (
	"time"

	"github.com/licensedesk/licensedesk/app/models"
	"gorm.io/gorm"
)

// LicenseRepository defines the interface for license-related database operations.
// The FindByExternal* lookups, FlushBatch, ModifiedSinceLastSync and MarkPushed
// methods are consumed by the vendor sync engine.
type LicenseRepository interface {
	Create(license *models.License) error
	GetByID(id uint) (*models.License, error)
	GetByKey(key string) (*models.License, error)
	Update(license *models.License) error
	Delete(id uint) error
	List(offset, limit int) ([]models.License, error)
	Count() (int64, error)
	Search(query string) ([]models.License, error)

	FindByExternalAppID(appID string) (*models.License, error)
	FindByExternalEmail(email string) (*models.License, error)
	FindByExternalCountID(countID int) (*models.License, error)
	FlushBatch(creates []*models.License, updates []*models.License) error
	MarkSyncFailed(ids []uint, message string) error
	ModifiedSinceLastSync() ([]models.License, error)
	MarkPushed(ids []uint, at time.Time) error
	RecordMirrors(rows []models.ExternalLicenseMirror) error
}

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// AssignmentRepository defines the interface for assignment operations
type AssignmentRepository interface {
	Create(assignment *models.Assignment) error
	GetByID(id uint) (*models.Assignment, error)
	GetByLicenseID(licenseID uint) ([]models.Assignment, error)
	GetByUserID(userID uint) ([]models.Assignment, error)
	Delete(id uint) error
	CountByLicenseID(licenseID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	License    LicenseRepository
	User       UserRepository
	Assignment AssignmentRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		License:    NewLicenseRepository(db),
		User:       NewUserRepository(db),
		Assignment: NewAssignmentRepository(db),
	}
}
