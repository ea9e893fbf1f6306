package repository

import (
	"github.com/licensedesk/licensedesk/app/models"
	"gorm.io/gorm"
)

// assignmentRepository implements the AssignmentRepository interface
type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository instance
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// Create creates a new assignment in the database
func (r *assignmentRepository) Create(assignment *models.Assignment) error {
	return r.db.Create(assignment).Error
}

// GetByID retrieves an assignment by its ID
func (r *assignmentRepository) GetByID(id uint) (*models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.First(&assignment, id).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// GetByLicenseID retrieves all assignments for a license
func (r *assignmentRepository) GetByLicenseID(licenseID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.Where("license_id = ?", licenseID).Find(&assignments).Error
	return assignments, err
}

// GetByUserID retrieves all assignments for a user
func (r *assignmentRepository) GetByUserID(userID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.Where("user_id = ?", userID).Find(&assignments).Error
	return assignments, err
}

// Delete soft deletes an assignment by its ID
func (r *assignmentRepository) Delete(id uint) error {
	return r.db.Delete(&models.Assignment{}, id).Error
}

// CountByLicenseID returns the number of seats assigned on a license
func (r *assignmentRepository) CountByLicenseID(licenseID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Assignment{}).Where("license_id = ?", licenseID).Count(&count).Error
	return count, err
}
