package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Assignment links a license seat to a dashboard user.
type Assignment struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	LicenseID  uint           `gorm:"not null;index:idx_assignments_license_user,priority:1" json:"license_id" validate:"required"`
	UserID     uint           `gorm:"not null;index:idx_assignments_license_user,priority:2" json:"user_id" validate:"required"`
	SeatLabel  string         `gorm:"type:varchar(100)" json:"seat_label" validate:"max=100"`
	AssignedAt time.Time      `gorm:"autoCreateTime" json:"assigned_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *Assignment) Validate() error {
	v := validator.New()

	return v.Struct(a)
}
