package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// Outcome of the last reconciliation attempt for a license row.
	SYNC_STATUS_PENDING = "pending"
	SYNC_STATUS_SYNCED  = "synced"
	SYNC_STATUS_FAILED  = "failed"
)

const (
	// Which correlation key produced the match during the last sync.
	// "count_id" is the weakest key; rows carrying it are candidates for
	// manual review tooling.
	MATCH_BY_APP_ID   = "app_id"
	MATCH_BY_EMAIL    = "email"
	MATCH_BY_COUNT_ID = "count_id"
	MATCH_CREATED     = "created"
)

// License is the authoritative internal license row. Business-owned fields
// (Product, Plan, Notes, Term, SeatsTotal, AgentsName, AgentsCost) are edited
// in the dashboard and never touched by the vendor sync. Externally-sourced
// fields mirror the vendor API and are refreshed on every sync run.
type License struct {
	ID  uint   `gorm:"primaryKey" json:"id"`
	Key string `gorm:"uniqueIndex;type:varchar(64)" json:"key" validate:"required,min=8,max=64"`

	// Business-owned fields, never overwritten by sync
	Product    string  `gorm:"type:varchar(100)" json:"product"`
	Plan       string  `gorm:"type:varchar(100)" json:"plan"`
	Notes      string  `gorm:"type:text" json:"notes"`
	Term       string  `gorm:"type:varchar(50)" json:"term"`
	SeatsTotal int     `gorm:"default:1" json:"seats_total" validate:"min=1"`
	AgentsName string  `gorm:"type:varchar(200)" json:"agents_name"`
	AgentsCost float64 `gorm:"type:decimal(10,2)" json:"agents_cost"`

	// Externally-sourced fields, refreshed from the vendor API
	DBA          string     `gorm:"type:varchar(200)" json:"dba"`
	Zip          string     `gorm:"type:varchar(20)" json:"zip"`
	StartsAt     *time.Time `gorm:"type:timestamp;default:null" json:"starts_at,omitempty"`
	ExpiresAt    *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	LastPayment  float64    `gorm:"type:decimal(10,2)" json:"last_payment"`
	SMSBalance   int        `json:"sms_balance"`
	Active       bool       `gorm:"default:true" json:"active"`
	WorkspaceID  string     `gorm:"type:varchar(100)" json:"workspace_id"`
	LastActiveAt *time.Time `gorm:"type:timestamp;default:null" json:"last_active_at,omitempty"`

	// Correlation keys locating the vendor counterpart. Multiplicity is
	// enforced by the matcher's priority lookup, not by a DB constraint.
	ExternalAppID   string `gorm:"type:varchar(100);index" json:"external_app_id"`
	ExternalEmail   string `gorm:"type:varchar(200);index" json:"external_email"`
	ExternalCountID int    `gorm:"index" json:"external_count_id"`

	// Sync bookkeeping
	ExternalSyncStatus string     `gorm:"type:varchar(20);default:'pending'" json:"external_sync_status"`
	ExternalSyncError  string     `gorm:"type:varchar(500)" json:"external_sync_error"`
	LastExternalSyncAt *time.Time `gorm:"type:timestamp;default:null" json:"last_external_sync_at,omitempty"`
	MatchConfidence    string     `gorm:"type:varchar(20)" json:"match_confidence"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (l *License) Validate() error {
	v := validator.New()

	return v.Struct(l)
}

// NewLicenseKey generates a fresh internal license key. Keys are unique by
// construction; an insert collision is treated as retryable by the sync.
func NewLicenseKey() string {
	return "LIC-" + strings.ToUpper(uuid.New().String())
}

// HasExternalLink reports whether the row carries any correlation key.
func (l *License) HasExternalLink() bool {
	return l.ExternalAppID != "" || l.ExternalEmail != "" || l.ExternalCountID != 0
}

// CorrelationKey returns the strongest correlation key present, for logging
// and failure attribution.
func (l *License) CorrelationKey() string {
	switch {
	case l.ExternalAppID != "":
		return l.ExternalAppID
	case l.ExternalEmail != "":
		return l.ExternalEmail
	default:
		return l.Key
	}
}
