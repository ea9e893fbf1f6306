package models

import "time"

// ExternalLicenseMirror stores the raw vendor snapshot of one external record
// as fetched during a sync run. Rows exist purely for auditing; the sync never
// reads them back.
type ExternalLicenseMirror struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SyncRunID      string    `gorm:"type:varchar(64);not null;index" json:"sync_run_id"`
	CountID        int       `gorm:"not null;index" json:"count_id"`
	AppID          string    `gorm:"type:varchar(100)" json:"app_id"`
	RawPayloadJSON string    `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
