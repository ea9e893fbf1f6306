package licensesync

import (
	"time"

	"github.com/licensedesk/licensedesk/app/models"
)

// MergeAction says whether a change set creates a new license or updates a
// matched one.
type MergeAction string

const (
	MergeActionCreate MergeAction = "create"
	MergeActionUpdate MergeAction = "update"
)

// ChangeSet is the computed write for one external record. Changed is false
// when a matched license already mirrors the external state, in which case
// the orchestrator skips the write entirely.
type ChangeSet struct {
	Action     MergeAction
	License    *models.License
	Changed    bool
	Confidence string
}

// MergePolicy computes the exact field set written for a matched pair or a
// create. Field classes:
//
//   - externally-authoritative: overwritten whenever the vendor provides a
//     value (dba, zip, starts_at, last_payment, sms_balance, active flag,
//     correlation keys, last_external_sync_at)
//   - internally-authoritative: never written by sync (product, plan, notes,
//     term, seats, agents fields)
//   - fill-if-empty: written only when the internal value is empty
//     (workspace id, expires_at, last_active_at)
type MergePolicy struct {
	now func() time.Time
}

// NewMergePolicy creates a merge policy using wall-clock time.
func NewMergePolicy() *MergePolicy {
	return &MergePolicy{now: time.Now}
}

// ComputeUpdate produces the change set for one external record. match may be
// nil, which yields a create with documented defaults.
func (p *MergePolicy) ComputeUpdate(ext ExternalLicenseRecord, match *models.License, confidence string) *ChangeSet {
	now := p.now()

	if match == nil {
		license := &models.License{
			Key:                models.NewLicenseKey(),
			SeatsTotal:         1,
			DBA:                ext.BusinessName,
			Zip:                ext.Zip,
			StartsAt:           ext.ActivateDate,
			ExpiresAt:          ext.ComingExpiredDate,
			LastPayment:        ext.MonthlyFee,
			SMSBalance:         ext.SMSBalance,
			Active:             ext.Active,
			WorkspaceID:        ext.WorkspaceID,
			LastActiveAt:       ext.LastActive,
			ExternalAppID:      ext.AppID,
			ExternalEmail:      ext.Email,
			ExternalCountID:    ext.CountID,
			ExternalSyncStatus: models.SYNC_STATUS_SYNCED,
			LastExternalSyncAt: &now,
			MatchConfidence:    models.MATCH_CREATED,
		}
		return &ChangeSet{
			Action:     MergeActionCreate,
			License:    license,
			Changed:    true,
			Confidence: models.MATCH_CREATED,
		}
	}

	changed := false
	overwriteString(&match.DBA, ext.BusinessName, &changed)
	overwriteString(&match.Zip, ext.Zip, &changed)
	overwriteTime(&match.StartsAt, ext.ActivateDate, &changed)
	overwriteFloat(&match.LastPayment, ext.MonthlyFee, &changed)
	if match.SMSBalance != ext.SMSBalance {
		match.SMSBalance = ext.SMSBalance
		changed = true
	}
	overwriteBool(&match.Active, ext.Active, &changed)
	overwriteString(&match.ExternalAppID, ext.AppID, &changed)
	overwriteString(&match.ExternalEmail, ext.Email, &changed)
	overwriteInt(&match.ExternalCountID, ext.CountID, &changed)

	fillString(&match.WorkspaceID, ext.WorkspaceID, &changed)
	fillTime(&match.ExpiresAt, ext.ComingExpiredDate, &changed)
	fillTime(&match.LastActiveAt, ext.LastActive, &changed)

	// Confidence records the key that originally established the link, so it
	// is set once and never rewritten on later runs.
	if match.MatchConfidence == "" && confidence != "" {
		match.MatchConfidence = confidence
		changed = true
	}
	if match.ExternalSyncStatus != models.SYNC_STATUS_SYNCED || match.ExternalSyncError != "" {
		match.ExternalSyncStatus = models.SYNC_STATUS_SYNCED
		match.ExternalSyncError = ""
		changed = true
	}
	if changed {
		match.LastExternalSyncAt = &now
	}

	return &ChangeSet{
		Action:     MergeActionUpdate,
		License:    match,
		Changed:    changed,
		Confidence: confidence,
	}
}

// overwriteString writes v when the vendor provided a non-empty value.
func overwriteString(dst *string, v string, changed *bool) {
	if v != "" && *dst != v {
		*dst = v
		*changed = true
	}
}

// fillString writes v only when the internal value is empty.
func fillString(dst *string, v string, changed *bool) {
	if *dst == "" && v != "" {
		*dst = v
		*changed = true
	}
}

func overwriteTime(dst **time.Time, v *time.Time, changed *bool) {
	if v == nil {
		return
	}
	if *dst == nil || !(*dst).Equal(*v) {
		*dst = v
		*changed = true
	}
}

func fillTime(dst **time.Time, v *time.Time, changed *bool) {
	if *dst == nil && v != nil {
		*dst = v
		*changed = true
	}
}

func overwriteFloat(dst *float64, v float64, changed *bool) {
	if *dst != v {
		*dst = v
		*changed = true
	}
}

func overwriteInt(dst *int, v int, changed *bool) {
	if v != 0 && *dst != v {
		*dst = v
		*changed = true
	}
}

func overwriteBool(dst *bool, v bool, changed *bool) {
	if *dst != v {
		*dst = v
		*changed = true
	}
}
