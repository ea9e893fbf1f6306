package licensesync

import (
	"strconv"
	"strings"
	"time"
)

// LicenseType classifies a vendor license record.
type LicenseType string

const (
	LicenseTypeDemo    LicenseType = "demo"
	LicenseTypeProduct LicenseType = "product"
)

// DefaultBatchSize is the number of records flushed per transaction when the
// caller does not specify one.
const DefaultBatchSize = 200

// ExternalLicenseRecord is the normalized snapshot of one vendor license.
// Placeholder identifiers (DEMO, NA, n/a, "-") are collapsed to empty at
// construction time so matching logic never sees sentinel strings.
type ExternalLicenseRecord struct {
	CountID           int
	AppID             string
	LicenseType       LicenseType
	MerchantID        string
	Email             string
	BusinessName      string
	Zip               string
	ActivateDate      *time.Time
	ComingExpiredDate *time.Time
	MonthlyFee        float64
	SMSBalance        int
	Note              string
	PackageFlags      map[string]bool
	WorkspaceID       string
	LastActive        *time.Time
	Active            bool

	// Raw JSON of the vendor payload, persisted to the audit mirror.
	RawJSON string
}

// Identifier returns the strongest identifier of the record, for logs and
// failure attribution.
func (r ExternalLicenseRecord) Identifier() string {
	if r.AppID != "" {
		return r.AppID
	}
	if r.Email != "" {
		return r.Email
	}
	return "count:" + strconv.Itoa(r.CountID)
}

// Options controls a single sync run.
type Options struct {
	// Force waits for an in-flight run to finish instead of failing fast.
	// It never produces overlapping runs.
	Force bool `json:"force"`
	// BatchSize is the number of records per transactional flush.
	BatchSize int `json:"batch_size"`
	// DryRun computes the full result without writing anything.
	DryRun bool `json:"dry_run"`
	// Bidirectional pushes dashboard edits back to the vendor after the
	// forward pass.
	Bidirectional bool `json:"bidirectional"`
	// SyncToInternalOnly skips the vendor fetch entirely and only runs the
	// bidirectional push pass.
	SyncToInternalOnly bool `json:"sync_to_internal_only"`
}

func (o Options) batchSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

// RecordFailure describes one record that could not be merged or pushed.
type RecordFailure struct {
	CountID int    `json:"count_id,omitempty"`
	AppID   string `json:"app_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Error   string `json:"error"`
}

// Result summarizes one sync run. It is immutable once stored as the
// tracker's last result.
type Result struct {
	RunID                string          `json:"run_id"`
	StartedAt            time.Time       `json:"started_at"`
	FinishedAt           time.Time       `json:"finished_at"`
	TotalExternalFetched int             `json:"total_external_fetched"`
	Created              int             `json:"created"`
	CreatedIDs           []uint          `json:"created_ids,omitempty"`
	Updated              int             `json:"updated"`
	UpdatedIDs           []uint          `json:"updated_ids,omitempty"`
	Failed               []RecordFailure `json:"failed,omitempty"`
	Skipped              int             `json:"skipped"`
	Pushed               int             `json:"pushed"`
	PushFailures         []RecordFailure `json:"push_failures,omitempty"`
	Bidirectional        bool            `json:"bidirectional"`
	DryRun               bool            `json:"dry_run"`
	TimedOut             bool            `json:"timed_out"`
}

// FailedCount returns the number of records that failed to merge.
func (r *Result) FailedCount() int {
	return len(r.Failed)
}

// merchantSentinels are vendor placeholders equivalent to "absent".
var merchantSentinels = map[string]struct{}{
	"DEMO": {},
	"NA":   {},
	"N/A":  {},
	"-":    {},
}

// NormalizeIdentifier trims an identifier and collapses vendor placeholder
// values to the empty string.
func NormalizeIdentifier(raw string) string {
	s := strings.TrimSpace(raw)
	if _, ok := merchantSentinels[strings.ToUpper(s)]; ok {
		return ""
	}
	return s
}
