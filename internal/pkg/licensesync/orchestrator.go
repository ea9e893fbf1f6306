package licensesync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/licensedesk/licensedesk/app/models"
)

// DefaultRunBudget bounds the wall-clock time of one sync run.
const DefaultRunBudget = 10 * time.Minute

const forcePollInterval = 200 * time.Millisecond

// Orchestrator drives a full reconciliation run: fetch all vendor records,
// match and merge each one, flush writes in per-batch transactions, and
// optionally push dashboard edits back to the vendor.
//
// One run moves through idle -> fetching -> reconciling -> writing (or
// dry-run computing) -> optional bidirectional push -> idle. Nothing is
// resumable mid-run; a crash leaves the store at the last flushed batch,
// which the next run reconciles again.
type Orchestrator struct {
	source  Source
	store   Store
	matcher *Matcher
	merge   *MergePolicy
	tracker StatusTracker
	lock    RunLock

	budget time.Duration
	now    func() time.Time
}

// NewOrchestrator wires the sync engine. lock may be nil for single-instance
// deployments; the tracker alone then serializes runs.
func NewOrchestrator(source Source, store Store, tracker StatusTracker, lock RunLock) *Orchestrator {
	return &Orchestrator{
		source:  source,
		store:   store,
		matcher: NewMatcher(store),
		merge:   NewMergePolicy(),
		tracker: tracker,
		lock:    lock,
		budget:  DefaultRunBudget,
		now:     time.Now,
	}
}

// SetBudget overrides the wall-clock budget for a run.
func (o *Orchestrator) SetBudget(budget time.Duration) {
	if budget > 0 {
		o.budget = budget
	}
}

// Status returns the tracker snapshot for the status endpoint.
func (o *Orchestrator) Status() Status {
	return o.tracker.Status()
}

// RunSync executes one reconciliation run and returns its result. Fatal
// conditions return a typed error (ErrSyncAlreadyRunning,
// ErrSourceUnavailable, ErrSyncTimedOut); per-record failures are aggregated
// into the result and never surfaced as errors. The in-progress flag is
// cleared on every exit path.
func (o *Orchestrator) RunSync(ctx context.Context, opts Options) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	if !o.tracker.Begin() {
		if !opts.Force {
			return nil, ErrSyncAlreadyRunning
		}
		// Force waits for the in-flight run to finish; it never overlaps.
		if err := o.waitForIdle(ctx); err != nil {
			return nil, err
		}
	}

	var result *Result
	defer func() { o.tracker.End(result) }()

	if o.lock != nil {
		if err := o.acquireLock(ctx, opts.Force); err != nil {
			return nil, err
		}
		defer o.lock.Release(context.Background())
	}

	res := &Result{
		RunID:         uuid.New().String(),
		StartedAt:     o.now(),
		Bidirectional: opts.Bidirectional,
		DryRun:        opts.DryRun,
	}
	log.Infof("[LicenseSync] Run %s started (dry_run=%t bidirectional=%t internal_only=%t)",
		res.RunID, opts.DryRun, opts.Bidirectional, opts.SyncToInternalOnly)

	if !opts.SyncToInternalOnly {
		records, err := o.source.FetchAll(ctx)
		if err != nil {
			log.Errorf("[LicenseSync] Run %s aborted: %v", res.RunID, err)
			return nil, err
		}
		res.TotalExternalFetched = len(records)

		if !opts.DryRun {
			o.mirrorRecords(res.RunID, records)
		}
		o.reconcile(ctx, records, opts, res)
	}

	if opts.Bidirectional && !opts.DryRun && !res.TimedOut {
		o.pushInternalChanges(ctx, res)
	}

	res.FinishedAt = o.now()
	result = res

	log.Infof("[LicenseSync] Run %s finished: fetched=%d created=%d updated=%d failed=%d skipped=%d pushed=%d",
		res.RunID, res.TotalExternalFetched, res.Created, res.Updated, len(res.Failed), res.Skipped, res.Pushed)

	if res.TimedOut {
		return res, ErrSyncTimedOut
	}
	return res, nil
}

// reconcile runs the forward pass: match and merge every record, flushing
// writes per batch. A batch flush failure is attributed to every record in
// that batch and processing continues with the next batch.
func (o *Orchestrator) reconcile(ctx context.Context, records []ExternalLicenseRecord, opts Options, res *Result) {
	batchSize := opts.batchSize()
	seen := make(map[string]struct{}, len(records))

	var creates, updates []*models.License
	var batchRecords []ExternalLicenseRecord

	flush := func() {
		if len(batchRecords) == 0 {
			return
		}
		if opts.DryRun {
			res.Created += len(creates)
			res.Updated += len(updates)
		} else if err := o.store.FlushBatch(creates, updates); err != nil {
			log.Errorf("[LicenseSync] Batch flush failed (%d records): %v", len(batchRecords), err)
			for _, rec := range batchRecords {
				res.Failed = append(res.Failed, failureFor(rec, err.Error()))
			}
			// Existing rows in the failed batch get the failure stamped on
			// them; rows that were never created have nowhere to carry it.
			var ids []uint
			for _, l := range updates {
				if l.ID != 0 {
					ids = append(ids, l.ID)
				}
			}
			if serr := o.store.MarkSyncFailed(ids, err.Error()); serr != nil {
				log.Warnf("[LicenseSync] Stamping failed batch rows failed: %v", serr)
			}
		} else {
			res.Created += len(creates)
			res.Updated += len(updates)
			for _, l := range creates {
				res.CreatedIDs = append(res.CreatedIDs, l.ID)
			}
			for _, l := range updates {
				res.UpdatedIDs = append(res.UpdatedIDs, l.ID)
			}
		}
		creates, updates, batchRecords = nil, nil, nil
	}

	for i, rec := range records {
		select {
		case <-ctx.Done():
			// Budget exceeded: flush what we have, count the rest as
			// not-yet-attempted.
			flush()
			res.Skipped += len(records) - i
			res.TimedOut = true
			log.Warnf("[LicenseSync] Wall-clock budget exceeded, %d records not attempted", len(records)-i)
			return
		default:
		}

		if key, dup := markSeen(seen, rec); dup {
			res.Failed = append(res.Failed, failureFor(rec, "duplicate correlation key in vendor feed: "+key))
			continue
		}

		match, confidence, err := o.matcher.Match(rec)
		if err != nil {
			res.Failed = append(res.Failed, failureFor(rec, "match lookup failed: "+err.Error()))
			continue
		}

		cs := o.merge.ComputeUpdate(rec, match, confidence)
		if cs.Action == MergeActionUpdate && !cs.Changed {
			res.Skipped++
			continue
		}

		if cs.Action == MergeActionCreate {
			creates = append(creates, cs.License)
		} else {
			updates = append(updates, cs.License)
		}
		batchRecords = append(batchRecords, rec)

		if len(batchRecords) >= batchSize {
			flush()
		}
	}
	flush()
}

// pushInternalChanges is the bidirectional pass: licenses edited in the
// dashboard since their last external sync are pushed back to the vendor.
// Push failures are recorded per record and never roll back forward-pass
// writes.
func (o *Orchestrator) pushInternalChanges(ctx context.Context, res *Result) {
	licenses, err := o.store.ModifiedSinceLastSync()
	if err != nil {
		log.Errorf("[LicenseSync] Querying internally modified licenses failed: %v", err)
		res.PushFailures = append(res.PushFailures, RecordFailure{Error: "query modified licenses: " + err.Error()})
		return
	}

	now := o.now()
	var pushedIDs []uint
	for i := range licenses {
		l := &licenses[i]
		fields := map[string]interface{}{
			"business_name": l.DBA,
			"zip":           l.Zip,
			"note":          l.Notes,
		}

		var pushErr error
		switch {
		case l.ExternalAppID != "":
			pushErr = o.source.UpdateByAppID(ctx, l.ExternalAppID, fields)
		case l.ExternalEmail != "":
			pushErr = o.source.UpdateByEmail(ctx, l.ExternalEmail, fields)
		default:
			continue
		}

		if pushErr != nil {
			res.PushFailures = append(res.PushFailures, RecordFailure{
				CountID: l.ExternalCountID,
				AppID:   l.ExternalAppID,
				Email:   l.ExternalEmail,
				Error:   pushErr.Error(),
			})
			continue
		}
		res.Pushed++
		pushedIDs = append(pushedIDs, l.ID)
	}

	if err := o.store.MarkPushed(pushedIDs, now); err != nil {
		log.Errorf("[LicenseSync] Stamping pushed licenses failed: %v", err)
	}
}

// mirrorRecords persists raw vendor snapshots for auditing, best effort.
func (o *Orchestrator) mirrorRecords(runID string, records []ExternalLicenseRecord) {
	rows := make([]models.ExternalLicenseMirror, 0, len(records))
	for _, rec := range records {
		rows = append(rows, models.ExternalLicenseMirror{
			SyncRunID:      runID,
			CountID:        rec.CountID,
			AppID:          rec.AppID,
			RawPayloadJSON: rec.RawJSON,
		})
	}
	if err := o.store.RecordMirrors(rows); err != nil {
		log.Warnf("[LicenseSync] Writing audit mirror failed: %v", err)
	}
}

// waitForIdle polls the tracker until this run can begin or the budget runs
// out.
func (o *Orchestrator) waitForIdle(ctx context.Context) error {
	ticker := time.NewTicker(forcePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ErrSyncTimedOut
		case <-ticker.C:
			if o.tracker.Begin() {
				return nil
			}
		}
	}
}

// acquireLock takes the cross-instance run lock, waiting when force is set.
func (o *Orchestrator) acquireLock(ctx context.Context, force bool) error {
	ok, err := o.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire sync lock: %w", err)
	}
	if ok {
		return nil
	}
	if !force {
		return ErrSyncAlreadyRunning
	}

	ticker := time.NewTicker(forcePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ErrSyncTimedOut
		case <-ticker.C:
			ok, err := o.lock.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("acquire sync lock: %w", err)
			}
			if ok {
				return nil
			}
		}
	}
}

// markSeen registers the record's correlation keys for this run and reports
// whether any of them was already handled. Duplicate creation is a real risk
// because key multiplicity is not enforced by a DB constraint.
func markSeen(seen map[string]struct{}, rec ExternalLicenseRecord) (string, bool) {
	keys := make([]string, 0, 3)
	if rec.AppID != "" {
		keys = append(keys, "app:"+rec.AppID)
	}
	if rec.Email != "" {
		keys = append(keys, "email:"+rec.Email)
	}
	if rec.CountID != 0 {
		keys = append(keys, "count:"+strconv.Itoa(rec.CountID))
	}
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return k, true
		}
	}
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	return "", false
}

func failureFor(rec ExternalLicenseRecord, msg string) RecordFailure {
	return RecordFailure{
		CountID: rec.CountID,
		AppID:   rec.AppID,
		Email:   rec.Email,
		Error:   msg,
	}
}
