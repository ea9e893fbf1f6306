package licensesync

import "errors"

var (
	// ErrSourceUnavailable means the vendor API stayed unreachable or kept
	// returning 5xx after all retries. The run aborts; batches already
	// flushed remain committed.
	ErrSourceUnavailable = errors.New("license source unavailable")

	// ErrSyncAlreadyRunning is returned by the guard when a run is in
	// progress and force was not set. No state is changed.
	ErrSyncAlreadyRunning = errors.New("license sync already running")

	// ErrSyncTimedOut means the overall wall-clock budget was exceeded. The
	// run stops after the current batch; unreached records are counted as
	// skipped, not failed.
	ErrSyncTimedOut = errors.New("license sync timed out")
)
