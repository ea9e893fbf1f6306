package licensesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerSerializesRuns(t *testing.T) {
	tracker := NewMemoryTracker()

	require.True(t, tracker.Begin())
	assert.False(t, tracker.Begin())
	assert.True(t, tracker.Status().InProgress)

	tracker.End(&Result{RunID: "run-1"})
	assert.False(t, tracker.Status().InProgress)
	require.True(t, tracker.Begin())
	tracker.End(nil)
}

func TestMemoryTrackerKeepsLastResultOnAbort(t *testing.T) {
	tracker := NewMemoryTracker()

	require.True(t, tracker.Begin())
	tracker.End(&Result{RunID: "run-1"})

	// Fatal abort clears the flag but keeps the previous result.
	require.True(t, tracker.Begin())
	tracker.End(nil)

	status := tracker.Status()
	assert.False(t, status.InProgress)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "run-1", status.LastResult.RunID)
}

func TestMemoryTrackerSwapsWholeResult(t *testing.T) {
	tracker := NewMemoryTracker()

	require.True(t, tracker.Begin())
	tracker.End(&Result{RunID: "run-1", Created: 3})
	require.True(t, tracker.Begin())
	tracker.End(&Result{RunID: "run-2", Updated: 5})

	status := tracker.Status()
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "run-2", status.LastResult.RunID)
	assert.Equal(t, 0, status.LastResult.Created)
	assert.Equal(t, 5, status.LastResult.Updated)
}
