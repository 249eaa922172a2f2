package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"answervet/internal/workflow"
)

func TestJob_RecordResultWriteOnce(t *testing.T) {
	j := newJob(3)

	first := RowResult{Row: 1, Result: &workflow.Result{Status: workflow.StatusSucceeded}}
	j.recordResult(first)
	// A second write to the same slot is a scheduling bug and must be dropped.
	j.recordResult(RowResult{Row: 1, Err: errors.New("late write")})

	snap := j.Snapshot()
	assert.Equal(t, 1, snap.Processed)
	assert.Equal(t, 0, snap.Failed)
	assert.NoError(t, snap.Results[1].Err)
}

func TestJob_CountersTrackFailures(t *testing.T) {
	j := newJob(2)
	j.recordResult(RowResult{Row: 0, Result: &workflow.Result{Status: workflow.StatusSucceeded}})
	j.recordResult(RowResult{Row: 1, Err: errors.New("boom")})

	processed, failed := j.counts()
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, failed)
}

func TestJob_SnapshotIsACopy(t *testing.T) {
	j := newJob(1)
	j.recordResult(RowResult{Row: 0, Result: &workflow.Result{Status: workflow.StatusSucceeded}})

	snap := j.Snapshot()
	delete(snap.Results, 0)

	assert.Len(t, j.Snapshot().Results, 1)
}

func TestRowResult_Failed(t *testing.T) {
	assert.True(t, RowResult{Err: errors.New("x")}.Failed())
	assert.True(t, RowResult{Result: &workflow.Result{Status: workflow.StatusFailed}}.Failed())
	assert.False(t, RowResult{Result: &workflow.Result{Status: workflow.StatusSucceeded}}.Failed())
}
