// Package batch fans the answer workflow out over a table of questions:
// a fixed pool of workers drains one FIFO queue of rows, each row running a
// fresh workflow to a terminal state. Cancellation is cooperative and polled
// only between rows, so an in-flight attempt always runs to its natural end.
package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"answervet/internal/logging"
	"answervet/internal/workflow"
)

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusStopped   JobStatus = "stopped"
	StatusCompleted JobStatus = "completed"
)

// RowResult is the terminal outcome of one row.
type RowResult struct {
	Row    int
	Result *workflow.Result // nil when Err is set
	Err    error            // fatal infrastructure error for this row only
}

// Failed reports whether the row ended without a vetted answer.
func (r RowResult) Failed() bool {
	return r.Err != nil || (r.Result != nil && !r.Result.Succeeded())
}

// Job is the shared state of one batch run. Row results are owned by the
// worker holding the row; the counters and the result map are the only
// cross-worker mutable state and are guarded here, behind a narrow
// record-result API instead of direct field access.
type Job struct {
	ID    string
	Total int

	mu        sync.Mutex
	status    JobStatus
	results   map[int]RowResult
	processed int
	failed    int
	startedAt time.Time
}

func newJob(total int) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Total:     total,
		status:    StatusRunning,
		results:   make(map[int]RowResult, total),
		startedAt: time.Now(),
	}
}

// recordResult writes a row's terminal result. Each slot is written at most
// once; a duplicate write indicates a scheduling bug and is dropped.
func (j *Job) recordResult(r RowResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.results[r.Row]; exists {
		logging.BatchError("Duplicate result for row %d dropped (job %s)", r.Row, j.ID)
		return
	}
	j.results[r.Row] = r
	j.processed++
	if r.Failed() {
		j.failed++
	}
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
}

// Snapshot is a point-in-time copy of the job state.
type Snapshot struct {
	ID        string
	Status    JobStatus
	Total     int
	Processed int
	Failed    int
	Results   map[int]RowResult
	Elapsed   time.Duration
}

// Snapshot returns a consistent copy of the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	results := make(map[int]RowResult, len(j.results))
	for k, v := range j.results {
		results[k] = v
	}
	return Snapshot{
		ID:        j.ID,
		Status:    j.status,
		Total:     j.Total,
		Processed: j.processed,
		Failed:    j.failed,
		Results:   results,
		Elapsed:   time.Since(j.startedAt),
	}
}

func (j *Job) counts() (processed, failed int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.processed, j.failed
}
