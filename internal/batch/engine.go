package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"answervet/internal/logging"
	"answervet/internal/progress"
	"answervet/internal/workflow"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 3

// WorkflowFactory builds a fresh workflow for one row. Workflows are never
// shared between rows.
type WorkflowFactory func() *workflow.Workflow

// Engine runs many workflow instances over a fixed worker pool.
//
// An Engine runs one job: Run closes the emitter when the job reaches its
// terminal state, so no event can follow BatchComplete (or a stop) for that
// job id. Create a fresh Engine, with a fresh emitter, per job.
type Engine struct {
	factory WorkflowFactory
	workers int
	emitter *progress.Emitter

	mu      sync.Mutex
	job     *Job
	running bool
	stop    atomic.Bool
}

// Result summarizes a finished batch run.
type Result struct {
	JobID     string
	Status    JobStatus
	Rows      map[int]RowResult
	Processed int
	Failed    int
	Duration  time.Duration
}

// NewEngine creates a batch engine. workers <= 0 selects DefaultWorkers.
func NewEngine(factory WorkflowFactory, workers int, emitter *progress.Emitter) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if emitter == nil {
		emitter = progress.NewEmitter()
	}
	return &Engine{
		factory: factory,
		workers: workers,
		emitter: emitter,
	}
}

type rowItem struct {
	row      int
	question workflow.Question
}

// Run executes every question to a terminal state and blocks until the job
// is Completed or, after Stop, until all in-flight rows finish. One row's
// failure never cancels the others.
func (e *Engine) Run(ctx context.Context, questions []workflow.Question) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("batch already running")
	}
	job := newJob(len(questions))
	e.job = job
	e.running = true
	e.stop.Store(false)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logging.Batch("Job %s started: %d rows, %d workers", job.ID, len(questions), e.workers)
	start := time.Now()

	// All rows are known up front, so the FIFO queue is a pre-filled
	// closed channel; dequeue order is submission order.
	rows := make(chan rowItem, len(questions))
	for i, q := range questions {
		rows <- rowItem{row: i, question: q}
	}
	close(rows)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.workerLoop(ctx, workerID, job, rows)
		}(i)
	}
	wg.Wait()

	processed, failed := job.counts()
	duration := time.Since(start)

	if processed < job.Total {
		// Stop (or context cancellation) drained the pool early.
		job.setStatus(StatusStopped)
		logging.Batch("Job %s stopped: %d/%d rows processed", job.ID, processed, job.Total)
	} else {
		job.setStatus(StatusCompleted)
		logging.Batch("Job %s completed: %d rows in %s (%d failed)", job.ID, processed, duration, failed)
		e.emitter.Emit(progress.Event{
			Type:      progress.EventBatchComplete,
			JobID:     job.ID,
			Processed: processed,
			Duration:  duration,
		})
	}

	// BatchComplete (or Stopped) is terminal for this job id: close the
	// channel so consumers can never observe a protocol-violating late event.
	e.emitter.Close()

	snap := job.Snapshot()
	return &Result{
		JobID:     job.ID,
		Status:    snap.Status,
		Rows:      snap.Results,
		Processed: snap.Processed,
		Failed:    snap.Failed,
		Duration:  duration,
	}, nil
}

// workerLoop is one sequential worker: dequeue a row, run it to a terminal
// state, record, repeat. The stop flag is polled only between rows.
func (e *Engine) workerLoop(ctx context.Context, workerID int, job *Job, rows <-chan rowItem) {
	for {
		if e.stop.Load() {
			logging.BatchDebug("Worker %d observed stop, draining no further rows", workerID)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := <-rows
		if !ok {
			return
		}
		e.runRow(ctx, job, item)
	}
}

// runRow executes one row with a fresh workflow and records its terminal
// outcome exactly once.
func (e *Engine) runRow(ctx context.Context, job *Job, item rowItem) {
	e.emitter.Emit(progress.Event{
		Type:  progress.EventRowStarted,
		JobID: job.ID,
		Row:   item.row,
	})

	wf := e.factory()
	wf.SetStageHook(func(s workflow.Stage) {
		e.emitter.Emit(progress.Event{
			Type:  progress.EventAgentProgress,
			JobID: job.ID,
			Row:   item.row,
			Stage: string(s),
		})
	})

	result, err := wf.Run(ctx, item.question)
	if err != nil {
		// Fatal infrastructure error: terminal for this row only.
		logging.BatchError("Row %d failed fatally: %v", item.row, err)
		job.recordResult(RowResult{Row: item.row, Err: err})
		e.emitter.Emit(progress.Event{
			Type:   progress.EventRowFailed,
			JobID:  job.ID,
			Row:    item.row,
			Reason: err.Error(),
		})
		return
	}

	job.recordResult(RowResult{Row: item.row, Result: result})

	if result.Succeeded() {
		e.emitter.Emit(progress.Event{
			Type:   progress.EventRowCompleted,
			JobID:  job.ID,
			Row:    item.row,
			Answer: result.Answer.Body,
			Links:  result.Documentation,
		})
	} else {
		e.emitter.Emit(progress.Event{
			Type:   progress.EventRowFailed,
			JobID:  job.ID,
			Row:    item.row,
			Reason: strings.Join(result.Reasons, "; "),
		})
	}
}

// Stop requests cooperative cancellation. Workers finish their current row
// and stop dequeuing; already-written results are retained.
func (e *Engine) Stop() {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()

	if job != nil {
		logging.Batch("Stop requested for job %s", job.ID)
	}
	e.stop.Store(true)
}

// Status returns a point-in-time snapshot of the current (or last) job.
// The zero Snapshot is returned before any run.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	job := e.job
	e.mu.Unlock()

	if job == nil {
		return Snapshot{}
	}
	return job.Snapshot()
}
