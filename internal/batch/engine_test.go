package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"answervet/internal/capability"
	"answervet/internal/linkcheck"
	"answervet/internal/llm"
	"answervet/internal/progress"
	"answervet/internal/workflow"
)

func TestMain(m *testing.M) {
	// opencensus (pulled in via the genai client) starts a background stats
	// worker that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// --- test doubles for the workflow's capabilities ---

type stubGenerator struct {
	GenerateFunc func(ctx context.Context, req capability.GenerateRequest) (string, error)
}

func (s *stubGenerator) Generate(ctx context.Context, req capability.GenerateRequest) (string, error) {
	if s.GenerateFunc != nil {
		return s.GenerateFunc(ctx, req)
	}
	return "The answer is four.", nil
}

type stubValidator struct{}

func (s *stubValidator) Validate(ctx context.Context, question, answer string) (capability.Verdict, error) {
	return capability.Verdict{Approved: true}, nil
}

type stubLinks struct{}

func (s *stubLinks) Verify(ctx context.Context, urls []string, question, answer string) []linkcheck.Result {
	results := make([]linkcheck.Result, len(urls))
	for i, u := range urls {
		results[i] = linkcheck.Result{URL: u, Reachable: true, Relevant: true}
	}
	return results
}

func factoryWith(gen workflow.Generator) WorkflowFactory {
	return func() *workflow.Workflow {
		return workflow.New(gen, &stubValidator{}, &stubLinks{})
	}
}

func questions(n int) []workflow.Question {
	qs := make([]workflow.Question, n)
	for i := range qs {
		qs[i] = workflow.Question{
			Text:        fmt.Sprintf("question %d", i),
			CharLimit:   2000,
			MaxAttempts: 3,
		}
	}
	return qs
}

func TestRun_FullBatchYieldsOneResultPerRow(t *testing.T) {
	emitter := progress.NewEmitter()
	var mu sync.Mutex
	var events []progress.Event
	emitter.Subscribe(func(ev progress.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	engine := NewEngine(factoryWith(&stubGenerator{}), 3, emitter)
	result, err := engine.Run(context.Background(), questions(5))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Rows, 5)
	for i := 0; i < 5; i++ {
		rr, ok := result.Rows[i]
		require.True(t, ok, "row %d missing", i)
		assert.False(t, rr.Failed())
	}

	mu.Lock()
	defer mu.Unlock()
	var completes []progress.Event
	for _, ev := range events {
		if ev.Type == progress.EventBatchComplete {
			completes = append(completes, ev)
		}
	}
	require.Len(t, completes, 1)
	assert.Equal(t, 5, completes[0].Processed)
	assert.Greater(t, completes[0].Duration, time.Duration(0))
}

func TestRun_ClosesEmitterAtTerminalState(t *testing.T) {
	emitter := progress.NewEmitter()
	var count atomic.Int32
	emitter.Subscribe(func(progress.Event) { count.Add(1) })

	engine := NewEngine(factoryWith(&stubGenerator{}), 2, emitter)
	_, err := engine.Run(context.Background(), questions(2))
	require.NoError(t, err)

	// The job is terminal: the engine's emitter is closed and the engine
	// is spent. A new job needs a new engine with a new emitter.
	seen := count.Load()
	emitter.Emit(progress.Event{Type: progress.EventRowStarted, Row: 99})
	assert.Equal(t, seen, count.Load())
}

func TestRun_ConcurrencyBoundedByWorkerCount(t *testing.T) {
	const workers = 3
	var inFlight, maxInFlight atomic.Int64

	gen := &stubGenerator{
		GenerateFunc: func(ctx context.Context, req capability.GenerateRequest) (string, error) {
			cur := inFlight.Add(1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return "The answer is four.", nil
		},
	}

	engine := NewEngine(factoryWith(gen), workers, progress.NewEmitter())
	result, err := engine.Run(context.Background(), questions(8))
	require.NoError(t, err)

	assert.Equal(t, 8, result.Processed)
	assert.LessOrEqual(t, maxInFlight.Load(), int64(workers))
}

func TestRun_DequeueFollowsSubmissionOrder(t *testing.T) {
	emitter := progress.NewEmitter()
	var started []int
	emitter.Subscribe(func(ev progress.Event) {
		if ev.Type == progress.EventRowStarted {
			started = append(started, ev.Row)
		}
	})

	// Single worker makes dequeue order observable.
	engine := NewEngine(factoryWith(&stubGenerator{}), 1, emitter)
	_, err := engine.Run(context.Background(), questions(5))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, started)
}

func TestRun_StopBetweenRows(t *testing.T) {
	const total = 5
	const workers = 3

	release := make(chan struct{})
	startedGen := make(chan int, total)

	gen := &stubGenerator{
		GenerateFunc: func(ctx context.Context, req capability.GenerateRequest) (string, error) {
			startedGen <- 1
			<-release
			return "The answer is four.", nil
		},
	}

	emitter := progress.NewEmitter()
	var mu sync.Mutex
	var rowStarts []int
	emitter.Subscribe(func(ev progress.Event) {
		if ev.Type == progress.EventRowStarted {
			mu.Lock()
			rowStarts = append(rowStarts, ev.Row)
			mu.Unlock()
		}
	})

	engine := NewEngine(factoryWith(gen), workers, emitter)

	done := make(chan *Result, 1)
	go func() {
		result, err := engine.Run(context.Background(), questions(total))
		require.NoError(t, err)
		done <- result
	}()

	// Wait until all three workers hold a row.
	for i := 0; i < workers; i++ {
		<-startedGen
	}

	engine.Stop()
	close(release)

	result := <-done
	assert.Equal(t, StatusStopped, result.Status)
	assert.Equal(t, workers, result.Processed, "in-flight rows run to their natural conclusion")
	assert.Len(t, result.Rows, workers)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, rowStarts, workers, "no row beyond the in-flight ones is ever started")
}

func TestRun_RowFailureDoesNotAbortBatch(t *testing.T) {
	gen := &stubGenerator{
		GenerateFunc: func(ctx context.Context, req capability.GenerateRequest) (string, error) {
			if req.Question == "question 2" {
				return "", fmt.Errorf("generation failed: %w", llm.ErrUnavailable)
			}
			return "The answer is four.", nil
		},
	}

	emitter := progress.NewEmitter()
	var mu sync.Mutex
	var failures []progress.Event
	emitter.Subscribe(func(ev progress.Event) {
		if ev.Type == progress.EventRowFailed {
			mu.Lock()
			failures = append(failures, ev)
			mu.Unlock()
		}
	})

	engine := NewEngine(factoryWith(gen), 3, emitter)
	result, err := engine.Run(context.Background(), questions(5))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.True(t, result.Rows[2].Failed())
	assert.Error(t, result.Rows[2].Err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Row)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	gen := &stubGenerator{
		GenerateFunc: func(ctx context.Context, req capability.GenerateRequest) (string, error) {
			<-release
			return "The answer is four.", nil
		},
	}

	engine := NewEngine(factoryWith(gen), 1, progress.NewEmitter())

	done := make(chan struct{})
	go func() {
		_, _ = engine.Run(context.Background(), questions(1))
		close(done)
	}()

	// Wait for the first run to claim the engine.
	require.Eventually(t, func() bool {
		return engine.Status().ID != ""
	}, time.Second, 5*time.Millisecond)

	_, err := engine.Run(context.Background(), questions(1))
	assert.Error(t, err)

	close(release)
	<-done
}

func TestStatus_SnapshotReflectsProgress(t *testing.T) {
	engine := NewEngine(factoryWith(&stubGenerator{}), 2, progress.NewEmitter())

	assert.Empty(t, engine.Status().ID, "no job before first run")

	result, err := engine.Run(context.Background(), questions(4))
	require.NoError(t, err)

	snap := engine.Status()
	assert.Equal(t, result.JobID, snap.ID)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 4, snap.Processed)
}
