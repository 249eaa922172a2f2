package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"answervet/internal/capability"
	"answervet/internal/linkcheck"
	"answervet/internal/llm"
	"answervet/internal/logging"
)

// Generator produces one raw answer attempt.
// Implemented by capability.Generator.
type Generator interface {
	Generate(ctx context.Context, req capability.GenerateRequest) (string, error)
}

// FactValidator judges answer correctness and formatting compliance.
// Implemented by capability.FactChecker.
type FactValidator interface {
	Validate(ctx context.Context, question, answer string) (capability.Verdict, error)
}

// LinkVerifier checks candidate links, order-preserving.
// Implemented by linkcheck.Verifier.
type LinkVerifier interface {
	Verify(ctx context.Context, urls []string, question, answer string) []linkcheck.Result
}

// Workflow drives one question through the bounded validation loop.
// A Workflow is single-use state-wise but safe to reuse sequentially;
// the batch engine creates a fresh one per row.
type Workflow struct {
	gen       Generator
	validator FactValidator
	links     LinkVerifier
	onStage   func(Stage)
}

// New creates an answer workflow.
func New(gen Generator, validator FactValidator, links LinkVerifier) *Workflow {
	return &Workflow{gen: gen, validator: validator, links: links}
}

// SetStageHook installs a display-only callback invoked on stage entry.
func (w *Workflow) SetStageHook(fn func(Stage)) {
	w.onStage = fn
}

func (w *Workflow) stage(s Stage) {
	if w.onStage != nil {
		w.onStage(s)
	}
}

// Run executes the workflow to a terminal state.
//
// It returns (result, nil) for both Succeeded and Failed outcomes - an
// exhausted retry budget is a regular terminal result carrying the full
// reason trail. A non-nil error means fatal infrastructure failure
// (capability unreachable at transport level).
func (w *Workflow) Run(ctx context.Context, q Question) (*Result, error) {
	if q.MaxAttempts < 1 {
		q.MaxAttempts = 1
	}

	var (
		reasons    []string
		shorten    bool
		lastAnswer *Answer
		lastLinks  []linkcheck.Result
	)

	for attempt := 1; attempt <= q.MaxAttempts; attempt++ {
		logging.Workflow("Attempt %d/%d: %.60s", attempt, q.MaxAttempts, q.Text)

		// Generating
		w.stage(StageGenerating)
		raw, err := w.gen.Generate(ctx, capability.GenerateRequest{
			Question:     q.Text,
			Context:      q.Context,
			CharLimit:    q.CharLimit,
			PriorReasons: reasons,
			Shorten:      shorten,
		})
		if err != nil {
			if llm.IsTimeout(err) {
				// Timeouts share the normal retry budget.
				reasons = append(reasons, fmt.Sprintf("attempt %d: generation timed out", attempt))
				shorten = false
				continue
			}
			return nil, fmt.Errorf("generation capability failed: %w", err)
		}

		// Sanitizing
		sanitized := Sanitize(raw)
		answer := &Answer{Body: sanitized.Prose, Links: sanitized.URLs, Attempt: attempt}
		lastAnswer = answer

		if sanitized.Length() > q.CharLimit {
			// Over-limit answers skip validation entirely.
			logging.WorkflowDebug("Attempt %d over limit: %d > %d", attempt, sanitized.Length(), q.CharLimit)
			reasons = append(reasons, fmt.Sprintf("attempt %d: answer length %d exceeds limit %d",
				attempt, sanitized.Length(), q.CharLimit))
			shorten = true
			continue
		}
		shorten = false

		// Validating: factual and link verdicts run concurrently.
		w.stage(StageValidatingAnswer)
		factVerdict, linkResults, err := w.validate(ctx, q, answer)
		if err != nil {
			return nil, err
		}
		lastLinks = linkResults

		linkVerdict := linkVerdictFrom(linkResults)

		// Decide
		if factVerdict.Approved && linkVerdict.Approved {
			logging.Workflow("Succeeded on attempt %d", attempt)
			return &Result{
				Question:      q,
				Status:        StatusSucceeded,
				Answer:        answer,
				Documentation: verifiedLinks(linkResults),
				Reasons:       reasons,
				Attempts:      attempt,
				LinkResults:   linkResults,
			}, nil
		}

		for _, reason := range factVerdict.Reasons {
			reasons = append(reasons, fmt.Sprintf("attempt %d: %s", attempt, reason))
		}
		for _, reason := range linkVerdict.Reasons {
			reasons = append(reasons, fmt.Sprintf("attempt %d: %s", attempt, reason))
		}
		if !factVerdict.Approved && len(factVerdict.Reasons) == 0 {
			reasons = append(reasons, fmt.Sprintf("attempt %d: answer validation rejected", attempt))
		}

		logging.Workflow("Attempt %d rejected (%d reasons so far)", attempt, len(reasons))
	}

	logging.Workflow("Failed after %d attempts: %.60s", q.MaxAttempts, q.Text)
	return &Result{
		Question:    q,
		Status:      StatusFailed,
		Answer:      lastAnswer,
		Reasons:     reasons,
		Attempts:    q.MaxAttempts,
		LinkResults: lastLinks,
	}, nil
}

// validate runs factual validation and link verification concurrently.
// Capability timeouts and malformed verdicts become rejections; only
// transport-level unavailability is returned as an error.
func (w *Workflow) validate(ctx context.Context, q Question, answer *Answer) (capability.Verdict, []linkcheck.Result, error) {
	var (
		factVerdict capability.Verdict
		linkResults []linkcheck.Result
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		verdict, err := w.validator.Validate(egCtx, q.Text, answer.Body)
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) {
				return err
			}
			// Timeout or unparseable verdict: reject, consume retry budget.
			factVerdict = capability.Verdict{
				Approved: false,
				Reasons:  []string{fmt.Sprintf("answer validation unavailable: %v", err)},
			}
			return nil
		}
		factVerdict = verdict
		return nil
	})

	eg.Go(func() error {
		if len(answer.Links) == 0 {
			// Zero links trivially pass link verification.
			return nil
		}
		w.stage(StageValidatingLinks)
		linkResults = w.links.Verify(egCtx, answer.Links, q.Text, answer.Body)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return capability.Verdict{}, nil, fmt.Errorf("validation capability failed: %w", err)
	}

	return factVerdict, linkResults, nil
}

// linkVerdictFrom derives the link verdict: every URL must be reachable and
// relevant for approval.
func linkVerdictFrom(results []linkcheck.Result) capability.Verdict {
	verdict := capability.Verdict{Approved: true}
	for _, r := range results {
		if !r.Ok() {
			verdict.Approved = false
			verdict.Reasons = append(verdict.Reasons, r.Reason)
		}
	}
	return verdict
}

// verifiedLinks returns only the URLs that passed both checks, in order.
func verifiedLinks(results []linkcheck.Result) []string {
	var links []string
	for _, r := range results {
		if r.Ok() {
			links = append(links, r.URL)
		}
	}
	return links
}
