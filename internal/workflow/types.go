// Package workflow implements the per-question answer workflow: a bounded
// retry loop of Generate -> Sanitize -> Validate -> Decide. Generation,
// factual validation, and link relevance judgment are external capabilities;
// the workflow owns only the state machine and the accumulated reason trail.
package workflow

import (
	"answervet/internal/linkcheck"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusValidating Status = "validating"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Stage identifies the externally visible phase of an attempt,
// for display only.
type Stage string

const (
	StageGenerating       Stage = "generating"
	StageValidatingAnswer Stage = "validating_answer"
	StageValidatingLinks  Stage = "validating_links"
)

// Question is one question to answer. Immutable.
type Question struct {
	Text        string `json:"text"`
	Context     string `json:"context,omitempty"`
	CharLimit   int    `json:"char_limit"`
	MaxAttempts int    `json:"max_attempts"`
}

// Answer is one produced answer attempt.
type Answer struct {
	Body    string   `json:"body"`
	Links   []string `json:"links,omitempty"`
	Attempt int      `json:"attempt"`
}

// Result is the terminal outcome of a workflow run.
type Result struct {
	Question Question `json:"question"`
	Status   Status   `json:"status"` // succeeded or failed
	Answer   *Answer  `json:"answer,omitempty"`
	// Documentation is the verified link set; every entry is reachable and
	// judged relevant. Empty for failed runs.
	Documentation []string `json:"documentation,omitempty"`
	// Reasons is the full accumulated rejection trail across attempts.
	Reasons  []string `json:"reasons,omitempty"`
	Attempts int      `json:"attempts"`
	// LinkResults carries the per-URL outcomes of the final attempt,
	// kept for auditing.
	LinkResults []linkcheck.Result `json:"link_results,omitempty"`
}

// Succeeded reports whether the run produced a vetted answer.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}
