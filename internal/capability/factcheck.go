package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"answervet/internal/llm"
	"answervet/internal/logging"
)

// Verdict is the approve/reject outcome of a validation stage.
type Verdict struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons,omitempty"`
}

const factCheckSystemPrompt = `You are a strict answer validator. Given a question and a candidate answer,
judge whether the answer is correct, complete, and internally consistent.

Also reject on FORMATTING violations:
- markdown syntax, headers, bullet or numbered lists
- inline citation markers like [1] or (source)
- "References:"/"Sources:" style boilerplate
- prose that does not end with a period

## Response Format (JSON only, no markdown)
{
  "approved": true/false,
  "reasons": ["reason 1", "reason 2", ...]
}

If approved is false, reasons MUST explain every problem found.
Only return the JSON object, no other text.`

// FactChecker invokes the factual-validation capability.
type FactChecker struct {
	client  llm.Client
	timeout time.Duration
}

// NewFactChecker creates a fact checker over the given client.
func NewFactChecker(client llm.Client, timeout time.Duration) *FactChecker {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &FactChecker{client: client, timeout: timeout}
}

// Validate judges correctness, completeness, consistency, and formatting
// compliance of an answer.
func (f *FactChecker) Validate(ctx context.Context, question, answer string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(`## Question
%s

## Candidate Answer
%s

Validate this answer and respond with the JSON verdict.`, question, truncate(answer, 8000))

	response, err := f.client.CompleteWithSystem(ctx, factCheckSystemPrompt, userPrompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("validation call failed: %w", err)
	}

	verdict, parseErr := parseVerdict(response)
	if parseErr != nil {
		logging.APIError("Unparseable validation verdict: %v", parseErr)
		return Verdict{}, fmt.Errorf("unparseable validation verdict: %w", parseErr)
	}

	logging.APIDebug("Factual verdict: approved=%v, reasons=%d", verdict.Approved, len(verdict.Reasons))
	return verdict, nil
}

// parseVerdict extracts a Verdict from an LLM response, tolerating
// markdown code fences around the JSON.
func parseVerdict(response string) (Verdict, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var v Verdict
	if err := json.Unmarshal([]byte(response), &v); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse verdict JSON: %w", err)
	}
	return v, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... [truncated]"
}
