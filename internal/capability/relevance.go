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

// Relevance is the outcome of judging one URL's topical fit.
type Relevance struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason,omitempty"`
}

const relevanceSystemPrompt = `You judge whether a web page is relevant documentation for an answer.

Given a question, an answer, and the text content of a cited page, decide if
the page actually supports or documents the answer. A page is NOT relevant if
it is off-topic, a generic landing page, an error page, or only tangentially
related.

## Response Format (JSON only, no markdown)
{
  "relevant": true/false,
  "reason": "short explanation"
}

Only return the JSON object, no other text.`

// RelevanceJudge invokes the relevance-check capability.
type RelevanceJudge struct {
	client  llm.Client
	timeout time.Duration
}

// NewRelevanceJudge creates a relevance judge over the given client.
func NewRelevanceJudge(client llm.Client, timeout time.Duration) *RelevanceJudge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RelevanceJudge{client: client, timeout: timeout}
}

// CheckRelevance judges whether fetched page content is topically relevant
// to the question/answer pair.
func (r *RelevanceJudge) CheckRelevance(ctx context.Context, url, content, question, answer string) (Relevance, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(`## Question
%s

## Answer
%s

## Cited URL
%s

## Page Content
%s

Is this page relevant documentation for the answer? Respond with the JSON verdict.`,
		question, truncate(answer, 4000), url, truncate(content, 12000))

	response, err := r.client.CompleteWithSystem(ctx, relevanceSystemPrompt, userPrompt)
	if err != nil {
		return Relevance{}, fmt.Errorf("relevance call failed: %w", err)
	}

	rel, parseErr := parseRelevance(response)
	if parseErr != nil {
		logging.LinksDebug("Unparseable relevance verdict for %s: %v", url, parseErr)
		return Relevance{}, fmt.Errorf("unparseable relevance verdict: %w", parseErr)
	}

	logging.LinksDebug("Relevance verdict for %s: relevant=%v", url, rel.Relevant)
	return rel, nil
}

func parseRelevance(response string) (Relevance, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var rel Relevance
	if err := json.Unmarshal([]byte(response), &rel); err != nil {
		return Relevance{}, fmt.Errorf("failed to parse relevance JSON: %w", err)
	}
	return rel, nil
}
