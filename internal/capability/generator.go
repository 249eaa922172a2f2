// Package capability wraps the external AI capabilities - answer generation,
// factual validation, and link relevance judgment - as request/response
// black boxes over an llm.Client. Prompts carry the formatting contract the
// downstream sanitizer and validators depend on.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"answervet/internal/llm"
	"answervet/internal/logging"
)

const generatorSystemPrompt = `You are a precise research assistant that answers questions in plain prose.

## Output Contract (MANDATORY)
- Plain prose only. No markdown, no headers, no bullet or numbered lists.
- The prose must end with a period.
- If you cite sources, append their URLs AFTER the prose, one URL per line.
- Do NOT add "References:", "Sources:" or any similar closing boilerplate.
- Do NOT use inline citation markers like [1] or (source).

Answer accurately and completely. Only cite URLs you are confident exist
and directly support the answer.`

// GenerateRequest carries everything one generation attempt needs.
type GenerateRequest struct {
	Question     string
	Context      string
	CharLimit    int
	PriorReasons []string // accumulated rejection reasons, empty on attempt 1
	Shorten      bool     // previous attempt exceeded the character limit
}

// Generator invokes the answer-generation capability.
type Generator struct {
	client  llm.Client
	timeout time.Duration
}

// NewGenerator creates a generator over the given client.
func NewGenerator(client llm.Client, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Generator{client: client, timeout: timeout}
}

// Generate produces one raw answer attempt.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := g.buildPrompt(req)
	logging.APIDebug("Generate: question_len=%d, prior_reasons=%d, shorten=%v",
		len(req.Question), len(req.PriorReasons), req.Shorten)

	raw, err := g.client.CompleteWithSystem(ctx, generatorSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	return raw, nil
}

func (g *Generator) buildPrompt(req GenerateRequest) string {
	var sb strings.Builder

	sb.WriteString("## Question\n")
	sb.WriteString(req.Question)
	sb.WriteString("\n")

	if req.Context != "" {
		sb.WriteString("\n## Additional Context\n")
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\n## Length\nKeep the prose under %d characters.\n", req.CharLimit)

	if len(req.PriorReasons) > 0 {
		sb.WriteString("\n## Previous Attempt Was Rejected\nFix ALL of the following issues:\n")
		for _, reason := range req.PriorReasons {
			sb.WriteString("- ")
			sb.WriteString(reason)
			sb.WriteString("\n")
		}
	}

	if req.Shorten {
		fmt.Fprintf(&sb, "\nIMPORTANT: your previous answer exceeded %d characters. Shorten it substantially while keeping it accurate and complete.\n", req.CharLimit)
	}

	return sb.String()
}
