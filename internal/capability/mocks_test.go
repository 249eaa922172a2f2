package capability

import "context"

// mockClient implements llm.Client for unit tests.
type mockClient struct {
	CompleteFunc           func(ctx context.Context, prompt string) (string, error)
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "ok", nil
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	return "ok", nil
}
