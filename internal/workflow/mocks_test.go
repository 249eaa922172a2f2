package workflow

import (
	"context"

	"answervet/internal/capability"
	"answervet/internal/linkcheck"
)

// --- mockGenerator ---

type mockGenerator struct {
	GenerateFunc func(ctx context.Context, req capability.GenerateRequest) (string, error)
	Calls        []capability.GenerateRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req capability.GenerateRequest) (string, error) {
	m.Calls = append(m.Calls, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "The answer is four.", nil
}

// --- mockValidator ---

type mockValidator struct {
	ValidateFunc func(ctx context.Context, question, answer string) (capability.Verdict, error)
	Calls        int
}

func (m *mockValidator) Validate(ctx context.Context, question, answer string) (capability.Verdict, error) {
	m.Calls++
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, question, answer)
	}
	return capability.Verdict{Approved: true}, nil
}

// --- mockLinks ---

type mockLinks struct {
	VerifyFunc func(ctx context.Context, urls []string, question, answer string) []linkcheck.Result
	Calls      int
}

func (m *mockLinks) Verify(ctx context.Context, urls []string, question, answer string) []linkcheck.Result {
	m.Calls++
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, urls, question, answer)
	}
	results := make([]linkcheck.Result, len(urls))
	for i, u := range urls {
		results[i] = linkcheck.Result{URL: u, Reachable: true, Relevant: true}
	}
	return results
}
