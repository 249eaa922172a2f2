package linkcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answervet/internal/capability"
)

// mockJudge implements RelevanceJudge.
type mockJudge struct {
	CheckFunc func(ctx context.Context, url, content, question, answer string) (capability.Relevance, error)
}

func (m *mockJudge) CheckRelevance(ctx context.Context, url, content, question, answer string) (capability.Relevance, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, url, content, question, answer)
	}
	return capability.Relevance{Relevant: true}, nil
}

// mockFetcher implements ContentFetcher.
type mockFetcher struct {
	FetchFunc func(ctx context.Context, url string) (string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, url)
	}
	return "page content", nil
}

func newTestVerifier(fetcher ContentFetcher, judge RelevanceJudge) *Verifier {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = 5 * time.Second
	return NewVerifier(cfg, fetcher, judge)
}

func TestVerify_ReachableAndRelevant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newTestVerifier(&mockFetcher{}, &mockJudge{})
	results := v.Verify(context.Background(), []string{srv.URL}, "q", "a")

	require.Len(t, results, 1)
	assert.True(t, results[0].Reachable)
	assert.True(t, results[0].Relevant)
	assert.True(t, results[0].Ok())
	assert.Empty(t, results[0].Reason)
}

func TestVerify_UnreachableSkipsRelevance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	judgeCalled := false
	judge := &mockJudge{
		CheckFunc: func(ctx context.Context, url, content, question, answer string) (capability.Relevance, error) {
			judgeCalled = true
			return capability.Relevance{Relevant: true}, nil
		},
	}

	v := newTestVerifier(&mockFetcher{}, judge)
	results := v.Verify(context.Background(), []string{srv.URL + "/404"}, "q", "a")

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.False(t, results[0].Relevant)
	assert.False(t, judgeCalled, "relevance must never run for unreachable URLs")
	assert.Contains(t, results[0].Reason, "404")
	assert.Contains(t, results[0].Reason, srv.URL)
}

func TestVerify_NetworkFailureRecordsCause(t *testing.T) {
	v := newTestVerifier(&mockFetcher{}, &mockJudge{})
	results := v.Verify(context.Background(), []string{"http://127.0.0.1:1/nope"}, "q", "a")

	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	assert.NotEmpty(t, results[0].Reason)
}

func TestVerify_RelevanceFailureIsRecordedNotDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	judge := &mockJudge{
		CheckFunc: func(ctx context.Context, url, content, question, answer string) (capability.Relevance, error) {
			return capability.Relevance{}, errors.New("relevance timeout")
		},
	}

	v := newTestVerifier(&mockFetcher{}, judge)
	results := v.Verify(context.Background(), []string{srv.URL}, "q", "a")

	require.Len(t, results, 1)
	assert.True(t, results[0].Reachable)
	assert.False(t, results[0].Relevant)
	assert.Contains(t, results[0].Reason, "relevance check failed")
}

func TestVerify_NotRelevantCarriesJudgeReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	judge := &mockJudge{
		CheckFunc: func(ctx context.Context, url, content, question, answer string) (capability.Relevance, error) {
			return capability.Relevance{Relevant: false, Reason: "generic landing page"}, nil
		},
	}

	v := newTestVerifier(&mockFetcher{}, judge)
	results := v.Verify(context.Background(), []string{srv.URL}, "q", "a")

	require.Len(t, results, 1)
	assert.False(t, results[0].Ok())
	assert.Contains(t, results[0].Reason, "generic landing page")
}

func TestVerify_OrderPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/a", srv.URL + "/bad", srv.URL + "/c"}
	v := newTestVerifier(&mockFetcher{}, &mockJudge{})
	results := v.Verify(context.Background(), urls, "q", "a")

	require.Len(t, results, 3)
	for i, url := range urls {
		assert.Equal(t, url, results[i].URL)
	}
	assert.True(t, results[0].Ok())
	assert.False(t, results[1].Ok())
	assert.True(t, results[2].Ok())
}

func TestVerify_HeadRejectedFallsBackToGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := newTestVerifier(&mockFetcher{}, &mockJudge{})
	results := v.Verify(context.Background(), []string{srv.URL}, "q", "a")

	require.Len(t, results, 1)
	assert.True(t, results[0].Reachable)
}

func TestVerify_EmptyURLList(t *testing.T) {
	v := newTestVerifier(&mockFetcher{}, &mockJudge{})
	results := v.Verify(context.Background(), nil, "q", "a")
	assert.Empty(t, results)
}
