// Package linkcheck verifies that cited URLs are reachable and that their
// content is relevant to the answer citing them. Reachability is a cheap
// HTTP probe with a short timeout; relevance is delegated to an external
// capability and only attempted for reachable URLs.
package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"answervet/internal/capability"
	"answervet/internal/logging"
)

// Result describes the outcome of checking one URL.
type Result struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Relevant  bool   `json:"relevant"`
	Reason    string `json:"reason,omitempty"`
}

// Ok reports whether the URL passed both checks.
func (r Result) Ok() bool {
	return r.Reachable && r.Relevant
}

// RelevanceJudge judges topical fit of fetched page content.
// Implemented by capability.RelevanceJudge.
type RelevanceJudge interface {
	CheckRelevance(ctx context.Context, url, content, question, answer string) (capability.Relevance, error)
}

// ContentFetcher fetches a page and returns its text content.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config holds verifier settings.
type Config struct {
	ProbeTimeout   time.Duration
	MaxConcurrency int
	UserAgent      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:   10 * time.Second,
		MaxConcurrency: 4,
		UserAgent:      "Mozilla/5.0 (compatible; answervet/1.0)",
	}
}

// Verifier checks candidate links for reachability and relevance.
type Verifier struct {
	cfg     Config
	probe   *http.Client
	fetcher ContentFetcher
	judge   RelevanceJudge
}

// NewVerifier creates a link verifier.
func NewVerifier(cfg Config, fetcher ContentFetcher, judge RelevanceJudge) *Verifier {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Verifier{
		cfg:     cfg,
		probe:   &http.Client{Timeout: cfg.ProbeTimeout},
		fetcher: fetcher,
		judge:   judge,
	}
}

// Verify checks every URL and returns results in input order.
// URLs are checked concurrently; an unreachable URL is rejected without a
// relevance check, and a relevance failure is recorded as not-relevant
// rather than dropped.
func (v *Verifier) Verify(ctx context.Context, urls []string, question, answer string) []Result {
	results := make([]Result, len(urls))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(v.cfg.MaxConcurrency)

	for i, url := range urls {
		eg.Go(func() error {
			results[i] = v.checkOne(egCtx, url, question, answer)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

func (v *Verifier) checkOne(ctx context.Context, url, question, answer string) Result {
	result := Result{URL: url}

	status, err := v.probeURL(ctx, url)
	if err != nil {
		result.Reason = fmt.Sprintf("%s: %v", url, err)
		logging.Links("Probe failed: %s", result.Reason)
		return result
	}
	if status < 200 || status >= 400 {
		result.Reason = fmt.Sprintf("%s: HTTP %d", url, status)
		logging.Links("Probe rejected: %s", result.Reason)
		return result
	}
	result.Reachable = true

	content, err := v.fetcher.Fetch(ctx, url)
	if err != nil {
		result.Reason = fmt.Sprintf("%s: content fetch failed: %v", url, err)
		logging.Links("Fetch failed: %s", result.Reason)
		return result
	}

	rel, err := v.judge.CheckRelevance(ctx, url, content, question, answer)
	if err != nil {
		result.Reason = fmt.Sprintf("%s: relevance check failed: %v", url, err)
		logging.Links("Relevance check failed: %s", result.Reason)
		return result
	}

	result.Relevant = rel.Relevant
	if !rel.Relevant {
		reason := rel.Reason
		if reason == "" {
			reason = "content not relevant"
		}
		result.Reason = fmt.Sprintf("%s: %s", url, reason)
	}
	return result
}

// probeURL performs the cheap reachability probe. HEAD first; servers that
// reject HEAD get a GET retry.
func (v *Verifier) probeURL(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.ProbeTimeout)
	defer cancel()

	status, err := v.doProbe(ctx, http.MethodHead, url)
	if err == nil && status != http.StatusMethodNotAllowed && status != http.StatusNotImplemented {
		return status, nil
	}

	return v.doProbe(ctx, http.MethodGet, url)
}

func (v *Verifier) doProbe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid URL: %w", err)
	}
	if v.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", v.cfg.UserAgent)
	}

	resp, err := v.probe.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
