package linkcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"answervet/internal/logging"
)

// RodFetcher fetches pages through a headless Chrome instance so that
// script-rendered content is visible to the relevance judge. Plain HTTP
// fetching misses single-page apps entirely.
type RodFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
}

// NewRodFetcher creates a browser-backed fetcher. The browser is launched
// lazily on first Fetch.
func NewRodFetcher(timeout time.Duration) *RodFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodFetcher{timeout: timeout}
}

func (f *RodFetcher) ensureStarted() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	f.browser = browser
	logging.Links("Headless browser started")
	return browser, nil
}

// Fetch renders the URL and returns the visible text of the page body.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (string, error) {
	browser, err := f.ensureStarted()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(f.timeout)

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page load: %w", err)
	}

	obj, err := page.Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	text := obj.Value.Str()
	logging.LinksDebug("Rendered %s (%d chars)", url, len(text))
	return text, nil
}

// Close shuts down the headless browser.
func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
