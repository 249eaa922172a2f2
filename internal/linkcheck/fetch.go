package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"answervet/internal/logging"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]{2,}`)
)

// HTTPFetcher fetches page content over plain HTTP and reduces HTML to text
// suitable for relevance judgment.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// NewHTTPFetcher creates a fetcher with the given timeout and body size cap.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch retrieves the URL and returns its text content.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") ||
		strings.Contains(contentType, "text/markdown") {
		return string(body), nil
	}

	text, err := htmlToText(string(body))
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}

	logging.LinksDebug("Fetched %s (%d chars)", url, len(text))
	return text, nil
}

// htmlToText reduces an HTML document to readable plain text.
func htmlToText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	extractText(doc, &sb, 0)

	return cleanText(sb.String()), nil
}

func extractText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 50 {
		return // Prevent excessive recursion
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		case "title", "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "li", "tr":
			sb.WriteString("\n")
		case "br":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "title", "h1", "h2", "h3", "h4", "h5", "h6", "p":
			sb.WriteString("\n")
		}
	}
}

// cleanText removes excessive whitespace.
func cleanText(s string) string {
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	return strings.TrimSpace(s)
}
