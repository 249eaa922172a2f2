package workflow

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	urlLinePattern        = regexp.MustCompile(`^https?://\S+$`)
	inlineCitationPattern = regexp.MustCompile(`\s*\[\d+\]|\s*\(source[^)]*\)`)
	markdownLinkPattern   = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)]+)\)`)
	boilerplatePattern    = regexp.MustCompile(`(?i)^(references|sources|links|documentation)\s*:?\s*$`)
	listMarkerPattern     = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)])\s+`)
	headingPattern        = regexp.MustCompile(`^#{1,6}\s+`)
)

// Sanitized is the cleaned form of one raw generation.
type Sanitized struct {
	Prose string
	URLs  []string
}

// Length returns the character length of the sanitized prose.
// The limit is a character limit, so multi-byte prose counts runes.
func (s Sanitized) Length() int {
	return utf8.RuneCountInString(s.Prose)
}

// Sanitize strips citation and markup artifacts from a raw generation,
// splits out candidate URLs, and returns the final prose.
//
// URLs are recognized on their own lines (the formatting contract asks the
// generator to append them after the prose, one per line) and inside
// markdown-style links, which are unwrapped with the URL captured.
func Sanitize(raw string) Sanitized {
	var (
		proseLines []string
		urls       []string
		seen       = make(map[string]struct{})
	)

	addURL := func(u string) {
		u = strings.TrimRight(u, ".,;")
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if urlLinePattern.MatchString(line) {
			addURL(line)
			continue
		}

		if boilerplatePattern.MatchString(line) {
			continue
		}

		// Unwrap markdown links, keeping the text and capturing the URL.
		line = markdownLinkPattern.ReplaceAllStringFunc(line, func(m string) string {
			parts := markdownLinkPattern.FindStringSubmatch(m)
			addURL(parts[2])
			return parts[1]
		})

		line = inlineCitationPattern.ReplaceAllString(line, "")
		line = listMarkerPattern.ReplaceAllString(line, "")
		line = headingPattern.ReplaceAllString(line, "")
		line = strings.ReplaceAll(line, "**", "")
		line = strings.ReplaceAll(line, "`", "")
		line = strings.TrimSpace(line)

		if line != "" {
			proseLines = append(proseLines, line)
		}
	}

	return Sanitized{
		Prose: strings.Join(proseLines, " "),
		URLs:  urls,
	}
}
