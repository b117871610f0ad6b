package search

import (
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/narrator/core/pipeline"
)

// span marks a half-open byte range already covered by a highlight
type span struct {
	start int
	end   int
}

// highlights extracts a bounded context window around the first occurrence of
// each query term, skipping stop words and overlapping windows, capped at
// MaxHighlights.
func (e *Engine) highlights(content string, query string) []string {
	if e.config.MaxHighlights <= 0 {
		return nil
	}
	padding := e.config.HighlightWindow / 2

	var highlights []string
	var used []span
	seen := make(map[string]bool)
	for _, term := range tokenize(query) {
		if len(highlights) >= e.config.MaxHighlights {
			break
		}
		if seen[term] || e.lex.IsStopWord(term) {
			continue
		}
		seen[term] = true

		matches := pipeline.FindWordMatches(content, term)
		if len(matches) == 0 {
			continue
		}
		start := matches[0]
		end := start + len(term)

		windowStart := start - padding
		if windowStart < 0 {
			windowStart = 0
		}
		for windowStart > 0 && !utf8.RuneStart(content[windowStart]) {
			windowStart--
		}
		windowEnd := end + padding
		if windowEnd > len(content) {
			windowEnd = len(content)
		}
		for windowEnd < len(content) && !utf8.RuneStart(content[windowEnd]) {
			windowEnd++
		}

		if overlaps(used, windowStart, windowEnd) {
			continue
		}
		used = append(used, span{start: windowStart, end: windowEnd})

		highlight := strings.TrimSpace(content[windowStart:windowEnd])
		if highlight == "" {
			continue
		}
		if windowStart > 0 {
			highlight = "..." + highlight
		}
		if windowEnd < len(content) {
			highlight = highlight + "..."
		}
		highlights = append(highlights, highlight)
	}
	return highlights
}

func overlaps(used []span, start int, end int) bool {
	for _, s := range used {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}
