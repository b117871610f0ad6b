package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// validName rejects candidate names that are extraction noise rather than
// narrative entities: possessive artifacts, single characters, lowercase
// fragments, pronoun-led or stop-word-only strings, and multi-word phrases
// built from action verbs or body parts ("Kael Ran", "Her Hands").
func (e *Extractor) validName(name string) bool {
	if strings.ContainsAny(name, "'’") {
		return false
	}
	if utf8.RuneCountInString(name) < 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsUpper(first) {
		return false
	}

	tokens := strings.Fields(strings.ToLower(name))
	if len(tokens) == 0 {
		return false
	}
	if e.lex.IsPronoun(tokens[0]) {
		return false
	}
	if len(tokens) == 1 && e.lex.IsHonorific(tokens[0]) {
		return false
	}

	allStopWords := true
	for _, token := range tokens {
		if !e.lex.IsStopWord(token) {
			allStopWords = false
		}
		if len(tokens) > 1 && (e.lex.IsActionVerb(token) || e.lex.IsBodyPart(token)) {
			return false
		}
	}
	return !allStopWords
}

// FindWordMatches returns the start offsets of case-insensitive whole word
// occurrences of name in text. A match only counts when it is not directly
// surrounded by letters or digits, so "Ann" never matches inside "Anna".
func FindWordMatches(text string, name string) []int {
	return findWordMatches(strings.ToLower(text), name)
}

func findWordMatches(lowerText string, name string) []int {
	lowerName := strings.ToLower(strings.TrimSpace(name))
	if lowerName == "" {
		return nil
	}

	matches := []int{}
	from := 0
	for {
		i := strings.Index(lowerText[from:], lowerName)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(lowerName)
		if isWordBoundary(lowerText, start, end) {
			matches = append(matches, start)
		}
		from = start + 1
	}
	return matches
}

// isWordBoundary reports whether [start, end) is not directly preceded or
// followed by a letter or digit.
func isWordBoundary(text string, start int, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// precedingWord returns the word directly before offset, trailing
// punctuation like the period of "Mr." included.
func precedingWord(text string, offset int) string {
	end := offset
	for end > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) && r != '.' && r != '\'' && r != '’' {
			break
		}
		start -= size
	}
	return text[start:end]
}

// windowWords returns the lowercased words within radius bytes around
// [start, end), stripped of surrounding punctuation.
func windowWords(text string, start int, end int, radius int) []string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(text) {
		to = len(text)
	}

	fields := strings.Fields(strings.ToLower(text[from:to]))
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
		})
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
