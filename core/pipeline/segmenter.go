package pipeline

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/narrator/model"
)

// sentenceSpan is one sentence (or clause of an oversized sentence) with its
// absolute offsets in the source text and its word count.
type sentenceSpan struct {
	start int
	end   int
	words int
}

// WordChunker returns a SegmentFunc that groups whole sentences into chunks
// around config.TargetWords words. Consecutive chunks share a sentence
// overlap of roughly config.OverlapFraction of the previous chunk, and a
// trailing chunk below config.MinWords is dropped unless it is the only one.
func WordChunker(config model.SegmenterConfig) SegmentFunc {
	return func(text string, startOffset int, startIndex int) ([]Segment, error) {
		if config.TargetWords <= 0 {
			return nil, fmt.Errorf("target words must be positive, got %v", config.TargetWords)
		}
		if config.MaxWords < config.TargetWords {
			return nil, fmt.Errorf("max words %v must be at least target words %v", config.MaxWords, config.TargetWords)
		}
		if config.OverlapFraction < 0 || config.OverlapFraction >= 1 {
			return nil, fmt.Errorf("overlap fraction must be in [0, 1), got %v", config.OverlapFraction)
		}
		if strings.TrimSpace(text) == "" {
			return []Segment{}, nil
		}

		pieces := []sentenceSpan{}
		for _, sentence := range splitSentences(text) {
			if sentence.words > config.MaxWords {
				pieces = append(pieces, splitClauses(text, sentence, config.TargetWords)...)
			} else {
				pieces = append(pieces, sentence)
			}
		}

		segments := []Segment{}
		current := []sentenceSpan{}
		currentWords := 0
		// carried marks how many leading sentences of current are overlap
		// from the previous chunk, so a chunk is never flushed before it
		// contains at least one new sentence.
		carried := 0
		index := startIndex

		flush := func() {
			start := current[0].start
			end := current[len(current)-1].end
			segments = append(segments, Segment{
				Content:     text[start:end],
				StartOffset: startOffset + start,
				EndOffset:   startOffset + end,
				Index:       index,
				WordCount:   currentWords,
			})
			index++

			overlap := int(math.Round(float64(len(current)) * config.OverlapFraction))
			if overlap >= len(current) {
				overlap = len(current) - 1
			}
			carry := current[len(current)-overlap:]
			carryWords := 0
			for _, sentence := range carry {
				carryWords += sentence.words
			}
			// Overlap that already fills a chunk on its own would stall
			// progress, so it is dropped.
			if overlap <= 0 || carryWords >= config.TargetWords {
				current, currentWords, carried = []sentenceSpan{}, 0, 0
				return
			}
			current = append([]sentenceSpan{}, carry...)
			currentWords = carryWords
			carried = len(carry)
		}

		for _, piece := range pieces {
			if len(current) > carried && currentWords+piece.words > config.MaxWords {
				flush()
			}
			current = append(current, piece)
			currentWords += piece.words
			if len(current) > carried && currentWords >= config.TargetWords {
				flush()
			}
		}
		if len(current) > carried && (currentWords >= config.MinWords || len(segments) == 0) {
			flush()
		}

		return segments, nil
	}
}

// splitSentences returns the sentence spans of text. A sentence ends at '.',
// '!' or '?' (plus directly attached closing quotes) followed by whitespace,
// or at a paragraph break.
func splitSentences(text string) []sentenceSpan {
	spans := []sentenceSpan{}
	start := -1
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if !unicode.IsSpace(r) {
				start = i
			}
			i += size
			continue
		}
		if r == '\n' && strings.HasPrefix(text[i+size:], "\n") {
			spans = appendSpan(spans, text, start, i)
			start = -1
			i += size
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			end := i + size
			for end < len(text) {
				r2, size2 := utf8.DecodeRuneInString(text[end:])
				if r2 != '"' && r2 != '”' && r2 != '\'' && r2 != '’' && r2 != ')' {
					break
				}
				end += size2
			}
			if end >= len(text) || isSpaceAt(text, end) {
				spans = appendSpan(spans, text, start, end)
				start = -1
				i = end
				continue
			}
		}
		i += size
	}
	if start >= 0 {
		spans = appendSpan(spans, text, start, len(text))
	}
	return spans
}

// splitClauses breaks an oversized sentence at comma and semicolon
// boundaries and regroups the parts into pieces of at most targetWords
// words. A sentence without such boundaries stays in one piece.
func splitClauses(text string, sentence sentenceSpan, targetWords int) []sentenceSpan {
	clauses := []sentenceSpan{}
	start := sentence.start
	for i := sentence.start; i < sentence.end; i++ {
		if (text[i] == ',' || text[i] == ';') && i+1 < sentence.end && isSpaceAt(text, i+1) {
			clauses = appendSpan(clauses, text, start, i+1)
			start = i + 1
		}
	}
	clauses = appendSpan(clauses, text, start, sentence.end)
	if len(clauses) <= 1 {
		return []sentenceSpan{sentence}
	}

	pieces := []sentenceSpan{}
	currentStart := -1
	currentEnd := 0
	currentWords := 0
	for _, clause := range clauses {
		if currentStart >= 0 && currentWords+clause.words > targetWords {
			pieces = appendSpan(pieces, text, currentStart, currentEnd)
			currentStart = -1
		}
		if currentStart < 0 {
			currentStart = clause.start
			currentWords = 0
		}
		currentEnd = clause.end
		currentWords += clause.words
	}
	if currentStart >= 0 {
		pieces = appendSpan(pieces, text, currentStart, currentEnd)
	}
	return pieces
}

// appendSpan trims surrounding whitespace off [start, end) and appends the
// span if anything remains.
func appendSpan(spans []sentenceSpan, text string, start int, end int) []sentenceSpan {
	for start < end && isSpaceAt(text, start) {
		_, size := utf8.DecodeRuneInString(text[start:])
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if start >= end {
		return spans
	}
	words := len(strings.Fields(text[start:end]))
	if words == 0 {
		return spans
	}
	return append(spans, sentenceSpan{start: start, end: end, words: words})
}

func isSpaceAt(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsSpace(r)
}
