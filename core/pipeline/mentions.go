package pipeline

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/model"
)

const (
	mentionContextRadius  = 100
	mentionSentenceRadius = 200
)

// TrackMentions locates every whole word occurrence of each entity's name
// and aliases in text and resolves it into a mention record with offsets,
// line and paragraph numbers, surrounding context, the containing sentence
// and the scene it falls into. Longer names win overlapping matches, so one
// occurrence of "Lord Kael" yields one mention, not two. Mention indices
// count per entity in text order starting at zero.
func TrackMentions(entities []*model.Entity, text string, fileID uuid.UUID, scenes []model.Scene) ([]*model.Mention, error) {
	if strings.TrimSpace(text) == "" || len(entities) == 0 {
		return []*model.Mention{}, nil
	}

	lowerText := strings.ToLower(text)
	lineStarts := buildLineStarts(text)
	paragraphBreaks := buildParagraphBreaks(text)

	sortedScenes := make([]model.Scene, len(scenes))
	copy(sortedScenes, scenes)
	sort.Slice(sortedScenes, func(i, j int) bool {
		return sortedScenes[i].StartOffset < sortedScenes[j].StartOffset
	})

	mentions := []*model.Mention{}
	for _, entity := range entities {
		for index, matched := range matchEntitySpans(lowerText, entity) {
			mention := &model.Mention{
				EntityID:        entity.ID,
				FileID:          fileID,
				StartOffset:     matched.start,
				EndOffset:       matched.end,
				LineNumber:      sort.SearchInts(lineStarts, matched.start+1),
				ParagraphNumber: sort.SearchInts(paragraphBreaks, matched.start),
				MentionText:     text[matched.start:matched.end],
				MentionIndex:    index,
				ContextBefore:   contextBefore(text, matched.start),
				ContextAfter:    contextAfter(text, matched.end),
				Sentence:        sentenceAround(text, matched.start, matched.end),
				IsDirectMention: isDirectMention(text[matched.start:matched.end], entity.Name),
				Confidence:      entity.ConfidenceScore,
			}
			if scene := sceneAt(sortedScenes, matched.start); scene != nil {
				sceneID := scene.ID
				mention.SceneID = &sceneID
			}
			mentions = append(mentions, mention)
		}
	}

	sort.SliceStable(mentions, func(i, j int) bool {
		return mentions[i].StartOffset < mentions[j].StartOffset
	})
	return mentions, nil
}

// matchEntitySpans returns the non-overlapping match spans of all names of
// the entity, longest names matched first, sorted by position. Identical
// spans matched through more than one alias collapse into one.
func matchEntitySpans(lowerText string, entity *model.Entity) []span {
	names := entity.AllNames()
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	taken := []span{}
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		for _, start := range findWordMatches(lowerText, trimmed) {
			matched := span{start: start, end: start + len(trimmed)}
			overlaps := false
			for _, existing := range taken {
				if matched.start < existing.end && existing.start < matched.end {
					overlaps = true
					break
				}
			}
			if !overlaps {
				taken = append(taken, matched)
			}
		}
	}
	sort.Slice(taken, func(i, j int) bool {
		return taken[i].start < taken[j].start
	})
	return taken
}

// isDirectMention reports whether the matched text names the entity
// directly: the canonical name in any casing, or a capitalized alias.
// Lowercase alias matches like "the lord" are indirect.
func isDirectMention(matched string, canonicalName string) bool {
	if strings.EqualFold(matched, canonicalName) {
		return true
	}
	first, _ := utf8.DecodeRuneInString(matched)
	return unicode.IsUpper(first)
}

// buildLineStarts returns the start offset of every line, so the 1-based
// line number of an offset is the count of starts at or before it.
func buildLineStarts(text string) []int {
	lineStarts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return lineStarts
}

// buildParagraphBreaks returns the start offset of every blank line run, so
// the 0-based paragraph number of an offset is the count of breaks before
// it.
func buildParagraphBreaks(text string) []int {
	paragraphBreaks := []int{}
	for i := 0; i < len(text)-1; {
		if text[i] == '\n' && text[i+1] == '\n' {
			paragraphBreaks = append(paragraphBreaks, i)
			for i < len(text) && text[i] == '\n' {
				i++
			}
			continue
		}
		i++
	}
	return paragraphBreaks
}

func sceneAt(sortedScenes []model.Scene, offset int) *model.Scene {
	i := sort.Search(len(sortedScenes), func(i int) bool {
		return sortedScenes[i].StartOffset > offset
	}) - 1
	if i >= 0 && sortedScenes[i].Contains(offset) {
		return &sortedScenes[i]
	}
	return nil
}

func contextBefore(text string, start int) string {
	from := start - mentionContextRadius
	if from < 0 {
		from = 0
	}
	return text[from:start]
}

func contextAfter(text string, end int) string {
	to := end + mentionContextRadius
	if to > len(text) {
		to = len(text)
	}
	return text[end:to]
}

// sentenceAround returns the sentence containing [start, end), bounded by
// the nearest sentence terminator or paragraph break within the sentence
// radius on each side.
func sentenceAround(text string, start int, end int) string {
	sentenceStart := start
	for i := start - 1; i >= 0 && start-i <= mentionSentenceRadius; i-- {
		c := text[i]
		if c == '.' || c == '!' || c == '?' {
			break
		}
		if c == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			break
		}
		sentenceStart = i
	}
	sentenceEnd := end
	for i := end; i < len(text) && i-end < mentionSentenceRadius; i++ {
		c := text[i]
		sentenceEnd = i + 1
		if c == '.' || c == '!' || c == '?' {
			break
		}
		if c == '\n' && i+1 < len(text) && text[i+1] == '\n' {
			sentenceEnd = i
			break
		}
	}
	return strings.TrimSpace(text[sentenceStart:sentenceEnd])
}
