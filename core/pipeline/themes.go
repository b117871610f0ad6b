package pipeline

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/model"
)

const (
	themeBaseRelevance     = 0.5
	themeEmotionalBoost    = 0.2
	themeDialoguePenalty   = 0.2
	themeContextRadius     = 50
	themeSaturationAnchors = 3
)

// extractThemes scores every theme category of the lexicon against the text.
// Each keyword occurrence gets a relevance from its surrounding words;
// occurrences below the relevance floor are discarded. A category becomes a
// theme entity when its presence, the average relevance damped by how few
// occurrences there are, reaches the presence threshold. The keywords that
// actually occurred are kept as aliases.
func (e *Extractor) extractThemes(text string) []*model.Entity {
	lowerText := strings.ToLower(text)

	entities := []*model.Entity{}
	for _, category := range e.lex.ThemeCategories() {
		count := 0
		relevanceSum := 0.0
		first := -1
		last := -1
		foundKeywords := []string{}

		for _, keyword := range e.lex.ThemeKeywords(category) {
			found := false
			for _, start := range findWordMatches(lowerText, keyword) {
				relevance := e.themeRelevance(text, start, start+len(keyword))
				if relevance < e.config.ThemeRelevanceFloor {
					continue
				}
				count++
				relevanceSum += relevance
				if first < 0 || start < first {
					first = start
				}
				if start > last {
					last = start
				}
				found = true
			}
			if found && !strings.EqualFold(keyword, category) {
				foundKeywords = append(foundKeywords, keyword)
			}
		}
		if count == 0 {
			continue
		}

		averageRelevance := relevanceSum / float64(count)
		presence := averageRelevance * math.Min(1, float64(count)/themeSaturationAnchors)
		if presence < e.config.ThemePresenceThreshold {
			continue
		}

		firstMentioned := first
		lastMentioned := last
		entities = append(entities, &model.Entity{
			ID:              uuid.New(),
			Type:            model.EntityTypeTheme,
			Name:            category,
			Aliases:         foundKeywords,
			ConfidenceScore: clamp01(presence),
			MentionCount:    count,
			FirstMentioned:  &firstMentioned,
			LastMentioned:   &lastMentioned,
		})
	}
	return entities
}

// themeRelevance scores one keyword occurrence by its context: emotional
// words nearby raise it, a dialogue tag nearby lowers it, since quoted
// speech about a topic is weaker evidence than narration.
func (e *Extractor) themeRelevance(text string, start int, end int) float64 {
	relevance := themeBaseRelevance
	emotional := false
	dialogue := false
	for _, word := range windowWords(text, start, end, themeContextRadius) {
		if e.lex.IsEmotionalWord(word) {
			emotional = true
		}
		if e.lex.IsDialogueTag(word) {
			dialogue = true
		}
	}
	if emotional {
		relevance += themeEmotionalBoost
	}
	if dialogue {
		relevance -= themeDialoguePenalty
	}
	return clamp01(relevance)
}
