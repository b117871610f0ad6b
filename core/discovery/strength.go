package discovery

import (
	"math"
	"strings"

	"github.com/siherrmann/narrator/model"
)

const (
	countLinearLimit    = 5
	countLinearStep     = 0.1
	countLogScale       = 0.15
	qualityBase         = 0.5
	qualityVerbBoost    = 0.3
	qualityQuoteBoost   = 0.1
	qualityShortPenalty = 0.2
	shortSnippetLength  = 50
)

// strength scores a relationship in [0, 1] from its co-occurrence count,
// type and context snippets.
func (e *Engine) strength(count int, relationshipType model.RelationshipType, snippets []string) float64 {
	return clamp01(coOccurrenceTerm(count) * e.contextQuality(snippets) * typeMultiplier(relationshipType))
}

// coOccurrenceTerm grows linearly up to countLinearLimit co-occurrences and
// logarithmically beyond, so frequent pairs saturate instead of dominating.
func coOccurrenceTerm(count int) float64 {
	if count <= 0 {
		return 0.0
	}
	if count <= countLinearLimit {
		return countLinearStep * float64(count)
	}
	return countLinearStep*countLinearLimit + countLogScale*math.Log(1.0+float64(count-countLinearLimit))
}

// contextQuality rates the collected snippets. Interaction verbs and dialogue
// punctuation raise the quality, consistently short snippets lower it.
func (e *Engine) contextQuality(snippets []string) float64 {
	if len(snippets) == 0 {
		return qualityBase
	}

	quality := qualityBase
	hasVerb := false
	hasQuote := false
	for _, snippet := range snippets {
		if !hasVerb {
			for _, word := range snippetWords(snippet) {
				if e.lex.IsInteractionVerb(word) {
					hasVerb = true
					break
				}
			}
		}
		if !hasQuote && hasDialoguePunctuation(snippet) {
			hasQuote = true
		}
	}

	if hasVerb {
		quality += qualityVerbBoost
	}
	if hasQuote {
		quality += qualityQuoteBoost
	}
	if averageLength(snippets) < shortSnippetLength {
		quality -= qualityShortPenalty
	}
	return clamp01(quality)
}

// typeMultiplier weights relationship types by how much signal their
// classification carries.
func typeMultiplier(relationshipType model.RelationshipType) float64 {
	switch relationshipType {
	case model.RelationshipInteractsWith:
		return 1.2
	case model.RelationshipLocatedIn:
		return 1.1
	case model.RelationshipRelatedTo:
		return 1.0
	case model.RelationshipAppearsWith:
		return 0.9
	case model.RelationshipMentions:
		return 0.8
	default:
		return 1.0
	}
}

func hasDialoguePunctuation(snippet string) bool {
	return strings.ContainsAny(snippet, "\"“”")
}

func averageLength(snippets []string) float64 {
	total := 0
	for _, snippet := range snippets {
		total += len(snippet)
	}
	return float64(total) / float64(len(snippets))
}

func clamp01(value float64) float64 {
	if value < 0.0 {
		return 0.0
	}
	if value > 1.0 {
		return 1.0
	}
	return value
}
