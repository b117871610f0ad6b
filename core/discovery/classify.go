package discovery

import (
	"strings"
	"unicode"

	"github.com/siherrmann/narrator/model"
)

// classifyRelationship derives the relationship type of a pair from the
// entity types and the collected context snippets.
func (e *Engine) classifyRelationship(source model.EntityType, target model.EntityType, snippets []string) model.RelationshipType {
	switch {
	case source == model.EntityTypeTheme || target == model.EntityTypeTheme:
		return model.RelationshipRelatedTo
	case source == model.EntityTypeCharacter && target == model.EntityTypeCharacter:
		if e.hasInteractionContext(snippets) {
			return model.RelationshipInteractsWith
		}
		return model.RelationshipAppearsWith
	case source == model.EntityTypeLocation && target == model.EntityTypeLocation:
		if e.hasSpatialContext(snippets) {
			return model.RelationshipRelatedTo
		}
		return model.RelationshipAppearsWith
	case source == model.EntityTypeCharacter || target == model.EntityTypeCharacter:
		// Character with location
		if e.hasSpatialContext(snippets) {
			return model.RelationshipLocatedIn
		}
		return model.RelationshipMentions
	default:
		return model.RelationshipAppearsWith
	}
}

// hasInteractionContext reports whether any snippet carries an interaction
// or dialogue verb.
func (e *Engine) hasInteractionContext(snippets []string) bool {
	for _, snippet := range snippets {
		for _, word := range snippetWords(snippet) {
			if e.lex.IsInteractionVerb(word) {
				return true
			}
		}
	}
	return false
}

// hasSpatialContext reports whether any snippet carries a spatial
// preposition or movement verb.
func (e *Engine) hasSpatialContext(snippets []string) bool {
	for _, snippet := range snippets {
		for _, word := range snippetWords(snippet) {
			if e.lex.IsSpatialPreposition(word) || e.lex.IsMovementVerb(word) {
				return true
			}
		}
	}
	return false
}

// snippetWords splits a snippet into lowercased words with surrounding
// punctuation stripped.
func snippetWords(snippet string) []string {
	fields := strings.Fields(strings.ToLower(snippet))
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if word != "" {
			words = append(words, word)
		}
	}
	return words
}
