package model

import "github.com/google/uuid"

// SegmenterConfig controls how manuscript text is split into chunks
type SegmenterConfig struct {
	TargetWords     int     `json:"target_words"`     // Preferred chunk size in words
	MinWords        int     `json:"min_words"`        // A final chunk below this is dropped unless it is the only one
	MaxWords        int     `json:"max_words"`        // Hard upper bound per chunk
	OverlapFraction float64 `json:"overlap_fraction"` // Fraction of a chunk repeated at the start of the next
}

// DefaultSegmenterConfig returns a sensible default configuration
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		TargetWords:     300,
		MinWords:        100,
		MaxWords:        450,
		OverlapFraction: 0.2,
	}
}

// ExtractorConfig controls entity extraction and name resolution
type ExtractorConfig struct {
	ConfidenceThreshold    float64 `json:"confidence_threshold"`     // Candidates below this are dropped
	CharacterMinMentions   int     `json:"character_min_mentions"`   // Minimum occurrences for a character
	LocationMinMentions    int     `json:"location_min_mentions"`    // Minimum occurrences for a location
	WellKnownMinMentions   int     `json:"well_known_min_mentions"`  // Minimum occurrences for lexicon-known locations
	ThemePresenceThreshold float64 `json:"theme_presence_threshold"` // Minimum presence score for a theme
	ThemeRelevanceFloor    float64 `json:"theme_relevance_floor"`    // Minimum per-occurrence relevance counted
	NameJaccardThreshold   float64 `json:"name_jaccard_threshold"`   // Token overlap required to merge name variants
}

// DefaultExtractorConfig returns a sensible default configuration
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ConfidenceThreshold:    0.5,
		CharacterMinMentions:   3,
		LocationMinMentions:    2,
		WellKnownMinMentions:   1,
		ThemePresenceThreshold: 0.3,
		ThemeRelevanceFloor:    0.3,
		NameJaccardThreshold:   0.8,
	}
}

// DiscoveryConfig controls relationship discovery between entities
type DiscoveryConfig struct {
	MinCoOccurrence    int `json:"min_co_occurrence"`    // Pairs below this count produce no relationship
	MaxContextSnippets int `json:"max_context_snippets"` // Snippets retained per relationship
	SnippetMaxLength   int `json:"snippet_max_length"`   // Characters per stored snippet
}

// DefaultDiscoveryConfig returns a sensible default configuration
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		MinCoOccurrence:    2,
		MaxContextSnippets: 5,
		SnippetMaxLength:   200,
	}
}

// SearchConfig controls hybrid search ranking
type SearchConfig struct {
	SemanticWeight  float64 `json:"semantic_weight"` // Weight for embedding similarity
	LexicalWeight   float64 `json:"lexical_weight"`  // Weight for keyword score
	EntityWeight    float64 `json:"entity_weight"`   // Weight for entity bonus
	MaxHighlights   int     `json:"max_highlights"`
	HighlightWindow int     `json:"highlight_window"` // Characters around a match in a highlight
	TopK            int     `json:"top_k"`
	CandidateLimit  int     `json:"candidate_limit"` // Candidates fetched before re-ranking
	MinSimilarity   float64 `json:"min_similarity"`
}

// DefaultSearchConfig returns a sensible default configuration
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		SemanticWeight:  0.7,
		LexicalWeight:   0.2,
		EntityWeight:    0.1,
		MaxHighlights:   3,
		HighlightWindow: 60,
		TopK:            10,
		CandidateLimit:  50,
		MinSimilarity:   0.0,
	}
}

// SearchFilters narrows a search to a project and optionally to specific files
type SearchFilters struct {
	ProjectID     uuid.UUID   `json:"project_id"`
	FileIDs       []uuid.UUID `json:"file_ids,omitempty"`
	TopK          int         `json:"top_k,omitempty"`          // Overrides SearchConfig.TopK when > 0
	MinSimilarity float64     `json:"min_similarity,omitempty"` // Overrides SearchConfig.MinSimilarity when > 0
}
