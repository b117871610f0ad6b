package model

// SearchResult is one ranked chunk returned by a search, with the combined
// score and its individual components.
type SearchResult struct {
	Chunk           *TextChunk `json:"chunk"`
	Score           float64    `json:"score"`
	SimilarityScore float64    `json:"similarity_score"`
	LexicalScore    float64    `json:"lexical_score"`
	EntityBonus     float64    `json:"entity_bonus"`
	Highlights      []string   `json:"highlights,omitempty"`
	MatchedEntities []*Entity  `json:"matched_entities,omitempty"`
}
