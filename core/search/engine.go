package search

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/core/pipeline"
	"github.com/siherrmann/narrator/lexicon"
	"github.com/siherrmann/narrator/model"
)

const (
	entityBonusPerMatch      = 0.25
	historyLimit             = 100
	defaultAutocompleteLimit = 10
)

// ChunkStore provides the candidate chunks search ranks
type ChunkStore interface {
	SelectChunksBySimilarity(embedding []float32, projectID uuid.UUID, fileIDs []uuid.UUID, limit int, threshold float64) ([]*model.TextChunk, error)
	SelectChunksByProject(projectID uuid.UUID) ([]*model.TextChunk, error)
}

// EntityStore provides entity lookups for query matching and autocomplete
type EntityStore interface {
	SelectEntitiesByProject(projectID uuid.UUID, entityType *model.EntityType) ([]*model.Entity, error)
	SelectEntitiesByPrefix(projectID uuid.UUID, prefix string, limit int) ([]*model.Entity, error)
}

// Engine ranks chunks against a query by combining embedding similarity,
// BM25 lexical score and an entity-match bonus. Results are correct without
// any caching layer; caching belongs outside the engine.
type Engine struct {
	chunks   ChunkStore
	entities EntityStore
	embedder pipeline.EmbedFunc
	lex      *lexicon.Lexicon
	config   model.SearchConfig
	history  *queryHistory
	logger   *slog.Logger
}

// NewEngine creates a new search engine. A nil embedder limits searches to
// lexical ranking; a nil logger falls back to the default slog logger.
func NewEngine(chunks ChunkStore, entities EntityStore, embedder pipeline.EmbedFunc, lex *lexicon.Lexicon, config model.SearchConfig, logger *slog.Logger) (*Engine, error) {
	if chunks == nil || entities == nil {
		return nil, fmt.Errorf("chunk and entity stores must not be nil")
	}
	if lex == nil {
		return nil, fmt.Errorf("lexicon must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		chunks:   chunks,
		entities: entities,
		embedder: embedder,
		lex:      lex,
		config:   config,
		history:  newQueryHistory(historyLimit),
		logger:   logger,
	}, nil
}

// SetEmbedder swaps the query embedder. Passing nil switches the engine to
// lexical-only ranking.
func (e *Engine) SetEmbedder(embedder pipeline.EmbedFunc) {
	e.embedder = embedder
}

// Search ranks the project's chunks against the query. When the query cannot
// be embedded the search degrades to lexical ranking instead of failing.
func (e *Engine) Search(ctx context.Context, query string, filters model.SearchFilters) ([]*model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if filters.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("project id must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topK := e.config.TopK
	if filters.TopK > 0 {
		topK = filters.TopK
	}
	minSimilarity := e.config.MinSimilarity
	if filters.MinSimilarity > 0 {
		minSimilarity = filters.MinSimilarity
	}

	var embedding []float32
	if e.embedder != nil {
		var err error
		embedding, err = e.embedder(query)
		if err != nil {
			e.logger.Warn("Query embedding failed, ranking lexical-only",
				slog.String("query", query),
				slog.Any("error", err))
			embedding = nil
		}
	}

	chunks, err := e.candidates(embedding, filters, minSimilarity)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		e.history.Record(query)
		return nil, nil
	}

	queryEntities := e.queryEntities(query, filters.ProjectID)
	semanticWeight, lexicalWeight, entityWeight := normalizeWeights(e.config, embedding != nil)

	contents := make([]string, len(chunks))
	for i, chunk := range chunks {
		contents[i] = chunk.Content
	}
	lexical := lexicalScores(contents, query)

	results := make([]*model.SearchResult, 0, len(chunks))
	for i, chunk := range chunks {
		semantic := 0.0
		if embedding != nil {
			semantic = clamp01(chunk.Similarity)
		}
		bonus, matched := entityBonus(chunk, queryEntities)

		results = append(results, &model.SearchResult{
			Chunk:           chunk,
			Score:           semanticWeight*semantic + lexicalWeight*lexical[i] + entityWeight*bonus,
			SimilarityScore: semantic,
			LexicalScore:    lexical[i],
			EntityBonus:     bonus,
			MatchedEntities: matched,
		})
	}

	// Ties break on chunk order, then id, so identical searches return
	// identical rankings
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.ChunkIndex != results[j].Chunk.ChunkIndex {
			return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
		}
		return bytes.Compare(results[i].Chunk.ID[:], results[j].Chunk.ID[:]) < 0
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}

	for _, result := range results {
		result.Highlights = e.highlights(result.Chunk.Content, query)
	}

	e.history.Record(query)

	return results, nil
}

// candidates fetches the chunks to rank. With an embedding the similarity
// index pre-filters and pre-orders; without one every project chunk is a
// candidate.
func (e *Engine) candidates(embedding []float32, filters model.SearchFilters, minSimilarity float64) ([]*model.TextChunk, error) {
	if embedding != nil {
		chunks, err := e.chunks.SelectChunksBySimilarity(embedding, filters.ProjectID, filters.FileIDs, e.config.CandidateLimit, minSimilarity)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate chunks: %w", err)
		}
		return chunks, nil
	}

	chunks, err := e.chunks.SelectChunksByProject(filters.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project chunks: %w", err)
	}
	if len(filters.FileIDs) == 0 {
		return chunks, nil
	}

	allowed := make(map[uuid.UUID]bool, len(filters.FileIDs))
	for _, fileID := range filters.FileIDs {
		allowed[fileID] = true
	}
	filtered := make([]*model.TextChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if allowed[chunk.FileID] {
			filtered = append(filtered, chunk)
		}
	}
	return filtered, nil
}

// queryEntities resolves which project entities the query names. Failures
// cost the entity bonus, not the search.
func (e *Engine) queryEntities(query string, projectID uuid.UUID) []*model.Entity {
	entities, err := e.entities.SelectEntitiesByProject(projectID, nil)
	if err != nil {
		e.logger.Warn("Failed to load entities for query matching", slog.Any("error", err))
		return nil
	}

	var matched []*model.Entity
	for _, entity := range entities {
		for _, name := range entity.AllNames() {
			if len(pipeline.FindWordMatches(query, name)) > 0 {
				matched = append(matched, entity)
				break
			}
		}
	}
	return matched
}

// entityBonus scores how many of the query's entities the chunk mentions,
// capped at 1.0.
func entityBonus(chunk *model.TextChunk, queryEntities []*model.Entity) (float64, []*model.Entity) {
	if len(queryEntities) == 0 {
		return 0.0, nil
	}

	bonus := 0.0
	var matched []*model.Entity
	for _, entity := range queryEntities {
		if chunk.MentionsEntity(entity.ID) {
			bonus += entityBonusPerMatch
			matched = append(matched, entity)
		}
	}
	if bonus > 1.0 {
		bonus = 1.0
	}
	return bonus, matched
}

// normalizeWeights scales the configured weights to sum to one. Without an
// embedding the semantic weight drops out and the remaining weights share the
// full range.
func normalizeWeights(config model.SearchConfig, semantic bool) (float64, float64, float64) {
	semanticWeight := config.SemanticWeight
	if !semantic {
		semanticWeight = 0.0
	}

	total := semanticWeight + config.LexicalWeight + config.EntityWeight
	if total <= 0.0 {
		return 0.0, 1.0, 0.0
	}
	return semanticWeight / total, config.LexicalWeight / total, config.EntityWeight / total
}

// Autocomplete merges entity-name prefix matches with recorded query prefix
// matches, entity names first, de-duplicated and capped to limit.
func (e *Engine) Autocomplete(projectID uuid.UUID, partial string, limit int) ([]string, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return nil, fmt.Errorf("partial query must not be empty")
	}
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("project id must not be nil")
	}
	if limit <= 0 {
		limit = defaultAutocompleteLimit
	}

	entities, err := e.entities.SelectEntitiesByPrefix(projectID, partial, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity suggestions: %w", err)
	}

	suggestions := make([]string, 0, limit)
	seen := make(map[string]bool, limit)
	add := func(suggestion string) {
		key := strings.ToLower(suggestion)
		if seen[key] || len(suggestions) >= limit {
			return
		}
		seen[key] = true
		suggestions = append(suggestions, suggestion)
	}

	for _, entity := range entities {
		add(entity.Name)
	}
	for _, query := range e.history.Prefix(partial, limit) {
		add(query)
	}

	return suggestions, nil
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
