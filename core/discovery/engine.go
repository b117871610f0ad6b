package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/core/graph"
	"github.com/siherrmann/narrator/core/pipeline"
	"github.com/siherrmann/narrator/lexicon"
	"github.com/siherrmann/narrator/model"
)

// snippetPadding is the context kept around a pair of mentions in a snippet
const snippetPadding = 40

// EntityStore provides the persisted entities discovery reads
type EntityStore interface {
	SelectEntity(id uuid.UUID) (*model.Entity, error)
	SelectEntitiesByProject(projectID uuid.UUID, entityType *model.EntityType) ([]*model.Entity, error)
}

// ChunkStore provides the indexed chunks discovery scans
type ChunkStore interface {
	SelectChunksByProject(projectID uuid.UUID) ([]*model.TextChunk, error)
}

// RelationshipStore persists discovered relationships
type RelationshipStore interface {
	UpsertRelationship(relationship *model.Relationship, maxSnippets int) error
	DeleteRelationshipsByProject(projectID uuid.UUID) error
	SelectRelationship(id uuid.UUID) (*model.Relationship, error)
	SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error)
}

// Engine discovers relationships between the entities of a project from
// their co-occurrence in indexed chunks.
type Engine struct {
	entities      EntityStore
	chunks        ChunkStore
	relationships RelationshipStore
	lex           *lexicon.Lexicon
	config        model.DiscoveryConfig
	logger        *slog.Logger
}

// NewEngine creates a new discovery engine. A nil logger falls back to the
// default slog logger.
func NewEngine(entities EntityStore, chunks ChunkStore, relationships RelationshipStore, lex *lexicon.Lexicon, config model.DiscoveryConfig, logger *slog.Logger) (*Engine, error) {
	if entities == nil || chunks == nil || relationships == nil {
		return nil, fmt.Errorf("entity, chunk and relationship stores must not be nil")
	}
	if lex == nil {
		return nil, fmt.Errorf("lexicon must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		entities:      entities,
		chunks:        chunks,
		relationships: relationships,
		lex:           lex,
		config:        config,
		logger:        logger,
	}, nil
}

// pairEvidence accumulates co-occurrence evidence for one canonical pair
type pairEvidence struct {
	source   *model.Entity
	target   *model.Entity
	count    int
	snippets []string
}

// presence records the first mention of an entity inside one chunk
type presence struct {
	entity *model.Entity
	start  int
	end    int
}

// DiscoverProject finds and persists relationships between all entities of a
// project. Without force, counts and snippets merge additively into existing
// rows. With force, the project's relationships are deleted first and rebuilt;
// readers may briefly observe the gap. The progress callback, if set, is
// invoked after every processed chunk.
func (e *Engine) DiscoverProject(ctx context.Context, projectID uuid.UUID, force bool, progress func(done int, total int)) ([]*model.Relationship, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("project id must not be nil")
	}

	if force {
		if err := e.relationships.DeleteRelationshipsByProject(projectID); err != nil {
			return nil, fmt.Errorf("failed to delete existing relationships: %w", err)
		}
		e.logger.Info("Deleted existing relationships for rediscovery", slog.String("project_id", projectID.String()))
	}

	return e.discover(ctx, projectID, nil, progress)
}

// DiscoverEntities finds and persists relationships involving at least one of
// the given entities. The other side of a pair may be any entity of the
// project.
func (e *Engine) DiscoverEntities(ctx context.Context, projectID uuid.UUID, entityIDs []uuid.UUID) ([]*model.Relationship, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("project id must not be nil")
	}
	if len(entityIDs) == 0 {
		return nil, fmt.Errorf("at least one entity id is required")
	}

	focus := make(map[uuid.UUID]bool, len(entityIDs))
	for _, id := range entityIDs {
		if id == uuid.Nil {
			return nil, fmt.Errorf("entity id must not be nil")
		}
		focus[id] = true
	}

	return e.discover(ctx, projectID, focus, nil)
}

// discover scans all project chunks, accumulates pair evidence and persists
// every pair reaching the co-occurrence minimum. A non-nil focus restricts
// persisted pairs to those touching a focus entity.
func (e *Engine) discover(ctx context.Context, projectID uuid.UUID, focus map[uuid.UUID]bool, progress func(done int, total int)) ([]*model.Relationship, error) {
	entities, err := e.entities.SelectEntitiesByProject(projectID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load project entities: %w", err)
	}
	if len(entities) < 2 {
		return nil, nil
	}

	chunks, err := e.chunks.SelectChunksByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project chunks: %w", err)
	}

	pairs := make(map[[2]uuid.UUID]*pairEvidence)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.collectPairs(chunk, entities, focus, pairs)

		if progress != nil {
			progress(i+1, len(chunks))
		}
	}

	// Persist in canonical pair order so repeated runs behave identically
	keys := make([][2]uuid.UUID, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i][0][:], keys[j][0][:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(keys[i][1][:], keys[j][1][:]) < 0
	})

	var relationships []*model.Relationship
	for _, key := range keys {
		evidence := pairs[key]
		if evidence.count < e.config.MinCoOccurrence {
			continue
		}

		relationshipType := e.classifyRelationship(evidence.source.Type, evidence.target.Type, evidence.snippets)
		relationship := &model.Relationship{
			ProjectID:         projectID,
			SourceEntityID:    evidence.source.ID,
			TargetEntityID:    evidence.target.ID,
			Type:              relationshipType,
			Strength:          e.strength(evidence.count, relationshipType, evidence.snippets),
			CoOccurrenceCount: evidence.count,
			ContextSnippets:   evidence.snippets,
		}

		if err := e.relationships.UpsertRelationship(relationship, e.config.MaxContextSnippets); err != nil {
			return nil, fmt.Errorf("failed to persist relationship %s - %s: %w", evidence.source.Name, evidence.target.Name, err)
		}

		relationships = append(relationships, relationship)
	}

	e.logger.Info("Discovered relationships",
		slog.String("project_id", projectID.String()),
		slog.Int("num_chunks", len(chunks)),
		slog.Int("num_relationships", len(relationships)))

	return relationships, nil
}

// collectPairs counts every unordered entity pair present in the chunk and
// collects a context snippet per co-occurrence.
func (e *Engine) collectPairs(chunk *model.TextChunk, entities []*model.Entity, focus map[uuid.UUID]bool, pairs map[[2]uuid.UUID]*pairEvidence) {
	present := entitiesInChunk(chunk, entities)

	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			a, b := present[i], present[j]
			if focus != nil && !focus[a.entity.ID] && !focus[b.entity.ID] {
				continue
			}

			sourceID, _ := model.CanonicalPair(a.entity.ID, b.entity.ID)
			if sourceID != a.entity.ID {
				a, b = b, a
			}

			key := [2]uuid.UUID{a.entity.ID, b.entity.ID}
			evidence, ok := pairs[key]
			if !ok {
				evidence = &pairEvidence{source: a.entity, target: b.entity}
				pairs[key] = evidence
			}
			evidence.count++

			if len(evidence.snippets) >= e.config.MaxContextSnippets {
				continue
			}
			snippet := pairSnippet(chunk.Content, a, b, e.config.SnippetMaxLength)
			if snippet == "" || containsSnippet(evidence.snippets, snippet) {
				continue
			}
			evidence.snippets = append(evidence.snippets, snippet)
		}
	}
}

// entitiesInChunk resolves which entities appear in the chunk. Entities listed
// in the chunk's stored mention ids are preferred as candidates; without that
// list every project entity is re-matched by word boundary.
func entitiesInChunk(chunk *model.TextChunk, entities []*model.Entity) []presence {
	candidates := entities
	if len(chunk.EntitiesMentioned) > 0 {
		listed := make(map[uuid.UUID]bool, len(chunk.EntitiesMentioned))
		for _, id := range chunk.EntitiesMentioned {
			listed[id] = true
		}

		filtered := make([]*model.Entity, 0, len(chunk.EntitiesMentioned))
		for _, entity := range entities {
			if listed[entity.ID] {
				filtered = append(filtered, entity)
			}
		}
		candidates = filtered
	}

	var present []presence
	for _, entity := range candidates {
		start, end, ok := firstMention(chunk.Content, entity)
		if !ok {
			continue
		}
		present = append(present, presence{entity: entity, start: start, end: end})
	}
	return present
}

// firstMention returns the earliest whole-word match of any of the entity's
// names in the content.
func firstMention(content string, entity *model.Entity) (int, int, bool) {
	start, end, found := 0, 0, false
	for _, name := range entity.AllNames() {
		matches := pipeline.FindWordMatches(content, name)
		if len(matches) == 0 {
			continue
		}
		if !found || matches[0] < start {
			start = matches[0]
			end = matches[0] + len(name)
			found = true
		}
	}
	return start, end, found
}

// pairSnippet extracts a bounded context window spanning the first mentions
// of both entities. Windows cut short at either side or at the length bound
// are marked with an ellipsis.
func pairSnippet(content string, a presence, b presence, maxLength int) string {
	if maxLength < 1 {
		return ""
	}
	if b.start < a.start {
		a, b = b, a
	}

	start := a.start - snippetPadding
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}

	end := b.end + snippetPadding
	if end > len(content) {
		end = len(content)
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	window := content[start:end]
	truncated := false
	if len(window) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(window[cut]) {
			cut--
		}
		window = window[:cut]
		truncated = true
	}

	snippet := strings.TrimSpace(window)
	if snippet == "" {
		return ""
	}
	if start > 0 {
		snippet = "..." + snippet
	}
	if truncated || end < len(content) {
		snippet = snippet + "..."
	}
	return snippet
}

func containsSnippet(snippets []string, snippet string) bool {
	for _, existing := range snippets {
		if existing == snippet {
			return true
		}
	}
	return false
}

// CalculateStrength recomputes the strength of a stored relationship.
// Additional factors multiply into the score before clamping. Returns 0.0
// when the relationship cannot be loaded.
func (e *Engine) CalculateStrength(relationshipID uuid.UUID, factors map[string]float64) float64 {
	relationship, err := e.relationships.SelectRelationship(relationshipID)
	if err != nil {
		e.logger.Warn("Failed to load relationship for strength calculation",
			slog.String("relationship_id", relationshipID.String()),
			slog.Any("error", err))
		return 0.0
	}

	strength := e.strength(relationship.CoOccurrenceCount, relationship.Type, relationship.ContextSnippets)
	for _, factor := range factors {
		strength *= factor
	}
	return clamp01(strength)
}

// Network builds the relationship neighborhood of an entity up to maxDepth
// hops, with edges below minStrength pruned.
func (e *Engine) Network(ctx context.Context, entityID uuid.UUID, maxDepth int, minStrength float64) (*model.NetworkGraph, error) {
	return graph.Network(ctx, graphStore{entities: e.entities, relationships: e.relationships}, entityID, maxDepth, minStrength)
}

// graphStore adapts the engine's stores to the traversal interface
type graphStore struct {
	entities      EntityStore
	relationships RelationshipStore
}

func (s graphStore) SelectEntity(id uuid.UUID) (*model.Entity, error) {
	return s.entities.SelectEntity(id)
}

func (s graphStore) SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error) {
	return s.relationships.SelectRelationshipsByEntity(entityID, minStrength)
}
