package discovery

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/lexicon"
	"github.com/siherrmann/narrator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements the entity, chunk and relationship stores in memory.
// UpsertRelationship mirrors the merge behaviour of the database function.
type fakeStore struct {
	entities      map[uuid.UUID]*model.Entity
	chunks        []*model.TextChunk
	relationships []*model.Relationship

	entityErr error
	chunkErr  error
	upsertErr error
	selectErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entities: map[uuid.UUID]*model.Entity{}}
}

func (s *fakeStore) addEntity(projectID uuid.UUID, name string, entityType model.EntityType, aliases ...string) *model.Entity {
	entity := &model.Entity{
		ID:        uuid.New(),
		ProjectID: projectID,
		Type:      entityType,
		Name:      name,
		Aliases:   aliases,
	}
	s.entities[entity.ID] = entity
	return entity
}

func (s *fakeStore) addChunk(projectID uuid.UUID, content string, mentioned ...uuid.UUID) *model.TextChunk {
	chunk := &model.TextChunk{
		ID:                uuid.New(),
		ProjectID:         projectID,
		Content:           content,
		ChunkIndex:        len(s.chunks),
		EntitiesMentioned: mentioned,
	}
	s.chunks = append(s.chunks, chunk)
	return chunk
}

func (s *fakeStore) addRelationship(relationship *model.Relationship) *model.Relationship {
	if relationship.ID == uuid.Nil {
		relationship.ID = uuid.New()
	}
	s.relationships = append(s.relationships, relationship)
	return relationship
}

func (s *fakeStore) SelectEntity(id uuid.UUID) (*model.Entity, error) {
	if s.entityErr != nil {
		return nil, s.entityErr
	}
	entity, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %v not found", id)
	}
	return entity, nil
}

func (s *fakeStore) SelectEntitiesByProject(projectID uuid.UUID, entityType *model.EntityType) ([]*model.Entity, error) {
	if s.entityErr != nil {
		return nil, s.entityErr
	}
	var entities []*model.Entity
	for _, entity := range s.entities {
		if entity.ProjectID != projectID {
			continue
		}
		if entityType != nil && entity.Type != *entityType {
			continue
		}
		entities = append(entities, entity)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})
	return entities, nil
}

func (s *fakeStore) SelectChunksByProject(projectID uuid.UUID) ([]*model.TextChunk, error) {
	if s.chunkErr != nil {
		return nil, s.chunkErr
	}
	var chunks []*model.TextChunk
	for _, chunk := range s.chunks {
		if chunk.ProjectID == projectID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

func (s *fakeStore) UpsertRelationship(relationship *model.Relationship, maxSnippets int) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if maxSnippets < 1 {
		maxSnippets = 1
	}
	for _, existing := range s.relationships {
		if existing.ProjectID != relationship.ProjectID ||
			existing.SourceEntityID != relationship.SourceEntityID ||
			existing.TargetEntityID != relationship.TargetEntityID {
			continue
		}
		existing.Type = relationship.Type
		existing.Strength = relationship.Strength
		if relationship.CoOccurrenceCount > existing.CoOccurrenceCount {
			existing.CoOccurrenceCount = relationship.CoOccurrenceCount
		}
		merged := make([]string, 0, len(existing.ContextSnippets)+len(relationship.ContextSnippets))
		seen := map[string]bool{}
		for _, snippet := range append(append([]string{}, existing.ContextSnippets...), relationship.ContextSnippets...) {
			if seen[snippet] || len(merged) >= maxSnippets {
				continue
			}
			seen[snippet] = true
			merged = append(merged, snippet)
		}
		existing.ContextSnippets = merged
		*relationship = *existing
		return nil
	}

	relationship.ID = uuid.New()
	stored := *relationship
	s.relationships = append(s.relationships, &stored)
	return nil
}

func (s *fakeStore) DeleteRelationshipsByProject(projectID uuid.UUID) error {
	kept := s.relationships[:0]
	for _, relationship := range s.relationships {
		if relationship.ProjectID != projectID {
			kept = append(kept, relationship)
		}
	}
	s.relationships = kept
	return nil
}

func (s *fakeStore) SelectRelationship(id uuid.UUID) (*model.Relationship, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	for _, relationship := range s.relationships {
		if relationship.ID == id {
			return relationship, nil
		}
	}
	return nil, fmt.Errorf("relationship %v not found", id)
}

func (s *fakeStore) SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	var relationships []*model.Relationship
	for _, relationship := range s.relationships {
		if relationship.Involves(entityID) && relationship.Strength >= minStrength {
			relationships = append(relationships, relationship)
		}
	}
	sort.Slice(relationships, func(i, j int) bool {
		return relationships[i].Strength > relationships[j].Strength
	})
	return relationships, nil
}

func newTestEngine(t *testing.T, store *fakeStore) *Engine {
	t.Helper()
	lex, err := lexicon.New()
	require.NoError(t, err)
	engine, err := NewEngine(store, store, store, lex, model.DefaultDiscoveryConfig(), nil)
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	store := newFakeStore()
	lex, err := lexicon.New()
	require.NoError(t, err)

	t.Run("Create engine successfully", func(t *testing.T) {
		engine, err := NewEngine(store, store, store, lex, model.DefaultDiscoveryConfig(), nil)
		assert.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("Invalid create engine with nil store", func(t *testing.T) {
		engine, err := NewEngine(nil, store, store, lex, model.DefaultDiscoveryConfig(), nil)
		assert.Error(t, err)
		assert.Nil(t, engine)
	})

	t.Run("Invalid create engine with nil lexicon", func(t *testing.T) {
		engine, err := NewEngine(store, store, store, nil, model.DefaultDiscoveryConfig(), nil)
		assert.Error(t, err)
		assert.Nil(t, engine)
	})
}

func TestDiscoverProject(t *testing.T) {
	t.Run("Discover character interaction across chunks", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		kael := store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		sera := store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `"Stay close to the wall," Kael told Sera as they slipped past the gate.`)
		store.addChunk(projectID, `Sera asked Kael about the letters hidden beneath the floorboards.`)
		store.addChunk(projectID, `At dawn Kael met Sera by the river and they argued about the road south.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, relationships, 1)

		relationship := relationships[0]
		assert.True(t, relationship.Involves(kael.ID))
		assert.True(t, relationship.Involves(sera.ID))
		assert.Equal(t, model.RelationshipInteractsWith, relationship.Type)
		assert.Equal(t, 3, relationship.CoOccurrenceCount)
		assert.InDelta(t, 0.324, relationship.Strength, 0.0001, "3 co-occurrences with dialogue context should score 0.3 * 0.9 * 1.2")
		assert.Len(t, relationship.ContextSnippets, 3)
		assert.Contains(t, relationship.ContextSnippets[0], "Kael told Sera")
	})

	t.Run("Skip pairs below the co-occurrence minimum", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera about the road.`)
		store.addChunk(projectID, `Kael rode on alone through the night.`)
		store.addChunk(projectID, `Sera stayed behind to watch the bridge.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		assert.Empty(t, relationships)
		assert.Empty(t, store.relationships)
	})

	t.Run("Classify character in location", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Eldoria", model.EntityTypeLocation)
		store.addChunk(projectID, `Kael rode through the eastern gates of Eldoria just before the lamps were lit.`)
		store.addChunk(projectID, `By morning Kael had walked half of Eldoria, from the lower markets to the temple stairs.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, relationships, 1)
		assert.Equal(t, model.RelationshipLocatedIn, relationships[0].Type)
		assert.Equal(t, 2, relationships[0].CoOccurrenceCount)
		assert.InDelta(t, 0.11, relationships[0].Strength, 0.0001, "2 co-occurrences with plain context should score 0.2 * 0.5 * 1.1")
	})

	t.Run("Relate theme to character", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Betrayal", model.EntityTypeTheme)
		store.addChunk(projectID, `Kael felt the betrayal settle over the camp long before anyone spoke of it aloud.`)
		store.addChunk(projectID, `The betrayal followed Kael through every council meeting that winter.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, relationships, 1)
		assert.Equal(t, model.RelationshipRelatedTo, relationships[0].Type)
	})

	t.Run("Respect stored mention ids as candidates", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		kael := store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		sera := store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		veyn := store.addEntity(projectID, "Veyn", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera that Veyn had already crossed the ridge.`, kael.ID, sera.ID)
		store.addChunk(projectID, `Veyn was gone, so Kael asked Sera to take the watch.`, kael.ID, sera.ID)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, relationships, 1, "pairs should only form between listed mention ids")
		assert.False(t, relationships[0].Involves(veyn.ID))
	})

	t.Run("Rerun without force merges instead of duplicating", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `"Stay close to the wall," Kael told Sera as they slipped past the gate.`)
		store.addChunk(projectID, `Sera asked Kael about the letters hidden beneath the floorboards.`)
		store.addChunk(projectID, `At dawn Kael met Sera by the river and they argued about the road south.`)

		first, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		require.NoError(t, err)
		require.Len(t, second, 1)

		assert.Equal(t, first[0].ID, second[0].ID, "rerun should update the existing row")
		assert.Equal(t, 3, second[0].CoOccurrenceCount, "count should not grow on identical rerun")
		assert.Len(t, second[0].ContextSnippets, 3, "snippets should not duplicate on rerun")
		assert.Len(t, store.relationships, 1)
	})

	t.Run("Force rebuild drops stale relationships", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		kael := store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		sera := store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		stale := store.addRelationship(&model.Relationship{
			ProjectID:         projectID,
			SourceEntityID:    uuid.New(),
			TargetEntityID:    uuid.New(),
			Type:              model.RelationshipAppearsWith,
			Strength:          0.5,
			CoOccurrenceCount: 7,
		})
		store.addChunk(projectID, `Kael told Sera about the road.`)
		store.addChunk(projectID, `Sera met Kael at the bridge after dark.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, true, nil)
		require.NoError(t, err)
		require.Len(t, relationships, 1)
		assert.True(t, relationships[0].Involves(kael.ID))
		assert.True(t, relationships[0].Involves(sera.ID))

		require.Len(t, store.relationships, 1)
		assert.NotEqual(t, stale.ID, store.relationships[0].ID, "stale row should be deleted by force")
	})

	t.Run("Report progress per chunk", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera about the road.`)
		store.addChunk(projectID, `Sera met Kael at the bridge.`)
		store.addChunk(projectID, `The rain kept everyone inside.`)

		var calls [][2]int
		_, err := engine.DiscoverProject(context.Background(), projectID, false, func(done int, total int) {
			calls = append(calls, [2]int{done, total})
		})
		require.NoError(t, err)
		assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
	})

	t.Run("Skip projects with fewer than two entities", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael rode on alone.`)

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		assert.NoError(t, err)
		assert.Empty(t, relationships)
	})

	t.Run("Invalid discover with nil project id", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)

		relationships, err := engine.DiscoverProject(context.Background(), uuid.Nil, false, nil)
		assert.Error(t, err)
		assert.Nil(t, relationships)
	})

	t.Run("Cancelled context stops discovery", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera about the road.`)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		relationships, err := engine.DiscoverProject(ctx, projectID, false, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, relationships)
	})

	t.Run("Propagate entity store failures", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		store.entityErr = fmt.Errorf("connection lost")

		relationships, err := engine.DiscoverProject(context.Background(), uuid.New(), false, nil)
		assert.ErrorContains(t, err, "connection lost")
		assert.Nil(t, relationships)
	})

	t.Run("Propagate upsert failures with entity names", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera about the road.`)
		store.addChunk(projectID, `Sera met Kael at the bridge.`)
		store.upsertErr = fmt.Errorf("insert failed")

		relationships, err := engine.DiscoverProject(context.Background(), projectID, false, nil)
		assert.ErrorContains(t, err, "insert failed")
		assert.ErrorContains(t, err, "Kael")
		assert.Nil(t, relationships)
	})
}

func TestDiscoverEntities(t *testing.T) {
	t.Run("Limit discovery to pairs touching the given entities", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		mira := store.addEntity(projectID, "Mira", model.EntityTypeCharacter)
		store.addChunk(projectID, `Kael told Sera that Mira was waiting at the crossing.`)
		store.addChunk(projectID, `Mira met Kael and Sera beneath the old clock tower.`)

		relationships, err := engine.DiscoverEntities(context.Background(), projectID, []uuid.UUID{mira.ID})
		require.NoError(t, err)
		require.Len(t, relationships, 2)
		for _, relationship := range relationships {
			assert.True(t, relationship.Involves(mira.ID), "every pair should touch the requested entity")
		}
		assert.Len(t, store.relationships, 2)
	})

	t.Run("Invalid discover with no entity ids", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)

		relationships, err := engine.DiscoverEntities(context.Background(), uuid.New(), nil)
		assert.Error(t, err)
		assert.Nil(t, relationships)
	})

	t.Run("Invalid discover with nil entity id", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)

		relationships, err := engine.DiscoverEntities(context.Background(), uuid.New(), []uuid.UUID{uuid.Nil})
		assert.Error(t, err)
		assert.Nil(t, relationships)
	})
}

func TestCalculateStrength(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)
	projectID := uuid.New()
	kael := store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
	sera := store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
	sourceID, targetID := model.CanonicalPair(kael.ID, sera.ID)
	relationship := store.addRelationship(&model.Relationship{
		ProjectID:         projectID,
		SourceEntityID:    sourceID,
		TargetEntityID:    targetID,
		Type:              model.RelationshipInteractsWith,
		CoOccurrenceCount: 3,
		ContextSnippets: []string{
			`"Stay close to the wall," Kael told Sera as they slipped past the gate.`,
			`Sera asked Kael about the letters hidden beneath the floorboards.`,
			`At dawn Kael met Sera by the river and they argued about the road south.`,
		},
	})

	t.Run("Recompute strength from stored evidence", func(t *testing.T) {
		strength := engine.CalculateStrength(relationship.ID, nil)
		assert.InDelta(t, 0.324, strength, 0.0001)
	})

	t.Run("Apply additional factors", func(t *testing.T) {
		strength := engine.CalculateStrength(relationship.ID, map[string]float64{"recency": 0.5})
		assert.InDelta(t, 0.162, strength, 0.0001)
	})

	t.Run("Clamp boosted strength to one", func(t *testing.T) {
		strength := engine.CalculateStrength(relationship.ID, map[string]float64{"boost": 100.0})
		assert.Equal(t, 1.0, strength)
	})

	t.Run("Return zero for unknown relationship", func(t *testing.T) {
		strength := engine.CalculateStrength(uuid.New(), nil)
		assert.Equal(t, 0.0, strength)
	})
}

func TestEngineNetwork(t *testing.T) {
	t.Run("Build network from persisted relationships", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(t, store)
		projectID := uuid.New()
		kael := store.addEntity(projectID, "Kael", model.EntityTypeCharacter)
		sera := store.addEntity(projectID, "Sera", model.EntityTypeCharacter)
		eldoria := store.addEntity(projectID, "Eldoria", model.EntityTypeLocation)

		kaelSeraSource, kaelSeraTarget := model.CanonicalPair(kael.ID, sera.ID)
		store.addRelationship(&model.Relationship{
			ProjectID:      projectID,
			SourceEntityID: kaelSeraSource,
			TargetEntityID: kaelSeraTarget,
			Type:           model.RelationshipInteractsWith,
			Strength:       0.8,
		})
		kaelEldoriaSource, kaelEldoriaTarget := model.CanonicalPair(kael.ID, eldoria.ID)
		store.addRelationship(&model.Relationship{
			ProjectID:      projectID,
			SourceEntityID: kaelEldoriaSource,
			TargetEntityID: kaelEldoriaTarget,
			Type:           model.RelationshipLocatedIn,
			Strength:       0.2,
		})

		network, err := engine.Network(context.Background(), kael.ID, 1, 0.5)
		require.NoError(t, err)
		require.NotNil(t, network)
		assert.Len(t, network.Nodes, 2, "weak edge to Eldoria should be pruned")
		assert.Len(t, network.Edges, 1)
		assert.Equal(t, model.RelationshipInteractsWith, network.Edges[0].Type)
	})
}
