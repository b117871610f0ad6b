package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// RelationshipType classifies how two entities relate in the narrative
type RelationshipType string

const (
	RelationshipInteractsWith RelationshipType = "INTERACTS_WITH"
	RelationshipLocatedIn     RelationshipType = "LOCATED_IN"
	RelationshipRelatedTo     RelationshipType = "RELATED_TO"
	RelationshipAppearsWith   RelationshipType = "APPEARS_WITH"
	RelationshipMentions      RelationshipType = "MENTIONS"
)

// Relationship links two entities of a project. Exactly one row exists per
// unordered entity pair; source and target are stored in canonical order.
type Relationship struct {
	ID                uuid.UUID        `json:"id"`
	ProjectID         uuid.UUID        `json:"project_id"`
	SourceEntityID    uuid.UUID        `json:"source_entity_id"`
	TargetEntityID    uuid.UUID        `json:"target_entity_id"`
	Type              RelationshipType `json:"relationship_type"`
	Strength          float64          `json:"strength"`
	CoOccurrenceCount int              `json:"co_occurrence_count"`
	ContextSnippets   []string         `json:"context_snippets,omitempty"`
	Metadata          Metadata         `json:"metadata,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CanonicalPair orders two entity IDs deterministically, smaller UUID first.
// Relationship rows always store the pair in this order so an unordered pair
// maps to exactly one row.
func CanonicalPair(a uuid.UUID, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// Involves reports whether the relationship touches the given entity
func (r *Relationship) Involves(entityID uuid.UUID) bool {
	return r.SourceEntityID == entityID || r.TargetEntityID == entityID
}

// Other returns the entity on the opposite side of the relationship from the
// given entity. Returns uuid.Nil if the entity is not part of the relationship.
func (r *Relationship) Other(entityID uuid.UUID) uuid.UUID {
	switch entityID {
	case r.SourceEntityID:
		return r.TargetEntityID
	case r.TargetEntityID:
		return r.SourceEntityID
	}
	return uuid.Nil
}
