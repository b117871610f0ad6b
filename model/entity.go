package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies a narrative entity
type EntityType string

const (
	EntityTypeCharacter EntityType = "CHARACTER"
	EntityTypeLocation  EntityType = "LOCATION"
	EntityTypeTheme     EntityType = "THEME"
)

// Entity represents a canonical narrative entity (character, location or theme).
// All name/alias variants detected in a project resolve to one Entity record,
// unique per (project, name, type).
type Entity struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	Type            EntityType `json:"entity_type"`
	Name            string     `json:"name"`
	Aliases         []string   `json:"aliases,omitempty"`
	ConfidenceScore float64    `json:"confidence_score"`
	MentionCount    int        `json:"mention_count"`
	FirstMentioned  *int       `json:"first_mentioned,omitempty"` // character offset of earliest occurrence
	LastMentioned   *int       `json:"last_mentioned,omitempty"`  // character offset of latest occurrence
	Attributes      Metadata   `json:"attributes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasAlias reports whether the entity carries the given alias (case-insensitive)
func (e *Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if strings.EqualFold(a, alias) {
			return true
		}
	}
	return false
}

// AllNames returns the canonical name followed by all aliases
func (e *Entity) AllNames() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.Name)
	names = append(names, e.Aliases...)
	return names
}
