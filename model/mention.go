package model

import (
	"time"

	"github.com/google/uuid"
)

// Mention records a single occurrence of an entity inside a file, resolved
// to character offsets, line number, paragraph number and optionally a scene.
type Mention struct {
	ID              uuid.UUID  `json:"id"`
	EntityID        uuid.UUID  `json:"entity_id"`
	FileID          uuid.UUID  `json:"file_id"`
	StartOffset     int        `json:"start_offset"`
	EndOffset       int        `json:"end_offset"`
	LineNumber      int        `json:"line_number"`
	ParagraphNumber int        `json:"paragraph_number"`
	SceneID         *uuid.UUID `json:"scene_id,omitempty"`
	MentionText     string     `json:"mention_text"`
	MentionIndex    int        `json:"mention_index"` // ordinal of this mention within the file, per entity
	ContextBefore   string     `json:"context_before,omitempty"`
	ContextAfter    string     `json:"context_after,omitempty"`
	Sentence        string     `json:"sentence,omitempty"`
	IsDirectMention bool       `json:"is_direct_mention"`
	Confidence      float64    `json:"confidence"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Length returns the character length of the mentioned span
func (m *Mention) Length() int {
	return m.EndOffset - m.StartOffset
}
