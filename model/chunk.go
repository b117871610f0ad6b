package model

import (
	"time"

	"github.com/google/uuid"
)

// TextChunk is an indexable segment of a manuscript file. Chunks overlap so
// that entity references near segment borders keep their surrounding context.
type TextChunk struct {
	ID                uuid.UUID   `json:"id"`
	FileID            uuid.UUID   `json:"file_id"`
	ProjectID         uuid.UUID   `json:"project_id"`
	Content           string      `json:"content"`
	StartOffset       int         `json:"start_offset"`
	EndOffset         int         `json:"end_offset"`
	ChunkIndex        int         `json:"chunk_index"`
	WordCount         int         `json:"word_count"`
	Embedding         []float32   `json:"embedding,omitempty"`
	EntitiesMentioned []uuid.UUID `json:"entities_mentioned,omitempty"`
	Metadata          Metadata    `json:"metadata,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	// Similarity is populated on retrieval results only.
	Similarity float64 `json:"similarity,omitempty" db:"-"`
}

// MentionsEntity reports whether the chunk overlaps a mention of the given entity
func (c *TextChunk) MentionsEntity(entityID uuid.UUID) bool {
	for _, id := range c.EntitiesMentioned {
		if id == entityID {
			return true
		}
	}
	return false
}
