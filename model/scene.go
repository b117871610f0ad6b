package model

import "github.com/google/uuid"

// Scene marks a contiguous span of a file, usually delimited by scene break
// markers in the manuscript. Scenes are transient parse artifacts used to
// resolve mentions to a scene; they are not persisted on their own.
type Scene struct {
	ID          uuid.UUID `json:"id"`
	FileID      uuid.UUID `json:"file_id"`
	Index       int       `json:"index"`
	Title       string    `json:"title,omitempty"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
}

// Contains reports whether the given character offset falls inside the scene
func (s *Scene) Contains(offset int) bool {
	return offset >= s.StartOffset && offset < s.EndOffset
}
