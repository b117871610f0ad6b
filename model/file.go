package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus tracks where a file is in the indexing lifecycle
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
)

// File represents a manuscript file within a project
type File struct {
	ID        uuid.UUID        `json:"id"`
	ProjectID uuid.UUID        `json:"project_id"`
	Name      string           `json:"name"`
	Path      string           `json:"path,omitempty"`
	Content   string           `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Scenes    []Scene          `json:"scenes,omitempty" db:"-"`  // Temporary field for processing, not stored in DB
	Status    ProcessingStatus `json:"status"`
	WordCount int              `json:"word_count"`
	Metadata  Metadata         `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewFileFromPath reads a file from disk and creates a File with its content.
// The name defaults to the filename without extension.
func NewFileFromPath(filePath string, projectID uuid.UUID, metadata Metadata) (*File, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// Get filename without extension for default name
	filename := filepath.Base(filePath)
	name := filename[:len(filename)-len(filepath.Ext(filename))]
	if name == "" {
		name = filename
	}

	return &File{
		ProjectID: projectID,
		Name:      name,
		Path:      filePath,
		Content:   string(content),
		Status:    ProcessingPending,
		Metadata:  metadata,
	}, nil
}

// FileStatus summarizes the indexing outcome for one file of a project run
type FileStatus struct {
	FileID   uuid.UUID        `json:"file_id"`
	Name     string           `json:"name"`
	Status   ProcessingStatus `json:"status"`
	Message  string           `json:"message,omitempty"`
	Chunks   int              `json:"chunks"`
	Entities int              `json:"entities"`
	Mentions int              `json:"mentions"`
}

// IndexReport aggregates the per-file outcomes of a project indexing run
type IndexReport struct {
	ProjectID uuid.UUID    `json:"project_id"`
	Files     []FileStatus `json:"files"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}
