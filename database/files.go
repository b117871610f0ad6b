package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
	"github.com/siherrmann/narrator/sql"
)

// FilesDBHandlerFunctions defines the interface for Files database operations.
type FilesDBHandlerFunctions interface {
	InsertFile(file *model.File) error
	UpdateFileStatus(id uuid.UUID, status model.ProcessingStatus) error
	DeleteFile(id uuid.UUID) error
	DeleteProjectData(projectID uuid.UUID) error
	SelectFile(id uuid.UUID) (*model.File, error)
	SelectFilesByProject(projectID uuid.UUID) ([]*model.File, error)
}

// FilesDBHandler handles file-related database operations
type FilesDBHandler struct {
	db *helper.Database
}

// NewFilesDBHandler creates a new files database handler.
// It initializes the database connection and loads file-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewFilesDBHandler(db *helper.Database, force bool) (*FilesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	filesDbHandler := &FilesDBHandler{
		db: db,
	}

	err := sql.LoadFilesSql(filesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load files sql", err)
	}

	err = filesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized FilesDBHandler")

	return filesDbHandler, nil
}

// CreateTable creates the 'files' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and triggers.
func (h *FilesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_files();`)
	if err != nil {
		log.Panicf("error initializing files table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table files")

	return nil
}

// InsertFile inserts a new file record
func (h *FilesDBHandler) InsertFile(file *model.File) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_file($1, $2, $3, $4, $5)`,
		file.ProjectID,
		file.Name,
		file.Path,
		file.WordCount,
		file.Metadata,
	)

	err := row.Scan(
		&file.ID,
		&file.ProjectID,
		&file.Name,
		&file.Path,
		&file.Status,
		&file.WordCount,
		&file.Metadata,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateFileStatus updates the processing status of a file
func (h *FilesDBHandler) UpdateFileStatus(id uuid.UUID, status model.ProcessingStatus) error {
	_, err := h.db.Instance.Exec(
		`SELECT * FROM update_file_status($1, $2)`,
		id,
		string(status),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteFile deletes a file by ID, cascading its chunks and mentions
func (h *FilesDBHandler) DeleteFile(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_file($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteProjectData deletes all files, chunks, entities, mentions and
// relationships of a project
func (h *FilesDBHandler) DeleteProjectData(projectID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_project_data($1)`,
		projectID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectFile retrieves a file by ID
func (h *FilesDBHandler) SelectFile(id uuid.UUID) (*model.File, error) {
	file := &model.File{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_file($1)`,
		id,
	)

	err := row.Scan(
		&file.ID,
		&file.ProjectID,
		&file.Name,
		&file.Path,
		&file.Status,
		&file.WordCount,
		&file.Metadata,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return file, nil
}

// SelectFilesByProject retrieves all files of a project
func (h *FilesDBHandler) SelectFilesByProject(projectID uuid.UUID) ([]*model.File, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_files_by_project($1)`,
		projectID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var files []*model.File
	for rows.Next() {
		file := &model.File{}
		err := rows.Scan(
			&file.ID,
			&file.ProjectID,
			&file.Name,
			&file.Path,
			&file.Status,
			&file.WordCount,
			&file.Metadata,
			&file.CreatedAt,
			&file.UpdatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		files = append(files, file)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return files, nil
}
