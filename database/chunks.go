package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
	"github.com/siherrmann/narrator/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.TextChunk) error
	UpdateChunkEmbedding(chunk *model.TextChunk) error
	DeleteChunksByFile(fileID uuid.UUID) error
	SelectChunk(id uuid.UUID) (*model.TextChunk, error)
	SelectChunksByFile(fileID uuid.UUID) ([]*model.TextChunk, error)
	SelectChunksByProject(projectID uuid.UUID) ([]*model.TextChunk, error)
	SelectChunksByEntity(entityID uuid.UUID) ([]*model.TextChunk, error)
	SelectChunksBySimilarity(embedding []float32, projectID uuid.UUID, fileIDs []uuid.UUID, limit int, threshold float64) ([]*model.TextChunk, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It initializes the database connection and loads chunk-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := sql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary extensions, indexes, and triggers.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk. A chunk without an embedding is stored
// with a NULL vector and excluded from similarity search.
func (h *ChunksDBHandler) InsertChunk(chunk *model.TextChunk) error {
	var embeddingParam interface{}
	if len(chunk.Embedding) > 0 {
		embeddingParam = pq.Array(chunk.Embedding)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		chunk.FileID,
		chunk.ProjectID,
		chunk.Content,
		chunk.StartOffset,
		chunk.EndOffset,
		chunk.ChunkIndex,
		chunk.WordCount,
		embeddingParam,
		pq.Array(chunk.EntitiesMentioned),
		chunk.Metadata,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateChunkEmbedding updates the embedding of a chunk
func (h *ChunksDBHandler) UpdateChunkEmbedding(chunk *model.TextChunk) error {
	embeddingVector := pgvector.NewVector(chunk.Embedding)
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_chunk_embedding($1, $2)`,
		chunk.ID,
		embeddingVector,
	)

	err := scanChunk(row, chunk)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// DeleteChunksByFile deletes all chunks of a file
func (h *ChunksDBHandler) DeleteChunksByFile(fileID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_chunks_by_file($1)`,
		fileID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectChunk retrieves a chunk by ID
func (h *ChunksDBHandler) SelectChunk(id uuid.UUID) (*model.TextChunk, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	chunk := &model.TextChunk{}
	err := scanChunk(row, chunk)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunksByFile retrieves all chunks of a file in chunk order
func (h *ChunksDBHandler) SelectChunksByFile(fileID uuid.UUID) ([]*model.TextChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_file($1)`,
		fileID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.TextChunk
	for rows.Next() {
		chunk := &model.TextChunk{}
		err := scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksByProject retrieves all chunks of a project
func (h *ChunksDBHandler) SelectChunksByProject(projectID uuid.UUID) ([]*model.TextChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_project($1)`,
		projectID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.TextChunk
	for rows.Next() {
		chunk := &model.TextChunk{}
		err := scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksByEntity retrieves all chunks mentioning a given entity
func (h *ChunksDBHandler) SelectChunksByEntity(entityID uuid.UUID) ([]*model.TextChunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_entity($1)`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.TextChunk
	for rows.Next() {
		chunk := &model.TextChunk{}
		err := scanChunk(rows, chunk)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// SelectChunksBySimilarity performs vector similarity search within a project.
// If fileIDs is nil or empty, searches across all files of the project.
func (h *ChunksDBHandler) SelectChunksBySimilarity(embedding []float32, projectID uuid.UUID, fileIDs []uuid.UUID, limit int, threshold float64) ([]*model.TextChunk, error) {
	embeddingVector := pgvector.NewVector(embedding)

	// Convert fileIDs to PostgreSQL UUID array format
	var fileIDsParam interface{}
	if len(fileIDs) > 0 {
		fileIDsParam = pq.Array(fileIDs)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5)`,
		embeddingVector,
		projectID,
		fileIDsParam,
		limit,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.TextChunk
	for rows.Next() {
		chunk := &model.TextChunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.FileID,
			&chunk.ProjectID,
			&chunk.Content,
			&chunk.StartOffset,
			&chunk.EndOffset,
			&chunk.ChunkIndex,
			&chunk.WordCount,
			pq.Array(&chunk.Embedding),
			pq.Array(&chunk.EntitiesMentioned),
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

func scanChunk(row rowScanner, chunk *model.TextChunk) error {
	return row.Scan(
		&chunk.ID,
		&chunk.FileID,
		&chunk.ProjectID,
		&chunk.Content,
		&chunk.StartOffset,
		&chunk.EndOffset,
		&chunk.ChunkIndex,
		&chunk.WordCount,
		pq.Array(&chunk.Embedding),
		pq.Array(&chunk.EntitiesMentioned),
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
}
