package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		// Create files handler first to ensure files table exists (needed for foreign key)
		_, err := NewFilesDBHandler(database, true)
		require.NoError(t, err, "Expected NewFilesDBHandler to not return an error")

		chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		require.NotNil(t, chunksDbHandler.db, "Expected NewChunksDBHandler to have a non-nil database instance")
		require.NotNil(t, chunksDbHandler.db.Instance, "Expected NewChunksDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, 384, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func insertChunkFixtures(t *testing.T, database *helper.Database) (*FilesDBHandler, *ChunksDBHandler, *model.File) {
	t.Helper()

	filesDbHandler, err := NewFilesDBHandler(database, true)
	require.NoError(t, err)
	chunksDbHandler, err := NewChunksDBHandler(database, 384, true)
	require.NoError(t, err)

	file := &model.File{
		ProjectID: uuid.New(),
		Name:      "chapter_one",
		Metadata:  map[string]interface{}{},
	}
	err = filesDbHandler.InsertFile(file)
	require.NoError(t, err)

	return filesDbHandler, chunksDbHandler, file
}

func TestChunksInsert(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	t.Run("Insert chunk without embedding", func(t *testing.T) {
		chunk := &model.TextChunk{
			FileID:      file.ID,
			ProjectID:   file.ProjectID,
			Content:     "Kael crossed the bridge into Eldoria at dawn.",
			StartOffset: 0,
			EndOffset:   45,
			ChunkIndex:  0,
			WordCount:   8,
			Metadata:    map[string]interface{}{"scene": "opening"},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.ID, "Expected inserted chunk to have an ID")
		assert.Empty(t, chunk.Embedding, "Expected embedding to stay unset")
		assert.WithinDuration(t, chunk.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Insert chunk with embedding and entities", func(t *testing.T) {
		embedding := make([]float32, 384)
		for i := range embedding {
			embedding[i] = float32(i) / 384.0
		}
		entityID := uuid.New()
		chunk := &model.TextChunk{
			FileID:            file.ID,
			ProjectID:         file.ProjectID,
			Content:           "Sera waited by the gate, watching the road.",
			StartOffset:       46,
			EndOffset:         89,
			ChunkIndex:        1,
			WordCount:         8,
			Embedding:         embedding,
			EntitiesMentioned: []uuid.UUID{entityID},
			Metadata:          map[string]interface{}{},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.ID, "Expected inserted chunk to have an ID")
		assert.Equal(t, 384, len(chunk.Embedding), "Expected embedding to be preserved")
		assert.True(t, chunk.MentionsEntity(entityID), "Expected entity reference to be preserved")
	})

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksGet(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	chunk := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "Test content",
		ChunkIndex: 0,
		WordCount:  2,
		Metadata:   map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	retrieved, err := chunksDbHandler.SelectChunk(chunk.ID)
	assert.NoError(t, err, "Expected Get to not return an error")
	assert.NotNil(t, retrieved, "Expected Get to return a non-nil chunk")
	assert.Equal(t, chunk.ID, retrieved.ID, "Expected chunk IDs to match")
	assert.Equal(t, chunk.Content, retrieved.Content, "Expected chunk content to match")

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksGetByFile(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	chunkCount := 3
	for i := 0; i < chunkCount; i++ {
		chunk := &model.TextChunk{
			FileID:     file.ID,
			ProjectID:  file.ProjectID,
			Content:    "Test content",
			ChunkIndex: i,
			WordCount:  2,
			Metadata:   map[string]interface{}{},
		}
		err := chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	retrieved, err := chunksDbHandler.SelectChunksByFile(file.ID)
	assert.NoError(t, err, "Expected GetByFile to not return an error")
	assert.Len(t, retrieved, chunkCount, "Expected to retrieve all chunks")
	for i, chunk := range retrieved {
		assert.Equal(t, i, chunk.ChunkIndex, "Expected chunks ordered by index")
	}

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksGetByProject(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	secondFile := &model.File{
		ProjectID: file.ProjectID,
		Name:      "chapter_two",
		Metadata:  map[string]interface{}{},
	}
	err := filesDbHandler.InsertFile(secondFile)
	require.NoError(t, err)

	for i, fileID := range []uuid.UUID{file.ID, secondFile.ID} {
		chunk := &model.TextChunk{
			FileID:     fileID,
			ProjectID:  file.ProjectID,
			Content:    "Test content",
			ChunkIndex: i,
			WordCount:  2,
			Metadata:   map[string]interface{}{},
		}
		err := chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	retrieved, err := chunksDbHandler.SelectChunksByProject(file.ProjectID)
	assert.NoError(t, err, "Expected GetByProject to not return an error")
	assert.Len(t, retrieved, 2, "Expected chunks of all files in the project")

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	chunksDbHandler.DeleteChunksByFile(secondFile.ID)
	filesDbHandler.DeleteFile(file.ID)
	filesDbHandler.DeleteFile(secondFile.ID)
}

func TestChunksGetByEntity(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	entityID := uuid.New()
	otherEntityID := uuid.New()

	withEntity := &model.TextChunk{
		FileID:            file.ID,
		ProjectID:         file.ProjectID,
		Content:           "Kael appears here",
		ChunkIndex:        0,
		WordCount:         3,
		EntitiesMentioned: []uuid.UUID{entityID, otherEntityID},
		Metadata:          map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(withEntity)
	require.NoError(t, err)

	withoutEntity := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "Nobody appears here",
		ChunkIndex: 1,
		WordCount:  3,
		Metadata:   map[string]interface{}{},
	}
	err = chunksDbHandler.InsertChunk(withoutEntity)
	require.NoError(t, err)

	retrieved, err := chunksDbHandler.SelectChunksByEntity(entityID)
	assert.NoError(t, err, "Expected GetByEntity to not return an error")
	assert.Len(t, retrieved, 1, "Expected only chunks referencing the entity")
	assert.Equal(t, withEntity.ID, retrieved[0].ID, "Expected the referencing chunk")

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksSearchBySimilarity(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	// Chunks with distinct 384-dimension embeddings
	embeddings := make([][]float32, 3)
	for i := range embeddings {
		embeddings[i] = make([]float32, 384)
		embeddings[i][i] = 1.0
	}

	for i, emb := range embeddings {
		chunk := &model.TextChunk{
			FileID:     file.ID,
			ProjectID:  file.ProjectID,
			Content:    "Test content",
			ChunkIndex: i,
			WordCount:  2,
			Embedding:  emb,
			Metadata:   map[string]interface{}{},
		}
		err := chunksDbHandler.InsertChunk(chunk)
		require.NoError(t, err)
	}

	// A chunk without embedding must never appear in similarity results
	unembedded := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "No embedding",
		ChunkIndex: 3,
		WordCount:  2,
		Metadata:   map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(unembedded)
	require.NoError(t, err)

	queryEmbedding := make([]float32, 384)
	queryEmbedding[0] = 0.9
	queryEmbedding[1] = 0.1

	t.Run("Search within project", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(queryEmbedding, file.ProjectID, nil, 2, 0.0)
		assert.NoError(t, err, "Expected SearchBySimilarity to not return an error")
		require.NotEmpty(t, results, "Expected to find similar chunks")
		assert.LessOrEqual(t, len(results), 2, "Expected at most 2 results")
		assert.Equal(t, 0, results[0].ChunkIndex, "Expected nearest chunk first")
		assert.GreaterOrEqual(t, results[0].Similarity, results[len(results)-1].Similarity, "Expected results ordered by similarity")
		for _, result := range results {
			assert.NotEqual(t, unembedded.ID, result.ID, "Expected chunks without embedding to be excluded")
		}
	})

	t.Run("Search restricted to files", func(t *testing.T) {
		otherFile := &model.File{
			ProjectID: file.ProjectID,
			Name:      "chapter_two",
			Metadata:  map[string]interface{}{},
		}
		err := filesDbHandler.InsertFile(otherFile)
		require.NoError(t, err)

		results, err := chunksDbHandler.SelectChunksBySimilarity(queryEmbedding, file.ProjectID, []uuid.UUID{otherFile.ID}, 10, 0.0)
		assert.NoError(t, err)
		assert.Empty(t, results, "Expected no chunks for a file without chunks")

		filesDbHandler.DeleteFile(otherFile.ID)
	})

	t.Run("Search with threshold", func(t *testing.T) {
		results, err := chunksDbHandler.SelectChunksBySimilarity(queryEmbedding, file.ProjectID, nil, 10, 0.9)
		assert.NoError(t, err)
		for _, result := range results {
			assert.GreaterOrEqual(t, result.Similarity, 0.9, "Expected all results above the threshold")
		}
	})

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksUpdateEmbedding(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	chunk := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "Test content",
		ChunkIndex: 0,
		WordCount:  2,
		Metadata:   map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	newEmbedding := make([]float32, 384)
	for i := range newEmbedding {
		newEmbedding[i] = 0.5
	}
	chunk.Embedding = newEmbedding
	err = chunksDbHandler.UpdateChunkEmbedding(chunk)
	assert.NoError(t, err, "Expected UpdateEmbedding to not return an error")

	retrieved, err := chunksDbHandler.SelectChunk(chunk.ID)
	require.NoError(t, err)
	assert.Equal(t, newEmbedding, retrieved.Embedding, "Expected embedding to be updated")

	// Cleanup
	chunksDbHandler.DeleteChunksByFile(file.ID)
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksDeleteByFile(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	chunk := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "Test content",
		ChunkIndex: 0,
		WordCount:  2,
		Metadata:   map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	err = chunksDbHandler.DeleteChunksByFile(file.ID)
	assert.NoError(t, err, "Expected DeleteByFile to not return an error")

	_, err = chunksDbHandler.SelectChunk(chunk.ID)
	assert.Error(t, err, "Expected Get to return an error for deleted chunk")

	// Cleanup
	filesDbHandler.DeleteFile(file.ID)
}

func TestChunksCascadeOnFileDelete(t *testing.T) {
	database := initDB(t)

	filesDbHandler, chunksDbHandler, file := insertChunkFixtures(t, database)

	chunk := &model.TextChunk{
		FileID:     file.ID,
		ProjectID:  file.ProjectID,
		Content:    "Test content",
		ChunkIndex: 0,
		WordCount:  2,
		Metadata:   map[string]interface{}{},
	}
	err := chunksDbHandler.InsertChunk(chunk)
	require.NoError(t, err)

	err = filesDbHandler.DeleteFile(file.ID)
	require.NoError(t, err)

	_, err = chunksDbHandler.SelectChunk(chunk.ID)
	assert.Error(t, err, "Expected chunks to be removed with their file")
}
