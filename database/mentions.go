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

// MentionsDBHandlerFunctions defines the interface for Mentions database operations.
type MentionsDBHandlerFunctions interface {
	InsertMention(mention *model.Mention) error
	DeleteMentionsByFile(fileID uuid.UUID) error
	SelectMentionsByEntity(entityID uuid.UUID) ([]*model.Mention, error)
	SelectMentionsByFile(fileID uuid.UUID) ([]*model.Mention, error)
	NextMentionIndex(entityID uuid.UUID, fileID uuid.UUID) (int, error)
}

// MentionsDBHandler handles mention-related database operations
type MentionsDBHandler struct {
	db *helper.Database
}

// NewMentionsDBHandler creates a new mentions database handler.
// It initializes the database connection and loads mention-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMentionsDBHandler(db *helper.Database, force bool) (*MentionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	mentionsDbHandler := &MentionsDBHandler{
		db: db,
	}

	err := sql.LoadMentionsSql(mentionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load mentions sql", err)
	}

	err = mentionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MentionsDBHandler")

	return mentionsDbHandler, nil
}

// CreateTable creates the 'mentions' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *MentionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_mentions();`)
	if err != nil {
		log.Panicf("error initializing mentions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table mentions")

	return nil
}

// InsertMention inserts a new mention
func (h *MentionsDBHandler) InsertMention(mention *model.Mention) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_mention($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		mention.EntityID,
		mention.FileID,
		mention.StartOffset,
		mention.EndOffset,
		mention.LineNumber,
		mention.ParagraphNumber,
		mention.SceneID,
		mention.MentionText,
		mention.MentionIndex,
		mention.ContextBefore,
		mention.ContextAfter,
		mention.Sentence,
		mention.IsDirectMention,
		mention.Confidence,
	)

	err := scanMention(row, mention)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// DeleteMentionsByFile deletes all mentions of a file
func (h *MentionsDBHandler) DeleteMentionsByFile(fileID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_mentions_by_file($1)`,
		fileID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectMentionsByEntity retrieves all mentions of an entity ordered by
// file and mention index
func (h *MentionsDBHandler) SelectMentionsByEntity(entityID uuid.UUID) ([]*model.Mention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_by_entity($1)`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.Mention
	for rows.Next() {
		mention := &model.Mention{}
		err := scanMention(rows, mention)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// SelectMentionsByFile retrieves all mentions in a file ordered by offset
func (h *MentionsDBHandler) SelectMentionsByFile(fileID uuid.UUID) ([]*model.Mention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_by_file($1)`,
		fileID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var mentions []*model.Mention
	for rows.Next() {
		mention := &model.Mention{}
		err := scanMention(rows, mention)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// NextMentionIndex returns the next free mention index for an (entity, file) pair
func (h *MentionsDBHandler) NextMentionIndex(entityID uuid.UUID, fileID uuid.UUID) (int, error) {
	var nextIndex int
	err := h.db.Instance.QueryRow(
		`SELECT next_mention_index($1, $2)`,
		entityID,
		fileID,
	).Scan(&nextIndex)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}

	return nextIndex, nil
}

func scanMention(row rowScanner, mention *model.Mention) error {
	return row.Scan(
		&mention.ID,
		&mention.EntityID,
		&mention.FileID,
		&mention.StartOffset,
		&mention.EndOffset,
		&mention.LineNumber,
		&mention.ParagraphNumber,
		&mention.SceneID,
		&mention.MentionText,
		&mention.MentionIndex,
		&mention.ContextBefore,
		&mention.ContextAfter,
		&mention.Sentence,
		&mention.IsDirectMention,
		&mention.Confidence,
		&mention.CreatedAt,
	)
}
