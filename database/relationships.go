package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/narrator/helper"
	"github.com/siherrmann/narrator/model"
	"github.com/siherrmann/narrator/sql"
)

// RelationshipsDBHandlerFunctions defines the interface for Relationships database operations.
type RelationshipsDBHandlerFunctions interface {
	UpsertRelationship(relationship *model.Relationship, maxSnippets int) error
	UpdateRelationshipStrength(id uuid.UUID, strength float64) (*model.Relationship, error)
	DeleteRelationshipsByProject(projectID uuid.UUID) error
	SelectRelationship(id uuid.UUID) (*model.Relationship, error)
	SelectRelationshipsByProject(projectID uuid.UUID) ([]*model.Relationship, error)
	SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error)
}

// RelationshipsDBHandler handles relationship-related database operations
type RelationshipsDBHandler struct {
	db *helper.Database
}

// NewRelationshipsDBHandler creates a new relationships database handler.
// It initializes the database connection and loads relationship-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRelationshipsDBHandler(db *helper.Database, force bool) (*RelationshipsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationshipsDbHandler := &RelationshipsDBHandler{
		db: db,
	}

	err := sql.LoadRelationshipsSql(relationshipsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relationships sql", err)
	}

	err = relationshipsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RelationshipsDBHandler")

	return relationshipsDbHandler, nil
}

// CreateTable creates the 'relationships' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and triggers.
func (h *RelationshipsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relationships();`)
	if err != nil {
		log.Panicf("error initializing relationships table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table relationships")

	return nil
}

// UpsertRelationship inserts the relationship or updates the existing row
// for the same canonical pair. Source and target must already be in
// canonical order. The stored co-occurrence count never decreases; snippets
// are deduplicated and bounded by maxSnippets. The relationship is updated
// in place with the merged database row.
func (h *RelationshipsDBHandler) UpsertRelationship(relationship *model.Relationship, maxSnippets int) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_relationship($1, $2, $3, $4, $5, $6, $7, $8)`,
		relationship.ProjectID,
		relationship.SourceEntityID,
		relationship.TargetEntityID,
		string(relationship.Type),
		relationship.Strength,
		relationship.CoOccurrenceCount,
		pq.Array(relationship.ContextSnippets),
		maxSnippets,
	)

	err := scanRelationship(row, relationship)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpdateRelationshipStrength sets the strength of a relationship
func (h *RelationshipsDBHandler) UpdateRelationshipStrength(id uuid.UUID, strength float64) (*model.Relationship, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM update_relationship_strength($1, $2)`,
		id,
		strength,
	)

	relationship := &model.Relationship{}
	err := scanRelationship(row, relationship)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return relationship, nil
}

// DeleteRelationshipsByProject deletes all relationships of a project
func (h *RelationshipsDBHandler) DeleteRelationshipsByProject(projectID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_relationships_by_project($1)`,
		projectID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectRelationship retrieves a relationship by ID
func (h *RelationshipsDBHandler) SelectRelationship(id uuid.UUID) (*model.Relationship, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_relationship($1)`,
		id,
	)

	relationship := &model.Relationship{}
	err := scanRelationship(row, relationship)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return relationship, nil
}

// SelectRelationshipsByProject retrieves all relationships of a project,
// strongest first
func (h *RelationshipsDBHandler) SelectRelationshipsByProject(projectID uuid.UUID) ([]*model.Relationship, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relationships_by_project($1)`,
		projectID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var relationships []*model.Relationship
	for rows.Next() {
		relationship := &model.Relationship{}
		err := scanRelationship(rows, relationship)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		relationships = append(relationships, relationship)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relationships, nil
}

// SelectRelationshipsByEntity retrieves all relationships touching an entity
// with strength >= minStrength, strongest first
func (h *RelationshipsDBHandler) SelectRelationshipsByEntity(entityID uuid.UUID, minStrength float64) ([]*model.Relationship, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relationships_by_entity($1, $2)`,
		entityID,
		minStrength,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var relationships []*model.Relationship
	for rows.Next() {
		relationship := &model.Relationship{}
		err := scanRelationship(rows, relationship)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		relationships = append(relationships, relationship)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return relationships, nil
}

func scanRelationship(row rowScanner, relationship *model.Relationship) error {
	return row.Scan(
		&relationship.ID,
		&relationship.ProjectID,
		&relationship.SourceEntityID,
		&relationship.TargetEntityID,
		&relationship.Type,
		&relationship.Strength,
		&relationship.CoOccurrenceCount,
		pq.Array(&relationship.ContextSnippets),
		&relationship.Metadata,
		&relationship.CreatedAt,
		&relationship.UpdatedAt,
	)
}
