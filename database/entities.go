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

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.Entity) error
	IncrementEntityMentions(id uuid.UUID, count int, lastMentioned *int) (*model.Entity, error)
	DeleteEntity(id uuid.UUID) error
	DeleteEntitiesByProject(projectID uuid.UUID) error
	SelectEntity(id uuid.UUID) (*model.Entity, error)
	SelectEntityByName(projectID uuid.UUID, name string) (*model.Entity, error)
	SelectEntitiesByProject(projectID uuid.UUID, entityType *model.EntityType) ([]*model.Entity, error)
	SelectEntitiesByPrefix(projectID uuid.UUID, prefix string, limit int) ([]*model.Entity, error)
}

// EntitiesDBHandler handles entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := sql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes and triggers.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity or merges it into the existing record
// for the same (project, name, type). The entity is updated in place with
// the canonical database row, including a changed ID on merge.
func (h *EntitiesDBHandler) InsertEntity(entity *model.Entity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entity.ProjectID,
		string(entity.Type),
		entity.Name,
		pq.Array(entity.Aliases),
		entity.ConfidenceScore,
		entity.MentionCount,
		entity.FirstMentioned,
		entity.LastMentioned,
		entity.Attributes,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// IncrementEntityMentions atomically adds to the mention counter of an entity
// and widens last_mentioned when a later offset is seen.
func (h *EntitiesDBHandler) IncrementEntityMentions(id uuid.UUID, count int, lastMentioned *int) (*model.Entity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM increment_entity_mentions($1, $2, $3)`,
		id,
		count,
		lastMentioned,
	)

	entity := &model.Entity{}
	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// DeleteEntity deletes an entity by ID, cascading mentions and relationships
func (h *EntitiesDBHandler) DeleteEntity(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entity($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntitiesByProject deletes all entities of a project
func (h *EntitiesDBHandler) DeleteEntitiesByProject(projectID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_entities_by_project($1)`,
		projectID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(id uuid.UUID) (*model.Entity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		id,
	)

	entity := &model.Entity{}
	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByName resolves a canonical name or alias (case-insensitive)
// to the entity with the most mentions
func (h *EntitiesDBHandler) SelectEntityByName(projectID uuid.UUID, name string) (*model.Entity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_name($1, $2)`,
		projectID,
		name,
	)

	entity := &model.Entity{}
	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByProject retrieves all entities of a project, most mentioned
// first. A nil entityType selects all types.
func (h *EntitiesDBHandler) SelectEntitiesByProject(projectID uuid.UUID, entityType *model.EntityType) ([]*model.Entity, error) {
	var entityTypeParam interface{}
	if entityType != nil {
		entityTypeParam = string(*entityType)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_project($1, $2)`,
		projectID,
		entityTypeParam,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// SelectEntitiesByPrefix retrieves entities whose name or any alias starts
// with the given prefix (case-insensitive), most mentioned first
func (h *EntitiesDBHandler) SelectEntitiesByPrefix(projectID uuid.UUID, prefix string, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_prefix($1, $2, $3)`,
		projectID,
		prefix,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := scanEntity(rows, entity)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		entities = append(entities, entity)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner, entity *model.Entity) error {
	return row.Scan(
		&entity.ID,
		&entity.ProjectID,
		&entity.Type,
		&entity.Name,
		pq.Array(&entity.Aliases),
		&entity.ConfidenceScore,
		&entity.MentionCount,
		&entity.FirstMentioned,
		&entity.LastMentioned,
		&entity.Attributes,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
}
