package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed files.sql
var filesSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed mentions.sql
var mentionsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed relationships.sql
var relationshipsSQL string

// Function lists for verification
var FilesFunctions = []string{
	"init_files",
	"insert_file",
	"update_file_status",
	"select_file",
	"select_files_by_project",
	"delete_file",
	"delete_project_data",
}

var EntitiesFunctions = []string{
	"init_entities",
	"insert_entity",
	"increment_entity_mentions",
	"select_entity",
	"select_entity_by_name",
	"select_entities_by_project",
	"select_entities_by_prefix",
	"delete_entity",
	"delete_entities_by_project",
}

var MentionsFunctions = []string{
	"init_mentions",
	"insert_mention",
	"select_mentions_by_entity",
	"select_mentions_by_file",
	"next_mention_index",
	"delete_mentions_by_file",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunk",
	"select_chunks_by_file",
	"select_chunks_by_project",
	"select_chunks_by_entity",
	"select_chunks_by_similarity",
	"update_chunk_embedding",
	"delete_chunks_by_file",
}

var RelationshipsFunctions = []string{
	"init_relationships",
	"upsert_relationship",
	"select_relationship",
	"select_relationships_by_project",
	"select_relationships_by_entity",
	"update_relationship_strength",
	"delete_relationships_by_project",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadFilesSql loads file-related SQL functions
func LoadFilesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, FilesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing files functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(filesSQL)
	if err != nil {
		return fmt.Errorf("error executing files SQL: %w", err)
	}

	exist, err := checkFunctions(db, FilesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL files functions loaded successfully")
	return nil
}

// LoadEntitiesSql loads entity-related SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, EntitiesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing entities functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(entitiesSQL)
	if err != nil {
		return fmt.Errorf("error executing entities SQL: %w", err)
	}

	exist, err := checkFunctions(db, EntitiesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL entities functions loaded successfully")
	return nil
}

// LoadMentionsSql loads mention-related SQL functions
func LoadMentionsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, MentionsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing mentions functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(mentionsSQL)
	if err != nil {
		return fmt.Errorf("error executing mentions SQL: %w", err)
	}

	exist, err := checkFunctions(db, MentionsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL mentions functions loaded successfully")
	return nil
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, ChunksFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing chunks functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(chunksSQL)
	if err != nil {
		return fmt.Errorf("error executing chunks SQL: %w", err)
	}

	exist, err := checkFunctions(db, ChunksFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL chunks functions loaded successfully")
	return nil
}

// LoadRelationshipsSql loads relationship-related SQL functions
func LoadRelationshipsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, RelationshipsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing relationships functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(relationshipsSQL)
	if err != nil {
		return fmt.Errorf("error executing relationships SQL: %w", err)
	}

	exist, err := checkFunctions(db, RelationshipsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL relationships functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadFilesSql(db, force); err != nil {
		return err
	}

	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	if err := LoadChunksSql(db, force); err != nil {
		return err
	}

	if err := LoadMentionsSql(db, force); err != nil {
		return err
	}

	if err := LoadRelationshipsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
