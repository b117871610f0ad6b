package helper

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the postgres connection parameters
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration loads the database configuration from NARRATOR_DB_* environment
// variables. A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	// Optional .env, ignore if missing
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Host:     os.Getenv("NARRATOR_DB_HOST"),
		Port:     os.Getenv("NARRATOR_DB_PORT"),
		Database: os.Getenv("NARRATOR_DB_DATABASE"),
		Username: os.Getenv("NARRATOR_DB_USERNAME"),
		Password: os.Getenv("NARRATOR_DB_PASSWORD"),
		Schema:   os.Getenv("NARRATOR_DB_SCHEMA"),
		SSLMode:  os.Getenv("NARRATOR_DB_SSLMODE"),
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" {
		return nil, fmt.Errorf("incomplete database configuration, set NARRATOR_DB_HOST, NARRATOR_DB_PORT, NARRATOR_DB_DATABASE and NARRATOR_DB_USERNAME")
	}
	if config.Schema == "" {
		config.Schema = "public"
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	return config, nil
}

// ConnectionString builds the lib/pq connection string
func (c *DatabaseConfiguration) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.Schema,
	)
}

// Database wraps the sql connection with its name and logger
type Database struct {
	Name     string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens a postgres connection for the given configuration.
// It panics if the database is not reachable, matching the fail-fast
// behavior expected at service startup.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		log.Panicf("error opening database connection: %v", err)
	}

	// Retry ping, container databases can take a moment to accept connections
	for i := 0; i < 5; i++ {
		err = instance.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}
	if err != nil {
		log.Panicf("error pinging database: %v", err)
	}

	instance.SetMaxOpenConns(25)
	instance.SetMaxIdleConns(25)
	instance.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return &Database{
		Name:     name,
		Instance: instance,
		Logger:   logger,
	}
}

// NewTestDatabase opens a connection with a discarding logger for tests
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(slog.DiscardHandler)
	return NewDatabase("test", config, logger)
}

// Close closes the underlying connection
func (d *Database) Close() error {
	if d.Instance != nil {
		return d.Instance.Close()
	}
	return nil
}
