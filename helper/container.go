package helper

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "database"
	testUsername = "user"
	testPassword = "password"
)

// MustStartPostgresContainer starts a postgres container with the pgvector
// extension available. It returns a teardown function and the mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUsername),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", NewError("get mapped port", err)
	}

	return container.Terminate, mappedPort.Port(), nil
}

// SetTestDatabaseConfigEnvs sets the NARRATOR_DB_* environment variables
// to point at the test container started by MustStartPostgresContainer.
func SetTestDatabaseConfigEnvs(t *testing.T, dbPort string) {
	t.Setenv("NARRATOR_DB_HOST", "localhost")
	t.Setenv("NARRATOR_DB_PORT", dbPort)
	t.Setenv("NARRATOR_DB_DATABASE", testDatabase)
	t.Setenv("NARRATOR_DB_USERNAME", testUsername)
	t.Setenv("NARRATOR_DB_PASSWORD", testPassword)
	t.Setenv("NARRATOR_DB_SCHEMA", "public")
	t.Setenv("NARRATOR_DB_SSLMODE", "disable")
}
