package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDatabase starts a Postgres container and applies the goose migrations in migrationsPath
func NewTestDatabase(t *testing.T, migrationsPath string) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(tclog.TestLogger(t)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %s", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect to database: %s", err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		t.Fatalf("failed to ping database: %s", pingErr)
	}

	// goose needs a database/sql handle
	db, openErr := sql.Open("pgx", connStr)
	if openErr != nil {
		t.Fatalf("failed to open sql db for migrations: %s", openErr)
	}
	defer db.Close()

	if dialectErr := goose.SetDialect("postgres"); dialectErr != nil {
		t.Fatalf("failed to set goose dialect: %s", dialectErr)
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		t.Fatalf("failed to get absolute path for migrations: %s", err)
	}

	if err := goose.Up(db, absPath); err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	return &TestDatabase{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// CleanDatabase truncates the given tables to reset state between tests sharing a container
func (td *TestDatabase) CleanDatabase(t *testing.T, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := td.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate table %s: %s", table, err)
		}
	}
}

// SeedUser mirrors a user id into the users table and returns it
func (td *TestDatabase) SeedUser(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := td.Pool.Exec(context.Background(),
		`INSERT INTO users (id, username) VALUES ($1, $2)`, id, "user-"+id.String()[:8])
	if err != nil {
		t.Fatalf("failed to seed user: %s", err)
	}
	return id
}

func (td *TestDatabase) Close() {
	td.Pool.Close()
	if termErr := td.Container.Terminate(context.Background()); termErr != nil {
		log.Printf("failed to terminate postgres container: %v", termErr)
	}
}
