//go:build integration

// Package testsupport starts the containers integration tests run against.
package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// StartPostgres launches a Postgres container, applies every up migration in
// name order and returns a pool. Both are released when the test ends.
func StartPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, postgresImage,
		postgrescontainer.WithDatabase("campus_health"),
		postgrescontainer.WithUsername("campus"),
		postgrescontainer.WithPassword("campus"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, file := range migrationFiles(t) {
		contents, err := os.ReadFile(file)
		require.NoErrorf(t, err, "read migration %s", file)
		_, err = pool.Exec(ctx, string(contents))
		require.NoErrorf(t, err, "execute migration %s", file)
	}
	return pool
}

func migrationFiles(t *testing.T) []string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	dir := filepath.Join(filepath.Dir(filename), "../../db/postgres/migrations")

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")
	sort.Strings(files)
	return files
}
