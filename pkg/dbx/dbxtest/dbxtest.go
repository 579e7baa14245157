// Package dbxtest starts a throwaway Postgres for integration tests of the
// *infra repositories.
package dbxtest

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/config"
	"github.com/Abraxas-365/gatekeeper/pkg/dbx"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// Open runs postgres:15-alpine, applies the embedded migrations and returns a
// pool on it. The container is purged when t ends. The test is skipped when
// SKIP_DOCKER=1 or no Docker daemon answers.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("SKIP_DOCKER") == "1" {
		t.Skip("SKIP_DOCKER=1 set; skipping integration test")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=test",
			"POSTGRES_PASSWORD=test",
			"POSTGRES_DB=gatekeeper_test",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("dbxtest: start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	port, err := strconv.Atoi(resource.GetPort("5432/tcp"))
	if err != nil {
		t.Fatalf("dbxtest: container port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            port,
		User:            "test",
		Password:        "test",
		Name:            "gatekeeper_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = dbx.Open(context.Background(), cfg)
		return err
	})
	if err != nil {
		t.Fatalf("dbxtest: postgres never became ready: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := dbx.Migrate(db.DB); err != nil {
		t.Fatalf("dbxtest: migrate: %v", err)
	}
	return db
}

// SeedProject inserts a bare project row so tenant foreign keys resolve.
func SeedProject(t *testing.T, db *sqlx.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO projects (id, display_name) VALUES ($1, $1) ON CONFLICT DO NOTHING`, id)
	if err != nil {
		t.Fatalf("dbxtest: seed project %s: %v", id, err)
	}
}
