//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	pool, err := NewPool(ctx, database.Options{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestIdentityRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewIdentityRepository(pool, 4)

	var firstID string

	t.Run("Add", func(t *testing.T) {
		id, err := repo.Add(ctx, "p1", "Alice", []float32{1, 0, 0, 0}, "alice.jpg")
		if err != nil {
			t.Fatalf("Failed to add identity: %v", err)
		}
		if id == "" {
			t.Fatal("Expected record ID")
		}
		firstID = id

		if _, err := repo.Add(ctx, "p2", "Bob", []float32{0, 1, 0, 0}, ""); err != nil {
			t.Fatalf("Failed to add identity: %v", err)
		}
		if _, err := repo.Add(ctx, "p1", "Alice", []float32{0.8, 0.2, 0, 0}, "alice2.jpg"); err != nil {
			t.Fatalf("Failed to add identity: %v", err)
		}
	})

	t.Run("RejectsWrongDimension", func(t *testing.T) {
		_, err := repo.Add(ctx, "p3", "Carol", []float32{1, 0}, "")
		if !errors.Is(err, database.ErrInvalidEmbedding) {
			t.Errorf("Expected ErrInvalidEmbedding, got %v", err)
		}
	})

	t.Run("GetAll", func(t *testing.T) {
		all, err := repo.GetAll(ctx)
		if err != nil {
			t.Fatalf("Failed to get all: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(all))
		}
		if all[0].PersonName != "Alice" || all[1].PersonName != "Bob" {
			t.Errorf("Expected insertion order, got %s, %s", all[0].PersonName, all[1].PersonName)
		}
		if all[0].SourcePath != "alice.jpg" {
			t.Errorf("Expected source path alice.jpg, got %q", all[0].SourcePath)
		}
	})

	t.Run("GetByPerson", func(t *testing.T) {
		embs, err := repo.GetByPerson(ctx, "p1")
		if err != nil {
			t.Fatalf("Failed to get person embeddings: %v", err)
		}
		if len(embs) != 2 {
			t.Errorf("Expected 2 embeddings, got %d", len(embs))
		}
	})

	t.Run("Count", func(t *testing.T) {
		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 3 {
			t.Errorf("Expected 3, got %d", count)
		}
	})

	t.Run("VectorMirror", func(t *testing.T) {
		v, err := repo.MirroredVector(ctx, firstID)
		if err != nil {
			t.Fatalf("Failed to read mirror: %v", err)
		}
		if len(v) != 4 || v[0] != 1 {
			t.Errorf("Unexpected mirrored vector %v", v)
		}
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migration run should be a no-op, got %v", err)
	}
}
