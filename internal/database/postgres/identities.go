package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pgvector/pgvector-go"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

// Compile-time interface check.
var _ database.Store = (*IdentityRepository)(nil)

// IdentityRepository provides PostgreSQL-backed watchlist storage.
// The canonical embedding lives in the encoded BYTEA column; embedding_vec
// mirrors it as a pgvector value for SQL-side inspection.
type IdentityRepository struct {
	pool *Pool
	dim  int
}

// NewIdentityRepository creates a repository enforcing embeddings of length dim.
func NewIdentityRepository(pool *Pool, dim int) *IdentityRepository {
	return &IdentityRepository{pool: pool, dim: dim}
}

// Backend implements database.Store.
func (r *IdentityRepository) Backend() database.Backend { return database.BackendPostgres }

// Add inserts one identity record.
func (r *IdentityRepository) Add(ctx context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error) {
	if err := database.ValidateEmbedding(embedding, r.dim); err != nil {
		return "", err
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (person_id, person_name, embedding, embedding_vec, source_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, personID, personName, database.EncodeEmbedding(embedding), pgvector.NewVector(embedding), database.NullString(sourcePath)).Scan(&id)
	if err != nil {
		return "", database.WriteError("insert identity", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetAll returns every record ordered by insertion.
func (r *IdentityRepository) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_id, person_name, embedding, source_path, created_at
		FROM identities
		ORDER BY id
	`)
	if err != nil {
		return nil, database.ReadError("query identities", err)
	}
	defer rows.Close()

	recs, err := database.ScanIdentities(rows)
	if err != nil {
		return nil, database.ReadError("load identities", err)
	}
	return recs, nil
}

// GetByPerson returns the embeddings of one person.
func (r *IdentityRepository) GetByPerson(ctx context.Context, personID string) ([][]float32, error) {
	rows, err := r.pool.Query(ctx, "SELECT embedding FROM identities WHERE person_id = $1 ORDER BY id", personID)
	if err != nil {
		return nil, database.ReadError("query person embeddings", err)
	}
	defer rows.Close()

	embs, err := database.ScanEmbeddings(rows)
	if err != nil {
		return nil, database.ReadError("load person embeddings", err)
	}
	return embs, nil
}

// Count returns the number of stored records.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, database.ReadError("count identities", err)
	}
	return count, nil
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

// MirroredVector reads back the pgvector mirror of one record.
func (r *IdentityRepository) MirroredVector(ctx context.Context, id string) ([]float32, error) {
	var v pgvector.Vector
	if err := r.pool.QueryRow(ctx, "SELECT embedding_vec FROM identities WHERE id = $1", id).Scan(&v); err != nil {
		return nil, database.ReadError(fmt.Sprintf("read vector mirror of %s", id), err)
	}
	return v.Slice(), nil
}
