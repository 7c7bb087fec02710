package mariadb

import (
	"context"
	"strconv"
	"time"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

// Compile-time interface check.
var _ database.Store = (*IdentityRepository)(nil)

// IdentityRepository provides MariaDB-backed watchlist storage.
type IdentityRepository struct {
	pool *Pool
	dim  int
}

// NewIdentityRepository creates a repository enforcing embeddings of length dim.
func NewIdentityRepository(pool *Pool, dim int) *IdentityRepository {
	return &IdentityRepository{pool: pool, dim: dim}
}

// Backend implements database.Store.
func (r *IdentityRepository) Backend() database.Backend { return database.BackendMySQL }

// Add inserts one identity record.
func (r *IdentityRepository) Add(ctx context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error) {
	if err := database.ValidateEmbedding(embedding, r.dim); err != nil {
		return "", err
	}
	res, err := r.pool.db.ExecContext(ctx,
		"INSERT INTO identities (person_id, person_name, embedding, source_path, created_at) VALUES (?, ?, ?, ?, ?)",
		personID, personName, database.EncodeEmbedding(embedding), database.NullString(sourcePath), time.Now().UTC(),
	)
	if err != nil {
		return "", database.WriteError("insert identity", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", database.WriteError("read inserted id", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// GetAll returns every record ordered by insertion.
func (r *IdentityRepository) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := r.pool.db.QueryContext(ctx,
		"SELECT id, person_id, person_name, embedding, source_path, created_at FROM identities ORDER BY id")
	if err != nil {
		return nil, database.ReadError("query identities", err)
	}
	defer func() { _ = rows.Close() }()

	recs, err := database.ScanIdentities(rows)
	if err != nil {
		return nil, database.ReadError("load identities", err)
	}
	return recs, nil
}

// GetByPerson returns the embeddings of one person.
func (r *IdentityRepository) GetByPerson(ctx context.Context, personID string) ([][]float32, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT embedding FROM identities WHERE person_id = ? ORDER BY id", personID)
	if err != nil {
		return nil, database.ReadError("query person embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	embs, err := database.ScanEmbeddings(rows)
	if err != nil {
		return nil, database.ReadError("load person embeddings", err)
	}
	return embs, nil
}

// Count returns the number of stored records.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&n); err != nil {
		return 0, database.ReadError("count identities", err)
	}
	return n, nil
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}
