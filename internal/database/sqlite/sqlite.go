// Package sqlite provides the embedded relational watchlist backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

func init() {
	database.RegisterBackend(database.BackendSQLite, func(ctx context.Context, opts database.Options) (database.Store, error) {
		return Open(ctx, opts.URL, opts.Dim)
	})
}

// Compile-time interface check.
var _ database.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id   TEXT NOT NULL,
	person_name TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	source_path TEXT,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_identities_person_id ON identities(person_id);
`

// Store implements database.Store on a single SQLite file.
type Store struct {
	db  *sql.DB
	dim int
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string, dim int) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating identities table: %w", err)
	}
	return &Store{db: db, dim: dim}, nil
}

// Backend implements database.Store.
func (s *Store) Backend() database.Backend { return database.BackendSQLite }

// Add inserts one identity record.
func (s *Store) Add(ctx context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error) {
	if err := database.ValidateEmbedding(embedding, s.dim); err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (person_id, person_name, embedding, source_path, created_at) VALUES (?, ?, ?, ?, ?)`,
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
func (s *Store) GetAll(ctx context.Context) ([]database.IdentityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, person_id, person_name, embedding, source_path, created_at FROM identities ORDER BY id`)
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
func (s *Store) GetByPerson(ctx context.Context, personID string) ([][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT embedding FROM identities WHERE person_id = ? ORDER BY id`, personID)
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
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, database.ReadError("count identities", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite db: %w", err)
	}
	return nil
}
