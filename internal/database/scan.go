package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// Rows is the subset of *sql.Rows used by ScanIdentities.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// ScanIdentities reads rows of (id, person_id, person_name, embedding, source_path, created_at)
// as produced by the relational backends.
func ScanIdentities(rows Rows) ([]IdentityRecord, error) {
	var out []IdentityRecord
	for rows.Next() {
		var (
			id         int64
			rec        IdentityRecord
			blob       []byte
			sourcePath sql.NullString
			createdAt  time.Time
		)
		if err := rows.Scan(&id, &rec.PersonID, &rec.PersonName, &blob, &sourcePath, &createdAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		emb, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding of identity %d: %w", id, err)
		}
		rec.ID = strconv.FormatInt(id, 10)
		rec.Embedding = emb
		rec.SourcePath = sourcePath.String
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// ScanEmbeddings reads single-column rows of encoded embeddings.
func ScanEmbeddings(rows Rows) ([][]float32, error) {
	var out [][]float32
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// NullString maps an empty string to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
