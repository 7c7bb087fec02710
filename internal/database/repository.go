package database

import (
	"context"
)

// IdentityReader provides read-only access to the watchlist
type IdentityReader interface {
	// GetAll returns every stored record in insertion order
	GetAll(ctx context.Context) ([]IdentityRecord, error)
	// GetByPerson returns the embeddings stored for one person, oldest first
	GetByPerson(ctx context.Context, personID string) ([][]float32, error)
	// Count returns the total number of stored records
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to the watchlist
type IdentityWriter interface {
	IdentityReader

	// Add stores one embedding and returns the new record ID.
	// Fails with ErrInvalidEmbedding before touching storage, or ErrStoreWrite on persistence failure.
	// Callers that match against the store must invalidate their matcher cache afterwards.
	Add(ctx context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error)
}

// Store is a watchlist backend owning its connection.
type Store interface {
	IdentityWriter

	// Backend reports which implementation serves the store
	Backend() Backend
	// Close releases the underlying connection
	Close() error
}
