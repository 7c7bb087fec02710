// Package mock provides an in-memory database.Store for testing.
package mock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

var errClosed = errors.New("mock store closed")

// Compile-time interface check.
var _ database.Store = (*Store)(nil)

// Store keeps identity records in memory. Error fields, when set, are
// returned (wrapped with the store error kinds) by the matching method.
type Store struct {
	mu      sync.RWMutex
	records []database.IdentityRecord
	nextID  int
	dim     int
	closed  bool

	// Error injection
	AddError         error
	GetAllError      error
	GetByPersonError error
	CountError       error

	// GetAllCalls counts GetAll invocations so tests can observe caching.
	GetAllCalls int
}

// NewStore creates an empty store enforcing dim (0 disables the dimension check).
func NewStore(dim int) *Store {
	return &Store{dim: dim}
}

// Backend implements database.Store.
func (s *Store) Backend() database.Backend { return database.BackendUnknown }

// Add stores one record.
func (s *Store) Add(_ context.Context, personID, personName string, embedding []float32, sourcePath string) (string, error) {
	if err := database.ValidateEmbedding(embedding, s.dim); err != nil {
		return "", err
	}
	if s.AddError != nil {
		return "", database.WriteError("mock add", s.AddError)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", database.WriteError("mock add", errClosed)
	}
	s.nextID++
	rec := database.IdentityRecord{
		ID:         strconv.Itoa(s.nextID),
		PersonID:   personID,
		PersonName: personName,
		Embedding:  append([]float32(nil), embedding...),
		SourcePath: sourcePath,
		CreatedAt:  time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// GetAll returns a copy of all records in insertion order.
func (s *Store) GetAll(_ context.Context) ([]database.IdentityRecord, error) {
	s.mu.Lock()
	s.GetAllCalls++
	s.mu.Unlock()

	if s.GetAllError != nil {
		return nil, database.ReadError("mock get all", s.GetAllError)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, database.ReadError("mock get all", errClosed)
	}
	out := make([]database.IdentityRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// GetByPerson returns the embeddings of one person.
func (s *Store) GetByPerson(_ context.Context, personID string) ([][]float32, error) {
	if s.GetByPersonError != nil {
		return nil, database.ReadError("mock get by person", s.GetByPersonError)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [][]float32
	for _, r := range s.records {
		if r.PersonID == personID {
			out = append(out, r.Embedding)
		}
	}
	return out, nil
}

// Count returns the number of records.
func (s *Store) Count(_ context.Context) (int, error) {
	if s.CountError != nil {
		return 0, database.ReadError("mock count", s.CountError)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Calls returns the number of GetAll invocations so far.
func (s *Store) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.GetAllCalls
}

// Close marks the store closed; later reads and writes fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
