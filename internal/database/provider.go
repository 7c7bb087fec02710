package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Options carries the connection settings shared by all backends.
type Options struct {
	URL          string // SQLite path, PostgreSQL URL, MySQL DSN or NATS URL
	Dim          int    // Expected embedding dimension, enforced on Add
	MaxOpenConns int
	MaxIdleConns int
	Bucket       string // key-value bucket name (NATS only)
}

// OpenFunc constructs a Store for one backend.
type OpenFunc func(ctx context.Context, opts Options) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[Backend]OpenFunc)
)

// RegisterBackend registers a backend constructor.
// Backend packages call this from init to avoid import cycles.
func RegisterBackend(b Backend, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b] = open
}

// Registered returns the backends linked into the binary.
func Registered() []Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open constructs the store for backend b.
func Open(ctx context.Context, b Backend, opts Options) (Store, error) {
	backendsMu.RLock()
	open, ok := backends[b]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s backend not registered", ErrUnknownBackend, b)
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("%s backend: DATABASE_URL is required", b)
	}
	store, err := open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", b, err)
	}
	return store, nil
}
