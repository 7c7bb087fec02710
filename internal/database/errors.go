package database

import (
	"errors"
	"fmt"
)

// Error kinds returned by every backend. Match them with errors.Is.
var (
	ErrStoreWrite       = errors.New("store write failed")
	ErrStoreRead        = errors.New("store read failed")
	ErrInvalidEmbedding = errors.New("invalid embedding")
	ErrUnknownBackend   = errors.New("unknown storage backend")
)

// WriteError tags err as a store write failure.
func WriteError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreWrite, err)
}

// ReadError tags err as a store read failure.
func ReadError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreRead, err)
}
