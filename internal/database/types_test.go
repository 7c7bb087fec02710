package database

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		kind Kind
	}{
		{"sqlite", BackendSQLite, KindRelational},
		{"PostgreSQL", BackendPostgres, KindRelational},
		{"mariadb", BackendMySQL, KindRelational},
		{" nats ", BackendNATS, KindKeyValue},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseBackend(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseBackend(%q) = %v, want %v", tc.in, got, tc.want)
			}
			if got.Kind() != tc.kind {
				t.Errorf("%v.Kind() = %v, want %v", got, got.Kind(), tc.kind)
			}
		})
	}

	if _, err := ParseBackend("redis"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestValidateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		dim     int
		wantErr bool
	}{
		{"exact dimension", []float32{1, 0, 0}, 3, false},
		{"wrong dimension", []float32{1, 0}, 3, true},
		{"empty", nil, 3, true},
		{"nan", []float32{1, float32(math.NaN()), 0}, 3, true},
		{"inf", []float32{float32(math.Inf(1)), 0, 0}, 3, true},
		{"dimension unchecked", []float32{1, 2}, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEmbedding(tc.vec, tc.dim)
			if tc.wantErr && !errors.Is(err, ErrInvalidEmbedding) {
				t.Errorf("expected ErrInvalidEmbedding, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestErrorKinds_WrapCause(t *testing.T) {
	cause := errors.New("connection reset")

	werr := WriteError("insert identity", cause)
	if !errors.Is(werr, ErrStoreWrite) || !errors.Is(werr, cause) {
		t.Errorf("write error should match kind and cause: %v", werr)
	}

	rerr := ReadError("select identities", cause)
	if !errors.Is(rerr, ErrStoreRead) || errors.Is(rerr, ErrStoreWrite) {
		t.Errorf("read error should match only the read kind: %v", rerr)
	}
}

func TestOpen_UnregisteredBackend(t *testing.T) {
	_, err := Open(context.Background(), Backend(99), Options{URL: "x"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestOpen_RequiresURL(t *testing.T) {
	const testBackend = Backend(98)
	called := false
	RegisterBackend(testBackend, func(ctx context.Context, opts Options) (Store, error) {
		called = true
		return nil, nil
	})

	if _, err := Open(context.Background(), testBackend, Options{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if called {
		t.Error("constructor should not run without a URL")
	}
}
