package database

import (
	"fmt"
	"strings"
	"time"
)

// IdentityRecord is one stored face embedding of a known person.
// A person may own several records.
type IdentityRecord struct {
	ID         string
	PersonID   string
	PersonName string
	Embedding  []float32
	SourcePath string
	CreatedAt  time.Time
}

// Backend selects the storage implementation at startup.
type Backend int

// Backend values. The zero value is invalid so an unset backend fails loudly.
const (
	BackendUnknown Backend = iota
	BackendSQLite
	BackendPostgres
	BackendMySQL
	BackendNATS
)

// Kind groups backends by their storage model.
type Kind int

// Kind values.
const (
	KindRelational Kind = iota + 1
	KindKeyValue
)

func (k Kind) String() string {
	switch k {
	case KindRelational:
		return "relational"
	case KindKeyValue:
		return "key-value"
	default:
		return "unknown"
	}
}

func (b Backend) String() string {
	switch b {
	case BackendSQLite:
		return "sqlite"
	case BackendPostgres:
		return "postgres"
	case BackendMySQL:
		return "mysql"
	case BackendNATS:
		return "nats"
	default:
		return "unknown"
	}
}

// Kind reports the storage model of the backend.
func (b Backend) Kind() Kind {
	switch b {
	case BackendSQLite, BackendPostgres, BackendMySQL:
		return KindRelational
	case BackendNATS:
		return KindKeyValue
	default:
		return 0
	}
}

// ParseBackend converts a configuration value into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "mysql", "mariadb":
		return BackendMySQL, nil
	case "nats", "kv":
		return BackendNATS, nil
	default:
		return BackendUnknown, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}
