// Package mariadb provides the MySQL/MariaDB watchlist backend.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

func init() {
	database.RegisterBackend(database.BackendMySQL, func(ctx context.Context, opts database.Options) (database.Store, error) {
		pool, err := NewPool(ctx, opts)
		if err != nil {
			return nil, err
		}
		if err := pool.ensureSchema(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
		return NewIdentityRepository(pool, opts.Dim), nil
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id          BIGINT AUTO_INCREMENT PRIMARY KEY,
	person_id   VARCHAR(255) NOT NULL,
	person_name VARCHAR(255) NOT NULL,
	embedding   LONGBLOB NOT NULL,
	source_path TEXT NULL,
	created_at  DATETIME(6) NOT NULL,
	INDEX idx_identities_person_id (person_id)
)`

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// normalizeDSN forces parseTime so DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(ctx context.Context, opts database.Options) (*Pool, error) {
	if opts.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}
	dsn, err := normalizeDSN(opts.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	maxOpen, maxIdle := 5, 2
	if opts.MaxOpenConns > 0 {
		maxOpen = opts.MaxOpenConns
	}
	if opts.MaxIdleConns > 0 {
		maxIdle = opts.MaxIdleConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

func (p *Pool) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
