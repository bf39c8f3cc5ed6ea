package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"checkin/internal/docstore"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{Client: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// OpenDocuments returns the document store for backend: "memory" keeps
// everything in process, anything else connects to Postgres.
func OpenDocuments(ctx context.Context, backend, connString string) (docstore.Store, error) {
	if backend == "memory" {
		return docstore.NewMemory(), nil
	}
	db, err := NewDB(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	docs, err := docstore.NewPostgres(ctx, db.Client)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return docs, nil
}
