package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	data        JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_list_id      ON documents (collection, (data->'listId'));
CREATE INDEX IF NOT EXISTS idx_documents_event_number ON documents (collection, (data->'eventNumber'));
CREATE INDEX IF NOT EXISTS idx_documents_student_id   ON documents (collection, (data->'studentId'));
`

// Postgres stores every collection in a single JSONB table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle and creates the schema.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("docstore: migrate: %w", err)
	}
	return &Postgres{db: db}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get returns one document.
func (p *Postgres) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return Snapshot{ID: id, Data: doc}, nil
}

// All returns every document of a collection.
func (p *Postgres) All(ctx context.Context, collection string) ([]Snapshot, error) {
	return p.Find(ctx, collection, Query{})
}

// Find runs an equality query. Values compare as jsonb, so 42 and "42"
// are different values.
func (p *Postgres) Find(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	query, args, err := buildFind(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Snapshot
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		res = append(res, Snapshot{ID: id, Data: doc})
	}
	return res, rows.Err()
}

// Add stores doc under a generated id.
func (p *Postgres) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.NewString()
	if err := setDoc(ctx, p.db, collection, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Set overwrites a document.
func (p *Postgres) Set(ctx context.Context, collection, id string, doc Document) error {
	return setDoc(ctx, p.db, collection, id, doc)
}

// Update merges fields into an existing document.
func (p *Postgres) Update(ctx context.Context, collection, id string, fields Document) error {
	return updateDoc(ctx, p.db, collection, id, fields)
}

// Delete removes a document.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	return deleteDoc(ctx, p.db, collection, id)
}

// Batch starts a batch committed in one transaction.
func (p *Postgres) Batch() Batch {
	return &postgresBatch{db: p.db}
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the underlying handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type postgresBatch struct {
	ops
	db *sql.DB
}

func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			err = setDoc(ctx, tx, o.collection, o.id, o.doc)
		case opUpdate:
			err = updateDoc(ctx, tx, o.collection, o.id, o.doc)
		case opDelete:
			err = deleteDoc(ctx, tx, o.collection, o.id)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func setDoc(ctx context.Context, db execer, collection, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = NOW()
	`, collection, id, string(raw))
	return err
}

func updateDoc(ctx context.Context, db execer, collection, id string, fields Document) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, string(raw))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func deleteDoc(ctx context.Context, db execer, collection, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return err
}

// buildFind renders q as SQL. Field names are bound as parameters, never
// spliced into the statement.
func buildFind(collection string, q Query) (string, []any, error) {
	args := []any{collection}
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	clauses := []string{"collection = $1"}
	for _, f := range q.Filters {
		val, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		clauses = append(clauses, "data->("+param(f.Field)+"::text) = "+param(string(val))+"::jsonb")
	}

	query := "SELECT id, data FROM documents WHERE " + strings.Join(clauses, " AND ")
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query += " ORDER BY data->(" + param(q.OrderBy) + "::text) " + dir + ", id"
	} else {
		query += " ORDER BY id"
	}
	if q.Limit > 0 {
		query += " LIMIT " + param(q.Limit)
	}
	return query, args, nil
}
