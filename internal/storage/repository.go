package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cariya/internal/docstore"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a docstore.Store persisted in a single SQLite table.
// Each document's fields are kept as a JSON object.
type SQLiteRepository struct {
	db *sql.DB
}

var _ docstore.Store = (*SQLiteRepository)(nil)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: transactions are serialized, so per-user
	// read-modify-write sequences never interleave.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, r.db, collection, id)
}

func (r *SQLiteRepository) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return set(ctx, r.db, collection, id, fields)
}

func (r *SQLiteRepository) Update(ctx context.Context, collection, id string, partial docstore.Fields) error {
	return r.RunTransaction(ctx, func(tx docstore.Ops) error {
		return tx.Update(ctx, collection, id, partial)
	})
}

func (r *SQLiteRepository) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	return query(ctx, r.db, collection, filters)
}

// RunTransaction runs fn inside a database transaction and commits when fn
// returns nil.
func (r *SQLiteRepository) RunTransaction(ctx context.Context, fn func(tx docstore.Ops) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, t.tx, collection, id)
}

func (t *sqlTx) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return set(ctx, t.tx, collection, id, fields)
}

func (t *sqlTx) Update(ctx context.Context, collection, id string, partial docstore.Fields) error {
	doc, err := get(ctx, t.tx, collection, id)
	if err != nil {
		return err
	}
	return set(ctx, t.tx, collection, id, doc.Fields.Merge(partial))
}

func (t *sqlTx) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	return query(ctx, t.tx, collection, filters)
}

func get(ctx context.Context, q querier, collection, id string) (docstore.Document, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

func set(ctx context.Context, q querier, collection, id string, fields docstore.Fields) error {
	if fields == nil {
		fields = docstore.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields)
		VALUES (?, ?, ?)
		ON CONFLICT (collection, id)
		DO UPDATE SET fields = excluded.fields, updated_at = CURRENT_TIMESTAMP`,
		collection, id, string(raw))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func query(ctx context.Context, q querier, collection string, filters []docstore.Filter) ([]docstore.Document, error) {
	var (
		sb   strings.Builder
		args = []any{collection}
	)
	sb.WriteString(`SELECT id, fields FROM documents WHERE collection = ?`)
	for _, f := range filters {
		if !fieldNamePattern.MatchString(f.Field) {
			return nil, fmt.Errorf("query %s: invalid field name %q", collection, f.Field)
		}
		sb.WriteString(` AND json_extract(fields, ?) = ?`)
		args = append(args, "$."+f.Field, sqlValue(f.Value))
	}
	sb.WriteString(` ORDER BY id`)

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

// sqlValue maps filter values onto what json_extract returns: JSON true and
// false come back as 1 and 0.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func decodeFields(raw string) (docstore.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var fields docstore.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = docstore.Fields{}
	}
	return fields, nil
}
