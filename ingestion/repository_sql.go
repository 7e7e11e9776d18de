package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/mattn/go-sqlite3"
)

// TableName is the table holding records of kind.
func TableName(kind Kind) string {
	return "ingest_" + string(kind)
}

func columnType(t FieldType, postgres bool) string {
	switch {
	case t == FieldInt && postgres:
		return "BIGINT"
	case t == FieldInt:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func createTableSQL(s Schema, postgres bool) string {
	id := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if postgres {
		id = "id BIGSERIAL PRIMARY KEY"
	}
	cols := []string{id}
	for _, f := range s.Fields {
		col := f.Name + " " + columnType(f.Type, postgres)
		if f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", TableName(s.Kind), strings.Join(cols, ", "))
}

func insertSQL(s Schema, postgres bool) string {
	names := make([]string, 0, len(s.Fields))
	marks := make([]string, 0, len(s.Fields))
	for i, f := range s.Fields {
		names = append(names, f.Name)
		if postgres {
			marks = append(marks, fmt.Sprintf("$%d", i+1))
		} else {
			marks = append(marks, "?")
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableName(s.Kind), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func insertArgs(s Schema, r Record) []any {
	args := make([]any, 0, len(s.Fields))
	for _, f := range s.Fields {
		args = append(args, r[f.Name])
	}
	return args
}

// SQLiteRepository stores records of one kind in SQLite.
type SQLiteRepository struct {
	db     *sql.DB
	schema Schema
}

// OpenSQLite opens the database at path for use by SQLite repositories.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteRepository creates the table for kind if needed.
func NewSQLiteRepository(ctx context.Context, db *sql.DB, kind Kind) (*SQLiteRepository, error) {
	s, ok := SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(s, false)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", TableName(kind), err)
	}
	return &SQLiteRepository{db: db, schema: s}, nil
}

// Save implements Repository.
func (r *SQLiteRepository) Save(ctx context.Context, rec Record) (bool, error) {
	n, err := r.SaveBatch(ctx, []Record{rec})
	return n == 1, err
}

// SaveBatch implements Repository. The batch is written in one transaction.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(r.schema, false))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, insertArgs(r.schema, rec)...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert record %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// Count returns the number of stored rows.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+TableName(r.schema.Kind)).Scan(&n)
	return n, err
}

// PgxPool is the part of a pgx pool the Postgres repository uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores records of one kind in PostgreSQL.
type PostgresRepository struct {
	pool   PgxPool
	schema Schema
}

// NewPostgresRepository creates the table for kind if needed.
func NewPostgresRepository(ctx context.Context, pool PgxPool, kind Kind) (*PostgresRepository, error) {
	s, ok := SchemaFor(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := pool.Exec(ctx, createTableSQL(s, true)); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", TableName(kind), err)
	}
	return &PostgresRepository{pool: pool, schema: s}, nil
}

// Save implements Repository.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertSQL(r.schema, true), insertArgs(r.schema, rec)...)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveBatch implements Repository. The batch is written in one transaction.
func (r *PostgresRepository) SaveBatch(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	query := insertSQL(r.schema, true)
	for i, rec := range records {
		if _, err := tx.Exec(ctx, query, insertArgs(r.schema, rec)...); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("insert record %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}
