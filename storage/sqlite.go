package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/domain"
)

// SQLite stores every collection in one local table. It supports deleting a
// column and its tasks in a single transaction.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			fields_json TEXT NOT NULL,
			PRIMARY KEY(collection, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, owner_id);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) List(ctx context.Context, c baas.Collection, ownerID string) ([]baas.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fields_json FROM documents WHERE collection = ? AND owner_id = ?`, string(c), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := []baas.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, baas.Document{ID: id, OwnerID: ownerID, Fields: fields})
	}
	return docs, rows.Err()
}

func (s *SQLite) Create(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	raw, err := sonic.MarshalString(fields)
	if err != nil {
		return baas.Document{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(collection, id, owner_id, fields_json) VALUES(?, ?, ?, ?) ON CONFLICT(collection, id) DO NOTHING`,
		string(c), id, ownerID, raw)
	if err != nil {
		return baas.Document{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return baas.Document{}, fmt.Errorf("%s %s: %w", c, id, domain.ErrConflict)
	}
	return baas.Document{ID: id, OwnerID: ownerID, Fields: fields}, nil
}

func (s *SQLite) Update(ctx context.Context, c baas.Collection, ownerID, id string, fields map[string]any) (baas.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return baas.Document{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getFields(ctx, tx, c, ownerID, id)
	if err != nil {
		return baas.Document{}, err
	}
	for k, v := range fields {
		cur[k] = v
	}
	raw, err := sonic.MarshalString(cur)
	if err != nil {
		return baas.Document{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET fields_json = ? WHERE collection = ? AND id = ? AND owner_id = ?`, raw, string(c), id, ownerID); err != nil {
		return baas.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return baas.Document{}, err
	}
	return baas.Document{ID: id, OwnerID: ownerID, Fields: cur}, nil
}

func (s *SQLite) Delete(ctx context.Context, c baas.Collection, ownerID, id string) error {
	return deleteRow(ctx, s.db, c, ownerID, id)
}

// DeleteCascade removes the parent and every listed child, or nothing.
func (s *SQLite) DeleteCascade(ctx context.Context, ownerID string, parent baas.Collection, parentID string, children baas.Collection, childIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteRow(ctx, tx, parent, ownerID, parentID); err != nil {
		return err
	}
	for _, id := range childIDs {
		if err := deleteRow(ctx, tx, children, ownerID, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteRow(ctx context.Context, db execer, c baas.Collection, ownerID, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ? AND owner_id = ?`, string(c), id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", c, id, domain.ErrNotFound)
	}
	return nil
}

func getFields(ctx context.Context, tx *sql.Tx, c baas.Collection, ownerID, id string) (map[string]any, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT fields_json FROM documents WHERE collection = ? AND id = ? AND owner_id = ?`, string(c), id, ownerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", c, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeFields(raw)
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if err := sonic.UnmarshalString(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
