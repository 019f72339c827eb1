// Package props is a SQLite-backed dead-property store. VFS backends
// that cannot persist arbitrary name/value pairs next to their content
// (object storage, chiefly) delegate property calls here.
package props

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rutexd/minidav/internal/vfs"
	"github.com/rutexd/minidav/internal/weberr"
)

// Store persists dead properties keyed by (path, namespace, name).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the property database at path. Pass
// ":memory:" for an ephemeral store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open property database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			path TEXT NOT NULL,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (path, namespace, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_path ON properties(path)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init property schema: %w", err)
		}
	}
	return nil
}

// ValidateName rejects property names that cannot round-trip through
// the XML layer.
func ValidateName(namespace, name string) error {
	if name == "" {
		return weberr.New(weberr.BadRequest, "empty property name")
	}
	if strings.ContainsAny(name, "<>&\"' \t\n") {
		return weberr.New(weberr.BadRequest, "invalid property name: "+name)
	}
	if strings.ContainsAny(namespace, "<>\"") {
		return weberr.New(weberr.BadRequest, "invalid property namespace: "+namespace)
	}
	return nil
}

// Get returns the value of one property and whether it exists.
func (s *Store) Get(ctx context.Context, path, namespace, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM properties WHERE path = ? AND namespace = ? AND name = ?`,
		path, namespace, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, weberr.Wrap(weberr.Internal, "query property", err)
	}
	return value, true, nil
}

// Set upserts one property.
func (s *Store) Set(ctx context.Context, path, namespace, name, value string) error {
	if err := ValidateName(namespace, name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (path, namespace, name, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path, namespace, name) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		path, namespace, name, value, time.Now().Unix())
	if err != nil {
		return weberr.Wrap(weberr.Internal, "set property", err)
	}
	return nil
}

// Remove deletes one property. Removing a missing property is not an
// error.
func (s *Store) Remove(ctx context.Context, path, namespace, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM properties WHERE path = ? AND namespace = ? AND name = ?`,
		path, namespace, name)
	if err != nil {
		return weberr.Wrap(weberr.Internal, "remove property", err)
	}
	return nil
}

// List returns all properties of one resource.
func (s *Store) List(ctx context.Context, path string) (map[vfs.PropKey]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, name, value FROM properties WHERE path = ?`, path)
	if err != nil {
		return nil, weberr.Wrap(weberr.Internal, "list properties", err)
	}
	defer rows.Close()

	out := make(map[vfs.PropKey]string)
	for rows.Next() {
		var ns, name, value string
		if err := rows.Scan(&ns, &name, &value); err != nil {
			return nil, weberr.Wrap(weberr.Internal, "scan property row", err)
		}
		out[vfs.PropKey{Namespace: ns, Name: name}] = value
	}
	return out, rows.Err()
}

// DeleteTree removes the properties of path and everything below it.
func (s *Store) DeleteTree(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM properties WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		path, treePattern(path))
	if err != nil {
		return weberr.Wrap(weberr.Internal, "delete property tree", err)
	}
	return nil
}

// CopyTree duplicates the properties of src and its subtree onto dst.
func (s *Store) CopyTree(ctx context.Context, src, dst string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return weberr.Wrap(weberr.Internal, "begin property copy", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO properties (path, namespace, name, value, updated_at)
		 SELECT ? || substr(path, ?), namespace, name, value, ?
		 FROM properties WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		dst, len(src)+1, now, src, treePattern(src))
	if err != nil {
		return weberr.Wrap(weberr.Internal, "copy property tree", err)
	}
	return tx.Commit()
}

// MoveTree re-keys the properties of src and its subtree onto dst.
func (s *Store) MoveTree(ctx context.Context, src, dst string) error {
	if err := s.CopyTree(ctx, src, dst); err != nil {
		return err
	}
	return s.DeleteTree(ctx, src)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// treePattern builds the LIKE pattern matching strict descendants,
// escaping LIKE metacharacters in the path itself.
func treePattern(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(path)
	if escaped == "/" {
		return `/%`
	}
	return escaped + `/%`
}
