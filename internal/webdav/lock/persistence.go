package lock

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Persistence stores locks in SQLite so a restarted server honors
// leases handed out before it went down. Optional: a Manager without
// one keeps locks purely in memory.
type Persistence struct {
	db *sql.DB
}

// NewPersistence opens (or creates) the lock database at path.
func NewPersistence(path string) (*Persistence, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open lock database: %w", err)
	}
	db.SetMaxOpenConns(1)

	p := &Persistence{db: db}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Persistence) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS locks (
			token TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			owner TEXT NOT NULL,
			scope TEXT NOT NULL,
			depth INTEGER NOT NULL,
			timeout INTEGER NOT NULL,
			created INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_locks_path ON locks(path)`,
	}
	for _, q := range queries {
		if _, err := p.db.Exec(q); err != nil {
			return fmt.Errorf("init lock schema: %w", err)
		}
	}
	return nil
}

// Save upserts one lock.
func (p *Persistence) Save(l *Lock) error {
	_, err := p.db.Exec(
		`INSERT INTO locks (token, path, owner, scope, depth, timeout, created)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET
		   path = excluded.path,
		   timeout = excluded.timeout,
		   created = excluded.created`,
		l.Token, l.Path, l.Owner, string(l.Scope), l.Depth, l.Timeout, l.Created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save lock: %w", err)
	}
	return nil
}

// Delete removes one lock by token.
func (p *Persistence) Delete(token string) error {
	if _, err := p.db.Exec(`DELETE FROM locks WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

// DeleteExpired drops every persisted lock whose lease lapsed before now.
func (p *Persistence) DeleteExpired(now time.Time) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM locks WHERE created + timeout < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired locks: %w", err)
	}
	return res.RowsAffected()
}

// LoadAll reads every persisted lock.
func (p *Persistence) LoadAll() ([]*Lock, error) {
	rows, err := p.db.Query(`SELECT token, path, owner, scope, depth, timeout, created FROM locks`)
	if err != nil {
		return nil, fmt.Errorf("load locks: %w", err)
	}
	defer rows.Close()

	var locks []*Lock
	for rows.Next() {
		var l Lock
		var scope string
		var created int64
		if err := rows.Scan(&l.Token, &l.Path, &l.Owner, &scope, &l.Depth, &l.Timeout, &created); err != nil {
			return nil, fmt.Errorf("scan lock row: %w", err)
		}
		l.Scope = Scope(scope)
		l.Created = time.Unix(created, 0)
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}

// Close releases the database handle.
func (p *Persistence) Close() error {
	return p.db.Close()
}
