// Package store persists analysed commits in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ipxe/people-mareo-ipxe/pkg/elfinfo"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Commit is a stored revision.
type Commit struct {
	ID    int64
	Hash  string
	Title string
	Time  time.Time
}

// Short returns the abbreviated hash.
func (c Commit) Short() string {
	if len(c.Hash) > 8 {
		return c.Hash[:8]
	}
	return c.Hash
}

// StoredArtifact is an artifact together with its row identifiers.
type StoredArtifact struct {
	ID       int64
	CommitID int64
	elfinfo.Artifact
}

// Store is a SQLite-backed store of commits, artifacts, sections and
// symbols. Deleting a commit or an artifact removes everything it owns.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// Writes are serialised by the walker; one connection also keeps the
	// foreign key pragma and in-memory databases consistent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hash TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		committed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		commit_id INTEGER NOT NULL,
		target TEXT NOT NULL,
		name TEXT NOT NULL,
		kind INTEGER NOT NULL,
		digest TEXT,
		UNIQUE(commit_id, target, name),
		FOREIGN KEY(commit_id) REFERENCES commits(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		execinstr BOOLEAN NOT NULL,
		progbits BOOLEAN NOT NULL,
		writable BOOLEAN NOT NULL,
		FOREIGN KEY(artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artifact_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		role INTEGER NOT NULL,
		FOREIGN KEY(artifact_id) REFERENCES artifacts(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sections_artifact ON sections(artifact_id);
	CREATE INDEX IF NOT EXISTS idx_symbols_artifact ON symbols(artifact_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertCommit returns the stored commit with c's hash, creating it from c
// when absent. Title and time of an existing commit are left unchanged.
func (s *Store) UpsertCommit(ctx context.Context, c Commit) (Commit, bool, error) {
	var (
		out     Commit
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, created, err = upsertCommit(ctx, tx, c)
		return err
	})
	return out, created, err
}

// ReplaceArtifacts deletes every artifact of the commit and inserts arts in
// their place, in one transaction.
func (s *Store) ReplaceArtifacts(ctx context.Context, commitID int64, arts []*elfinfo.Artifact) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := deleteArtifacts(ctx, tx, commitID); err != nil {
			return err
		}
		return insertArtifacts(ctx, tx, commitID, arts)
	})
}

// DeleteArtifacts removes every artifact of the commit and returns how many
// were removed.
func (s *Store) DeleteArtifacts(ctx context.Context, commitID int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = deleteArtifacts(ctx, tx, commitID)
		return err
	})
	return n, err
}

// SaveCommit records c and replaces its artifacts with arts in a single
// transaction. It reports whether the commit was seen for the first time.
func (s *Store) SaveCommit(ctx context.Context, c Commit, arts []*elfinfo.Artifact) (Commit, bool, error) {
	var (
		out     Commit
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, created, err = upsertCommit(ctx, tx, c)
		if err != nil {
			return err
		}
		if !created {
			if _, err := deleteArtifacts(ctx, tx, out.ID); err != nil {
				return err
			}
		}
		return insertArtifacts(ctx, tx, out.ID, arts)
	})
	return out, created, err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upsertCommit(ctx context.Context, tx *sql.Tx, c Commit) (Commit, bool, error) {
	if strings.TrimSpace(c.Hash) == "" {
		return Commit{}, false, errors.New("upsert commit: hash required")
	}
	row := tx.QueryRowContext(ctx, `SELECT id, hash, title, committed_at FROM commits WHERE hash = ?`, c.Hash)
	existing, err := scanCommit(row)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Commit{}, false, fmt.Errorf("upsert commit %s: %w", c.Hash, err)
	}

	c.Time = c.Time.UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO commits (hash, title, committed_at) VALUES (?, ?, ?)`,
		c.Hash, c.Title, c.Time)
	if err != nil {
		return Commit{}, false, fmt.Errorf("insert commit %s: %w", c.Hash, err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return Commit{}, false, err
	}
	return c, true, nil
}

func deleteArtifacts(ctx context.Context, tx *sql.Tx, commitID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE commit_id = ?`, commitID)
	if err != nil {
		return 0, fmt.Errorf("delete artifacts: %w", err)
	}
	return res.RowsAffected()
}

func insertArtifacts(ctx context.Context, tx *sql.Tx, commitID int64, arts []*elfinfo.Artifact) error {
	if len(arts) == 0 {
		return nil
	}
	artStmt, err := tx.PrepareContext(ctx, `INSERT INTO artifacts (commit_id, target, name, kind, digest) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer artStmt.Close()
	secStmt, err := tx.PrepareContext(ctx, `INSERT INTO sections (artifact_id, name, size, execinstr, progbits, writable) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer secStmt.Close()
	symStmt, err := tx.PrepareContext(ctx, `INSERT INTO symbols (artifact_id, name, size, role) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer symStmt.Close()

	for _, a := range arts {
		if a == nil {
			continue
		}
		res, err := artStmt.ExecContext(ctx, commitID, a.Target, a.Name, int(a.Kind), a.Digest)
		if err != nil {
			return fmt.Errorf("insert artifact %s/%s: %w", a.Target, a.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, sec := range a.Sections {
			if _, err := secStmt.ExecContext(ctx, id, sec.Name, int64(sec.Size), sec.ExecInstr, sec.ProgBits, sec.Writable); err != nil {
				return fmt.Errorf("insert section %s of %s: %w", sec.Name, a.Name, err)
			}
		}
		for _, sym := range a.Symbols {
			if _, err := symStmt.ExecContext(ctx, id, sym.Name, int64(sym.Size), int(sym.Role)); err != nil {
				return fmt.Errorf("insert symbol %s of %s: %w", sym.Name, a.Name, err)
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommit(row rowScanner) (Commit, error) {
	var c Commit
	if err := row.Scan(&c.ID, &c.Hash, &c.Title, &c.Time); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Commit{}, ErrNotFound
		}
		return Commit{}, err
	}
	return c, nil
}
