// Package index keeps a SQLite table of every declaration in a workspace
// and answers definition lookups from it without a language server.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"erdgen/internal/symbols"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	mod_time   INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS declarations (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	file_path  TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	container  TEXT NOT NULL DEFAULT '',
	line_start INTEGER NOT NULL,
	col_start  INTEGER NOT NULL,
	line_end   INTEGER NOT NULL,
	col_end    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_declarations_name ON declarations(name);
CREATE INDEX IF NOT EXISTS idx_declarations_file ON declarations(file_path);
`

// Declaration is one indexed symbol.
type Declaration struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      symbols.Kind   `json:"kind"`
	File      symbols.FileID `json:"file"`
	Container string         `json:"container,omitempty"`
	Range     symbols.Range  `json:"range"`
}

// Location converts the declaration into a definition target.
func (d Declaration) Location() symbols.Location {
	return symbols.Location{File: d.File, Range: d.Range}
}

// FileRecord is the complete declaration set of one file.
type FileRecord struct {
	File         symbols.FileID
	ModTime      int64
	Declarations []Declaration
}

// Stats summarizes the store contents.
type Stats struct {
	Files        int `json:"files"`
	Declarations int `json:"declarations"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", path, err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps the declarations of every file in records, in one
// transaction.
func (s *Store) Replace(ctx context.Context, records []FileRecord, indexedAt int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsertFile, err := tx.PrepareContext(ctx, `
		INSERT INTO files (path, mod_time, indexed_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time, indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("prepare files: %w", err)
	}
	defer upsertFile.Close()

	dropDecls, err := tx.PrepareContext(ctx, `DELETE FROM declarations WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer dropDecls.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO declarations
			(id, name, kind, file_path, container, line_start, col_start, line_end, col_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, rec := range records {
		if _, err = upsertFile.ExecContext(ctx, string(rec.File), rec.ModTime, indexedAt); err != nil {
			return fmt.Errorf("record %s: %w", rec.File, err)
		}
		if _, err = dropDecls.ExecContext(ctx, string(rec.File)); err != nil {
			return fmt.Errorf("clear %s: %w", rec.File, err)
		}
		for _, d := range rec.Declarations {
			_, err = insert.ExecContext(ctx,
				d.ID, d.Name, d.Kind.String(), string(rec.File), d.Container,
				d.Range.Start.Line, d.Range.Start.Character, d.Range.End.Line, d.Range.End.Character,
			)
			if err != nil {
				return fmt.Errorf("insert %s in %s: %w", d.Name, rec.File, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Prune removes every file not in keep, with its declarations, and
// returns how many files were dropped.
func (s *Store) Prune(ctx context.Context, keep []symbols.FileID) (int, error) {
	known, err := s.ModTimes(ctx)
	if err != nil {
		return 0, err
	}
	live := make(map[symbols.FileID]bool, len(keep))
	for _, f := range keep {
		live[f] = true
	}

	pruned := 0
	for file := range known {
		if live[file] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM declarations WHERE file_path = ?`, string(file)); err != nil {
			return pruned, fmt.Errorf("prune %s: %w", file, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, string(file)); err != nil {
			return pruned, fmt.Errorf("prune %s: %w", file, err)
		}
		pruned++
	}
	return pruned, nil
}

// ModTimes returns the modification time recorded for each indexed file.
func (s *Store) ModTimes(ctx context.Context) (map[symbols.FileID]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, mod_time FROM files`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	out := make(map[symbols.FileID]int64)
	for rows.Next() {
		var path string
		var mod int64
		if err := rows.Scan(&path, &mod); err != nil {
			return nil, err
		}
		out[symbols.FileID(path)] = mod
	}
	return out, rows.Err()
}

// InFile lists the declarations of file in source order.
func (s *Store) InFile(ctx context.Context, file symbols.FileID) ([]Declaration, error) {
	return s.query(ctx, `
		SELECT id, name, kind, file_path, container, line_start, col_start, line_end, col_end
		FROM declarations WHERE file_path = ?
		ORDER BY line_start, col_start`, string(file))
}

// Named lists the declarations called name.
func (s *Store) Named(ctx context.Context, name string) ([]Declaration, error) {
	return s.query(ctx, `
		SELECT id, name, kind, file_path, container, line_start, col_start, line_end, col_end
		FROM declarations WHERE name = ?
		ORDER BY file_path, line_start`, name)
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM files),
		(SELECT COUNT(*) FROM declarations)`).Scan(&st.Files, &st.Declarations)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Declaration, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query declarations: %w", err)
	}
	defer rows.Close()

	var out []Declaration
	for rows.Next() {
		var (
			d    Declaration
			kind string
			file string
		)
		err := rows.Scan(&d.ID, &d.Name, &kind, &file, &d.Container,
			&d.Range.Start.Line, &d.Range.Start.Character, &d.Range.End.Line, &d.Range.End.Character)
		if err != nil {
			return nil, err
		}
		d.Kind = symbols.ParseKind(kind)
		d.File = symbols.FileID(file)
		d.Range.File = d.File
		out = append(out, d)
	}
	return out, rows.Err()
}
