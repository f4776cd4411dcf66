// Package migrate brings a workspace database up to the current document
// schema. Steps live in sql/NNNN_name.sql files; each applied step is
// recorded in schema_migrations, one row per step, so a workspace created
// by an older build picks up only what it is missing.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var stepFS embed.FS

type step struct {
	version int
	name    string
	stmts   string
}

func loadSteps() ([]step, error) {
	names, err := fs.Glob(stepFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(names))
	seen := map[int]string{}
	for _, fname := range names {
		base := path.Base(fname)
		numPart, _, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: name must be NNNN_description.sql", base)
		}
		v, err := strconv.Atoi(numPart)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix: %w", base, err)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migration %s: version %d already taken by %s", base, v, prev)
		}
		seen[v] = base
		stmts, err := stepFS.ReadFile(fname)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{version: v, name: base, stmts: string(stmts)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// Migrate applies every pending step in version order. Each step runs in
// its own transaction together with its schema_migrations row, so a failed
// step leaves the database at the last fully applied version.
func Migrate(db *sql.DB) error {
	steps, err := loadSteps()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations(
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersion(db)
	if err != nil {
		return err
	}

	for _, s := range steps {
		if s.version <= applied {
			continue
		}
		if err := applyStep(db, s); err != nil {
			return err
		}
	}
	return nil
}

// Version reports the highest applied migration version, 0 for a fresh
// database.
func Version(db *sql.DB) (int, error) {
	return appliedVersion(db)
}

func appliedVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	return int(v.Int64), nil
}

func applyStep(db *sql.DB, s step) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.stmts); err != nil {
		return fmt.Errorf("apply %s: %w", s.name, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, ?)`,
		s.version, s.name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record %s: %w", s.name, err)
	}
	return tx.Commit()
}
