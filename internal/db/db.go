// Package db opens the SQLite file that backs a workspace. All project
// state lives in .obralink/obralink.db inside the workspace directory.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".obralink"
	dbFile       = "obralink.db"
)

type Config struct {
	Workspace string
}

func (c Config) dir() string {
	ws := c.Workspace
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, workspaceDir)
}

// EnsureWorkspace creates the workspace state directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := Config{Workspace: workspace}.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Open opens the workspace database, creating the state directory on first
// use. Foreign keys are enforced and writers wait out short lock contention
// instead of failing, since the serve command and the CLI may share a file.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(Config{Workspace: workspace}.dir(), dbFile)
}
