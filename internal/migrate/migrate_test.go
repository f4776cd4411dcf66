package migrate_test

import (
	"testing"

	"obralink/internal/db"
	"obralink/internal/migrate"
)

func TestMigrateFreshWorkspace(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	v, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 2 {
		t.Fatalf("version = %d, want at least 2", v)
	}

	var rows int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&rows); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if rows != v {
		t.Fatalf("schema_migrations has %d rows, want one per version (%d)", rows, v)
	}

	// The document table must be usable after a fresh run.
	if _, err := conn.Exec(`INSERT INTO documents(collection, id, data) VALUES ('docs', 'x', '{}')`); err != nil {
		t.Fatalf("insert into documents: %v", err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}
	after, err := migrate.Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if after != before {
		t.Fatalf("version moved from %d to %d with nothing pending", before, after)
	}

	var rows int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&rows); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if rows != before {
		t.Fatalf("second run added rows: %d, want %d", rows, before)
	}
}
