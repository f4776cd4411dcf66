package audit_test

import (
	"context"
	"testing"
	"time"

	"obralink/internal/audit"
	"obralink/internal/db"
	"obralink/internal/docstore"
	"obralink/internal/migrate"
)

func newStore(t *testing.T) *docstore.SQLite {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return docstore.NewSQLite(conn)
}

func appendEvent(t *testing.T, s *docstore.SQLite, w audit.Writer, evtType string) {
	t.Helper()
	err := s.RunBatch(context.Background(), func(dw docstore.Writer) error {
		return w.Append(context.Background(), dw, evtType, "p1", "project", "p1", "u1", nil)
	})
	if err != nil {
		t.Fatalf("append %s: %v", evtType, err)
	}
}

func TestTrailOrderAcrossSubsecondBoundary(t *testing.T) {
	s := newStore(t)
	clock := time.Date(2026, 1, 10, 12, 0, 5, 0, time.UTC)
	w := audit.Writer{Now: func() time.Time { return clock }}

	// First event lands on a whole second, the second one 400ms later.
	// Their createdAt strings must sort the same way the times do.
	appendEvent(t, s, w, "first")
	clock = clock.Add(400 * time.Millisecond)
	appendEvent(t, s, w, "second")

	events, err := audit.After(context.Background(), s, 10, "")
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "first" || events[1].Type != "second" {
		t.Fatalf("trail out of order: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].CreatedAt >= events[1].CreatedAt {
		t.Fatalf("createdAt not monotonic: %q >= %q", events[0].CreatedAt, events[1].CreatedAt)
	}

	// Walking forward from the first event must yield only the second,
	// never re-deliver the first.
	tail, err := audit.After(context.Background(), s, 10, events[0].ID)
	if err != nil {
		t.Fatalf("after cursor: %v", err)
	}
	if len(tail) != 1 || tail[0].Type != "second" {
		t.Fatalf("cursor walk = %+v, want just the second event", tail)
	}
}

func TestRecentFiltersByProject(t *testing.T) {
	s := newStore(t)
	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	w := audit.Writer{Now: func() time.Time { return clock }}

	for i, projectID := range []string{"p1", "p2", "p1"} {
		clock = clock.Add(time.Second)
		err := s.RunBatch(context.Background(), func(dw docstore.Writer) error {
			return w.Append(context.Background(), dw, "event", projectID, "project", projectID, "u1", audit.Payload{"n": i})
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := audit.Recent(context.Background(), s, "p1", 10, "")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for p1, want 2", len(events))
	}
	if events[0].CreatedAt < events[1].CreatedAt {
		t.Fatalf("recent not newest-first: %q then %q", events[0].CreatedAt, events[1].CreatedAt)
	}

	id, err := audit.LatestID(context.Background(), s)
	if err != nil {
		t.Fatalf("latest id: %v", err)
	}
	if id != events[0].ID {
		t.Fatalf("latest id = %s, want %s", id, events[0].ID)
	}
}
