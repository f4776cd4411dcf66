package store_test

import (
	"context"
	"errors"
	"testing"

	"obralink/internal/access"
	"obralink/internal/docstore"
	"obralink/internal/store"
)

func TestTaskHierarchy(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})

	area, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "Cimentacion", Type: "AREA"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{
		Title: "Excavacion", Type: "ACTIVITY", ParentID: &area.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	// A task cannot become its own ancestor.
	_, err = env.Store.UpdateTask(env.Ctx, p.ID, area.ID, "coord-1", access.RoleCoordinador, store.TaskUpdate{ParentID: &child.ID})
	if err == nil {
		t.Fatalf("expected cycle error")
	}

	// A parented task cannot be deleted.
	if err := env.Store.DeleteTask(env.Ctx, p.ID, area.ID, "coord-1", access.RoleCoordinador); err == nil {
		t.Fatalf("expected subtask error")
	}
	if err := env.Store.DeleteTask(env.Ctx, p.ID, child.ID, "coord-1", access.RoleCoordinador); err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	if err := env.Store.DeleteTask(env.Ctx, p.ID, area.ID, "coord-1", access.RoleCoordinador); err != nil {
		t.Fatalf("delete root: %v", err)
	}
}

func TestTaskParentMustShareProject(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProject(t, store.CreateProjectOptions{Name: "p1", CoordinatorID: "coord-1"})
	p2 := env.createProject(t, store.CreateProjectOptions{Name: "p2", CoordinatorID: "coord-1"})
	parent, err := env.Store.AddTask(env.Ctx, p1.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Store.AddTask(env.Ctx, p2.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "t2", ParentID: &parent.ID})
	if err == nil {
		t.Fatalf("expected cross-project parent to be rejected")
	}
}

func TestListTasksOrdered(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})
	for i, title := range []string{"third", "first", "second"} {
		order := []int{3, 1, 2}[i]
		if _, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: title, Order: order}); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := env.Store.ListTasks(env.Ctx, p.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 3 || tasks[0].Title != "first" || tasks[2].Title != "third" {
		t.Fatalf("tasks out of order: %+v", tasks)
	}
}

func TestRecordProgressWritesLogAndTask(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})
	task, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}

	entry, err := env.Store.RecordProgress(env.Ctx, p.ID, task.ID, "coord-1", access.RoleCoordinador, 55, "half done")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Progress != 55 || entry.RecordedBy != "coord-1" {
		t.Fatalf("entry = %+v", entry)
	}

	tasks, err := env.Store.ListTasks(env.Ctx, p.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if tasks[0].Progress != 55 {
		t.Fatalf("task progress = %d, want 55", tasks[0].Progress)
	}
	logs, err := env.Store.ListProgress(env.Ctx, p.ID, task.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].ID != entry.ID {
		t.Fatalf("logs = %+v", logs)
	}
}

// faultyDocs makes every Update inside a batch fail once armed, so the
// task write of a progress recording can be forced to fail after the log
// insert succeeded.
type faultyDocs struct {
	docstore.Store
	failUpdates bool
}

func (f *faultyDocs) RunBatch(ctx context.Context, fn func(docstore.Writer) error) error {
	return f.Store.RunBatch(ctx, func(w docstore.Writer) error {
		return fn(&faultyWriter{Writer: w, docs: f})
	})
}

type faultyWriter struct {
	docstore.Writer
	docs *faultyDocs
}

func (w *faultyWriter) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if w.docs.failUpdates {
		return errors.New("update rejected")
	}
	return w.Writer.Update(ctx, collection, id, fields)
}

func TestRecordProgressIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	faulty := &faultyDocs{Store: env.Docs.Store}
	env.Store.Docs = faulty

	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})
	task, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "t", Progress: 10})
	if err != nil {
		t.Fatal(err)
	}

	faulty.failUpdates = true
	_, err = env.Store.RecordProgress(env.Ctx, p.ID, task.ID, "coord-1", access.RoleCoordinador, 90, "")
	if err == nil {
		t.Fatalf("expected failure")
	}
	faulty.failUpdates = false

	logs, err := env.Store.ListProgress(env.Ctx, p.ID, task.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Fatalf("partial write: log entry survived a failed recording: %+v", logs)
	}
	tasks, err := env.Store.ListTasks(env.Ctx, p.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if tasks[0].Progress != 10 {
		t.Fatalf("task progress = %d, want untouched 10", tasks[0].Progress)
	}
}

func TestMilestoneLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})

	m, err := env.Store.AddMilestone(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.MilestoneCreateOptions{Title: "Entrega fase 1", DueDate: "2026-03-01"})
	if err != nil {
		t.Fatal(err)
	}
	done := true
	m, err = env.Store.UpdateMilestone(env.Ctx, p.ID, m.ID, "coord-1", access.RoleCoordinador, store.MilestoneUpdate{Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if !m.Completed {
		t.Fatalf("milestone not completed: %+v", m)
	}
	list, err := env.Store.ListMilestones(env.Ctx, p.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("milestones = %+v", list)
	}
	if err := env.Store.DeleteMilestone(env.Ctx, p.ID, m.ID, "coord-1", access.RoleCoordinador); err != nil {
		t.Fatal(err)
	}
	list, err = env.Store.ListMilestones(env.Ctx, p.ID, "coord-1", access.RoleCoordinador)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("milestone survived delete")
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, store.CreateProjectOptions{Name: "p", CoordinatorID: "coord-1"})
	if _, err := env.Store.AddTask(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, store.TaskCreateOptions{Title: "t"}); err != nil {
		t.Fatal(err)
	}

	events, err := env.Store.AuditEvents(env.Ctx, p.ID, "gerente-1", access.RoleGerente, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	// Coordinators cannot read the audit trail.
	_, err = env.Store.AuditEvents(env.Ctx, p.ID, "coord-1", access.RoleCoordinador, 10, "")
	if !errors.Is(err, store.ErrAccessDenied) {
		t.Fatalf("want ErrAccessDenied, got %v", err)
	}
}
