package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"obralink/internal/access"
	"obralink/internal/audit"
	"obralink/internal/docstore"
	"obralink/internal/domain"
)

var taskTypes = map[string]bool{
	"ITEM":     true,
	"SUB_ITEM": true,
	"AREA":     true,
	"ACTIVITY": true,
}

// TaskCreateOptions are parameters for adding a task to a project.
type TaskCreateOptions struct {
	ParentID  *string
	Title     string
	Type      string
	Status    string
	StartDate *string
	EndDate   *string
	Progress  int
	Order     int
}

func (s *Store) AddTask(ctx context.Context, projectID, userID string, role access.Role, opts TaskCreateOptions) (domain.Task, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.Type == "" {
		opts.Type = "ITEM"
	}
	if !taskTypes[opts.Type] {
		return domain.Task{}, fmt.Errorf("invalid task type %s", opts.Type)
	}
	if opts.Progress < 0 || opts.Progress > 100 {
		return domain.Task{}, errors.New("progress must be between 0 and 100")
	}
	if opts.ParentID != nil {
		parent, err := s.getTask(ctx, *opts.ParentID)
		if err != nil {
			return domain.Task{}, err
		}
		if parent.ProjectID != projectID {
			return domain.Task{}, errors.New("parent task in different project")
		}
	}
	now := s.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ParentID:  opts.ParentID,
		Title:     opts.Title,
		Type:      opts.Type,
		Status:    opts.Status,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Progress:  opts.Progress,
		Order:     opts.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t.Status == "" {
		t.Status = "PLANIFICACION"
	}
	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Set(ctx, colTasks, t.ID, t); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "task.created", projectID, "task", t.ID, userID, audit.Payload{"title": t.Title})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdate encapsulates allowed task updates. ParentID set to an empty
// string moves the task to the root of the tree.
type TaskUpdate struct {
	Title     *string
	Type      *string
	Status    *string
	ParentID  *string
	StartDate *string
	EndDate   *string
	Progress  *int
	Order     *int
}

func (s *Store) UpdateTask(ctx context.Context, projectID, taskID, userID string, role access.Role, upd TaskUpdate) (domain.Task, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return domain.Task{}, err
	}
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.ProjectID != projectID {
		return domain.Task{}, ErrNotFound
	}

	fields := map[string]any{}
	if upd.Title != nil {
		if *upd.Title == "" {
			return domain.Task{}, errors.New("title is required")
		}
		fields["title"] = *upd.Title
	}
	if upd.Type != nil {
		if !taskTypes[*upd.Type] {
			return domain.Task{}, fmt.Errorf("invalid task type %s", *upd.Type)
		}
		fields["type"] = *upd.Type
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.ParentID != nil {
		if *upd.ParentID == "" {
			fields["parentId"] = nil
		} else {
			parent, err := s.getTask(ctx, *upd.ParentID)
			if err != nil {
				return domain.Task{}, err
			}
			if parent.ProjectID != projectID {
				return domain.Task{}, errors.New("parent task in different project")
			}
			if err := s.ensureNoCycle(ctx, *upd.ParentID, taskID); err != nil {
				return domain.Task{}, err
			}
			fields["parentId"] = *upd.ParentID
		}
	}
	if upd.StartDate != nil {
		fields["startDate"] = *upd.StartDate
	}
	if upd.EndDate != nil {
		fields["endDate"] = *upd.EndDate
	}
	if upd.Progress != nil {
		if *upd.Progress < 0 || *upd.Progress > 100 {
			return domain.Task{}, errors.New("progress must be between 0 and 100")
		}
		fields["progress"] = *upd.Progress
	}
	if upd.Order != nil {
		fields["order"] = *upd.Order
	}
	if len(fields) == 0 {
		return t, nil
	}
	fields["updatedAt"] = s.now().UTC().Format(time.RFC3339)

	err = s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Update(ctx, colTasks, taskID, fields); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "task.updated", projectID, "task", taskID, userID, audit.Payload{"fields": fieldNames(fields)})
	})
	if err != nil {
		return domain.Task{}, mapDocErr(err)
	}
	return s.getTask(ctx, taskID)
}

func (s *Store) DeleteTask(ctx context.Context, projectID, taskID, userID string, role access.Role) error {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return err
	}
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.ProjectID != projectID {
		return ErrNotFound
	}
	children, err := s.Docs.Query(ctx, colTasks, docstore.Query{
		Filters: []docstore.Filter{{Field: "parentId", Value: taskID}},
	})
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return errors.New("task has subtasks")
	}
	logs, err := s.Docs.Query(ctx, colProgress, docstore.Query{
		Filters: []docstore.Filter{{Field: "taskId", Value: taskID}},
	})
	if err != nil {
		return err
	}
	err = s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		for _, l := range logs {
			if err := w.Delete(ctx, colProgress, l.ID); err != nil {
				return err
			}
		}
		if err := w.Delete(ctx, colTasks, taskID); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "task.deleted", projectID, "task", taskID, userID, nil)
	})
	return mapDocErr(err)
}

// ListTasks returns every task of a project ordered by the sibling sort
// key. The tree shape (parentId) is left to the caller.
func (s *Store) ListTasks(ctx context.Context, projectID, userID string, role access.Role) ([]domain.Task, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	return s.projectTasks(ctx, projectID)
}

func (s *Store) projectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	docs, err := s.Docs.Query(ctx, colTasks, docstore.Query{
		Filters: []docstore.Filter{{Field: "projectId", Value: projectID}},
		OrderBy: "order",
	})
	if err != nil {
		return nil, err
	}
	res := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		var t domain.Task
		if err := unmarshalDoc(d, &t); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (s *Store) getTask(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	if err := s.Docs.GetByID(ctx, colTasks, taskID, &t); err != nil {
		return domain.Task{}, mapDocErr(err)
	}
	return t, nil
}

// ensureNoCycle climbs the parent chain from parentID and fails if it
// reaches childID.
func (s *Store) ensureNoCycle(ctx context.Context, parentID, childID string) error {
	cur := parentID
	for cur != "" {
		if cur == childID {
			return errors.New("task hierarchy cycle detected")
		}
		t, err := s.getTask(ctx, cur)
		if err != nil {
			return err
		}
		if t.ParentID == nil {
			return nil
		}
		cur = *t.ParentID
	}
	return nil
}

// MilestoneCreateOptions are parameters for adding a milestone.
type MilestoneCreateOptions struct {
	Title   string
	DueDate string
}

func (s *Store) AddMilestone(ctx context.Context, projectID, userID string, role access.Role, opts MilestoneCreateOptions) (domain.Milestone, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return domain.Milestone{}, err
	}
	if opts.Title == "" {
		return domain.Milestone{}, errors.New("title is required")
	}
	if opts.DueDate == "" {
		return domain.Milestone{}, errors.New("due_date is required")
	}
	m := domain.Milestone{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     opts.Title,
		DueDate:   opts.DueDate,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Set(ctx, colMilestones, m.ID, m); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "milestone.created", projectID, "milestone", m.ID, userID, audit.Payload{"title": m.Title})
	})
	if err != nil {
		return domain.Milestone{}, err
	}
	return m, nil
}

// MilestoneUpdate encapsulates allowed milestone updates.
type MilestoneUpdate struct {
	Title     *string
	DueDate   *string
	Completed *bool
}

func (s *Store) UpdateMilestone(ctx context.Context, projectID, milestoneID, userID string, role access.Role, upd MilestoneUpdate) (domain.Milestone, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return domain.Milestone{}, err
	}
	var m domain.Milestone
	if err := s.Docs.GetByID(ctx, colMilestones, milestoneID, &m); err != nil {
		return domain.Milestone{}, mapDocErr(err)
	}
	if m.ProjectID != projectID {
		return domain.Milestone{}, ErrNotFound
	}
	fields := map[string]any{}
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.DueDate != nil {
		fields["dueDate"] = *upd.DueDate
	}
	if upd.Completed != nil {
		fields["completed"] = *upd.Completed
	}
	if len(fields) == 0 {
		return m, nil
	}
	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Update(ctx, colMilestones, milestoneID, fields); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "milestone.updated", projectID, "milestone", milestoneID, userID, audit.Payload{"fields": fieldNames(fields)})
	})
	if err != nil {
		return domain.Milestone{}, mapDocErr(err)
	}
	if err := s.Docs.GetByID(ctx, colMilestones, milestoneID, &m); err != nil {
		return domain.Milestone{}, mapDocErr(err)
	}
	return m, nil
}

func (s *Store) DeleteMilestone(ctx context.Context, projectID, milestoneID, userID string, role access.Role) error {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return err
	}
	var m domain.Milestone
	if err := s.Docs.GetByID(ctx, colMilestones, milestoneID, &m); err != nil {
		return mapDocErr(err)
	}
	if m.ProjectID != projectID {
		return ErrNotFound
	}
	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Delete(ctx, colMilestones, milestoneID); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "milestone.deleted", projectID, "milestone", milestoneID, userID, nil)
	})
	return mapDocErr(err)
}

func (s *Store) ListMilestones(ctx context.Context, projectID, userID string, role access.Role) ([]domain.Milestone, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	docs, err := s.Docs.Query(ctx, colMilestones, docstore.Query{
		Filters: []docstore.Filter{{Field: "projectId", Value: projectID}},
		OrderBy: "dueDate",
	})
	if err != nil {
		return nil, err
	}
	res := make([]domain.Milestone, 0, len(docs))
	for _, d := range docs {
		var m domain.Milestone
		if err := unmarshalDoc(d, &m); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, nil
}

// RecordProgress appends a progress log entry and updates the task's
// current progress in a single batch: either both writes become visible or
// neither does.
func (s *Store) RecordProgress(ctx context.Context, projectID, taskID, userID string, role access.Role, progress int, note string) (domain.ProgressLog, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return domain.ProgressLog{}, err
	}
	if progress < 0 || progress > 100 {
		return domain.ProgressLog{}, errors.New("progress must be between 0 and 100")
	}
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return domain.ProgressLog{}, err
	}
	if t.ProjectID != projectID {
		return domain.ProgressLog{}, ErrNotFound
	}
	now := s.now().UTC().Format(time.RFC3339)
	entry := domain.ProgressLog{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		TaskID:     taskID,
		Progress:   progress,
		Note:       note,
		RecordedBy: userID,
		CreatedAt:  now,
	}
	err = s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Set(ctx, colProgress, entry.ID, entry); err != nil {
			return err
		}
		if err := w.Update(ctx, colTasks, taskID, map[string]any{"progress": progress, "updatedAt": now}); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "task.progress.recorded", projectID, "task", taskID, userID, audit.Payload{"progress": progress})
	})
	if err != nil {
		return domain.ProgressLog{}, mapDocErr(err)
	}
	return entry, nil
}

// ListProgress returns a task's progress history, newest first.
func (s *Store) ListProgress(ctx context.Context, projectID, taskID, userID string, role access.Role) ([]domain.ProgressLog, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	docs, err := s.Docs.Query(ctx, colProgress, docstore.Query{
		Filters:    []docstore.Filter{{Field: "taskId", Value: taskID}},
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	res := make([]domain.ProgressLog, 0, len(docs))
	for _, d := range docs {
		var l domain.ProgressLog
		if err := unmarshalDoc(d, &l); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, nil
}

func unmarshalDoc(d docstore.Document, out any) error {
	if err := json.Unmarshal(d.Data, out); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}
