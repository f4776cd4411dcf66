// Package store is the access-controlled project store: every project and
// task read or write is gated by the caller's role and relationship to the
// project, with access decisions cached per (project, user) for a short
// window.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"obralink/internal/access"
	"obralink/internal/audit"
	"obralink/internal/cache"
	"obralink/internal/docstore"
	"obralink/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
)

const (
	colProjects   = "projects"
	colTasks      = "project_tasks"
	colMilestones = "milestones"
	colProgress   = "progress_logs"
)

type Store struct {
	Docs  docstore.Store
	Cache cache.AccessCache
	Rules access.Ruleset
	Audit audit.Writer
	Now   func() time.Time

	// Derive computes the access decision from a project's assignments.
	// A field so tests can observe or replace the derivation step.
	Derive func(p domain.Project, userID string, role access.Role) bool
}

func New(docs docstore.Store, rules access.Ruleset, c cache.AccessCache) *Store {
	s := &Store{
		Docs:  docs,
		Cache: c,
		Rules: rules,
		Audit: audit.Writer{},
		Now:   time.Now,
	}
	s.Derive = s.deriveByScope
	return s
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) deriveByScope(p domain.Project, userID string, role access.Role) bool {
	switch s.Rules.ProjectScope(role) {
	case access.ScopeAll:
		return true
	case access.ScopeCoordinator:
		return p.CoordinatorID == userID
	case access.ScopeSupervisor:
		return p.SupervisorID != nil && *p.SupervisorID == userID
	default:
		return false
	}
}

// ResolveAccess gates a project read or write. A cached denial fails
// immediately without touching the backend; a cached grant still fetches
// the project record, so callers never see stale project data. A missing
// project is never cached.
func (s *Store) ResolveAccess(ctx context.Context, projectID, userID string, role access.Role) (domain.Project, error) {
	if hasAccess, ok := s.Cache.Get(projectID, userID); ok {
		if !hasAccess {
			return domain.Project{}, ErrAccessDenied
		}
		var p domain.Project
		if err := s.Docs.GetByID(ctx, colProjects, projectID, &p); err != nil {
			return domain.Project{}, mapDocErr(err)
		}
		return p, nil
	}

	var p domain.Project
	if err := s.Docs.GetByID(ctx, colProjects, projectID, &p); err != nil {
		return domain.Project{}, mapDocErr(err)
	}
	hasAccess := s.Derive(p, userID, role)
	s.Cache.Set(projectID, userID, hasAccess)
	if !hasAccess {
		return domain.Project{}, ErrAccessDenied
	}
	return p, nil
}

// CreateProjectOptions are parameters for creating a project.
type CreateProjectOptions struct {
	Name          string
	Description   string
	Status        string
	CoordinatorID string
	SupervisorID  *string
	Resources     *domain.Resources
	StartDate     *string
	EndDate       *string
}

func (s *Store) CreateProject(ctx context.Context, userID string, role access.Role, opts CreateProjectOptions) (domain.Project, error) {
	if !s.Rules.Allows(role, access.CapProjectCreate) {
		return domain.Project{}, ErrAccessDenied
	}
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.CoordinatorID == "" {
		return domain.Project{}, errors.New("coordinator_id is required")
	}
	status := opts.Status
	if status == "" {
		status = "PLANIFICACION"
	}
	p := domain.Project{
		ID:            uuid.New().String(),
		Name:          opts.Name,
		Description:   opts.Description,
		Status:        status,
		CoordinatorID: opts.CoordinatorID,
		SupervisorID:  opts.SupervisorID,
		Resources:     opts.Resources,
		StartDate:     opts.StartDate,
		EndDate:       opts.EndDate,
		CreatedAt:     s.now().UTC().Format(time.RFC3339),
	}
	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Set(ctx, colProjects, p.ID, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return s.Audit.Append(ctx, w, "project.created", p.ID, "project", p.ID, userID, audit.Payload{"name": p.Name, "status": p.Status})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectUpdate encapsulates allowed project updates. SupervisorID set to
// an empty string clears the assignment.
type ProjectUpdate struct {
	Name          *string
	Description   *string
	Status        *string
	CoordinatorID *string
	SupervisorID  *string
	Resources     *domain.Resources
	StartDate     *string
	EndDate       *string
}

// UpdateProject applies a partial update. Status transitions are
// unconstrained: any status may follow any other. When the coordinator or
// supervisor assignment changes, every cached decision for the project is
// invalidated so the previous assignee does not keep access for the rest
// of the cache window.
func (s *Store) UpdateProject(ctx context.Context, projectID, userID string, role access.Role, upd ProjectUpdate) (domain.Project, error) {
	p, err := s.ResolveAccess(ctx, projectID, userID, role)
	if err != nil {
		return domain.Project{}, err
	}

	fields := map[string]any{}
	if upd.Name != nil {
		if *upd.Name == "" {
			return domain.Project{}, errors.New("name is required")
		}
		fields["name"] = *upd.Name
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	reassigned := false
	if upd.CoordinatorID != nil {
		if *upd.CoordinatorID == "" {
			return domain.Project{}, errors.New("coordinator_id is required")
		}
		fields["coordinatorId"] = *upd.CoordinatorID
		reassigned = reassigned || *upd.CoordinatorID != p.CoordinatorID
	}
	if upd.SupervisorID != nil {
		if *upd.SupervisorID == "" {
			fields["supervisorId"] = nil
			reassigned = reassigned || p.SupervisorID != nil
		} else {
			fields["supervisorId"] = *upd.SupervisorID
			reassigned = reassigned || p.SupervisorID == nil || *p.SupervisorID != *upd.SupervisorID
		}
	}
	if upd.Resources != nil {
		fields["resources"] = upd.Resources
	}
	if upd.StartDate != nil {
		fields["startDate"] = *upd.StartDate
	}
	if upd.EndDate != nil {
		fields["endDate"] = *upd.EndDate
	}
	if len(fields) == 0 {
		return p, nil
	}

	err = s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		if err := w.Update(ctx, colProjects, projectID, fields); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "project.updated", projectID, "project", projectID, userID, audit.Payload{"fields": fieldNames(fields)})
	})
	if err != nil {
		return domain.Project{}, mapDocErr(err)
	}
	if reassigned {
		s.Cache.InvalidateProject(projectID)
	}

	var updated domain.Project
	if err := s.Docs.GetByID(ctx, colProjects, projectID, &updated); err != nil {
		return domain.Project{}, mapDocErr(err)
	}
	return updated, nil
}

// DeleteProject removes a project and its tasks, milestones and progress
// logs in one batch.
func (s *Store) DeleteProject(ctx context.Context, projectID, userID string, role access.Role) error {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return err
	}
	if !s.Rules.Allows(role, access.CapProjectDelete) {
		return ErrAccessDenied
	}

	children := map[string][]docstore.Document{}
	for _, col := range []string{colTasks, colMilestones, colProgress} {
		docs, err := s.Docs.Query(ctx, col, docstore.Query{
			Filters: []docstore.Filter{{Field: "projectId", Value: projectID}},
		})
		if err != nil {
			return err
		}
		children[col] = docs
	}

	err := s.Docs.RunBatch(ctx, func(w docstore.Writer) error {
		for col, docs := range children {
			for _, d := range docs {
				if err := w.Delete(ctx, col, d.ID); err != nil {
					return err
				}
			}
		}
		if err := w.Delete(ctx, colProjects, projectID); err != nil {
			return err
		}
		return s.Audit.Append(ctx, w, "project.deleted", projectID, "project", projectID, userID, nil)
	})
	if err != nil {
		return mapDocErr(err)
	}
	s.Cache.InvalidateProject(projectID)
	return nil
}

// ProjectPage is one page of a role-scoped project listing.
type ProjectPage struct {
	Projects   []domain.Project
	NextCursor string
}

// ListProjects returns projects visible to the caller, newest first. The
// scope filter is applied at the query layer, never by post-filtering in
// memory. Pagination is cursor-based: the cursor is the id of the last
// project of the previous page. Stable pagination under concurrent inserts
// is not guaranteed.
func (s *Store) ListProjects(ctx context.Context, userID string, role access.Role, pageSize int, cursor string) (ProjectPage, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	q := docstore.Query{
		OrderBy:      "createdAt",
		Descending:   true,
		Limit:        pageSize + 1,
		StartAfterID: cursor,
	}
	switch s.Rules.ProjectScope(role) {
	case access.ScopeAll:
	case access.ScopeCoordinator:
		q.Filters = []docstore.Filter{{Field: "coordinatorId", Value: userID}}
	case access.ScopeSupervisor:
		q.Filters = []docstore.Filter{{Field: "supervisorId", Value: userID}}
	default:
		return ProjectPage{Projects: []domain.Project{}}, nil
	}

	docs, err := s.Docs.Query(ctx, colProjects, q)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ProjectPage{}, fmt.Errorf("invalid cursor %s", cursor)
		}
		return ProjectPage{}, err
	}
	projects, err := decodeProjects(docs)
	if err != nil {
		return ProjectPage{}, err
	}
	page := ProjectPage{Projects: projects}
	if len(page.Projects) > pageSize {
		page.Projects = page.Projects[:pageSize]
		page.NextCursor = page.Projects[pageSize-1].ID
	}
	return page, nil
}

// AuditEvents lists recent audit events for a project. Requires the
// audit.read capability on top of project access.
func (s *Store) AuditEvents(ctx context.Context, projectID, userID string, role access.Role, limit int, cursor string) ([]domain.AuditEvent, error) {
	if _, err := s.ResolveAccess(ctx, projectID, userID, role); err != nil {
		return nil, err
	}
	if !s.Rules.Allows(role, access.CapAuditRead) {
		return nil, ErrAccessDenied
	}
	if limit <= 0 {
		limit = 50
	}
	events, err := audit.Recent(ctx, s.Docs, projectID, limit, cursor)
	if err != nil {
		return nil, mapDocErr(err)
	}
	return events, nil
}

func decodeProjects(docs []docstore.Document) ([]domain.Project, error) {
	res := make([]domain.Project, 0, len(docs))
	for _, d := range docs {
		var p domain.Project
		if err := unmarshalDoc(d, &p); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}

func mapDocErr(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
