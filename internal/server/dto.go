package server

import (
	"obralink/internal/domain"
)

type ResourcesPayload struct {
	BudgetAllocated float64  `json:"budgetAllocated"`
	BudgetSpent     float64  `json:"budgetSpent"`
	EstimatedHours  float64  `json:"estimatedHours,omitempty"`
	ActualHours     float64  `json:"actualHours,omitempty"`
	AssignedTeamIDs []string `json:"assignedTeamIds,omitempty"`
}

type CreateProjectRequest struct {
	Name          string            `json:"name" minLength:"1"`
	Description   string            `json:"description,omitempty"`
	Status        string            `json:"status,omitempty"`
	CoordinatorID string            `json:"coordinatorId" minLength:"1"`
	SupervisorID  *string           `json:"supervisorId,omitempty"`
	Resources     *ResourcesPayload `json:"resources,omitempty"`
	StartDate     *string           `json:"startDate,omitempty" format:"date"`
	EndDate       *string           `json:"endDate,omitempty" format:"date"`
}

type UpdateProjectRequest struct {
	Name          *string           `json:"name,omitempty"`
	Description   *string           `json:"description,omitempty"`
	Status        *string           `json:"status,omitempty"`
	CoordinatorID *string           `json:"coordinatorId,omitempty"`
	SupervisorID  *string           `json:"supervisorId,omitempty"`
	Resources     *ResourcesPayload `json:"resources,omitempty"`
	StartDate     *string           `json:"startDate,omitempty" format:"date"`
	EndDate       *string           `json:"endDate,omitempty" format:"date"`
}

type ProjectResponse struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Status        string            `json:"status"`
	CoordinatorID string            `json:"coordinatorId"`
	SupervisorID  *string           `json:"supervisorId,omitempty"`
	Resources     *ResourcesPayload `json:"resources,omitempty"`
	StartDate     *string           `json:"startDate,omitempty"`
	EndDate       *string           `json:"endDate,omitempty"`
	CreatedAt     string            `json:"createdAt"`
}

type ProjectListResponse struct {
	Projects   []ProjectResponse `json:"projects"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

type CreateTaskRequest struct {
	ParentID  *string `json:"parentId,omitempty"`
	Title     string  `json:"title" minLength:"1"`
	Type      string  `json:"type,omitempty" enum:"ITEM,SUB_ITEM,AREA,ACTIVITY"`
	Status    string  `json:"status,omitempty"`
	StartDate *string `json:"startDate,omitempty" format:"date"`
	EndDate   *string `json:"endDate,omitempty" format:"date"`
	Progress  int     `json:"progress,omitempty" minimum:"0" maximum:"100"`
	Order     int     `json:"order,omitempty"`
}

type UpdateTaskRequest struct {
	Title     *string `json:"title,omitempty"`
	Type      *string `json:"type,omitempty"`
	Status    *string `json:"status,omitempty"`
	ParentID  *string `json:"parentId,omitempty"`
	StartDate *string `json:"startDate,omitempty"`
	EndDate   *string `json:"endDate,omitempty"`
	Progress  *int    `json:"progress,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

type CreateMilestoneRequest struct {
	Title   string `json:"title" minLength:"1"`
	DueDate string `json:"dueDate" format:"date"`
}

type UpdateMilestoneRequest struct {
	Title     *string `json:"title,omitempty"`
	DueDate   *string `json:"dueDate,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

type RecordProgressRequest struct {
	Progress int    `json:"progress" minimum:"0" maximum:"100"`
	Note     string `json:"note,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"userId" minLength:"1"`
	Role   string `json:"role" minLength:"1"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func resourcesFromPayload(r *ResourcesPayload) *domain.Resources {
	if r == nil {
		return nil
	}
	return &domain.Resources{
		BudgetAllocated: r.BudgetAllocated,
		BudgetSpent:     r.BudgetSpent,
		EstimatedHours:  r.EstimatedHours,
		ActualHours:     r.ActualHours,
		AssignedTeamIDs: r.AssignedTeamIDs,
	}
}

func resourcesPayload(r *domain.Resources) *ResourcesPayload {
	if r == nil {
		return nil
	}
	return &ResourcesPayload{
		BudgetAllocated: r.BudgetAllocated,
		BudgetSpent:     r.BudgetSpent,
		EstimatedHours:  r.EstimatedHours,
		ActualHours:     r.ActualHours,
		AssignedTeamIDs: r.AssignedTeamIDs,
	}
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Status:        p.Status,
		CoordinatorID: p.CoordinatorID,
		SupervisorID:  p.SupervisorID,
		Resources:     resourcesPayload(p.Resources),
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		CreatedAt:     p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, len(items))
	for i, p := range items {
		out[i] = projectResponse(p)
	}
	return out
}
