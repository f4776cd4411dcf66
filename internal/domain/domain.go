package domain

// Resources tracks budget and effort allocation for a project.
type Resources struct {
	BudgetAllocated float64  `json:"budgetAllocated"`
	BudgetSpent     float64  `json:"budgetSpent"`
	EstimatedHours  float64  `json:"estimatedHours"`
	ActualHours     float64  `json:"actualHours"`
	AssignedTeamIDs []string `json:"assignedTeamIds,omitempty"`
}

type Project struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status"`
	CoordinatorID string     `json:"coordinatorId"`
	SupervisorID  *string    `json:"supervisorId,omitempty"`
	Resources     *Resources `json:"resources,omitempty"`
	StartDate     *string    `json:"startDate,omitempty" format:"date"`
	EndDate       *string    `json:"endDate,omitempty" format:"date"`
	CreatedAt     string     `json:"createdAt" format:"date-time"`
}

type Task struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	ParentID  *string `json:"parentId,omitempty"`
	Title     string  `json:"title"`
	Type      string  `json:"type" enum:"ITEM,SUB_ITEM,AREA,ACTIVITY"`
	Status    string  `json:"status"`
	StartDate *string `json:"startDate,omitempty" format:"date"`
	EndDate   *string `json:"endDate,omitempty" format:"date"`
	Progress  int     `json:"progress" minimum:"0" maximum:"100"`
	Order     int     `json:"order"`
	CreatedAt string  `json:"createdAt" format:"date-time"`
	UpdatedAt string  `json:"updatedAt" format:"date-time"`
}

type Milestone struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate" format:"date"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

// ProgressLog is the historical counterpart of Task.Progress. A log entry
// and the task's current progress are always written together.
type ProgressLog struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	TaskID     string `json:"taskId"`
	Progress   int    `json:"progress" minimum:"0" maximum:"100"`
	Note       string `json:"note,omitempty"`
	RecordedBy string `json:"recordedBy"`
	CreatedAt  string `json:"createdAt" format:"date-time"`
}

// HealthReport is computed on demand from task and resource data, never persisted.
type HealthReport struct {
	ProgressPercentage int    `json:"progressPercentage"`
	BudgetHealth       string `json:"budgetHealth" enum:"GOOD,WARNING,CRITICAL"`
	ScheduleHealth     string `json:"scheduleHealth" enum:"ON_TIME,AT_RISK,DELAYED"`
	TasksCompleted     int    `json:"tasksCompleted"`
	TasksTotal         int    `json:"tasksTotal"`
}

type AuditEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	ProjectID  string `json:"projectId,omitempty"`
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId,omitempty"`
	ActorID    string `json:"actorId"`
	CreatedAt  string `json:"createdAt" format:"date-time"`
	Payload    string `json:"payload,omitempty"`
}

const (
	BudgetGood     = "GOOD"
	BudgetWarning  = "WARNING"
	BudgetCritical = "CRITICAL"

	ScheduleOnTime  = "ON_TIME"
	ScheduleAtRisk  = "AT_RISK"
	ScheduleDelayed = "DELAYED"
)

// completedStatuses covers the extended status set plus the legacy English
// set still present in older documents.
var completedStatuses = map[string]bool{
	"COMPLETADO": true,
	"COMPLETED":  true,
}

// IsCompleted reports whether a task counts as finished for health metrics.
func (t Task) IsCompleted() bool {
	return completedStatuses[t.Status] || t.Progress == 100
}
