package obralinksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Obralink HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Status        string  `json:"status"`
	CoordinatorID string  `json:"coordinatorId"`
	SupervisorID  *string `json:"supervisorId,omitempty"`
	StartDate     *string `json:"startDate,omitempty"`
	EndDate       *string `json:"endDate,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

// Task represents the API task model.
type Task struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectId"`
	ParentID  *string `json:"parentId,omitempty"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Status    string  `json:"status"`
	Progress  int     `json:"progress"`
	Order     int     `json:"order"`
}

// Milestone represents the API milestone model.
type Milestone struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

// ProgressLog is one entry of a task's progress history.
type ProgressLog struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	TaskID     string `json:"taskId"`
	Progress   int    `json:"progress"`
	Note       string `json:"note,omitempty"`
	RecordedBy string `json:"recordedBy"`
	CreatedAt  string `json:"createdAt"`
}

// HealthReport is the derived project health.
type HealthReport struct {
	ProgressPercentage int    `json:"progressPercentage"`
	BudgetHealth       string `json:"budgetHealth"`
	ScheduleHealth     string `json:"scheduleHealth"`
	TasksCompleted     int    `json:"tasksCompleted"`
	TasksTotal         int    `json:"tasksTotal"`
}

// ProjectPage wraps a project listing with its pagination cursor.
type ProjectPage struct {
	Projects   []Project `json:"projects"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, coordinatorID string) (Project, error) {
	body := map[string]any{
		"name":          name,
		"coordinatorId": coordinatorID,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Projects returns the first page of visible projects.
func (c *Client) Projects(ctx context.Context, pageSize int) ([]Project, error) {
	page, err := c.ProjectsPage(ctx, pageSize, "")
	return page.Projects, err
}

// ProjectsPage returns a paginated project listing.
func (c *Client) ProjectsPage(ctx context.Context, pageSize int, cursor string) (ProjectPage, error) {
	endpoint := "projects"
	if pageSize > 0 {
		endpoint = fmt.Sprintf("%s?page_size=%d", endpoint, pageSize)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp ProjectPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Health returns the derived health report for a project.
func (c *Client) Health(ctx context.Context, projectID string) (HealthReport, error) {
	var resp HealthReport
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "health"), nil, &resp)
	return resp, err
}

// CreateTask adds a task to a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title, taskType string) (Task, error) {
	body := map[string]any{
		"title": title,
		"type":  taskType,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "tasks"), body, &resp)
	return resp, err
}

// Tasks lists a project's tasks.
func (c *Client) Tasks(ctx context.Context, projectID string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "tasks"), nil, &resp)
	return resp, err
}

// RecordProgress records task progress; the log entry and the task's
// progress field are written together server-side.
func (c *Client) RecordProgress(ctx context.Context, projectID, taskID string, progress int, note string) (ProgressLog, error) {
	body := map[string]any{
		"progress": progress,
		"note":     note,
	}
	var resp ProgressLog
	endpoint := c.projectPath(projectID, fmt.Sprintf("tasks/%s/progress", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ProgressHistory lists a task's progress log, newest first.
func (c *Client) ProgressHistory(ctx context.Context, projectID, taskID string) ([]ProgressLog, error) {
	var resp []ProgressLog
	endpoint := c.projectPath(projectID, fmt.Sprintf("tasks/%s/progress", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateMilestone adds a milestone to a project.
func (c *Client) CreateMilestone(ctx context.Context, projectID, title, dueDate string) (Milestone, error) {
	body := map[string]any{
		"title":   title,
		"dueDate": dueDate,
	}
	var resp Milestone
	err := c.do(ctx, http.MethodPost, c.projectPath(projectID, "milestones"), body, &resp)
	return resp, err
}

// Milestones lists a project's milestones.
func (c *Client) Milestones(ctx context.Context, projectID string) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "milestones"), nil, &resp)
	return resp, err
}

// DevLogin mints a JWT from a dev-login enabled server and stores it on
// the client.
func (c *Client) DevLogin(ctx context.Context, userID, role string) error {
	body := map[string]any{
		"userId": userID,
		"role":   role,
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
