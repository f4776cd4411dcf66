package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"obralink/internal/access"
	"obralink/internal/domain"
	"obralink/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Store    *store.Store
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"access denied"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Obralink API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Obralink API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Store)
	registerProjectHealth(group, cfg.Store)
	registerTasks(group, cfg.Store)
	registerMilestones(group, cfg.Store)
	registerProgress(group, cfg.Store)
	registerAudit(group, cfg.Store)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth, cfg.Store.Rules)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrAccessDenied) {
		return newAPIError(http.StatusForbidden, "forbidden", "access denied", nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "cycle") || strings.Contains(lowered, "subtasks"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Obralink API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := s.CreateProject(ctx, principal.UserID, principal.Role, store.CreateProjectOptions{
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			Status:        input.Body.Status,
			CoordinatorID: input.Body.CoordinatorID,
			SupervisorID:  input.Body.SupervisorID,
			Resources:     resourcesFromPayload(input.Body.Resources),
			StartDate:     input.Body.StartDate,
			EndDate:       input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List visible projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		PageSize int    `query:"page_size" minimum:"1" maximum:"100"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body ProjectListResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := s.ListProjects(ctx, principal.UserID, principal.Role, input.PageSize, input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectListResponse `json:"body"`
		}{Body: ProjectListResponse{
			Projects:   mapProjects(page.Projects),
			NextCursor: page.NextCursor,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := s.ResolveAccess(ctx, input.ProjectID, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := s.UpdateProject(ctx, input.ProjectID, principal.UserID, principal.Role, store.ProjectUpdate{
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			Status:        input.Body.Status,
			CoordinatorID: input.Body.CoordinatorID,
			SupervisorID:  input.Body.SupervisorID,
			Resources:     resourcesFromPayload(input.Body.Resources),
			StartDate:     input.Body.StartDate,
			EndDate:       input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := s.DeleteProject(ctx, input.ProjectID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjectHealth(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "project-health",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/health",
		Summary:     "Derived project health report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.HealthReport `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := s.ProjectHealth(ctx, input.ProjectID, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HealthReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerTasks(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Add task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := s.AddTask(ctx, input.ProjectID, principal.UserID, principal.Role, store.TaskCreateOptions{
			ParentID:  input.Body.ParentID,
			Title:     input.Body.Title,
			Type:      input.Body.Type,
			Status:    input.Body.Status,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			Progress:  input.Body.Progress,
			Order:     input.Body.Order,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List project tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := s.ListTasks(ctx, input.ProjectID, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		Body      UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := s.UpdateTask(ctx, input.ProjectID, input.TaskID, principal.UserID, principal.Role, store.TaskUpdate{
			Title:     input.Body.Title,
			Type:      input.Body.Type,
			Status:    input.Body.Status,
			ParentID:  input.Body.ParentID,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			Progress:  input.Body.Progress,
			Order:     input.Body.Order,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := s.DeleteTask(ctx, input.ProjectID, input.TaskID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMilestones(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-milestone",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/milestones",
		Summary:       "Add milestone",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                 `path:"project_id"`
		Body      CreateMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := s.AddMilestone(ctx, input.ProjectID, principal.UserID, principal.Role, store.MilestoneCreateOptions{
			Title:   input.Body.Title,
			DueDate: input.Body.DueDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-milestones",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/milestones",
		Summary:     "List project milestones",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Milestone `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := s.ListMilestones(ctx, input.ProjectID, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Milestone `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-milestone",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/milestones/{milestone_id}",
		Summary:     "Update milestone",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID   string                 `path:"project_id"`
		MilestoneID string                 `path:"milestone_id"`
		Body        UpdateMilestoneRequest `json:"body"`
	}) (*struct {
		Body domain.Milestone `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := s.UpdateMilestone(ctx, input.ProjectID, input.MilestoneID, principal.UserID, principal.Role, store.MilestoneUpdate{
			Title:     input.Body.Title,
			DueDate:   input.Body.DueDate,
			Completed: input.Body.Completed,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Milestone `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-milestone",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/milestones/{milestone_id}",
		Summary:       "Delete milestone",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		MilestoneID string `path:"milestone_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := s.DeleteMilestone(ctx, input.ProjectID, input.MilestoneID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProgress(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-progress",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks/{task_id}/progress",
		Summary:       "Record task progress",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		TaskID    string                `path:"task_id"`
		Body      RecordProgressRequest `json:"body"`
	}) (*struct {
		Body domain.ProgressLog `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := s.RecordProgress(ctx, input.ProjectID, input.TaskID, principal.UserID, principal.Role, input.Body.Progress, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProgressLog `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks/{task_id}/progress",
		Summary:     "Task progress history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct {
		Body []domain.ProgressLog `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		logs, err := s.ListProgress(ctx, input.ProjectID, input.TaskID, principal.UserID, principal.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProgressLog `json:"body"`
		}{Body: logs}, nil
	})
}

func registerAudit(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/audit",
		Summary:     "Recent audit events",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" minimum:"1" maximum:"200"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body []domain.AuditEvent `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		events, err := s.AuditEvents(ctx, input.ProjectID, principal.UserID, principal.Role, input.Limit, input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEvent `json:"body"`
		}{Body: events}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig, rules access.Ruleset) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user := strings.TrimSpace(input.Body.UserID)
		role := strings.TrimSpace(input.Body.Role)
		if user == "" || role == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "userId and role are required", nil)
		}
		if _, ok := rules.Grant(access.Role(role)); !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role "+role, nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, user, role, 0)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}
