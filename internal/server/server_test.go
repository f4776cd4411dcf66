package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"obralink/internal/access"
	"obralink/internal/cache"
	"obralink/internal/db"
	"obralink/internal/docstore"
	"obralink/internal/domain"
	"obralink/internal/migrate"
	"obralink/internal/store"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(docstore.NewSQLite(conn), access.DefaultRuleset(), cache.NewMemory(0))
	handler, err := New(Config{
		Store:    st,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, DevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeader(t *testing.T, userID, role string) map[string]string {
	t.Helper()
	token, err := signDevToken(testSecret, userID, role, 0)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestProjectLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	gerente := authHeader(t, "gerente-1", "GERENTE")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":          "Edificio Central",
		"coordinatorId": "coord-1",
	}, gerente)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.Status != "PLANIFICACION" {
		t.Fatalf("default status = %s", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/projects/"+created.ID, map[string]any{
		"status": "EN_PROGRESO",
	}, gerente)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated ProjectResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != "EN_PROGRESO" {
		t.Fatalf("status = %s", updated.Status)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/projects/"+created.ID, nil, gerente)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ID, nil, gerente)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", res.StatusCode)
	}
	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"userId": "coord-9",
		"role":   "COORDINADOR",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list with minted token: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"userId": "x",
		"role":   "INTRUSO",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: %d %s", res.StatusCode, string(data))
	}
}

func TestRoleScopedVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	gerente := authHeader(t, "gerente-1", "GERENTE")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "p1", "coordinatorId": "coord-1",
	}, gerente)
	var p1 ProjectResponse
	_ = json.Unmarshal(data, &p1)
	_, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "p2", "coordinatorId": "coord-2",
	}, gerente)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, authHeader(t, "coord-1", "COORDINADOR"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("coordinator list: %d %s", res.StatusCode, string(data))
	}
	var page ProjectListResponse
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Projects) != 1 || page.Projects[0].Name != "p1" {
		t.Fatalf("coordinator page: %+v", page.Projects)
	}

	// The other coordinator's project is forbidden, not hidden as a 404.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p1.ID, nil, authHeader(t, "coord-2", "COORDINADOR"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-coordinator get: %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, authHeader(t, "emp-1", "EMPLEADO"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("empleado list: %d", res.StatusCode)
	}
	_ = json.Unmarshal(data, &page)
	if len(page.Projects) != 0 {
		t.Fatalf("empleado sees projects: %+v", page.Projects)
	}
}

func TestTaskAndProgressEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	coord := authHeader(t, "coord-1", "COORDINADOR")

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "p", "coordinatorId": "coord-1",
	}, coord)
	var p ProjectResponse
	_ = json.Unmarshal(data, &p)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
		"title": "Cimentacion",
		"type":  "AREA",
	}, coord)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks/"+task.ID+"/progress", map[string]any{
		"progress": 45,
		"note":     "media jornada",
	}, coord)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record progress: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/tasks", nil, coord)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d", res.StatusCode)
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Progress != 45 {
		t.Fatalf("tasks: %+v", tasks)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/health", nil, coord)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health report: %d %s", res.StatusCode, string(data))
	}
	var rep domain.HealthReport
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if rep.TasksTotal != 1 || rep.ProgressPercentage != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	gerente := authHeader(t, "gerente-1", "GERENTE")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "no coordinator",
	}, gerente)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing coordinator: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("error code = %s", envelope.Error.Code)
	}
}
