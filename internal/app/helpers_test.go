package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sprintboard/api/internal/config"
	"sprintboard/api/internal/docs"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
)

const testPassword = "correct-horse"

// rawJSON is sent verbatim with a JSON content type.
type rawJSON string

// testEnv runs the HTTP API over a migrated in-memory SQLite database.
type testEnv struct {
	t       *testing.T
	store   *store.SQLStore
	service *Service
	server  *HTTPServer
	users   map[string]store.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, nil)
}

// newTestEnvWithStore lets wrap replace the store the service sees; the
// returned env still seeds users through the underlying SQL store.
func newTestEnvWithStore(t *testing.T, wrap func(*store.SQLStore) DataStore) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, store.DialectSQLite, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.NewSQLStore(db, store.DialectSQLite)

	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	docService := docs.New(t.TempDir())
	searchService := search.NewService(nil, st, nil)
	var data DataStore = st
	if wrap != nil {
		data = wrap(st)
	}
	svc := New(cfg, Deps{
		Store:    data,
		Docs:     docService,
		Exporter: export.NewService(docService, nil, nil),
		Search:   searchService,
		Indexer:  searchService,
	})

	env := &testEnv{t: t, store: st, service: svc, server: NewHTTPServer(svc, "*"), users: map[string]store.User{}}
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	for _, u := range []store.User{
		{ID: "u-admin", Username: "admin", Email: "admin@example.com", Role: "admin"},
		{ID: "u-sam", Username: "sam", Email: "sam@example.com", Role: "user"},
		{ID: "u-pat", Username: "pat", Email: "pat@example.com", Role: "user"},
		{ID: "u-dana", Username: "dana", Email: "dana@example.com", Role: "user"},
		{ID: "u-olive", Username: "olive", Email: "olive@example.com", Role: "user"},
	} {
		u.PasswordHash = string(hash)
		created, err := st.CreateUser(ctx, u)
		if err != nil {
			t.Fatalf("create user %s: %v", u.Username, err)
		}
		env.users[u.Username] = created
	}
	return env
}

// do sends body as JSON for maps and structs, or as a urlencoded form for
// url.Values.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case rawJSON:
		reader = strings.NewReader(string(b))
		contentType = "application/json"
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(username string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"username": username, "password": testPassword})
	if rr.Code != http.StatusOK {
		e.t.Fatalf("signin %s: status %d body=%s", username, rr.Code, rr.Body.String())
	}
	var payload struct {
		Token string `json:"token"`
	}
	decode(e.t, rr, &payload)
	return payload.Token
}

// checkoutProject creates a project with sam as scrum master, pat as product
// owner and dana as developer. olive is not a member.
func (e *testEnv) checkoutProject(name string) store.Project {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/projects", e.login("admin"), map[string]any{
		"name": name,
		"key":  "chk",
		"members": []map[string]string{
			{"userId": "u-sam", "role": "scrum_master"},
			{"userId": "u-pat", "role": "product_owner"},
			{"userId": "u-dana", "role": "developer"},
		},
	})
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("create project: status %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Project store.Project `json:"project"`
	}
	decode(e.t, rr, &payload)
	return payload.Project
}

func (e *testEnv) createStory(token, projectID, title string) store.Story {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/projects/"+projectID+"/stories", token, url.Values{
		"title":           {title},
		"description":     {"As a shopper I want to pay"},
		"acceptanceTests": {"card accepted", "receipt sent"},
		"priority":        {"must have"},
		"businessValue":   {"8"},
	})
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("create story: status %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Story store.Story `json:"story"`
	}
	decode(e.t, rr, &payload)
	return payload.Story
}

// addTask adds an unassigned task as token and returns its id.
func (e *testEnv) addTask(token, storyID, description string) string {
	e.t.Helper()
	return e.addTaskFor(token, storyID, description, "")
}

func (e *testEnv) addTaskFor(token, storyID, description, memberID string) string {
	e.t.Helper()
	body := map[string]string{"description": description, "timeEstimate": "2"}
	if memberID != "" {
		body["memberId"] = memberID
	}
	rr := e.do(http.MethodPost, "/api/stories/"+storyID+"/tasks", token, body)
	if rr.Code != http.StatusCreated {
		e.t.Fatalf("add task: status %d body=%s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Task store.Task `json:"task"`
	}
	decode(e.t, rr, &payload)
	return payload.Task.ID
}

func memberID(t *testing.T, project store.Project, userID string) string {
	t.Helper()
	for _, m := range project.Members {
		if m.UserID == userID {
			return m.ID
		}
	}
	t.Fatalf("user %s is not a member of %s", userID, project.ID)
	return ""
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d body=%s", status, rr.Code, rr.Body.String())
	}
	var payload map[string]any
	decode(t, rr, &payload)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload["code"])
	}
	return payload
}
