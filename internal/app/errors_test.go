package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain error", forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{"wrapped domain error", fmt.Errorf("ctx: %w", validation("bad")), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"backlog denied", &backlog.Error{Kind: backlog.KindPermissionDenied, Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{"backlog validation", &backlog.Error{Kind: backlog.KindValidation, Message: "bad"}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"backlog not found", &backlog.Error{Kind: backlog.KindNotFound, Message: "gone"}, http.StatusNotFound, "NOT_FOUND"},
		{"backlog persistence", &backlog.Error{Kind: backlog.KindPersistence, Message: "db"}, http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad credentials", authpw.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"not admin", authpw.ErrPermissionDenied, http.StatusForbidden, "FORBIDDEN"},
		{"username taken", authpw.ErrUsernameTaken, http.StatusConflict, "USERNAME_TAKEN"},
		{"short password", authpw.ErrPasswordTooShort, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"invalid role", fmt.Errorf("%w: %q", rbac.ErrInvalidRole, "boss"), http.StatusUnprocessableEntity, "INVALID_ROLE"},
		{"unsupported format", export.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT"},
		{"pdf missing", export.ErrPDFDependencyMissing, http.StatusServiceUnavailable, "PDF_UNAVAILABLE"},
		{"store not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Fatalf("mapError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestMapErrorKeepsBacklogMessage(t *testing.T) {
	_, _, message, _ := mapError(&backlog.Error{Kind: backlog.KindValidation, Message: "Title is required"})
	if message != "Title is required" {
		t.Fatalf("expected backlog message, got %q", message)
	}
}

func formContext(t *testing.T, contentType, body string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", contentType)
	return c
}

func TestFormValuesFlattensJSON(t *testing.T) {
	c := formContext(t, "application/json", `{"title":"Pay","businessValue":8,"realized":true,"acceptanceTests":["a","b"],"sprintId":null}`)
	values, err := formValues(c)
	if err != nil {
		t.Fatalf("formValues: %v", err)
	}
	if values.Get("title") != "Pay" || values.Get("businessValue") != "8" || values.Get("realized") != "true" {
		t.Fatalf("unexpected values: %v", values)
	}
	if got := values["acceptanceTests"]; len(got) != 2 || got[1] != "b" {
		t.Fatalf("expected repeated acceptanceTests, got %v", got)
	}
	if _, ok := values["sprintId"]; ok {
		t.Fatalf("expected null to be dropped, got %v", values["sprintId"])
	}
}

func TestFormValuesReadsURLEncoded(t *testing.T) {
	c := formContext(t, "application/x-www-form-urlencoded", "title=Pay&acceptanceTests%5B%5D=a&acceptanceTests%5B%5D=b")
	values, err := formValues(c)
	if err != nil {
		t.Fatalf("formValues: %v", err)
	}
	if values.Get("title") != "Pay" || len(values["acceptanceTests[]"]) != 2 {
		t.Fatalf("unexpected values: %v", values)
	}
}

func TestFormValuesEmptyAndMalformedJSON(t *testing.T) {
	values, err := formValues(formContext(t, "application/json", ""))
	if err != nil || len(values) != 0 {
		t.Fatalf("expected empty values, got %v %v", values, err)
	}
	if _, err := formValues(formContext(t, "application/json", `[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object JSON")
	}
}
