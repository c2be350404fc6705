package app

import (
	"errors"
	"fmt"
	"net/http"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func validation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func persistence(message string) *DomainError {
	return domainError(http.StatusInternalServerError, "PERSISTENCE_FAILURE", message, nil)
}

var backlogStatus = map[backlog.Kind]struct {
	status int
	code   string
}{
	backlog.KindPermissionDenied: {http.StatusForbidden, "FORBIDDEN"},
	backlog.KindValidation:       {http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
	backlog.KindNotFound:         {http.StatusNotFound, "NOT_FOUND"},
	backlog.KindPersistence:      {http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var lifecycleErr *backlog.Error
	if errors.As(err, &lifecycleErr) {
		if mapped, ok := backlogStatus[lifecycleErr.Kind]; ok {
			return mapped.status, mapped.code, lifecycleErr.Message, nil
		}
	}
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrMissingCredentials), errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error(), nil
	case errors.Is(err, authpw.ErrPermissionDenied):
		return http.StatusForbidden, "FORBIDDEN", err.Error(), nil
	case errors.Is(err, authpw.ErrUserNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusConflict, "USERNAME_TAKEN", err.Error(), nil
	case errors.Is(err, authpw.ErrUsernameTooShort),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrPasswordTooShort),
		errors.Is(err, authpw.ErrWrongPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, rbac.ErrInvalidRole):
		return http.StatusUnprocessableEntity, "INVALID_ROLE", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "format must be one of md, html, pdf", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
