package auth

import (
	"context"

	"sprintboard/api/internal/rbac"
)

type subjectKey struct{}

// WithSubject attaches the authenticated user to ctx.
func WithSubject(ctx context.Context, subject *rbac.Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the authenticated user of ctx, or nil.
func SubjectFrom(ctx context.Context) *rbac.Subject {
	subject, _ := ctx.Value(subjectKey{}).(*rbac.Subject)
	return subject
}

// ContextIdentity resolves the acting user from the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) *rbac.Subject {
	return SubjectFrom(ctx)
}
