package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sprintboard/api/internal/docs"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

const maxDocumentationBytes = 1 << 20

type Documentation struct {
	ProjectID string       `json:"projectId"`
	Markdown  string       `json:"markdown"`
	Commit    *docs.Commit `json:"commit"`
}

var importExtensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

func (s *Service) GetDocumentation(ctx context.Context, projectID string) (Documentation, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return Documentation{}, err
	}
	out := Documentation{ProjectID: project.ID, Markdown: project.Documentation}
	if s.docs == nil {
		return out, nil
	}
	markdown, commit, err := s.docs.Get(project.ID)
	if errors.Is(err, docs.ErrNoDocumentation) {
		return out, nil
	}
	if err != nil {
		s.log.ErrorContext(ctx, "read documentation failed", "project_id", project.ID, "error", err)
		return Documentation{}, persistence("Failed fetching documentation")
	}
	out.Markdown = markdown
	out.Commit = &commit
	return out, nil
}

// UpdateDocumentation commits markdown as the new head and mirrors it onto
// the project row.
func (s *Service) UpdateDocumentation(ctx context.Context, projectID, markdown, message string) (Documentation, error) {
	project, subject, err := s.projectFor(ctx, projectID, rbac.ActionComment)
	if err != nil {
		return Documentation{}, err
	}
	if len(markdown) > maxDocumentationBytes {
		return Documentation{}, validation("Documentation must be at most 1 MiB")
	}
	if !utf8.ValidString(markdown) {
		return Documentation{}, validation("Documentation must be UTF-8 text")
	}

	out := Documentation{ProjectID: project.ID, Markdown: markdown}
	if s.docs != nil {
		author := subject.ID
		if user, err := s.store.GetUserByID(ctx, subject.ID); err == nil {
			author = user.Username
		}
		if strings.TrimSpace(message) == "" {
			message = "Update documentation"
		}
		commit, err := s.docs.Save(project.ID, markdown, author, message)
		if err != nil {
			s.log.ErrorContext(ctx, "save documentation failed", "project_id", project.ID, "error", err)
			return Documentation{}, persistence("Failed to save documentation")
		}
		out.Commit = &commit
	}
	if err := s.store.UpdateProjectDocumentation(ctx, project.ID, markdown); err != nil {
		s.log.ErrorContext(ctx, "mirror documentation failed", "project_id", project.ID, "error", err)
		return Documentation{}, persistence("Failed to save documentation")
	}
	return out, nil
}

// ImportDocumentation replaces the documentation with an uploaded markdown
// file.
func (s *Service) ImportDocumentation(ctx context.Context, projectID, filename string, content []byte) (Documentation, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !importExtensions[ext] {
		return Documentation{}, validation("Only .md, .markdown and .txt files can be imported")
	}
	return s.UpdateDocumentation(ctx, projectID, string(content), fmt.Sprintf("Import %s", filepath.Base(filename)))
}

func (s *Service) DocumentationHistory(ctx context.Context, projectID string, limit int) ([]docs.Commit, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.docs == nil {
		return []docs.Commit{}, nil
	}
	history, err := s.docs.History(project.ID, limit)
	if err != nil {
		s.log.ErrorContext(ctx, "documentation history failed", "project_id", project.ID, "error", err)
		return nil, persistence("Failed fetching documentation history")
	}
	return history, nil
}

// ExportDocumentation renders the documentation, optionally at version, with
// the project's backlog appended.
func (s *Service) ExportDocumentation(ctx context.Context, projectID, format, version string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	page, err := s.stories.List(ctx, project.ID, store.StoryFilter{})
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, export.Request{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Version:     strings.TrimSpace(version),
		Format:      parsed,
		Stories:     page.Docs,
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, err
		}
		s.log.ErrorContext(ctx, "export failed", "project_id", project.ID, "format", format, "error", err)
		return nil, persistence("Failed to export documentation")
	}
	return result, nil
}
