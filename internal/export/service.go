package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sprintboard/api/internal/docs"
)

// DocSource reads versioned project documentation.
type DocSource interface {
	Get(projectID string) (string, docs.Commit, error)
	Version(projectID, hash string) (string, docs.Commit, error)
}

// Archiver stores rendered exports and returns a download URL.
type Archiver interface {
	Put(ctx context.Context, key string, result *Result) (string, error)
}

// Service provides documentation export functionality
type Service struct {
	source  DocSource
	archive Archiver
	log     *slog.Logger
	pdf     func(ctx context.Context, html, title string) (*Result, error)
	now     func() time.Time
}

// NewService creates a new export service. archive may be nil.
func NewService(source DocSource, archive Archiver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:  source,
		archive: archive,
		log:     logger.With("component", "export"),
		pdf:     exportPDF,
		now:     time.Now,
	}
}

// Export generates an export in the requested format. A project without
// documentation exports as an empty document.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	var (
		source string
		commit docs.Commit
		err    error
	)
	if req.Version != "" {
		source, commit, err = s.source.Version(req.ProjectID, req.Version)
	} else {
		source, commit, err = s.source.Get(req.ProjectID)
	}
	if err != nil && !errors.Is(err, docs.ErrNoDocumentation) {
		return nil, fmt.Errorf("load documentation: %w", err)
	}
	source += BacklogMarkdown(req.Stories)

	title := req.ProjectName
	if title == "" {
		title = req.ProjectID
	}

	var result *Result
	switch req.Format {
	case FormatMarkdown, "":
		result = &Result{
			Data:     []byte(source),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}
	case FormatHTML, FormatPDF:
		html, err := s.renderHTML(source, title, commit)
		if err != nil {
			return nil, err
		}
		if req.Format == FormatHTML {
			result = &Result{
				Data:     []byte(html),
				Filename: sanitizeFilename(title) + ".html",
				MimeType: "text/html; charset=utf-8",
			}
			break
		}
		if result, err = s.pdf(ctx, html, title); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	result.Version = commit.Hash
	result.CreatedAt = s.now().UTC()

	if s.archive != nil {
		key := fmt.Sprintf("%s/%s-%s", req.ProjectID, result.CreatedAt.Format("20060102T150405Z"), result.Filename)
		url, err := s.archive.Put(ctx, key, result)
		if err != nil {
			s.log.WarnContext(ctx, "archive export failed", "project_id", req.ProjectID, "key", key, "error", err)
		} else {
			result.URL = url
		}
	}
	return result, nil
}

func (s *Service) renderHTML(source, title string, commit docs.Commit) (string, error) {
	content, err := MarkdownToHTML(source)
	if err != nil {
		return "", err
	}
	html, err := RenderDocumentHTML(TemplateData{
		ProjectName: title,
		ContentHTML: content,
		Version:     commit.Hash,
		Author:      commit.Author,
		UpdatedAt:   commit.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}
