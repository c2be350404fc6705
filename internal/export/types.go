// Package export renders project documentation to Markdown, HTML and PDF.
package export

import (
	"errors"
	"time"

	"sprintboard/api/internal/store"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML, FormatPDF:
		return Format(value), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	ProjectID   string
	ProjectName string
	// Version is a commit hash; empty exports the head.
	Version string
	Format  Format
	// Stories, when set, are appended as a backlog section.
	Stories []store.Story
}

// Result contains the export output
type Result struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	// URL is set once the result has been archived.
	URL       string    `json:"url,omitempty"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
