package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"sprintboard/api/internal/store"
)

// Raw HTML in the source is not rendered.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML converts documentation markdown to HTML.
func MarkdownToHTML(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// BacklogMarkdown renders stories as a markdown section.
func BacklogMarkdown(stories []store.Story) string {
	if len(stories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## Backlog\n")
	for _, story := range stories {
		check := " "
		if story.Realized {
			check = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] **%s** (%s, business value %d)", check, escapeInline(story.Title), story.Priority, story.BusinessValue)
		if story.TimeEstimate != nil {
			fmt.Fprintf(&b, ", estimate %gh", *story.TimeEstimate)
		}
		for _, test := range story.AcceptanceTests {
			fmt.Fprintf(&b, "\n  - %s", escapeInline(test))
		}
	}
	b.WriteString("\n")
	return b.String()
}

var inlineEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `_`, `\_`, "`", "\\`", `[`, `\[`, `]`, `\]`, "<", `\<`)

func escapeInline(text string) string {
	return inlineEscaper.Replace(strings.ReplaceAll(text, "\n", " "))
}
