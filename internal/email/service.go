// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

const appName = "Sprintboard"

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		s.fromHeader(),
		subject,
		body,
	))

	return s.sendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email with a plain text fallback part
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	boundary := "boundary-sprintboard"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.sendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// StoryNotice holds data for story review templates
type StoryNotice struct {
	AppName      string
	ProjectName  string
	StoryTitle   string
	RejectReason string
	StoryURL     string
}

// SendStoryAcceptedEmail tells project members a story was accepted
func (s *Service) SendStoryAcceptedEmail(to []string, notice StoryNotice) error {
	notice.AppName = appName
	subject := fmt.Sprintf("[%s] Story accepted: %s", notice.ProjectName, notice.StoryTitle)
	html, err := renderTemplate(storyAcceptedTemplate, notice)
	if err != nil {
		return fmt.Errorf("render accepted template: %w", err)
	}
	text := fmt.Sprintf("The story %q in %s was accepted.", notice.StoryTitle, notice.ProjectName)
	return s.SendHTMLEmail(to, subject, text, html)
}

// SendStoryRejectedEmail tells project members a story was rejected and why
func (s *Service) SendStoryRejectedEmail(to []string, notice StoryNotice) error {
	notice.AppName = appName
	subject := fmt.Sprintf("[%s] Story rejected: %s", notice.ProjectName, notice.StoryTitle)
	html, err := renderTemplate(storyRejectedTemplate, notice)
	if err != nil {
		return fmt.Errorf("render rejected template: %w", err)
	}
	text := fmt.Sprintf("The story %q in %s was rejected and returned to the backlog.\r\nReason: %s", notice.StoryTitle, notice.ProjectName, notice.RejectReason)
	return s.SendHTMLEmail(to, subject, text, html)
}

var templates = map[string]*template.Template{}

func renderTemplate(name string, data any) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const (
	storyAcceptedTemplate = "story_accepted"
	storyRejectedTemplate = "story_rejected"
)

const layout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .reason { background: #fff3cd; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>
    {{template "content" .}}
    {{if .StoryURL}}<p><a href="{{.StoryURL}}" class="button">Open story</a></p>{{end}}
    <div class="footer">
        <p>You receive this email because you are a member of {{.ProjectName}}.</p>
    </div>
</body>
</html>`

func init() {
	bodies := map[string]string{
		storyAcceptedTemplate: `{{define "content"}}
    <h2>Story accepted</h2>
    <p>The story <strong>{{.StoryTitle}}</strong> in {{.ProjectName}} was accepted by the product owner.</p>
{{end}}`,
		storyRejectedTemplate: `{{define "content"}}
    <h2>Story rejected</h2>
    <p>The story <strong>{{.StoryTitle}}</strong> in {{.ProjectName}} was rejected and moved back to the product backlog.</p>
    {{if .RejectReason}}<div class="reason"><strong>Reason:</strong> {{.RejectReason}}</div>{{end}}
{{end}}`,
	}
	for name, body := range bodies {
		templates[name] = template.Must(template.Must(template.New(name).Parse(layout)).Parse(body))
	}
}
