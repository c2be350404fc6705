package app

import (
	"context"
	"log/slog"
	"strings"

	"sprintboard/api/internal/email"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

type mailer interface {
	IsConfigured() bool
	SendStoryAcceptedEmail(to []string, notice email.StoryNotice) error
	SendStoryRejectedEmail(to []string, notice email.StoryNotice) error
}

type userLookup interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

// EmailNotifier mails a project's product owners when one of its stories is
// accepted or rejected.
type EmailNotifier struct {
	mail    mailer
	users   userLookup
	baseURL string
	log     *slog.Logger
	// async sends in the background; tests turn it off.
	async bool
}

func NewEmailNotifier(mail mailer, users userLookup, baseURL string, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		mail:    mail,
		users:   users,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.With("component", "notify"),
		async:   true,
	}
}

func (n *EmailNotifier) StoryAccepted(ctx context.Context, project store.Project, story store.Story) {
	n.dispatch(ctx, project, story, "accepted", n.mail.SendStoryAcceptedEmail)
}

func (n *EmailNotifier) StoryRejected(ctx context.Context, project store.Project, story store.Story) {
	n.dispatch(ctx, project, story, "rejected", n.mail.SendStoryRejectedEmail)
}

func (n *EmailNotifier) dispatch(ctx context.Context, project store.Project, story store.Story, event string, send func([]string, email.StoryNotice) error) {
	if n.mail == nil || !n.mail.IsConfigured() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	run := func() {
		to := n.recipients(ctx, project)
		if len(to) == 0 {
			return
		}
		notice := email.StoryNotice{
			ProjectName: project.Name,
			StoryTitle:  story.Title,
			StoryURL:    n.storyURL(story),
		}
		if story.RejectComment != nil {
			notice.RejectReason = *story.RejectComment
		}
		if err := send(to, notice); err != nil {
			n.log.WarnContext(ctx, "story notification failed", "event", event, "story_id", story.ID, "error", err)
		}
	}
	if n.async {
		go run()
		return
	}
	run()
}

func (n *EmailNotifier) recipients(ctx context.Context, project store.Project) []string {
	seen := map[string]bool{}
	var to []string
	for _, member := range project.Members {
		if !rbac.Normalize(member.Role).IsProductManager() {
			continue
		}
		user, err := n.users.GetUserByID(ctx, member.UserID)
		if err != nil {
			n.log.WarnContext(ctx, "notification recipient lookup failed", "user_id", member.UserID, "error", err)
			continue
		}
		address := strings.TrimSpace(user.Email)
		if address == "" || seen[address] {
			continue
		}
		seen[address] = true
		to = append(to, address)
	}
	return to
}

func (n *EmailNotifier) storyURL(story store.Story) string {
	if n.baseURL == "" {
		return ""
	}
	return n.baseURL + "/projects/" + story.ProjectID + "/stories/" + story.ID
}
