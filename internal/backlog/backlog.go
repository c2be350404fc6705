// Package backlog applies the story and task lifecycle rules of a project:
// who may create, edit, accept, reject or delete stories and their tasks, and
// which field values are accepted.
package backlog

import (
	"context"
	"errors"
	"log/slog"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

// Store is the persistence collaborator used by both managers.
type Store interface {
	GetProject(ctx context.Context, id string) (store.Project, error)
	GetStory(ctx context.Context, id string) (store.Story, error)
	FindStories(ctx context.Context, filter store.StoryFilter) (store.StoryPage, error)
	CreateStory(ctx context.Context, story store.Story) (store.Story, error)
	UpdateStory(ctx context.Context, id string, patch store.StoryPatch) (store.Story, error)
	DeleteStory(ctx context.Context, id string) error
	FindSprints(ctx context.Context, filter store.SprintFilter) ([]store.Sprint, error)
}

// Identity returns the acting user, or nil when the caller is anonymous.
type Identity interface {
	CurrentUser(ctx context.Context) *rbac.Subject
}

type IdentityFunc func(ctx context.Context) *rbac.Subject

func (f IdentityFunc) CurrentUser(ctx context.Context) *rbac.Subject {
	return f(ctx)
}

// Indexer receives stories after every successful write.
type Indexer interface {
	IndexStory(ctx context.Context, story store.Story)
	RemoveStory(ctx context.Context, storyID string)
}

// Notifier is told about acceptance decisions.
type Notifier interface {
	StoryAccepted(ctx context.Context, project store.Project, story store.Story)
	StoryRejected(ctx context.Context, project store.Project, story store.Story)
}

type Options struct {
	// StrictSprintLookup makes AssignSprint fail with NotFound when no sprint
	// of the project carries the requested name. When false the story is
	// unassigned instead.
	StrictSprintLookup bool
	Indexer            Indexer
	Notifier           Notifier
	Logger             *slog.Logger
	NewID              func(prefix string) string
}

type deps struct {
	store        Store
	identity     Identity
	indexer      Indexer
	notifier     Notifier
	log          *slog.Logger
	newID        func(prefix string) string
	strictSprint bool
}

func newDeps(st Store, identity Identity, opts Options) deps {
	d := deps{
		store:        st,
		identity:     identity,
		indexer:      opts.Indexer,
		notifier:     opts.Notifier,
		log:          opts.Logger,
		newID:        opts.NewID,
		strictSprint: opts.StrictSprintLookup,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.newID == nil {
		d.newID = util.NewID
	}
	return d
}

// New returns both lifecycle managers sharing the same collaborators.
func New(st Store, identity Identity, opts Options) (*Stories, *Tasks) {
	d := newDeps(st, identity, opts)
	return &Stories{deps: d}, &Tasks{deps: d}
}

func (d deps) currentUser(ctx context.Context) *rbac.Subject {
	if d.identity == nil {
		return nil
	}
	return d.identity.CurrentUser(ctx)
}

// Members converts stored memberships into evaluator members.
func Members(project store.Project) []rbac.Member {
	members := make([]rbac.Member, 0, len(project.Members))
	for _, m := range project.Members {
		members = append(members, rbac.Member{
			ID:        m.ID,
			ProjectID: firstNonEmpty(m.ProjectID, project.ID),
			UserID:    m.UserID,
			Role:      rbac.Normalize(m.Role),
		})
	}
	return members
}

// loadStory fetches a story and its owning project's members. A missing
// project yields an empty member list.
func (d deps) loadStory(ctx context.Context, storyID string) (store.Story, store.Project, error) {
	story, err := d.store.GetStory(ctx, storyID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Story{}, store.Project{}, &Error{Kind: KindNotFound, Message: msgStoryFetch, Err: err}
	}
	if err != nil {
		d.log.ErrorContext(ctx, "fetch story failed", "story_id", storyID, "error", err)
		return store.Story{}, store.Project{}, failed(msgStoryFetch, err)
	}
	project, err := d.store.GetProject(ctx, story.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return story, store.Project{ID: story.ProjectID}, nil
	}
	if err != nil {
		d.log.ErrorContext(ctx, "fetch project failed", "project_id", story.ProjectID, "error", err)
		return store.Story{}, store.Project{}, failed(msgProjectFetch, err)
	}
	return story, project, nil
}

func (d deps) save(ctx context.Context, op, storyID string, patch store.StoryPatch, message string) (store.Story, error) {
	updated, err := d.store.UpdateStory(ctx, storyID, patch)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Story{}, invalid(msgStoryExists)
		}
		d.log.ErrorContext(ctx, "story write failed", "op", op, "story_id", storyID, "error", err)
		return store.Story{}, failed(message, err)
	}
	d.index(ctx, updated)
	return updated, nil
}

func (d deps) index(ctx context.Context, story store.Story) {
	if d.indexer != nil {
		d.indexer.IndexStory(ctx, story)
	}
}
