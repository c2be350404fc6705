package backlog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

// memStore is an in-memory Store. The fail* hooks inject persistence errors.
type memStore struct {
	mu       sync.Mutex
	projects map[string]store.Project
	stories  map[string]store.Story
	sprints  []store.Sprint
	order    []string

	updates int
	creates int

	failCreate error
	failUpdate error
	failDelete error
	failFind   error
}

func newMemStore() *memStore {
	return &memStore{
		projects: map[string]store.Project{},
		stories:  map[string]store.Story{},
	}
}

func (m *memStore) GetProject(_ context.Context, id string) (store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[id]
	if !ok {
		return store.Project{}, fmt.Errorf("get project: %w", store.ErrNotFound)
	}
	return project, nil
}

func (m *memStore) GetStory(_ context.Context, id string) (store.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	story, ok := m.stories[id]
	if !ok {
		return store.Story{}, fmt.Errorf("get story: %w", store.ErrNotFound)
	}
	return cloneStory(story), nil
}

func (m *memStore) FindStories(_ context.Context, filter store.StoryFilter) (store.StoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return store.StoryPage{}, m.failFind
	}
	page := store.StoryPage{Docs: []store.Story{}}
	for _, id := range m.order {
		story, ok := m.stories[id]
		if !ok {
			continue
		}
		if filter.ProjectID != "" && story.ProjectID != filter.ProjectID {
			continue
		}
		if filter.TitleLower != "" && story.TitleLowerCase != filter.TitleLower {
			continue
		}
		if filter.ExcludeID != "" && story.ID == filter.ExcludeID {
			continue
		}
		if filter.Query != "" && !strings.Contains(story.TitleLowerCase, strings.ToLower(filter.Query)) {
			continue
		}
		page.TotalDocs++
		page.Docs = append(page.Docs, cloneStory(story))
	}
	return page, nil
}

func (m *memStore) CreateStory(_ context.Context, story store.Story) (store.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return store.Story{}, m.failCreate
	}
	for _, existing := range m.stories {
		if existing.TitleLowerCase == story.TitleLowerCase {
			return store.Story{}, fmt.Errorf("insert story: %w", store.ErrConflict)
		}
	}
	m.creates++
	m.stories[story.ID] = cloneStory(story)
	m.order = append(m.order, story.ID)
	return cloneStory(story), nil
}

func (m *memStore) UpdateStory(_ context.Context, id string, patch store.StoryPatch) (store.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return store.Story{}, m.failUpdate
	}
	story, ok := m.stories[id]
	if !ok {
		return store.Story{}, fmt.Errorf("update story: %w", store.ErrNotFound)
	}
	m.updates++
	if patch.Title != nil {
		story.Title = *patch.Title
	}
	if patch.TitleLowerCase != nil {
		story.TitleLowerCase = *patch.TitleLowerCase
	}
	if patch.Description != nil {
		story.Description = *patch.Description
	}
	if patch.AcceptanceTests != nil {
		story.AcceptanceTests = append([]string{}, (*patch.AcceptanceTests)...)
	}
	if patch.Priority != nil {
		story.Priority = *patch.Priority
	}
	if patch.BusinessValue != nil {
		story.BusinessValue = *patch.BusinessValue
	}
	if patch.TimeEstimate.Set {
		story.TimeEstimate = clonePtr(patch.TimeEstimate.Value)
	}
	if patch.Realized != nil {
		story.Realized = *patch.Realized
	}
	if patch.RejectComment.Set {
		story.RejectComment = clonePtr(patch.RejectComment.Value)
	}
	if patch.SprintID.Set {
		story.SprintID = clonePtr(patch.SprintID.Value)
	}
	if patch.Tasks != nil {
		story.Tasks = append([]store.Task{}, (*patch.Tasks)...)
	}
	m.stories[id] = story
	return cloneStory(story), nil
}

func (m *memStore) DeleteStory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	if _, ok := m.stories[id]; !ok {
		return fmt.Errorf("delete story: %w", store.ErrNotFound)
	}
	delete(m.stories, id)
	return nil
}

func (m *memStore) FindSprints(_ context.Context, filter store.SprintFilter) ([]store.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Sprint
	for _, sprint := range m.sprints {
		if sprint.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Name != "" && sprint.Name != filter.Name {
			continue
		}
		out = append(out, sprint)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) putStory(story store.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if story.TitleLowerCase == "" {
		story.TitleLowerCase = strings.ToLower(story.Title)
	}
	m.stories[story.ID] = cloneStory(story)
	m.order = append(m.order, story.ID)
}

func (m *memStore) story(id string) store.Story {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStory(m.stories[id])
}

func cloneStory(story store.Story) store.Story {
	story.AcceptanceTests = append([]string{}, story.AcceptanceTests...)
	story.Tasks = append([]store.Task{}, story.Tasks...)
	story.SprintID = clonePtr(story.SprintID)
	story.RejectComment = clonePtr(story.RejectComment)
	story.TimeEstimate = clonePtr(story.TimeEstimate)
	return story
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// fixture wires a project with one member per role plus an admin.
type fixture struct {
	store   *memStore
	stories *Stories
	tasks   *Tasks
	user    *rbac.Subject
	project store.Project
	ids     int
}

var (
	adminUser     = &rbac.Subject{ID: "u-admin", Role: rbac.GlobalAdmin}
	scrumMaster   = &rbac.Subject{ID: "u-sm", Role: rbac.GlobalUser}
	productOwner  = &rbac.Subject{ID: "u-po", Role: rbac.GlobalUser}
	developerUser = &rbac.Subject{ID: "u-dev", Role: rbac.GlobalUser}
	outsiderUser  = &rbac.Subject{ID: "u-out", Role: rbac.GlobalUser}
)

func newFixture(opts Options) *fixture {
	f := &fixture{store: newMemStore()}
	f.project = store.Project{
		ID:   "p-1",
		Name: "Checkout",
		Key:  "CHK",
		Members: []store.Member{
			{ID: "m-sm", ProjectID: "p-1", UserID: scrumMaster.ID, Username: "sam", Role: string(rbac.RoleScrumMaster)},
			{ID: "m-po", ProjectID: "p-1", UserID: productOwner.ID, Username: "pat", Role: string(rbac.RoleProductOwner)},
			{ID: "m-dev", ProjectID: "p-1", UserID: developerUser.ID, Username: "dana", Role: string(rbac.RoleDeveloper)},
		},
	}
	f.store.projects[f.project.ID] = f.project
	f.store.projects["p-2"] = store.Project{ID: "p-2", Name: "Other"}
	f.store.sprints = []store.Sprint{
		{ID: "sp-1", ProjectID: "p-1", Name: "Sprint 1"},
		{ID: "sp-2", ProjectID: "p-1", Name: "Sprint 2"},
		{ID: "sp-other", ProjectID: "p-2", Name: "Sprint 3"},
	}
	if opts.NewID == nil {
		opts.NewID = func(prefix string) string {
			f.ids++
			return fmt.Sprintf("%s-%d", prefix, f.ids)
		}
	}
	identity := IdentityFunc(func(context.Context) *rbac.Subject { return f.user })
	f.stories, f.tasks = New(f.store, identity, opts)
	return f
}

func (f *fixture) as(user *rbac.Subject) *fixture {
	f.user = user
	return f
}
