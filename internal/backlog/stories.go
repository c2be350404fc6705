package backlog

import (
	"context"
	"errors"
	"strings"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

// Stories is the story lifecycle manager.
type Stories struct {
	deps
}

// Create adds a story to a project. Checks run in order: permission, project
// existence, title, title uniqueness, priority, business value.
func (s *Stories) Create(ctx context.Context, in CreateStoryInput) (store.Story, error) {
	user := s.currentUser(ctx)

	project, err := s.store.GetProject(ctx, in.ProjectID)
	projectMissing := errors.Is(err, store.ErrNotFound) || strings.TrimSpace(in.ProjectID) == ""
	if err != nil && !projectMissing {
		s.log.ErrorContext(ctx, "fetch project failed", "project_id", in.ProjectID, "error", err)
		return store.Story{}, failed(msgProjectFetch, err)
	}

	var members []rbac.Member
	if !projectMissing {
		members = Members(project)
	}
	if !rbac.IsAdminOrMethodologyManager(user, members) {
		return store.Story{}, denied(msgAddStoryDenied)
	}
	if projectMissing {
		return store.Story{}, notFound(msgInvalidProject)
	}

	fields, err := s.validate(ctx, "", in.Title, in.Description, in.AcceptanceTests, in.Priority, in.BusinessValue)
	if err != nil {
		return store.Story{}, err
	}

	estimate, hasEstimate, ok := parseEstimate(in.TimeEstimate)
	if !ok {
		return store.Story{}, invalid(msgTimeEstimate)
	}

	story := store.Story{
		ID:              s.newID("story"),
		ProjectID:       project.ID,
		Title:           fields.title,
		TitleLowerCase:  fields.titleLower,
		Description:     fields.description,
		AcceptanceTests: fields.acceptanceTests,
		Priority:        string(fields.priority),
		BusinessValue:   fields.businessValue,
		Realized:        false,
		Tasks:           []store.Task{},
	}
	if hasEstimate {
		story.TimeEstimate = &estimate
	}

	created, err := s.store.CreateStory(ctx, story)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Story{}, invalid(msgStoryExists)
		}
		s.log.ErrorContext(ctx, "story write failed", "op", "create", "project_id", project.ID, "error", err)
		return store.Story{}, failed(msgSaveStoryFailed, err)
	}
	s.index(ctx, created)
	return created, nil
}

// Edit replaces the editable fields of a story in one write. Realized state
// and reject comment are left untouched.
func (s *Stories) Edit(ctx context.Context, in EditStoryInput) (store.Story, error) {
	story, project, err := s.loadStory(ctx, in.StoryID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgEditStoryDenied)
	}

	fields, err := s.validate(ctx, story.ID, in.Title, in.Description, in.AcceptanceTests, in.Priority, in.BusinessValue)
	if err != nil {
		return store.Story{}, err
	}

	priority := string(fields.priority)
	return s.save(ctx, "edit", story.ID, store.StoryPatch{
		Title:           &fields.title,
		TitleLowerCase:  &fields.titleLower,
		Description:     &fields.description,
		AcceptanceTests: &fields.acceptanceTests,
		Priority:        &priority,
		BusinessValue:   &fields.businessValue,
	}, msgSaveStoryFailed)
}

// validate checks the shared story fields. excludeID is skipped during the
// duplicate-title lookup.
func (s *Stories) validate(ctx context.Context, excludeID, title, description string, acceptance []string, priority, businessValue string) (storyFields, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return storyFields{}, invalid(msgTitleRequired)
	}
	titleLower := strings.ToLower(title)

	page, err := s.store.FindStories(ctx, store.StoryFilter{TitleLower: titleLower, ExcludeID: excludeID, Limit: 1})
	if err != nil {
		s.log.ErrorContext(ctx, "duplicate title lookup failed", "error", err)
		return storyFields{}, failed(msgSaveStoryFailed, err)
	}
	if page.TotalDocs > 0 {
		return storyFields{}, invalid(msgStoryExists)
	}

	p, ok := ParsePriority(priority)
	if !ok {
		return storyFields{}, invalid(msgInvalidPriority)
	}
	value, ok := parseBusinessValue(businessValue)
	if !ok {
		return storyFields{}, invalid(msgBusinessValue)
	}

	return storyFields{
		title:           title,
		titleLower:      titleLower,
		description:     strings.TrimSpace(description),
		acceptanceTests: cleanList(acceptance),
		priority:        p,
		businessValue:   value,
	}, nil
}

func (s *Stories) Delete(ctx context.Context, storyID string) error {
	story, project, err := s.loadStory(ctx, storyID)
	if err != nil {
		return err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return denied(msgDeleteStoryDenied)
	}
	if err := s.store.DeleteStory(ctx, story.ID); err != nil {
		s.log.ErrorContext(ctx, "story delete failed", "story_id", story.ID, "error", err)
		return failed(msgDeleteStoryFailed, err)
	}
	if s.indexer != nil {
		s.indexer.RemoveStory(ctx, story.ID)
	}
	return nil
}

// Accept marks a story realized and clears any reject comment.
func (s *Stories) Accept(ctx context.Context, storyID string) (store.Story, error) {
	story, project, err := s.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgAcceptDenied)
	}

	realized := true
	updated, err := s.save(ctx, "accept", story.ID, store.StoryPatch{
		Realized:      &realized,
		RejectComment: store.Null[string](),
	}, msgAcceptStoryFailed)
	if err != nil {
		return store.Story{}, err
	}
	if s.notifier != nil {
		s.notifier.StoryAccepted(ctx, project, updated)
	}
	return updated, nil
}

// Patch builds the single write that rejects story: unrealized, commented,
// out of its sprint and with every task unrealized.
func (c RejectStory) Patch(story store.Story) store.StoryPatch {
	realized := false
	tasks := make([]store.Task, len(story.Tasks))
	for i, task := range story.Tasks {
		task.Realized = false
		tasks[i] = task
	}
	return store.StoryPatch{
		Realized:      &realized,
		RejectComment: store.Value(c.Reason),
		SprintID:      store.Null[string](),
		Tasks:         &tasks,
	}
}

func (s *Stories) Reject(ctx context.Context, cmd RejectStory) (store.Story, error) {
	story, project, err := s.loadStory(ctx, cmd.StoryID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgRejectDenied)
	}

	updated, err := s.save(ctx, "reject", story.ID, cmd.Patch(story), msgRejectStoryFailed)
	if err != nil {
		return store.Story{}, err
	}
	if s.notifier != nil {
		s.notifier.StoryRejected(ctx, project, updated)
	}
	return updated, nil
}

// AssignSprint resolves sprintName within the story's project. The
// NoSprintAssigned sentinel clears the sprint.
func (s *Stories) AssignSprint(ctx context.Context, storyID, sprintName string) (store.Story, error) {
	story, project, err := s.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgEditStoryDenied)
	}

	sprint := store.Null[string]()
	if sprintName != NoSprintAssigned && strings.TrimSpace(sprintName) != "" {
		matches, err := s.store.FindSprints(ctx, store.SprintFilter{ProjectID: story.ProjectID, Name: sprintName})
		if err != nil {
			s.log.ErrorContext(ctx, "sprint lookup failed", "story_id", story.ID, "error", err)
			return store.Story{}, failed(msgSaveStoryFailed, err)
		}
		switch {
		case len(matches) > 0:
			sprint = store.Value(matches[0].ID)
		case s.strictSprint:
			return store.Story{}, notFound(msgSprintNotFound)
		default:
			s.log.WarnContext(ctx, "sprint name not found, unassigning", "story_id", story.ID, "sprint", sprintName)
		}
	}

	return s.save(ctx, "assign_sprint", story.ID, store.StoryPatch{SprintID: sprint}, msgSaveStoryFailed)
}

// EditTimeEstimate sets the story estimate in hours; blank clears it.
func (s *Stories) EditTimeEstimate(ctx context.Context, storyID, raw string) (store.Story, error) {
	story, project, err := s.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(s.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgEditStoryDenied)
	}

	value, present, ok := parseEstimate(raw)
	if !ok {
		return store.Story{}, invalid(msgTimeEstimate)
	}
	estimate := store.Null[float64]()
	if present {
		estimate = store.Value(value)
	}
	return s.save(ctx, "estimate", story.ID, store.StoryPatch{TimeEstimate: estimate}, msgSaveStoryFailed)
}

// Get returns a story visible to the acting user.
func (s *Stories) Get(ctx context.Context, storyID string) (store.Story, error) {
	story, project, err := s.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !canView(s.currentUser(ctx), Members(project)) {
		return store.Story{}, denied(msgViewDenied)
	}
	return story, nil
}

// List returns the stories of a project, optionally narrowed by filter.
func (s *Stories) List(ctx context.Context, projectID string, filter store.StoryFilter) (store.StoryPage, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return store.StoryPage{}, notFound(msgInvalidProject)
	}
	if err != nil {
		return store.StoryPage{}, failed(msgProjectFetch, err)
	}
	if !canView(s.currentUser(ctx), Members(project)) {
		return store.StoryPage{}, denied(msgViewDenied)
	}

	filter.ProjectID = project.ID
	filter.TitleLower = ""
	filter.ExcludeID = ""
	page, err := s.store.FindStories(ctx, filter)
	if err != nil {
		s.log.ErrorContext(ctx, "list stories failed", "project_id", project.ID, "error", err)
		return store.StoryPage{}, failed(msgListStoriesFailed, err)
	}
	return page, nil
}

func canView(user *rbac.Subject, members []rbac.Member) bool {
	if user == nil {
		return false
	}
	if rbac.IsAdmin(user) {
		return true
	}
	_, ok := rbac.MemberFor(user.ID, members)
	return ok
}
