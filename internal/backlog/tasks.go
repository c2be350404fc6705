package backlog

import (
	"context"
	"strings"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

// Tasks is the task lifecycle manager. Tasks live inside their story, so
// every write replaces the story's task list in one update.
type Tasks struct {
	deps
}

type taskFields struct {
	description string
	estimate    float64
	memberID    *string
}

func (t *Tasks) Add(ctx context.Context, in AddTaskInput) (store.Story, store.Task, error) {
	story, project, err := t.loadStory(ctx, in.StoryID)
	if err != nil {
		return store.Story{}, store.Task{}, err
	}
	if !rbac.IsAdminOrMethodologyManager(t.currentUser(ctx), Members(project)) {
		return store.Story{}, store.Task{}, denied(msgAddTaskDenied)
	}

	fields, err := validateTask(project, in.Description, in.TimeEstimate, in.MemberID)
	if err != nil {
		return store.Story{}, store.Task{}, err
	}

	task := store.Task{
		ID:           t.newID("task"),
		Description:  fields.description,
		TimeEstimate: fields.estimate,
		MemberID:     fields.memberID,
		Realized:     false,
	}
	tasks := append(copyTasks(story.Tasks), task)

	updated, err := t.save(ctx, "add_task", story.ID, store.StoryPatch{Tasks: &tasks}, msgSaveTaskFailed)
	if err != nil {
		return store.Story{}, store.Task{}, err
	}
	return updated, task, nil
}

func (t *Tasks) Edit(ctx context.Context, in EditTaskInput) (store.Story, error) {
	story, project, err := t.loadStory(ctx, in.StoryID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(t.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgEditTaskDenied)
	}

	index := taskIndex(story.Tasks, in.TaskID)
	if index < 0 {
		return store.Story{}, notFound(msgTaskNotFound)
	}
	fields, err := validateTask(project, in.Description, in.TimeEstimate, in.MemberID)
	if err != nil {
		return store.Story{}, err
	}

	tasks := copyTasks(story.Tasks)
	tasks[index].Description = fields.description
	tasks[index].TimeEstimate = fields.estimate
	tasks[index].MemberID = fields.memberID
	return t.save(ctx, "edit_task", story.ID, store.StoryPatch{Tasks: &tasks}, msgSaveTaskFailed)
}

func (t *Tasks) Remove(ctx context.Context, storyID, taskID string) (store.Story, error) {
	story, project, err := t.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(t.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgDeleteTaskDenied)
	}

	index := taskIndex(story.Tasks, taskID)
	if index < 0 {
		return store.Story{}, notFound(msgTaskNotFound)
	}
	tasks := copyTasks(story.Tasks)
	tasks = append(tasks[:index], tasks[index+1:]...)
	return t.save(ctx, "remove_task", story.ID, store.StoryPatch{Tasks: &tasks}, msgDeleteTaskFailed)
}

func (t *Tasks) SetRealized(ctx context.Context, storyID, taskID string, realized bool) (store.Story, error) {
	story, project, err := t.loadStory(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	if !rbac.CanDeleteStory(t.currentUser(ctx), story.ProjectID, Members(project)) {
		return store.Story{}, denied(msgEditTaskDenied)
	}

	index := taskIndex(story.Tasks, taskID)
	if index < 0 {
		return store.Story{}, notFound(msgTaskNotFound)
	}
	tasks := copyTasks(story.Tasks)
	tasks[index].Realized = realized
	return t.save(ctx, "realize_task", story.ID, store.StoryPatch{Tasks: &tasks}, msgSaveTaskFailed)
}

// validateTask checks description, estimate and the optional member, which
// must be a membership of project.
func validateTask(project store.Project, description, estimate, memberID string) (taskFields, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return taskFields{}, invalid(msgTaskDescription)
	}
	hours, _, ok := parseEstimate(estimate)
	if !ok {
		return taskFields{}, invalid(msgTimeEstimate)
	}

	fields := taskFields{description: description, estimate: hours}
	if memberID = strings.TrimSpace(memberID); memberID != "" {
		found := false
		for _, m := range project.Members {
			if m.ID == memberID {
				found = true
				break
			}
		}
		if !found {
			return taskFields{}, notFound(msgMemberNotFound)
		}
		fields.memberID = &memberID
	}
	return fields, nil
}

func taskIndex(tasks []store.Task, taskID string) int {
	for i, task := range tasks {
		if task.ID == taskID {
			return i
		}
	}
	return -1
}

func copyTasks(tasks []store.Task) []store.Task {
	out := make([]store.Task, len(tasks), len(tasks)+1)
	copy(out, tasks)
	return out
}
