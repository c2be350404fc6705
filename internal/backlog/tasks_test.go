package backlog

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintboard/api/internal/rbac"
)

func TestAddTask(t *testing.T) {
	f := newFixture(Options{}).as(scrumMaster)
	seedStory(f)

	story, task, err := f.tasks.Add(context.Background(), AddTaskInput{
		StoryID:      "s-1",
		Description:  "write migration",
		TimeEstimate: "1.5",
		MemberID:     "m-dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.False(t, task.Realized)
	assert.InDelta(t, 1.5, task.TimeEstimate, 1e-9)
	require.NotNil(t, task.MemberID)
	assert.Equal(t, "m-dev", *task.MemberID)
	require.Len(t, story.Tasks, 3)
	assert.Equal(t, task, story.Tasks[2])
	assert.Equal(t, 1, f.store.updates)
}

func TestAddTaskDefaultsEstimateAndMember(t *testing.T) {
	f := newFixture(Options{}).as(adminUser)
	seedStory(f)

	_, task, err := f.tasks.Add(context.Background(), AddTaskInput{StoryID: "s-1", Description: "review"})
	require.NoError(t, err)
	assert.Zero(t, task.TimeEstimate)
	assert.Nil(t, task.MemberID)
}

func TestAddTaskValidation(t *testing.T) {
	cases := []struct {
		name    string
		in      AddTaskInput
		kind    Kind
		message string
	}{
		{name: "blank description", in: AddTaskInput{StoryID: "s-1", Description: " "}, kind: KindValidation, message: msgTaskDescription},
		{name: "negative estimate", in: AddTaskInput{StoryID: "s-1", Description: "x", TimeEstimate: "-0.5"}, kind: KindValidation, message: msgTimeEstimate},
		{name: "text estimate", in: AddTaskInput{StoryID: "s-1", Description: "x", TimeEstimate: "two"}, kind: KindValidation, message: msgTimeEstimate},
		{name: "unknown member", in: AddTaskInput{StoryID: "s-1", Description: "x", MemberID: "m-ghost"}, kind: KindNotFound, message: "Member not found in project"},
		{name: "user id instead of membership", in: AddTaskInput{StoryID: "s-1", Description: "x", MemberID: developerUser.ID}, kind: KindNotFound, message: msgMemberNotFound},
		{name: "missing story", in: AddTaskInput{StoryID: "s-404", Description: "x"}, kind: KindNotFound, message: msgStoryFetch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(Options{}).as(scrumMaster)
			before := seedStory(f)

			_, _, err := f.tasks.Add(context.Background(), tc.in)
			requireKind(t, err, tc.kind, tc.message)
			assert.Zero(t, f.store.updates)
			assert.Equal(t, before, f.store.story("s-1"))
		})
	}
}

func TestAddTaskPermission(t *testing.T) {
	for _, user := range []*rbac.Subject{nil, productOwner, developerUser, outsiderUser} {
		f := newFixture(Options{}).as(user)
		seedStory(f)
		_, _, err := f.tasks.Add(context.Background(), AddTaskInput{StoryID: "s-1", Description: "x"})
		requireKind(t, err, KindPermissionDenied, msgAddTaskDenied)
	}
}

func TestEditTask(t *testing.T) {
	f := newFixture(Options{}).as(scrumMaster)
	seedStory(f)
	ctx := context.Background()

	story, err := f.tasks.Edit(ctx, EditTaskInput{StoryID: "s-1", TaskID: "t-2", Description: "ui polish", TimeEstimate: "4", MemberID: "m-po"})
	require.NoError(t, err)
	task := story.Tasks[1]
	assert.Equal(t, "ui polish", task.Description)
	assert.Equal(t, 4.0, task.TimeEstimate)
	require.NotNil(t, task.MemberID)
	assert.Equal(t, "m-po", *task.MemberID)
	assert.Equal(t, "api", story.Tasks[0].Description)

	_, err = f.tasks.Edit(ctx, EditTaskInput{StoryID: "s-1", TaskID: "t-9", Description: "x"})
	requireKind(t, err, KindNotFound, "Task not found")

	_, err = f.as(developerUser).tasks.Edit(ctx, EditTaskInput{StoryID: "s-1", TaskID: "t-2", Description: "x"})
	requireKind(t, err, KindPermissionDenied, msgEditTaskDenied)
}

func TestRemoveTask(t *testing.T) {
	f := newFixture(Options{}).as(adminUser)
	seedStory(f)
	ctx := context.Background()

	story, err := f.tasks.Remove(ctx, "s-1", "t-1")
	require.NoError(t, err)
	require.Len(t, story.Tasks, 1)
	assert.Equal(t, "t-2", story.Tasks[0].ID)

	_, err = f.tasks.Remove(ctx, "s-1", "t-1")
	requireKind(t, err, KindNotFound, msgTaskNotFound)

	f.store.failUpdate = errors.New("boom")
	_, err = f.tasks.Remove(ctx, "s-1", "t-2")
	requireKind(t, err, KindPersistence, "Failed to delete task")
}

func TestSetTaskRealized(t *testing.T) {
	f := newFixture(Options{}).as(scrumMaster)
	seedStory(f)
	ctx := context.Background()

	story, err := f.tasks.SetRealized(ctx, "s-1", "t-2", true)
	require.NoError(t, err)
	assert.True(t, story.Tasks[1].Realized)
	assert.True(t, story.Tasks[0].Realized)

	story, err = f.tasks.SetRealized(ctx, "s-1", "t-1", false)
	require.NoError(t, err)
	assert.False(t, story.Tasks[0].Realized)

	_, err = f.as(outsiderUser).tasks.SetRealized(ctx, "s-1", "t-1", true)
	requireKind(t, err, KindPermissionDenied, msgEditTaskDenied)
}

func TestParseTaskForms(t *testing.T) {
	values := url.Values{"description": {"api"}, "estimate": {"2"}, "member": {"m-dev"}}
	add := ParseAddTaskForm("s-1", values)
	assert.Equal(t, AddTaskInput{StoryID: "s-1", Description: "api", TimeEstimate: "2", MemberID: "m-dev"}, add)

	values.Set("timeEstimate", "3")
	values.Set("taskId", "t-7")
	edit := ParseEditTaskForm("s-1", "", values)
	assert.Equal(t, "t-7", edit.TaskID)
	assert.Equal(t, "3", edit.TimeEstimate)
}
