package backlog

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

type Priority string

const (
	PriorityMustHave   Priority = "must have"
	PriorityShouldHave Priority = "should have"
	PriorityCouldHave  Priority = "could have"
	PriorityWontHave   Priority = "won't have this time"
)

var Priorities = []Priority{PriorityMustHave, PriorityShouldHave, PriorityCouldHave, PriorityWontHave}

// ParsePriority accepts only the exact literals in Priorities.
func ParsePriority(value string) (Priority, bool) {
	for _, p := range Priorities {
		if string(p) == value {
			return p, true
		}
	}
	return "", false
}

// NoSprintAssigned is the sprint name that clears a story's sprint.
const NoSprintAssigned = "No Sprint Assigned"

// CreateStoryInput carries the raw form fields of a new story.
type CreateStoryInput struct {
	ProjectID       string
	Title           string
	Description     string
	AcceptanceTests []string
	Priority        string
	BusinessValue   string
	TimeEstimate    string
}

// EditStoryInput carries the raw form fields of an edited story. TimeEstimate
// is not part of an edit; use EditTimeEstimate.
type EditStoryInput struct {
	StoryID         string
	Title           string
	Description     string
	AcceptanceTests []string
	Priority        string
	BusinessValue   string
}

type AddTaskInput struct {
	StoryID      string
	Description  string
	TimeEstimate string
	MemberID     string
}

type EditTaskInput struct {
	StoryID      string
	TaskID       string
	Description  string
	TimeEstimate string
	MemberID     string
}

// RejectStory is the combined command applied by Stories.Reject.
type RejectStory struct {
	StoryID string
	Reason  string
}

// storyFields is the validated form of the shared story inputs.
type storyFields struct {
	title           string
	titleLower      string
	description     string
	acceptanceTests []string
	priority        Priority
	businessValue   int
}

func ParseCreateStoryForm(projectID string, values url.Values) CreateStoryInput {
	return CreateStoryInput{
		ProjectID:       firstNonEmpty(projectID, values.Get("projectId"), values.Get("project")),
		Title:           values.Get("title"),
		Description:     values.Get("description"),
		AcceptanceTests: formList(values, "acceptanceTests"),
		Priority:        values.Get("priority"),
		BusinessValue:   values.Get("businessValue"),
		TimeEstimate:    values.Get("timeEstimate"),
	}
}

func ParseEditStoryForm(storyID string, values url.Values) EditStoryInput {
	return EditStoryInput{
		StoryID:         firstNonEmpty(storyID, values.Get("id")),
		Title:           values.Get("title"),
		Description:     values.Get("description"),
		AcceptanceTests: formList(values, "acceptanceTests"),
		Priority:        values.Get("priority"),
		BusinessValue:   values.Get("businessValue"),
	}
}

func ParseAddTaskForm(storyID string, values url.Values) AddTaskInput {
	return AddTaskInput{
		StoryID:      firstNonEmpty(storyID, values.Get("storyId")),
		Description:  values.Get("description"),
		TimeEstimate: firstNonEmpty(values.Get("timeEstimate"), values.Get("estimate")),
		MemberID:     firstNonEmpty(values.Get("memberId"), values.Get("member")),
	}
}

func ParseEditTaskForm(storyID, taskID string, values url.Values) EditTaskInput {
	return EditTaskInput{
		StoryID:      firstNonEmpty(storyID, values.Get("storyId")),
		TaskID:       firstNonEmpty(taskID, values.Get("taskId")),
		Description:  values.Get("description"),
		TimeEstimate: firstNonEmpty(values.Get("timeEstimate"), values.Get("estimate")),
		MemberID:     firstNonEmpty(values.Get("memberId"), values.Get("member")),
	}
}

// formList reads a repeated field, accepting both key and key[] spellings,
// and drops blank entries.
func formList(values url.Values, key string) []string {
	raw := append(append([]string{}, values[key]...), values[key+"[]"]...)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBusinessValue(raw string) (int, bool) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseEstimate parses a non-negative hour count. Blank input reports
// present=false.
func parseEstimate(raw string) (value float64, present bool, ok bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false, true
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, true, false
	}
	return value, true, true
}
