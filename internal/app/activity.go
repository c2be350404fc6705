package app

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

const (
	msgTaskNotFound   = "Task not found"
	msgTimeNotFound   = "Time entry not found"
	msgTimerRunning   = "A timer is already running for this task"
	msgTimerStopped   = "Timer is already stopped"
	msgTimerDenied    = "You can only stop your own timers"
	msgTimeFormat     = "Time must use the HH:MM:SS format"
	msgTimeRange      = "Logged time must not exceed 24:00:00"
	msgMessageMissing = "Message is required"
	msgMessageTooLong = "Message must be at most 2000 characters"

	maxWallMessage = 2000
	maxLoggedTime  = 24 * time.Hour
)

var hmsPattern = regexp.MustCompile(`^(\d{2}):([0-5]\d):([0-5]\d)$`)

// TaskTimes is the time log of one task.
type TaskTimes struct {
	Entries      []store.TaskTime `json:"entries"`
	TotalSeconds int64            `json:"totalSeconds"`
}

// taskOf loads a story visible to the acting user and checks that it holds
// taskID.
func (s *Service) taskOf(ctx context.Context, storyID, taskID string) (store.Story, error) {
	story, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return store.Story{}, err
	}
	for _, task := range story.Tasks {
		if task.ID == taskID {
			return story, nil
		}
	}
	return store.Story{}, notFound(msgTaskNotFound)
}

func (s *Service) StartTimer(ctx context.Context, storyID, taskID string) (store.TaskTime, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.TaskTime{}, err
	}
	story, err := s.taskOf(ctx, storyID, taskID)
	if err != nil {
		return store.TaskTime{}, err
	}

	_, err = s.store.RunningTaskTime(ctx, subject.ID, story.ID, taskID)
	switch {
	case err == nil:
		return store.TaskTime{}, validation(msgTimerRunning)
	case !errors.Is(err, store.ErrNotFound):
		s.log.ErrorContext(ctx, "running timer lookup failed", "story_id", story.ID, "task_id", taskID, "error", err)
		return store.TaskTime{}, persistence("Failed to start timer")
	}

	entry, err := s.store.CreateTaskTime(ctx, store.TaskTime{
		ID:        s.newID("time"),
		UserID:    subject.ID,
		StoryID:   story.ID,
		TaskID:    taskID,
		StartedAt: s.now().UTC(),
	})
	if errors.Is(err, store.ErrConflict) {
		return store.TaskTime{}, validation(msgTimerRunning)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "start timer failed", "story_id", story.ID, "task_id", taskID, "error", err)
		return store.TaskTime{}, persistence("Failed to start timer")
	}
	return entry, nil
}

func (s *Service) StopTimer(ctx context.Context, timeID string) (store.TaskTime, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.TaskTime{}, err
	}
	entry, err := s.store.GetTaskTime(ctx, timeID)
	if errors.Is(err, store.ErrNotFound) {
		return store.TaskTime{}, notFound(msgTimeNotFound)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "fetch time entry failed", "time_id", timeID, "error", err)
		return store.TaskTime{}, persistence("Failed to stop timer")
	}
	if entry.UserID != subject.ID && !rbac.IsAdmin(subject) {
		return store.TaskTime{}, forbidden(msgTimerDenied)
	}
	if entry.EndedAt != nil || entry.CustomHMS != nil {
		return store.TaskTime{}, validation(msgTimerStopped)
	}

	ended := s.now().UTC()
	if err := s.store.StopTaskTime(ctx, entry.ID, ended); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.TaskTime{}, validation(msgTimerStopped)
		}
		s.log.ErrorContext(ctx, "stop timer failed", "time_id", entry.ID, "error", err)
		return store.TaskTime{}, persistence("Failed to stop timer")
	}
	entry.EndedAt = &ended
	return entry, nil
}

// LogTime records a manual entry of hms, written as HH:MM:SS.
func (s *Service) LogTime(ctx context.Context, storyID, taskID, hms string) (store.TaskTime, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.TaskTime{}, err
	}
	hms = strings.TrimSpace(hms)
	logged, ok := parseHMS(hms)
	if !ok {
		return store.TaskTime{}, validation(msgTimeFormat)
	}
	if logged > maxLoggedTime {
		return store.TaskTime{}, validation(msgTimeRange)
	}
	story, err := s.taskOf(ctx, storyID, taskID)
	if err != nil {
		return store.TaskTime{}, err
	}

	now := s.now().UTC()
	entry, err := s.store.CreateTaskTime(ctx, store.TaskTime{
		ID:        s.newID("time"),
		UserID:    subject.ID,
		StoryID:   story.ID,
		TaskID:    taskID,
		StartedAt: now,
		EndedAt:   &now,
		CustomHMS: &hms,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "log time failed", "story_id", story.ID, "task_id", taskID, "error", err)
		return store.TaskTime{}, persistence("Failed to log time")
	}
	return entry, nil
}

func (s *Service) ListTaskTimes(ctx context.Context, storyID, taskID string) (TaskTimes, error) {
	story, err := s.taskOf(ctx, storyID, taskID)
	if err != nil {
		return TaskTimes{}, err
	}
	entries, err := s.store.ListTaskTimes(ctx, story.ID, taskID)
	if err != nil {
		s.log.ErrorContext(ctx, "list task times failed", "story_id", story.ID, "task_id", taskID, "error", err)
		return TaskTimes{}, persistence("Failed fetching time entries")
	}
	now := s.now()
	var total time.Duration
	for _, entry := range entries {
		total += entryDuration(entry, now)
	}
	return TaskTimes{Entries: entries, TotalSeconds: int64(total / time.Second)}, nil
}

// entryDuration is the logged time of entry. Running timers count up to now.
func entryDuration(entry store.TaskTime, now time.Time) time.Duration {
	if entry.CustomHMS != nil {
		d, _ := parseHMS(*entry.CustomHMS)
		return d
	}
	end := now
	if entry.EndedAt != nil {
		end = *entry.EndedAt
	}
	if end.Before(entry.StartedAt) {
		return 0
	}
	return end.Sub(entry.StartedAt)
}

// parseHMS reads HH:MM:SS with two-digit hours.
func parseHMS(value string) (time.Duration, bool) {
	m := hmsPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	mi, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second, true
}

func (s *Service) PostWallMessage(ctx context.Context, projectID, message string) (store.WallMessage, error) {
	project, subject, err := s.projectFor(ctx, projectID, rbac.ActionComment)
	if err != nil {
		return store.WallMessage{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return store.WallMessage{}, validation(msgMessageMissing)
	}
	if len([]rune(message)) > maxWallMessage {
		return store.WallMessage{}, validation(msgMessageTooLong)
	}
	user, err := s.store.GetUserByID(ctx, subject.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "fetch user failed", "user_id", subject.ID, "error", err)
		return store.WallMessage{}, persistence("Failed to post message")
	}

	posted, err := s.store.CreateWallMessage(ctx, store.WallMessage{
		ID:        s.newID("wall"),
		ProjectID: project.ID,
		UserID:    user.ID,
		Username:  user.Username,
		Message:   message,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "post wall message failed", "project_id", project.ID, "error", err)
		return store.WallMessage{}, persistence("Failed to post message")
	}
	return posted, nil
}

func (s *Service) ListWallMessages(ctx context.Context, projectID string, limit int) ([]store.WallMessage, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListWallMessages(ctx, project.ID, limit)
	if err != nil {
		s.log.ErrorContext(ctx, "list wall messages failed", "project_id", project.ID, "error", err)
		return nil, persistence("Failed fetching messages")
	}
	return messages, nil
}
