package store

import (
	"context"
	"fmt"
	"time"
)

func (s *SQLStore) CreateTaskTime(ctx context.Context, entry TaskTime) (TaskTime, error) {
	entry.StartedAt = entry.StartedAt.UTC()
	if entry.EndedAt != nil {
		ended := entry.EndedAt.UTC()
		entry.EndedAt = &ended
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO task_times (id, user_id, story_id, task_id, started_at, ended_at, custom_hms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.UserID, entry.StoryID, entry.TaskID, entry.StartedAt, entry.EndedAt, entry.CustomHMS, s.now())
	if err != nil {
		return TaskTime{}, fmt.Errorf("insert task time: %w", classify(err))
	}
	return entry, nil
}

const taskTimeColumns = `id, user_id, story_id, task_id, started_at, ended_at, custom_hms`

func scanTaskTime(row rowScanner) (TaskTime, error) {
	var entry TaskTime
	err := row.Scan(&entry.ID, &entry.UserID, &entry.StoryID, &entry.TaskID, &entry.StartedAt, &entry.EndedAt, &entry.CustomHMS)
	return entry, err
}

func (s *SQLStore) GetTaskTime(ctx context.Context, id string) (TaskTime, error) {
	entry, err := scanTaskTime(s.queryRow(ctx, s.db, `SELECT `+taskTimeColumns+` FROM task_times WHERE id=$1`, id))
	if err != nil {
		return TaskTime{}, fmt.Errorf("get task time: %w", classify(err))
	}
	return entry, nil
}

// RunningTaskTime returns the open timer of userID on a task, if any.
func (s *SQLStore) RunningTaskTime(ctx context.Context, userID, storyID, taskID string) (TaskTime, error) {
	entry, err := scanTaskTime(s.queryRow(ctx, s.db, `
		SELECT `+taskTimeColumns+` FROM task_times
		WHERE user_id=$1 AND story_id=$2 AND task_id=$3 AND ended_at IS NULL AND custom_hms IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, storyID, taskID))
	if err != nil {
		return TaskTime{}, fmt.Errorf("running task time: %w", classify(err))
	}
	return entry, nil
}

func (s *SQLStore) StopTaskTime(ctx context.Context, id string, endedAt time.Time) error {
	result, err := s.exec(ctx, s.db, `UPDATE task_times SET ended_at=$2 WHERE id=$1 AND ended_at IS NULL`, id, endedAt.UTC())
	if err != nil {
		return fmt.Errorf("stop task time: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) ListTaskTimes(ctx context.Context, storyID, taskID string) ([]TaskTime, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT `+taskTimeColumns+` FROM task_times
		WHERE story_id=$1 AND task_id=$2
		ORDER BY started_at, id
	`, storyID, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task times: %w", err)
	}
	defer rows.Close()

	entries := []TaskTime{}
	for rows.Next() {
		entry, err := scanTaskTime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task time: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLStore) CreateWallMessage(ctx context.Context, message WallMessage) (WallMessage, error) {
	message.CreatedAt = s.now()
	_, err := s.exec(ctx, s.db, `
		INSERT INTO wall_messages (id, project_id, user_id, username, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, message.ID, message.ProjectID, message.UserID, message.Username, message.Message, message.CreatedAt)
	if err != nil {
		return WallMessage{}, fmt.Errorf("insert wall message: %w", classify(err))
	}
	return message, nil
}

func (s *SQLStore) ListWallMessages(ctx context.Context, projectID string, limit int) ([]WallMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.query(ctx, s.db, `
		SELECT id, project_id, user_id, username, message, created_at
		FROM wall_messages
		WHERE project_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list wall messages: %w", err)
	}
	defer rows.Close()

	messages := []WallMessage{}
	for rows.Next() {
		var message WallMessage
		if err := rows.Scan(&message.ID, &message.ProjectID, &message.UserID, &message.Username, &message.Message, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wall message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}
