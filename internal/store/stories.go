package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const storyColumns = `id, project_id, sprint_id, title, title_lower, description, acceptance_tests,
	priority, business_value, time_estimate, realized, reject_comment, tasks, created_at, updated_at`

func scanStory(row rowScanner) (Story, error) {
	var (
		story    Story
		accepted []byte
		tasks    []byte
	)
	err := row.Scan(
		&story.ID,
		&story.ProjectID,
		&story.SprintID,
		&story.Title,
		&story.TitleLowerCase,
		&story.Description,
		&accepted,
		&story.Priority,
		&story.BusinessValue,
		&story.TimeEstimate,
		&story.Realized,
		&story.RejectComment,
		&tasks,
		&story.CreatedAt,
		&story.UpdatedAt,
	)
	if err != nil {
		return Story{}, err
	}
	if err := unmarshalList(accepted, &story.AcceptanceTests); err != nil {
		return Story{}, fmt.Errorf("decode acceptance tests: %w", err)
	}
	if err := unmarshalList(tasks, &story.Tasks); err != nil {
		return Story{}, fmt.Errorf("decode tasks: %w", err)
	}
	return story, nil
}

func unmarshalList[T any](raw []byte, target *[]T) error {
	if len(raw) == 0 {
		*target = []T{}
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return err
	}
	if *target == nil {
		*target = []T{}
	}
	return nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *SQLStore) GetStory(ctx context.Context, id string) (Story, error) {
	story, err := scanStory(s.queryRow(ctx, s.db, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, id))
	if err != nil {
		return Story{}, fmt.Errorf("get story: %w", classify(err))
	}
	return story, nil
}

func (s *SQLStore) FindStories(ctx context.Context, filter StoryFilter) (StoryPage, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.ProjectID != "" {
		add("project_id = ?", filter.ProjectID)
	}
	if filter.SprintID != "" {
		add("sprint_id = ?", filter.SprintID)
	}
	if filter.TitleLower != "" {
		add("title_lower = ?", filter.TitleLower)
	}
	if filter.ExcludeID != "" {
		add("id <> ?", filter.ExcludeID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("(title_lower LIKE ? OR LOWER(description) LIKE ?)", "%"+strings.ToLower(q)+"%")
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(1) FROM stories`+where, args...).Scan(&total); err != nil {
		return StoryPage{}, fmt.Errorf("count stories: %w", err)
	}

	query := `SELECT ` + storyColumns + ` FROM stories` + where + ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}
	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return StoryPage{}, fmt.Errorf("find stories: %w", err)
	}
	defer rows.Close()

	page := StoryPage{Docs: []Story{}, TotalDocs: total}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return StoryPage{}, fmt.Errorf("scan story: %w", err)
		}
		page.Docs = append(page.Docs, story)
	}
	if err := rows.Err(); err != nil {
		return StoryPage{}, fmt.Errorf("iterate stories: %w", err)
	}
	return page, nil
}

func (s *SQLStore) CreateStory(ctx context.Context, story Story) (Story, error) {
	accepted, err := marshalList(story.AcceptanceTests)
	if err != nil {
		return Story{}, fmt.Errorf("encode acceptance tests: %w", err)
	}
	tasks, err := marshalList(story.Tasks)
	if err != nil {
		return Story{}, fmt.Errorf("encode tasks: %w", err)
	}

	now := s.now()
	story.CreatedAt = now
	story.UpdatedAt = now
	if story.AcceptanceTests == nil {
		story.AcceptanceTests = []string{}
	}
	if story.Tasks == nil {
		story.Tasks = []Task{}
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO stories (id, project_id, sprint_id, title, title_lower, description, acceptance_tests,
			priority, business_value, time_estimate, realized, reject_comment, tasks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		story.ID,
		story.ProjectID,
		story.SprintID,
		story.Title,
		story.TitleLowerCase,
		story.Description,
		accepted,
		story.Priority,
		story.BusinessValue,
		story.TimeEstimate,
		story.Realized,
		story.RejectComment,
		tasks,
		now,
		now,
	)
	if err != nil {
		return Story{}, fmt.Errorf("insert story: %w", classify(err))
	}
	return story, nil
}

// UpdateStory writes every field set in patch in a single UPDATE statement
// and returns the stored row.
// UpdateStory writes patch in one statement and returns the stored row. An
// empty patch is a read.
func (s *SQLStore) UpdateStory(ctx context.Context, id string, patch StoryPatch) (Story, error) {
	if patch.Empty() {
		return s.GetStory(ctx, id)
	}
	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.TitleLowerCase != nil {
		set("title_lower", *patch.TitleLowerCase)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.AcceptanceTests != nil {
		encoded, err := marshalList(*patch.AcceptanceTests)
		if err != nil {
			return Story{}, fmt.Errorf("encode acceptance tests: %w", err)
		}
		set("acceptance_tests", encoded)
	}
	if patch.Priority != nil {
		set("priority", *patch.Priority)
	}
	if patch.BusinessValue != nil {
		set("business_value", *patch.BusinessValue)
	}
	if patch.TimeEstimate.Set {
		set("time_estimate", patch.TimeEstimate.Value)
	}
	if patch.Realized != nil {
		set("realized", *patch.Realized)
	}
	if patch.RejectComment.Set {
		set("reject_comment", patch.RejectComment.Value)
	}
	if patch.SprintID.Set {
		set("sprint_id", patch.SprintID.Value)
	}
	if patch.Tasks != nil {
		encoded, err := marshalList(*patch.Tasks)
		if err != nil {
			return Story{}, fmt.Errorf("encode tasks: %w", err)
		}
		set("tasks", encoded)
	}
	set("updated_at", s.now())

	var story Story
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := s.exec(ctx, tx, `UPDATE stories SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
		if err != nil {
			return fmt.Errorf("update story: %w", classify(err))
		}
		if err := requireAffected(result); err != nil {
			return fmt.Errorf("update story: %w", err)
		}
		story, err = scanStory(s.queryRow(ctx, tx, `SELECT `+storyColumns+` FROM stories WHERE id=$1`, id))
		if err != nil {
			return fmt.Errorf("reload story: %w", classify(err))
		}
		return nil
	})
	if err != nil {
		return Story{}, err
	}
	return story, nil
}

func (s *SQLStore) DeleteStory(ctx context.Context, id string) error {
	result, err := s.exec(ctx, s.db, `DELETE FROM stories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete story: %w", err)
	}
	return nil
}
