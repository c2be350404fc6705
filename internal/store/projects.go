package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *SQLStore) CreateProject(ctx context.Context, project Project) (Project, error) {
	now := s.now()
	project.CreatedAt = now
	project.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `
			INSERT INTO projects (id, name, key, documentation, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, project.ID, project.Name, project.Key, project.Documentation, now, now)
		if err != nil {
			return fmt.Errorf("insert project: %w", classify(err))
		}
		for i := range project.Members {
			member := &project.Members[i]
			member.ProjectID = project.ID
			member.Position = i
			if err := s.insertMember(ctx, tx, *member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	if project.Members == nil {
		project.Members = []Member{}
	}
	return project, nil
}

func (s *SQLStore) insertMember(ctx context.Context, q querier, member Member) error {
	_, err := s.exec(ctx, q, `
		INSERT INTO project_members (id, project_id, user_id, role, position)
		VALUES ($1, $2, $3, $4, $5)
	`, member.ID, member.ProjectID, member.UserID, member.Role, member.Position)
	if err != nil {
		return fmt.Errorf("insert member: %w", classify(err))
	}
	return nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (Project, error) {
	var project Project
	err := s.queryRow(ctx, s.db, `
		SELECT id, name, key, documentation, created_at, updated_at FROM projects WHERE id=$1
	`, id).Scan(&project.ID, &project.Name, &project.Key, &project.Documentation, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", classify(err))
	}
	members, err := s.ListMembers(ctx, id)
	if err != nil {
		return Project{}, err
	}
	project.Members = members
	return project, nil
}

// ListProjects returns every project, or only those userID belongs to when
// userID is non-empty. Members are loaded for each project.
func (s *SQLStore) ListProjects(ctx context.Context, userID string) ([]Project, error) {
	query := `SELECT id, name, key, documentation, created_at, updated_at FROM projects ORDER BY name, id`
	var args []any
	if userID != "" {
		query = `
			SELECT p.id, p.name, p.key, p.documentation, p.created_at, p.updated_at
			FROM projects p
			JOIN project_members pm ON pm.project_id = p.id
			WHERE pm.user_id = $1
			ORDER BY p.name, p.id
		`
		args = append(args, userID)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var projects []Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.Name, &project.Key, &project.Documentation, &project.CreatedAt, &project.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	rows.Close()

	for i := range projects {
		members, err := s.ListMembers(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Members = members
	}
	return projects, nil
}

func (s *SQLStore) ListMembers(ctx context.Context, projectID string) ([]Member, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT pm.id, pm.project_id, pm.user_id, u.username, pm.role, pm.position
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.position, pm.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var member Member
		if err := rows.Scan(&member.ID, &member.ProjectID, &member.UserID, &member.Username, &member.Role, &member.Position); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// AddMember appends a membership at the end of the project's list.
func (s *SQLStore) AddMember(ctx context.Context, member Member) (Member, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := s.queryRow(ctx, tx, `SELECT COALESCE(MAX(position) + 1, 0) FROM project_members WHERE project_id=$1`, member.ProjectID).Scan(&next); err != nil {
			return fmt.Errorf("next member position: %w", err)
		}
		member.Position = next
		if err := s.insertMember(ctx, tx, member); err != nil {
			return err
		}
		return s.touchProject(ctx, tx, member.ProjectID)
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *SQLStore) UpdateMemberRole(ctx context.Context, projectID, memberID, role string) error {
	result, err := s.exec(ctx, s.db, `UPDATE project_members SET role=$3 WHERE project_id=$1 AND id=$2`, projectID, memberID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireAffected(result)
}

// RemoveMember deletes a membership and, in the same transaction, unassigns
// the project's tasks that referenced it.
func (s *SQLStore) RemoveMember(ctx context.Context, projectID, memberID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := s.exec(ctx, tx, `DELETE FROM project_members WHERE project_id=$1 AND id=$2`, projectID, memberID)
		if err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		return s.unassignMemberTasks(ctx, tx, projectID, memberID)
	})
}

func (s *SQLStore) unassignMemberTasks(ctx context.Context, tx *sql.Tx, projectID, memberID string) error {
	rows, err := s.query(ctx, tx, `SELECT id, tasks FROM stories WHERE project_id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("load project tasks: %w", err)
	}
	changed := map[string][]Task{}
	for rows.Next() {
		var (
			storyID string
			raw     []byte
			tasks   []Task
		)
		if err := rows.Scan(&storyID, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("scan project tasks: %w", err)
		}
		if err := unmarshalList(raw, &tasks); err != nil {
			rows.Close()
			return fmt.Errorf("decode tasks of %s: %w", storyID, err)
		}
		dirty := false
		for i := range tasks {
			if tasks[i].MemberID != nil && *tasks[i].MemberID == memberID {
				tasks[i].MemberID = nil
				dirty = true
			}
		}
		if dirty {
			changed[storyID] = tasks
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close project tasks: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate project tasks: %w", err)
	}

	now := s.now()
	for storyID, tasks := range changed {
		encoded, err := marshalList(tasks)
		if err != nil {
			return fmt.Errorf("encode tasks of %s: %w", storyID, err)
		}
		if _, err := s.exec(ctx, tx, `UPDATE stories SET tasks=$2, updated_at=$3 WHERE id=$1`, storyID, encoded, now); err != nil {
			return fmt.Errorf("unassign tasks of %s: %w", storyID, err)
		}
	}
	return nil
}

func (s *SQLStore) UpdateProjectDocumentation(ctx context.Context, projectID, documentation string) error {
	result, err := s.exec(ctx, s.db, `UPDATE projects SET documentation=$2, updated_at=$3 WHERE id=$1`, projectID, documentation, s.now())
	if err != nil {
		return fmt.Errorf("update documentation: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLStore) touchProject(ctx context.Context, q querier, projectID string) error {
	if _, err := s.exec(ctx, q, `UPDATE projects SET updated_at=$2 WHERE id=$1`, projectID, s.now()); err != nil {
		return fmt.Errorf("touch project: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateSprint(ctx context.Context, sprint Sprint) (Sprint, error) {
	sprint.CreatedAt = s.now()
	sprint.StartDate = sprint.StartDate.UTC()
	sprint.EndDate = sprint.EndDate.UTC()
	_, err := s.exec(ctx, s.db, `
		INSERT INTO sprints (id, project_id, name, start_date, end_date, velocity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sprint.ID, sprint.ProjectID, sprint.Name, sprint.StartDate, sprint.EndDate, sprint.Velocity, sprint.CreatedAt)
	if err != nil {
		return Sprint{}, fmt.Errorf("insert sprint: %w", classify(err))
	}
	return sprint, nil
}

func (s *SQLStore) FindSprints(ctx context.Context, filter SprintFilter) ([]Sprint, error) {
	query := `SELECT id, project_id, name, start_date, end_date, velocity, created_at FROM sprints WHERE project_id=$1`
	args := []any{filter.ProjectID}
	if filter.Name != "" {
		query += ` AND name=$2`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY start_date, name`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find sprints: %w", err)
	}
	defer rows.Close()

	sprints := []Sprint{}
	for rows.Next() {
		var sprint Sprint
		if err := rows.Scan(&sprint.ID, &sprint.ProjectID, &sprint.Name, &sprint.StartDate, &sprint.EndDate, &sprint.Velocity, &sprint.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sprint)
	}
	return sprints, rows.Err()
}

func (s *SQLStore) GetSprint(ctx context.Context, id string) (Sprint, error) {
	var sprint Sprint
	err := s.queryRow(ctx, s.db, `
		SELECT id, project_id, name, start_date, end_date, velocity, created_at FROM sprints WHERE id=$1
	`, id).Scan(&sprint.ID, &sprint.ProjectID, &sprint.Name, &sprint.StartDate, &sprint.EndDate, &sprint.Velocity, &sprint.CreatedAt)
	if err != nil {
		return Sprint{}, fmt.Errorf("get sprint: %w", classify(err))
	}
	return sprint, nil
}

func (s *SQLStore) DeleteSprint(ctx context.Context, id string) error {
	result, err := s.exec(ctx, s.db, `DELETE FROM sprints WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete sprint: %w", err)
	}
	return requireAffected(result)
}
