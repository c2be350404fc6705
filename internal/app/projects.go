package app

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/store"
)

const dateLayout = "2006-01-02"

type MemberInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type CreateProjectInput struct {
	Name    string        `json:"name"`
	Key     string        `json:"key"`
	Members []MemberInput `json:"members"`
}

type SprintInput struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Velocity  string `json:"velocity"`
}

const (
	msgProjectNotFound   = "Project not found"
	msgProjectNameNeeded = "Project name is required"
	msgDuplicateMember   = "User is already a member of this project"
	msgUserNotFound      = "User not found"
	msgMemberNotFound    = "Member not found in project"
	msgManageDenied      = "You do not have permission to manage this project"
	msgViewDenied        = "You do not have permission to view this project"
	msgSprintName        = "Sprint name is required"
	msgSprintNotFound    = "Sprint not found"
	msgSprintExists      = "Sprint name already exists in this project"
	msgSprintDates       = "Dates must use the YYYY-MM-DD format"
	msgSprintOrder       = "Sprint end date must not be before its start date"
	msgSprintVelocity    = "Velocity must be a non-negative number"
)

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	subject, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	userID := subject.ID
	if rbac.IsAdmin(subject) {
		userID = ""
	}
	projects, err := s.store.ListProjects(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "list projects failed", "error", err)
		return nil, persistence("Failed fetching projects")
	}
	if projects == nil {
		projects = []store.Project{}
	}
	return projects, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	return project, err
}

// projectFor loads a project and checks that the acting user is an
// administrator or a member whose role allows action.
func (s *Service) projectFor(ctx context.Context, projectID string, action rbac.Action) (store.Project, *rbac.Subject, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.Project{}, nil, err
	}
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return store.Project{}, nil, err
	}
	if rbac.IsAdmin(subject) {
		return project, subject, nil
	}
	member, ok := rbac.MemberFor(subject.ID, backlog.Members(project))
	if !ok || !rbac.Can(member.Role, action) {
		return store.Project{}, nil, forbidden(msgViewDenied)
	}
	return project, subject, nil
}

// managedProject loads a project the acting user may manage.
func (s *Service) managedProject(ctx context.Context, projectID string) (store.Project, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.Project{}, err
	}
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !rbac.IsAdminOrMethodologyManager(subject, backlog.Members(project)) {
		return store.Project{}, forbidden(msgManageDenied)
	}
	return project, nil
}

func (s *Service) loadProject(ctx context.Context, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, strings.TrimSpace(projectID))
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, notFound(msgProjectNotFound)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "fetch project failed", "project_id", projectID, "error", err)
		return store.Project{}, persistence("Failed fetching project")
	}
	return project, nil
}

func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (store.Project, error) {
	subject, err := actor(ctx)
	if err != nil {
		return store.Project{}, err
	}
	if !rbac.IsAdmin(subject) {
		return store.Project{}, forbidden("Only administrators can create projects")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Project{}, validation(msgProjectNameNeeded)
	}

	project := store.Project{
		ID:   s.newID("prj"),
		Name: name,
		Key:  strings.ToUpper(strings.TrimSpace(in.Key)),
	}
	seen := map[string]struct{}{}
	for _, input := range in.Members {
		member, err := s.validateMember(ctx, input)
		if err != nil {
			return store.Project{}, err
		}
		if _, dup := seen[member.UserID]; dup {
			return store.Project{}, validation(msgDuplicateMember)
		}
		seen[member.UserID] = struct{}{}
		member.ProjectID = project.ID
		project.Members = append(project.Members, member)
	}

	created, err := s.store.CreateProject(ctx, project)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Project{}, validation(msgDuplicateMember)
		}
		s.log.ErrorContext(ctx, "create project failed", "error", err)
		return store.Project{}, persistence("Failed to create project")
	}
	return s.loadProject(ctx, created.ID)
}

func (s *Service) validateMember(ctx context.Context, input MemberInput) (store.Member, error) {
	role, err := rbac.ValidateProjectRole(input.Role)
	if err != nil {
		return store.Member{}, err
	}
	user, err := s.store.GetUserByID(ctx, strings.TrimSpace(input.UserID))
	if errors.Is(err, store.ErrNotFound) {
		return store.Member{}, notFound(msgUserNotFound)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "fetch user failed", "user_id", input.UserID, "error", err)
		return store.Member{}, persistence("Failed fetching user")
	}
	return store.Member{
		ID:       s.newID("mem"),
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(role),
	}, nil
}

func (s *Service) AddMember(ctx context.Context, projectID string, in MemberInput) (store.Member, error) {
	project, err := s.managedProject(ctx, projectID)
	if err != nil {
		return store.Member{}, err
	}
	member, err := s.validateMember(ctx, in)
	if err != nil {
		return store.Member{}, err
	}
	for _, existing := range project.Members {
		if existing.UserID == member.UserID {
			return store.Member{}, validation(msgDuplicateMember)
		}
	}
	member.ProjectID = project.ID
	created, err := s.store.AddMember(ctx, member)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Member{}, validation(msgDuplicateMember)
		}
		s.log.ErrorContext(ctx, "add member failed", "project_id", project.ID, "error", err)
		return store.Member{}, persistence("Failed to add member")
	}
	created.Username = member.Username
	return created, nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, projectID, memberID, role string) (store.Project, error) {
	project, err := s.managedProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	validRole, err := rbac.ValidateProjectRole(role)
	if err != nil {
		return store.Project{}, err
	}
	if err := s.store.UpdateMemberRole(ctx, project.ID, memberID, string(validRole)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, notFound(msgMemberNotFound)
		}
		s.log.ErrorContext(ctx, "update member failed", "project_id", project.ID, "member_id", memberID, "error", err)
		return store.Project{}, persistence("Failed to update member")
	}
	return s.loadProject(ctx, project.ID)
}

func (s *Service) RemoveMember(ctx context.Context, projectID, memberID string) (store.Project, error) {
	project, err := s.managedProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if err := s.store.RemoveMember(ctx, project.ID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Project{}, notFound(msgMemberNotFound)
		}
		s.log.ErrorContext(ctx, "remove member failed", "project_id", project.ID, "member_id", memberID, "error", err)
		return store.Project{}, persistence("Failed to remove member")
	}
	return s.loadProject(ctx, project.ID)
}

func (s *Service) ListSprints(ctx context.Context, projectID string) ([]store.Sprint, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	sprints, err := s.store.FindSprints(ctx, store.SprintFilter{ProjectID: project.ID})
	if err != nil {
		s.log.ErrorContext(ctx, "list sprints failed", "project_id", project.ID, "error", err)
		return nil, persistence("Failed fetching sprints")
	}
	return sprints, nil
}

func (s *Service) CreateSprint(ctx context.Context, projectID string, in SprintInput) (store.Sprint, error) {
	project, err := s.managedProject(ctx, projectID)
	if err != nil {
		return store.Sprint{}, err
	}
	sprint, err := parseSprint(in)
	if err != nil {
		return store.Sprint{}, err
	}

	existing, err := s.store.FindSprints(ctx, store.SprintFilter{ProjectID: project.ID, Name: sprint.Name})
	if err != nil {
		s.log.ErrorContext(ctx, "sprint lookup failed", "project_id", project.ID, "error", err)
		return store.Sprint{}, persistence("Failed to create sprint")
	}
	if len(existing) > 0 {
		return store.Sprint{}, validation(msgSprintExists)
	}

	sprint.ID = s.newID("spr")
	sprint.ProjectID = project.ID
	created, err := s.store.CreateSprint(ctx, sprint)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Sprint{}, validation(msgSprintExists)
		}
		s.log.ErrorContext(ctx, "create sprint failed", "project_id", project.ID, "error", err)
		return store.Sprint{}, persistence("Failed to create sprint")
	}
	return created, nil
}

func (s *Service) GetSprint(ctx context.Context, projectID, sprintID string) (store.Sprint, error) {
	project, _, err := s.projectFor(ctx, projectID, rbac.ActionRead)
	if err != nil {
		return store.Sprint{}, err
	}
	return s.projectSprint(ctx, project.ID, sprintID)
}

// DeleteSprint removes a sprint; its stories return to the backlog.
func (s *Service) DeleteSprint(ctx context.Context, projectID, sprintID string) error {
	project, err := s.managedProject(ctx, projectID)
	if err != nil {
		return err
	}
	sprint, err := s.projectSprint(ctx, project.ID, sprintID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSprint(ctx, sprint.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(msgSprintNotFound)
		}
		s.log.ErrorContext(ctx, "delete sprint failed", "project_id", project.ID, "sprint_id", sprint.ID, "error", err)
		return persistence("Failed to delete sprint")
	}
	return nil
}

func (s *Service) projectSprint(ctx context.Context, projectID, sprintID string) (store.Sprint, error) {
	sprint, err := s.store.GetSprint(ctx, sprintID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sprint.ProjectID != projectID) {
		return store.Sprint{}, notFound(msgSprintNotFound)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "fetch sprint failed", "sprint_id", sprintID, "error", err)
		return store.Sprint{}, persistence("Failed fetching sprint")
	}
	return sprint, nil
}

func parseSprint(in SprintInput) (store.Sprint, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Sprint{}, validation(msgSprintName)
	}
	start, err := time.Parse(dateLayout, strings.TrimSpace(in.StartDate))
	if err != nil {
		return store.Sprint{}, validation(msgSprintDates)
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(in.EndDate))
	if err != nil {
		return store.Sprint{}, validation(msgSprintDates)
	}
	if end.Before(start) {
		return store.Sprint{}, validation(msgSprintOrder)
	}
	velocity := 0.0
	if raw := strings.TrimSpace(in.Velocity); raw != "" {
		velocity, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(velocity) || math.IsInf(velocity, 0) || velocity < 0 {
			return store.Sprint{}, validation(msgSprintVelocity)
		}
	}
	return store.Sprint{Name: name, StartDate: start, EndDate: end, Velocity: velocity}, nil
}
