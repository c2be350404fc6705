package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/config"
	"sprintboard/api/internal/docs"
	"sprintboard/api/internal/export"
	"sprintboard/api/internal/rbac"
	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
	"sprintboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Subject is the evaluator view of the session owner.
func (s Session) Subject() *rbac.Subject {
	return &rbac.Subject{ID: s.UserID, Role: rbac.GlobalRole(s.Role)}
}

// DataStore is the persistence surface of the service.
type DataStore interface {
	backlog.Store
	authpw.UserStore
	SessionStore
	ListUsers(ctx context.Context) ([]store.User, error)
	CreateProject(ctx context.Context, project store.Project) (store.Project, error)
	ListProjects(ctx context.Context, userID string) ([]store.Project, error)
	AddMember(ctx context.Context, member store.Member) (store.Member, error)
	UpdateMemberRole(ctx context.Context, projectID, memberID, role string) error
	RemoveMember(ctx context.Context, projectID, memberID string) error
	UpdateProjectDocumentation(ctx context.Context, projectID, documentation string) error
	CreateSprint(ctx context.Context, sprint store.Sprint) (store.Sprint, error)
	GetSprint(ctx context.Context, id string) (store.Sprint, error)
	DeleteSprint(ctx context.Context, id string) error
	CreateTaskTime(ctx context.Context, entry store.TaskTime) (store.TaskTime, error)
	GetTaskTime(ctx context.Context, id string) (store.TaskTime, error)
	RunningTaskTime(ctx context.Context, userID, storyID, taskID string) (store.TaskTime, error)
	StopTaskTime(ctx context.Context, id string, endedAt time.Time) error
	ListTaskTimes(ctx context.Context, storyID, taskID string) ([]store.TaskTime, error)
	CreateWallMessage(ctx context.Context, message store.WallMessage) (store.WallMessage, error)
	ListWallMessages(ctx context.Context, projectID string, limit int) ([]store.WallMessage, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// SessionStore keeps refresh sessions, either in redis or in the database.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type docService interface {
	Save(projectID, markdown, author, message string) (docs.Commit, error)
	Get(projectID string) (string, docs.Commit, error)
	History(projectID string, limit int) ([]docs.Commit, error)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type storySearcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	ReindexAll(ctx context.Context, stories []store.Story)
}

// Deps carries the collaborators of a Service. Only Store is required.
type Deps struct {
	Store DataStore
	// Backlog overrides the store seen by the lifecycle managers, e.g. with
	// an instrumented wrapper. Defaults to Store.
	Backlog  backlog.Store
	Sessions SessionStore
	Docs     docService
	Exporter exporter
	Search   storySearcher
	Indexer  backlog.Indexer
	Notifier backlog.Notifier
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	store    DataStore
	sessions SessionStore
	accounts *authpw.Service
	stories  *backlog.Stories
	tasks    *backlog.Tasks
	docs     docService
	exporter exporter
	search   storySearcher
	log      *slog.Logger
	now      func() time.Time
	newID    func(prefix string) string
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backlogStore := deps.Backlog
	if backlogStore == nil {
		backlogStore = deps.Store
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = deps.Store
	}
	stories, tasks := backlog.New(backlogStore, auth.ContextIdentity{}, backlog.Options{
		StrictSprintLookup: cfg.StrictSprintLookup,
		Indexer:            deps.Indexer,
		Notifier:           deps.Notifier,
		Logger:             logger.With("component", "backlog"),
	})
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		accounts: authpw.NewService(deps.Store),
		stories:  stories,
		tasks:    tasks,
		docs:     deps.Docs,
		exporter: deps.Exporter,
		search:   deps.Search,
		log:      logger,
		now:      time.Now,
		newID:    util.NewID,
	}
}

func (s *Service) Stories() *backlog.Stories {
	return s.stories
}

func (s *Service) Tasks() *backlog.Tasks {
	return s.tasks
}

// Bootstrap creates the first administrator when no user exists yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.BootstrapAdminPassword == "" {
		return nil
	}
	created, err := s.accounts.Bootstrap(ctx, s.cfg.BootstrapAdminUsername, s.cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}
	if created {
		s.log.InfoContext(ctx, "bootstrap administrator created", "username", s.cfg.BootstrapAdminUsername)
	}
	return nil
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	user, err := s.accounts.SignIn(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := s.newID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Username,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := s.newID("rft") + s.newID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.WarnContext(ctx, "revoke access token failed", "error", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.WarnContext(ctx, "revoke refresh session failed", "error", err)
		}
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// actor returns the authenticated user of ctx or a 401 error.
func actor(ctx context.Context) (*rbac.Subject, error) {
	subject := auth.SubjectFrom(ctx)
	if subject == nil {
		return nil, auth.ErrInvalidToken
	}
	return subject, nil
}
