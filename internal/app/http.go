package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sprintboard/api/internal/auth"
	"sprintboard/api/internal/authpw"
	"sprintboard/api/internal/util"
)

type requestIDKey struct{}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	engine     *gin.Engine
	log        *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		engine:     router,
		log:        service.log.With("component", "http"),
	}
	router.Use(s.requestLog(), s.cors())
	s.registerRoutes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.HEAD("/health", s.handleHealth)
	api.GET("/ready", s.handleReady)
	api.HEAD("/ready", s.handleReady)

	api.POST("/auth/signin", s.handleSignIn)
	api.POST("/session/refresh", s.handleRefresh)
	api.POST("/session/logout", s.handleLogout)

	authed := api.Group("", s.requireSession)
	{
		authed.GET("/me", s.handleMe)
		authed.PUT("/me", s.handleUpdateProfile)
		authed.PUT("/me/password", s.handleUpdatePassword)

		authed.GET("/users", s.handleListUsers)
		authed.POST("/users", s.handleCreateUser)
		authed.PUT("/users/:id/role", s.handleSetUserRole)

		projects := authed.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET("/:id", s.handleGetProject)
			projects.POST("/:id/members", s.handleAddMember)
			projects.PUT("/:id/members/:memberId", s.handleUpdateMember)
			projects.DELETE("/:id/members/:memberId", s.handleRemoveMember)
			projects.GET("/:id/sprints", s.handleListSprints)
			projects.POST("/:id/sprints", s.handleCreateSprint)
			projects.GET("/:id/sprints/:sprintId", s.handleGetSprint)
			projects.DELETE("/:id/sprints/:sprintId", s.handleDeleteSprint)
			projects.GET("/:id/stories", s.handleListStories)
			projects.POST("/:id/stories", s.handleCreateStory)
			projects.GET("/:id/wall", s.handleListWall)
			projects.POST("/:id/wall", s.handlePostWall)
			projects.GET("/:id/documentation", s.handleGetDocumentation)
			projects.PUT("/:id/documentation", s.handleUpdateDocumentation)
			projects.POST("/:id/documentation/import", s.handleImportDocumentation)
			projects.GET("/:id/documentation/history", s.handleDocumentationHistory)
			projects.GET("/:id/documentation/export", s.handleExportDocumentation)
		}

		stories := authed.Group("/stories/:id")
		{
			stories.GET("", s.handleGetStory)
			stories.PUT("", s.handleEditStory)
			stories.DELETE("", s.handleDeleteStory)
			stories.POST("/accept", s.handleAcceptStory)
			stories.POST("/reject", s.handleRejectStory)
			stories.POST("/sprint", s.handleAssignSprint)
			stories.POST("/estimate", s.handleEditEstimate)
			stories.POST("/tasks", s.handleAddTask)
			stories.PUT("/tasks/:taskId", s.handleEditTask)
			stories.DELETE("/tasks/:taskId", s.handleRemoveTask)
			stories.POST("/tasks/:taskId/realized", s.handleSetTaskRealized)
			stories.POST("/tasks/:taskId/timer/start", s.handleStartTimer)
			stories.POST("/tasks/:taskId/times", s.handleLogTime)
			stories.GET("/tasks/:taskId/times", s.handleListTimes)
		}

		authed.POST("/times/:id/stop", s.handleStopTimer)
		authed.GET("/search", s.handleSearch)
	}
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := gin.H{
		"database": gin.H{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = gin.H{
			"status": "error",
			"error":  err.Error(),
		}
	}

	c.JSON(statusCode, gin.H{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignIn(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	session, err := s.service.SignIn(c.Request.Context(), values.Get("username"), values.Get("password"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	session, err := s.service.Refresh(c.Request.Context(), values.Get("refreshToken"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(c *gin.Context) {
	session := Session{}
	if token := bearerToken(c.Request); token != "" {
		if parsed, err := s.service.SessionFromToken(c.Request.Context(), token); err == nil {
			session = parsed
		}
	}
	values, _ := formValues(c)
	_ = s.service.Logout(c.Request.Context(), session, values.Get("refreshToken"))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func sessionPayload(session Session) gin.H {
	return gin.H{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"username":     session.Username,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.UTC(),
	}
}

func (s *HTTPServer) handleMe(c *gin.Context) {
	user, err := s.service.Me(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *HTTPServer) handleUpdateProfile(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	user, err := s.service.UpdateProfile(c.Request.Context(), authpw.ProfileUpdate{
		Username: values.Get("username"),
		Name:     values.Get("name"),
		Surname:  values.Get("surname"),
		Email:    values.Get("email"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *HTTPServer) handleUpdatePassword(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	if err := s.service.UpdatePassword(c.Request.Context(), values.Get("currentPassword"), values.Get("newPassword")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *HTTPServer) handleListUsers(c *gin.Context) {
	users, err := s.service.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *HTTPServer) handleCreateUser(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	user, err := s.service.CreateUser(c.Request.Context(), authpw.CreateUserRequest{
		Username: values.Get("username"),
		Password: values.Get("password"),
		Name:     values.Get("name"),
		Surname:  values.Get("surname"),
		Email:    values.Get("email"),
		Role:     values.Get("role"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (s *HTTPServer) handleSetUserRole(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	user, err := s.service.SetUserRole(c.Request.Context(), c.Param("id"), values.Get("role"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *HTTPServer) handleListProjects(c *gin.Context) {
	projects, err := s.service.ListProjects(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *HTTPServer) handleCreateProject(c *gin.Context) {
	var req CreateProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	project, err := s.service.CreateProject(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (s *HTTPServer) handleGetProject(c *gin.Context) {
	project, err := s.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (s *HTTPServer) handleAddMember(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	member, err := s.service.AddMember(c.Request.Context(), c.Param("id"), MemberInput{
		UserID: values.Get("userId"),
		Role:   values.Get("role"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

func (s *HTTPServer) handleUpdateMember(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	project, err := s.service.UpdateMemberRole(c.Request.Context(), c.Param("id"), c.Param("memberId"), values.Get("role"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (s *HTTPServer) handleRemoveMember(c *gin.Context) {
	project, err := s.service.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("memberId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (s *HTTPServer) handleListSprints(c *gin.Context) {
	sprints, err := s.service.ListSprints(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sprints": sprints})
}

func (s *HTTPServer) handleCreateSprint(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	sprint, err := s.service.CreateSprint(c.Request.Context(), c.Param("id"), SprintInput{
		Name:      values.Get("name"),
		StartDate: values.Get("startDate"),
		EndDate:   values.Get("endDate"),
		Velocity:  values.Get("velocity"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sprint": sprint})
}

func (s *HTTPServer) handleGetSprint(c *gin.Context) {
	sprint, err := s.service.GetSprint(c.Request.Context(), c.Param("id"), c.Param("sprintId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sprint": sprint})
}

func (s *HTTPServer) handleDeleteSprint(c *gin.Context) {
	if err := s.service.DeleteSprint(c.Request.Context(), c.Param("id"), c.Param("sprintId")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireSession authenticates the bearer token and attaches the user to the
// request context.
func (s *HTTPServer) requireSession(c *gin.Context) {
	token := bearerToken(c.Request)
	if token == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		c.Abort()
		return
	}
	session, err := s.service.SessionFromToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			c.Abort()
			return
		}
		s.log.ErrorContext(c.Request.Context(), "session lookup failed", "error", err)
		writeError(c, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		c.Abort()
		return
	}
	c.Request = c.Request.WithContext(auth.WithSubject(c.Request.Context(), session.Subject()))
	c.Next()
}

func (s *HTTPServer) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, requestID))
		c.Header("X-Request-ID", requestID)

		started := time.Now()
		c.Next()

		s.log.InfoContext(c.Request.Context(), "request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

func (s *HTTPServer) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		setCORSHeaders(c.Writer.Header(), s.corsOrigin)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Request-ID")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID,Content-Disposition,X-Export-URL")
}

// respondError maps err onto the error envelope. Server-side failures are
// logged with the underlying cause.
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"code", code,
			"error", err,
		)
	}
	writeError(c, status, code, message, details)
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(status, response)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// bindForm reads the request body as flat form values and writes a 400 on
// malformed input.
func (s *HTTPServer) bindForm(c *gin.Context) (url.Values, bool) {
	values, err := formValues(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return nil, false
	}
	return values, true
}

// formValues accepts a JSON object, a urlencoded form or a multipart form
// and flattens it into url.Values. JSON arrays become repeated keys.
func formValues(c *gin.Context) (url.Values, error) {
	switch contentType := c.ContentType(); {
	case contentType == gin.MIMEJSON:
		values := url.Values{}
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			return values, nil
		}
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			return url.Values{}, fmt.Errorf("invalid JSON body")
		}
		for key, value := range body {
			appendValue(values, key, value)
		}
		return values, nil
	case contentType == gin.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(maxDocumentationBytes); err != nil {
			return url.Values{}, fmt.Errorf("invalid form body")
		}
	default:
		if err := c.Request.ParseForm(); err != nil {
			return url.Values{}, fmt.Errorf("invalid form body")
		}
	}
	if c.Request.PostForm == nil {
		return url.Values{}, nil
	}
	return c.Request.PostForm, nil
}

func appendValue(values url.Values, key string, value any) {
	switch v := value.(type) {
	case nil:
	case string:
		values.Add(key, v)
	case float64:
		values.Add(key, strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		values.Add(key, strconv.FormatBool(v))
	case []any:
		for _, item := range v {
			appendValue(values, key, item)
		}
	default:
		values.Add(key, fmt.Sprint(v))
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", key+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}
