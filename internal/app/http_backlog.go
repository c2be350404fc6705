package app

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sprintboard/api/internal/backlog"
	"sprintboard/api/internal/store"
)

func (s *HTTPServer) handleListStories(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	page, err := s.service.Stories().List(c.Request.Context(), c.Param("id"), store.StoryFilter{
		SprintID: strings.TrimSpace(c.Query("sprintId")),
		Query:    strings.TrimSpace(c.Query("q")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *HTTPServer) handleCreateStory(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	story, err := s.service.Stories().Create(c.Request.Context(), backlog.ParseCreateStoryForm(c.Param("id"), values))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"story": story})
}

func (s *HTTPServer) handleGetStory(c *gin.Context) {
	story, err := s.service.Stories().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": story})
}

func (s *HTTPServer) handleEditStory(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	story, err := s.service.Stories().Edit(c.Request.Context(), backlog.ParseEditStoryForm(c.Param("id"), values))
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleDeleteStory(c *gin.Context) {
	if err := s.service.Stories().Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *HTTPServer) handleAcceptStory(c *gin.Context) {
	story, err := s.service.Stories().Accept(c.Request.Context(), c.Param("id"))
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleRejectStory(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	reason := values.Get("reason")
	if reason == "" {
		reason = values.Get("rejectComment")
	}
	story, err := s.service.Stories().Reject(c.Request.Context(), backlog.RejectStory{StoryID: c.Param("id"), Reason: reason})
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleAssignSprint(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	name := values.Get("sprint")
	if name == "" {
		name = values.Get("sprintName")
	}
	story, err := s.service.Stories().AssignSprint(c.Request.Context(), c.Param("id"), name)
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleEditEstimate(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	story, err := s.service.Stories().EditTimeEstimate(c.Request.Context(), c.Param("id"), values.Get("timeEstimate"))
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleAddTask(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	story, task, err := s.service.Tasks().Add(c.Request.Context(), backlog.ParseAddTaskForm(c.Param("id"), values))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"story": story, "task": task})
}

func (s *HTTPServer) handleEditTask(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	story, err := s.service.Tasks().Edit(c.Request.Context(), backlog.ParseEditTaskForm(c.Param("id"), c.Param("taskId"), values))
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleRemoveTask(c *gin.Context) {
	story, err := s.service.Tasks().Remove(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	s.writeStory(c, story, err)
}

func (s *HTTPServer) handleSetTaskRealized(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	realized := true
	if raw := strings.TrimSpace(values.Get("realized")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "realized must be true or false", nil)
			return
		}
		realized = parsed
	}
	story, err := s.service.Tasks().SetRealized(c.Request.Context(), c.Param("id"), c.Param("taskId"), realized)
	s.writeStory(c, story, err)
}

func (s *HTTPServer) writeStory(c *gin.Context, story store.Story, err error) {
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"story": story})
}

func (s *HTTPServer) handleStartTimer(c *gin.Context) {
	entry, err := s.service.StartTimer(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"time": entry})
}

func (s *HTTPServer) handleStopTimer(c *gin.Context) {
	entry, err := s.service.StopTimer(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time": entry})
}

func (s *HTTPServer) handleLogTime(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	hms := values.Get("time")
	if hms == "" {
		hms = values.Get("hms")
	}
	entry, err := s.service.LogTime(c.Request.Context(), c.Param("id"), c.Param("taskId"), hms)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"time": entry})
}

func (s *HTTPServer) handleListTimes(c *gin.Context) {
	times, err := s.service.ListTaskTimes(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, times)
}

func (s *HTTPServer) handleListWall(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	messages, err := s.service.ListWallMessages(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *HTTPServer) handlePostWall(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	message, err := s.service.PostWallMessage(c.Request.Context(), c.Param("id"), values.Get("message"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}

func (s *HTTPServer) handleGetDocumentation(c *gin.Context) {
	doc, err := s.service.GetDocumentation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *HTTPServer) handleUpdateDocumentation(c *gin.Context) {
	values, ok := s.bindForm(c)
	if !ok {
		return
	}
	doc, err := s.service.UpdateDocumentation(c.Request.Context(), c.Param("id"), values.Get("markdown"), values.Get("message"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleImportDocumentation takes a multipart "file" upload, or a body with
// filename and markdown fields.
func (s *HTTPServer) handleImportDocumentation(c *gin.Context) {
	var (
		filename string
		content  []byte
	)
	if header, err := c.FormFile("file"); err == nil {
		if header.Size > maxDocumentationBytes {
			writeError(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Documentation must be at most 1 MiB", nil)
			return
		}
		file, err := header.Open()
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_BODY", "cannot read uploaded file", nil)
			return
		}
		defer file.Close()
		content, err = io.ReadAll(io.LimitReader(file, maxDocumentationBytes+1))
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_BODY", "cannot read uploaded file", nil)
			return
		}
		filename = header.Filename
	} else {
		values, ok := s.bindForm(c)
		if !ok {
			return
		}
		filename = values.Get("filename")
		content = []byte(values.Get("markdown"))
	}

	doc, err := s.service.ImportDocumentation(c.Request.Context(), c.Param("id"), filename, content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *HTTPServer) handleDocumentationHistory(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}
	history, err := s.service.DocumentationHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *HTTPServer) handleExportDocumentation(c *gin.Context) {
	format := c.DefaultQuery("format", "md")
	result, err := s.service.ExportDocumentation(c.Request.Context(), c.Param("id"), format, c.Query("version"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	if result.URL != "" {
		c.Header("X-Export-URL", result.URL)
	}
	c.Data(http.StatusOK, result.MimeType, result.Data)
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	response, err := s.service.Search(c.Request.Context(), c.Query("q"), strings.TrimSpace(c.Query("projectId")), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}
