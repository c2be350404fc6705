package search

import (
	"context"

	"sprintboard/api/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Priority  string `json:"priority"`
	Realized  bool   `json:"realized"`
}

// Query describes a search request. ProjectIDs limits hits to the projects
// the caller may read; an empty list matches nothing.
type Query struct {
	Text       string
	ProjectIDs []string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// StoryRecord is the data we index for a story.
type StoryRecord struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"projectId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	AcceptanceTests []string `json:"acceptanceTests"`
	Priority        string   `json:"priority"`
	Realized        bool     `json:"realized"`
}

func RecordFromStory(story store.Story) StoryRecord {
	return StoryRecord{
		ID:              story.ID,
		ProjectID:       story.ProjectID,
		Title:           story.Title,
		Description:     story.Description,
		AcceptanceTests: story.AcceptanceTests,
		Priority:        story.Priority,
		Realized:        story.Realized,
	}
}

const defaultLimit = 20

func (q Query) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
