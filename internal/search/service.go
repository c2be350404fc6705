package search

import (
	"context"
	"log/slog"

	"sprintboard/api/internal/store"
)

// Engine is a search backend that also maintains its own index.
type Engine interface {
	Searcher
	IndexStory(record StoryRecord) error
	DeleteStory(id string) error
	IndexStories(records []StoryRecord) error
}

// StoryFinder is the store query used when no engine is available.
type StoryFinder interface {
	FindStories(ctx context.Context, filter store.StoryFilter) (store.StoryPage, error)
}

// Service is the facade that tries the engine first and falls back to a
// substring match in the store.
type Service struct {
	engine Engine
	finder StoryFinder
	log    *slog.Logger
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, finder StoryFinder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, finder: finder, log: logger.With("component", "search")}
}

func (s *Service) engineReady() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engineReady() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WarnContext(ctx, "engine search failed, falling back to store", "error", err)
	}

	results, total, err := s.fallback(ctx, q)
	if err != nil {
		s.log.ErrorContext(ctx, "store search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) fallback(ctx context.Context, q Query) ([]Result, int, error) {
	if s.finder == nil {
		return nil, 0, nil
	}
	var all []Result
	for _, projectID := range q.ProjectIDs {
		page, err := s.finder.FindStories(ctx, store.StoryFilter{ProjectID: projectID, Query: q.Text})
		if err != nil {
			return nil, 0, err
		}
		for _, story := range page.Docs {
			all = append(all, Result{
				ID:        story.ID,
				ProjectID: story.ProjectID,
				Title:     story.Title,
				Snippet:   snippet(story.Description),
				Priority:  story.Priority,
				Realized:  story.Realized,
			})
		}
	}

	total := len(all)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	return all[start:end], total, nil
}

// IndexStory indexes a story (fire-and-forget to the engine).
func (s *Service) IndexStory(ctx context.Context, story store.Story) {
	if !s.engineReady() {
		return
	}
	record := RecordFromStory(story)
	go func() {
		if err := s.engine.IndexStory(record); err != nil {
			s.log.Warn("index story failed", "story_id", record.ID, "error", err)
		}
	}()
}

// RemoveStory removes a story from the index (fire-and-forget).
func (s *Service) RemoveStory(ctx context.Context, storyID string) {
	if !s.engineReady() {
		return
	}
	go func() {
		if err := s.engine.DeleteStory(storyID); err != nil {
			s.log.Warn("delete story from index failed", "story_id", storyID, "error", err)
		}
	}()
}

// ReindexAll pushes every story to the engine.
func (s *Service) ReindexAll(ctx context.Context, stories []store.Story) {
	if !s.engineReady() || len(stories) == 0 {
		return
	}
	records := make([]StoryRecord, len(stories))
	for i, story := range stories {
		records[i] = RecordFromStory(story)
	}
	if err := s.engine.IndexStories(records); err != nil {
		s.log.WarnContext(ctx, "reindex stories failed", "count", len(records), "error", err)
	}
}

const snippetLength = 160

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "…"
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
