package app

import (
	"context"
	"strings"

	"sprintboard/api/internal/search"
	"sprintboard/api/internal/store"
)

// Search looks up stories in the projects visible to the acting user. A
// non-empty projectID narrows the search to that project.
func (s *Service) Search(ctx context.Context, text, projectID string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validation("Query is required")
	}
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return search.Response{}, err
	}

	var ids []string
	for _, project := range projects {
		if projectID != "" && project.ID != projectID {
			continue
		}
		ids = append(ids, project.ID)
	}
	if projectID != "" && len(ids) == 0 {
		return search.Response{}, forbidden(msgViewDenied)
	}
	if len(ids) == 0 || s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{Text: text, ProjectIDs: ids, Limit: limit, Offset: offset}), nil
}

// ReindexSearch pushes every story of every project into the search index.
func (s *Service) ReindexSearch(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	projects, err := s.store.ListProjects(ctx, "")
	if err != nil {
		return err
	}
	var stories []store.Story
	for _, project := range projects {
		page, err := s.store.FindStories(ctx, store.StoryFilter{ProjectID: project.ID})
		if err != nil {
			return err
		}
		stories = append(stories, page.Docs...)
	}
	s.search.ReindexAll(ctx, stories)
	s.log.InfoContext(ctx, "search reindexed", "stories", len(stories))
	return nil
}
