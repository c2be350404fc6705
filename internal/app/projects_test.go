package app

import (
	"net/http"
	"testing"

	"sprintboard/api/internal/store"
)

func TestRemoveMemberUnassignsTheirTasks(t *testing.T) {
	env := newTestEnv(t)
	project := env.checkoutProject("Checkout")
	sam := env.login("sam")
	dana := memberID(t, project, "u-dana")
	pat := memberID(t, project, "u-pat")

	story := env.createStory(sam, project.ID, "Pay by card")
	danaTask := env.addTaskFor(sam, story.ID, "wire payment api", dana)
	patTask := env.addTaskFor(sam, story.ID, "write receipt copy", pat)
	other := env.createStory(sam, project.ID, "Refund order")
	otherTask := env.addTaskFor(sam, other.ID, "refund endpoint", dana)

	rr := env.do(http.MethodDelete, "/api/projects/"+project.ID+"/members/"+dana, sam, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	assignee := func(storyID, taskID string) *string {
		t.Helper()
		var payload storyPayload
		decode(t, env.do(http.MethodGet, "/api/stories/"+storyID, sam, nil), &payload)
		for _, task := range payload.Story.Tasks {
			if task.ID == taskID {
				return task.MemberID
			}
		}
		t.Fatalf("task %s missing from story %s", taskID, storyID)
		return nil
	}
	if got := assignee(story.ID, danaTask); got != nil {
		t.Fatalf("task still assigned to removed member %s", *got)
	}
	if got := assignee(other.ID, otherTask); got != nil {
		t.Fatalf("task still assigned to removed member %s", *got)
	}
	if got := assignee(story.ID, patTask); got == nil || *got != pat {
		t.Fatalf("expected remaining assignment to %s, got %v", pat, got)
	}

	expectError(t, env.do(http.MethodDelete, "/api/projects/"+project.ID+"/members/"+dana, sam, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestSprintGetAndDelete(t *testing.T) {
	env := newTestEnv(t)
	project := env.checkoutProject("Checkout")
	sam := env.login("sam")
	dana := env.login("dana")
	olive := env.login("olive")
	path := "/api/projects/" + project.ID + "/sprints"

	rr := env.do(http.MethodPost, path, sam, map[string]string{"name": "Sprint 1", "startDate": "2026-01-05", "endDate": "2026-01-16"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sprint: status %d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		Sprint store.Sprint `json:"sprint"`
	}
	decode(t, rr, &created)
	sprintPath := path + "/" + created.Sprint.ID

	story := env.createStory(sam, project.ID, "Pay by card")
	if rr := env.do(http.MethodPost, "/api/stories/"+story.ID+"/sprint", sam, map[string]string{"sprint": "Sprint 1"}); rr.Code != http.StatusOK {
		t.Fatalf("assign sprint: status %d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, sprintPath, dana, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		Sprint store.Sprint `json:"sprint"`
	}
	decode(t, rr, &got)
	if got.Sprint.Name != "Sprint 1" || got.Sprint.ProjectID != project.ID {
		t.Fatalf("unexpected sprint: %+v", got.Sprint)
	}
	expectError(t, env.do(http.MethodGet, sprintPath, olive, nil), http.StatusForbidden, "FORBIDDEN")
	expectError(t, env.do(http.MethodGet, path+"/spr-missing", dana, nil), http.StatusNotFound, "NOT_FOUND")

	other := env.checkoutProject("Billing")
	expectError(t, env.do(http.MethodGet, "/api/projects/"+other.ID+"/sprints/"+created.Sprint.ID, sam, nil), http.StatusNotFound, "NOT_FOUND")

	expectError(t, env.do(http.MethodDelete, sprintPath, dana, nil), http.StatusForbidden, "FORBIDDEN")
	if rr := env.do(http.MethodDelete, sprintPath, sam, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete sprint: status %d body=%s", rr.Code, rr.Body.String())
	}
	expectError(t, env.do(http.MethodGet, sprintPath, dana, nil), http.StatusNotFound, "NOT_FOUND")

	var payload storyPayload
	decode(t, env.do(http.MethodGet, "/api/stories/"+story.ID, sam, nil), &payload)
	if payload.Story.SprintID != nil {
		t.Fatalf("story still in deleted sprint: %v", *payload.Story.SprintID)
	}
}
