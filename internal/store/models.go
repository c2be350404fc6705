package store

import "time"

type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Name          string     `json:"name"`
	Surname       string     `json:"surname"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	LoginDate     *time.Time `json:"loginDate,omitempty"`
	LastLoginDate *time.Time `json:"lastLoginDate,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Key           string    `json:"key"`
	Documentation string    `json:"documentation"`
	Members       []Member  `json:"members"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Member is a membership row; Username is filled on read.
type Member struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Position  int    `json:"position"`
}

type Sprint struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Velocity  float64   `json:"velocity"`
	CreatedAt time.Time `json:"createdAt"`
}

type Story struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"projectId"`
	SprintID        *string   `json:"sprintId"`
	Title           string    `json:"title"`
	TitleLowerCase  string    `json:"titleLowerCase"`
	Description     string    `json:"description"`
	AcceptanceTests []string  `json:"acceptanceTests"`
	Priority        string    `json:"priority"`
	BusinessValue   int       `json:"businessValue"`
	TimeEstimate    *float64  `json:"timeEstimate"`
	Realized        bool      `json:"realized"`
	RejectComment   *string   `json:"rejectComment"`
	Tasks           []Task    `json:"tasks"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Task is embedded in Story and persisted inside the stories.tasks column.
type Task struct {
	ID           string  `json:"id"`
	Description  string  `json:"description"`
	TimeEstimate float64 `json:"timeEstimate"`
	MemberID     *string `json:"memberId"`
	Realized     bool    `json:"realized"`
}

type TaskTime struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	StoryID   string     `json:"storyId"`
	TaskID    string     `json:"taskId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
	CustomHMS *string    `json:"customHms"`
}

type WallMessage struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// StoryFilter narrows FindStories. Empty fields do not filter.
type StoryFilter struct {
	ProjectID  string
	SprintID   string
	TitleLower string
	ExcludeID  string
	Query      string
	Limit      int
	Offset     int
}

type StoryPage struct {
	Docs      []Story `json:"docs"`
	TotalDocs int     `json:"totalDocs"`
}

type SprintFilter struct {
	ProjectID string
	Name      string
}

// Nullable marks a patch field that may be explicitly set to NULL. A zero
// Nullable leaves the column untouched.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func Value[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// StoryPatch lists the columns an UpdateStory call writes. Nil pointers and
// unset Nullables are left as stored.
type StoryPatch struct {
	Title           *string
	TitleLowerCase  *string
	Description     *string
	AcceptanceTests *[]string
	Priority        *string
	BusinessValue   *int
	TimeEstimate    Nullable[float64]
	Realized        *bool
	RejectComment   Nullable[string]
	SprintID        Nullable[string]
	Tasks           *[]Task
}

func (p StoryPatch) Empty() bool {
	return p.Title == nil && p.TitleLowerCase == nil && p.Description == nil &&
		p.AcceptanceTests == nil && p.Priority == nil && p.BusinessValue == nil &&
		!p.TimeEstimate.Set && p.Realized == nil && !p.RejectComment.Set &&
		!p.SprintID.Set && p.Tasks == nil
}
