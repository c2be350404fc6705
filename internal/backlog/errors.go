package backlog

import "errors"

type Kind int

const (
	KindPermissionDenied Kind = iota + 1
	KindValidation
	KindNotFound
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindPersistence:
		return "PersistenceFailure"
	default:
		return "Unknown"
	}
}

// Error is the only error type returned by the lifecycle managers. Message is
// safe to show to the acting user; Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, backlog.ErrValidation).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrPersistence      = &Error{Kind: KindPersistence}
)

func denied(message string) error {
	return &Error{Kind: KindPermissionDenied, Message: message}
}

func invalid(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

func notFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func failed(message string, err error) error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

// KindOf returns the kind of a lifecycle error, or zero for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

const (
	msgAddStoryDenied    = "You do not have permission to add a user story"
	msgEditStoryDenied   = "You do not have permission to edit a user story"
	msgDeleteStoryDenied = "You do not have permission to delete a user story"
	msgAcceptDenied      = "You do not have permission to accept a user story"
	msgRejectDenied      = "You do not have permission to reject a user story"
	msgViewDenied        = "You do not have permission to view this project"
	msgAddTaskDenied     = "You do not have permission to add a task"
	msgEditTaskDenied    = "You do not have permission to edit a task"
	msgDeleteTaskDenied  = "You do not have permission to delete a task"

	msgInvalidProject    = "Invalid project ID"
	msgStoryFetch        = "Failed fetching story"
	msgProjectFetch      = "Failed fetching project"
	msgStoryExists       = "Story already exists"
	msgTitleRequired     = "Title is required"
	msgInvalidPriority   = "Invalid priority"
	msgBusinessValue     = "Business value must be a number"
	msgTimeEstimate      = "Time estimate must be a non-negative number"
	msgSprintNotFound    = "Sprint not found"
	msgTaskDescription   = "Task description is required"
	msgTaskNotFound      = "Task not found"
	msgMemberNotFound    = "Member not found in project"
	msgSaveStoryFailed   = "Failed to save user story"
	msgDeleteStoryFailed = "Failed to delete user story"
	msgAcceptStoryFailed = "Failed to accept user story"
	msgRejectStoryFailed = "Failed to reject user story"
	msgSaveTaskFailed    = "Failed to save task"
	msgDeleteTaskFailed  = "Failed to delete task"
	msgListStoriesFailed = "Failed fetching stories"
)
