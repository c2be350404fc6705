package rbac

// Subject is the acting user as seen by the evaluator.
type Subject struct {
	ID   string
	Role GlobalRole
}

// Member is one entry of a project's membership list.
type Member struct {
	ID        string
	ProjectID string
	UserID    string
	Role      ProjectRole
}

// IsAdmin gates global-role changes during user edits.
func IsAdmin(user *Subject) bool {
	return user != nil && user.Role == GlobalAdmin
}

// IsAdminField is the field-level form of IsAdmin used when deciding whether
// the role attribute of a user record is writable.
func IsAdminField(user *Subject) bool {
	return IsAdmin(user)
}

// IsAdminOrMethodologyManager gates story creation and task creation.
func IsAdminOrMethodologyManager(user *Subject, members []Member) bool {
	if user == nil {
		return false
	}
	if IsAdmin(user) {
		return true
	}
	_, ok := findManager(user.ID, "", members)
	return ok
}

// CanDeleteStory gates edit, delete, accept and reject of a story. members is
// the membership list of the project owning the story; entries tagged with a
// different project are ignored.
func CanDeleteStory(user *Subject, storyProjectID string, members []Member) bool {
	if user == nil {
		return false
	}
	if IsAdmin(user) {
		return true
	}
	_, ok := findManager(user.ID, storyProjectID, members)
	return ok
}

// MemberFor returns the membership entry of userID, if any.
func MemberFor(userID string, members []Member) (Member, bool) {
	for _, member := range members {
		if member.UserID == userID {
			return member, true
		}
	}
	return Member{}, false
}

func findManager(userID, projectID string, members []Member) (Member, bool) {
	if userID == "" {
		return Member{}, false
	}
	for _, member := range members {
		if member.UserID != userID {
			continue
		}
		if projectID != "" && member.ProjectID != "" && member.ProjectID != projectID {
			continue
		}
		if member.Role.IsMethodologyManager() {
			return member, true
		}
	}
	return Member{}, false
}
