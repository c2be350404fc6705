package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// GlobalRole is the system-wide role carried by every user.
type GlobalRole string

// ProjectRole is the role a user holds inside one project.
type ProjectRole string

type Action string

const (
	GlobalAdmin GlobalRole = "admin"
	GlobalUser  GlobalRole = "user"
)

const (
	// Canonical tiers. Recognized on read, never accepted for assignment.
	RoleMethodologyManager ProjectRole = "methodology_manager"
	RoleProductManager     ProjectRole = "product_manager"
	RoleDeveloper          ProjectRole = "developer"

	// Combined roles offered when assigning members.
	RoleScrumMaster             ProjectRole = "scrum_master"
	RoleScrumMasterDeveloper    ProjectRole = "scrum_master_developer"
	RoleProductOwner            ProjectRole = "product_owner"
	RoleProductOwnerScrumMaster ProjectRole = "product_owner_scrum_master"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionDevelop Action = "develop"
	ActionPlan    Action = "plan"
	ActionManage  Action = "manage"
)

var ErrInvalidRole = errors.New("invalid role")

// AssignableProjectRoles lists the roles accepted by ValidateProjectRole, in
// the order they are offered to users.
var AssignableProjectRoles = []ProjectRole{
	RoleScrumMaster,
	RoleScrumMasterDeveloper,
	RoleProductOwner,
	RoleProductOwnerScrumMaster,
	RoleDeveloper,
}

func ValidateProjectRole(value string) (ProjectRole, error) {
	role := ProjectRole(strings.TrimSpace(value))
	for _, allowed := range AssignableProjectRoles {
		if role == allowed {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
}

func ValidateGlobalRole(value string) (GlobalRole, error) {
	switch role := GlobalRole(strings.TrimSpace(value)); role {
	case GlobalAdmin, GlobalUser:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// IsMethodologyManager reports whether the role carries sprint and backlog
// management rights.
func (r ProjectRole) IsMethodologyManager() bool {
	switch r {
	case RoleMethodologyManager, RoleScrumMaster, RoleScrumMasterDeveloper, RoleProductOwnerScrumMaster:
		return true
	default:
		return false
	}
}

func (r ProjectRole) IsProductManager() bool {
	switch r {
	case RoleProductManager, RoleProductOwner, RoleProductOwnerScrumMaster:
		return true
	default:
		return false
	}
}

func (r ProjectRole) IsDeveloper() bool {
	switch r {
	case RoleDeveloper, RoleScrumMasterDeveloper:
		return true
	default:
		return false
	}
}

// Can maps a project role to the actions it may take on the non-backlog
// surfaces of a project (wall, time tracking, documentation, sprints).
func Can(role ProjectRole, action Action) bool {
	switch {
	case role.IsMethodologyManager():
		return true
	case role.IsProductManager():
		return action == ActionRead || action == ActionComment || action == ActionPlan
	case role.IsDeveloper():
		return action == ActionRead || action == ActionComment || action == ActionDevelop
	default:
		return false
	}
}

// Normalize maps stored role text onto a known project role. Unknown values
// collapse to the empty role, which Can rejects for every action.
func Normalize(role string) ProjectRole {
	switch r := ProjectRole(strings.TrimSpace(role)); r {
	case RoleMethodologyManager, RoleProductManager, RoleDeveloper,
		RoleScrumMaster, RoleScrumMasterDeveloper, RoleProductOwner, RoleProductOwnerScrumMaster:
		return r
	default:
		return ""
	}
}
