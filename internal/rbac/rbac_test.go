package rbac

import (
	"errors"
	"testing"
)

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   ProjectRole
		action Action
		allow  bool
	}{
		{name: "developer read", role: RoleDeveloper, action: ActionRead, allow: true},
		{name: "developer develop", role: RoleDeveloper, action: ActionDevelop, allow: true},
		{name: "developer plan", role: RoleDeveloper, action: ActionPlan, allow: false},
		{name: "product owner plan", role: RoleProductOwner, action: ActionPlan, allow: true},
		{name: "product owner manage", role: RoleProductOwner, action: ActionManage, allow: false},
		{name: "scrum master manage", role: RoleScrumMaster, action: ActionManage, allow: true},
		{name: "scrum master developer develop", role: RoleScrumMasterDeveloper, action: ActionDevelop, allow: true},
		{name: "legacy methodology manager manage", role: RoleMethodologyManager, action: ActionManage, allow: true},
		{name: "unknown read", role: ProjectRole("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestValidateProjectRole(t *testing.T) {
	for _, role := range []string{"scrum_master", "scrum_master_developer", "product_owner", "product_owner_scrum_master", "developer"} {
		t.Run(role, func(t *testing.T) {
			got, err := ValidateProjectRole(role)
			if err != nil {
				t.Fatalf("ValidateProjectRole(%q) error = %v", role, err)
			}
			if string(got) != role {
				t.Fatalf("ValidateProjectRole(%q) = %q", role, got)
			}
		})
	}

	for _, role := range []string{"", "admin", "methodology_manager", "product_manager", "Scrum_Master", "owner"} {
		t.Run("reject "+role, func(t *testing.T) {
			if _, err := ValidateProjectRole(role); !errors.Is(err, ErrInvalidRole) {
				t.Fatalf("ValidateProjectRole(%q) error = %v, want ErrInvalidRole", role, err)
			}
		})
	}
}

func TestValidateGlobalRole(t *testing.T) {
	if role, err := ValidateGlobalRole("admin"); err != nil || role != GlobalAdmin {
		t.Fatalf("ValidateGlobalRole(admin) = %q, %v", role, err)
	}
	if role, err := ValidateGlobalRole("user"); err != nil || role != GlobalUser {
		t.Fatalf("ValidateGlobalRole(user) = %q, %v", role, err)
	}
	if _, err := ValidateGlobalRole("superuser"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" product_owner "); got != RoleProductOwner {
		t.Fatalf("Normalize() = %q", got)
	}
	if got := Normalize("viewer"); got != "" {
		t.Fatalf("Normalize(viewer) = %q, want empty", got)
	}
}
