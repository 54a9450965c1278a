package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer request unlock", role: RoleViewer, action: ActionRequestUnlock, allow: false},
		{name: "editor request unlock", role: RoleEditor, action: ActionRequestUnlock, allow: true},
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "editor edit", role: RoleEditor, action: ActionEdit, allow: true},
		{name: "approver edit", role: RoleApprover, action: ActionEdit, allow: true},
		{name: "editor decide", role: RoleEditor, action: ActionDecide, allow: false},
		{name: "approver decide", role: RoleApprover, action: ActionDecide, allow: true},
		{name: "approver manage lock", role: RoleApprover, action: ActionManageLock, allow: false},
		{name: "admin manage lock", role: RoleAdmin, action: ActionManageLock, allow: true},
		{name: "admin maintain", role: RoleAdmin, action: ActionMaintain, allow: true},
		{name: "unknown role", role: Role("owner"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]Role{
		"admin":      RoleAdmin,
		" Approver ": RoleApprover,
		"editor":     RoleEditor,
		"commenter":  RoleViewer,
		"":           RoleViewer,
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
