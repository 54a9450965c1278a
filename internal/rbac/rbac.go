// Package rbac decides which operator roles may run which engine operations.
package rbac

import "strings"

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleEditor   Role = "editor"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead          Action = "read"
	ActionRequestUnlock Action = "request_unlock"
	ActionEdit          Action = "edit"
	ActionDecide        Action = "decide"
	ActionManageLock    Action = "manage_lock"
	ActionMaintain      Action = "maintain"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleApprover:
		return action == ActionRead || action == ActionRequestUnlock || action == ActionEdit || action == ActionDecide
	case RoleEditor:
		return action == ActionRead || action == ActionRequestUnlock || action == ActionEdit
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown roles to viewer.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleViewer, RoleEditor, RoleApprover, RoleAdmin:
		return r
	default:
		return RoleViewer
	}
}
