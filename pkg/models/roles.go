package models

// WorkspaceRole is a user's role within a workspace, ordered by power.
type WorkspaceRole string

const (
	WorkspaceRoleGuest  WorkspaceRole = "guest"
	WorkspaceRoleMember WorkspaceRole = "member"
	WorkspaceRoleAdmin  WorkspaceRole = "admin"
	WorkspaceRoleOwner  WorkspaceRole = "owner"
)

// workspaceRolePower orders workspace roles: Guest < Member < Admin < Owner.
var workspaceRolePower = map[WorkspaceRole]int{
	WorkspaceRoleGuest:  1,
	WorkspaceRoleMember: 2,
	WorkspaceRoleAdmin:  3,
	WorkspaceRoleOwner:  4,
}

// IsValid checks if the role is a known workspace role.
func (r WorkspaceRole) IsValid() bool {
	_, ok := workspaceRolePower[r]
	return ok
}

// AtLeast reports whether r grants at least the power of min.
func (r WorkspaceRole) AtLeast(min WorkspaceRole) bool {
	return workspaceRolePower[r] >= workspaceRolePower[min]
}

// ProjectRole is a user's role within a project, ordered by power.
type ProjectRole string

const (
	ProjectRoleNone    ProjectRole = ""
	ProjectRoleViewer  ProjectRole = "viewer"
	ProjectRoleEditor  ProjectRole = "editor"
	ProjectRoleAdmin   ProjectRole = "projectadmin"
)

var projectRolePower = map[ProjectRole]int{
	ProjectRoleViewer: 1,
	ProjectRoleEditor: 2,
	ProjectRoleAdmin:  3,
}

// IsValid checks if the role is a known project role.
func (r ProjectRole) IsValid() bool {
	_, ok := projectRolePower[r]
	return ok
}

// AtLeast reports whether r grants at least the power of min.
// ProjectRoleNone never satisfies any minimum.
func (r ProjectRole) AtLeast(min ProjectRole) bool {
	if r == ProjectRoleNone {
		return false
	}
	return projectRolePower[r] >= projectRolePower[min]
}

// ProjectRoleForWorkspace maps a workspace role onto the project role it
// implies when no direct project membership exists.
//
//	Owner/Admin -> ProjectAdmin
//	Member      -> Viewer
//	Guest       -> no access
func ProjectRoleForWorkspace(r WorkspaceRole) ProjectRole {
	switch r {
	case WorkspaceRoleOwner, WorkspaceRoleAdmin:
		return ProjectRoleAdmin
	case WorkspaceRoleMember:
		return ProjectRoleViewer
	default:
		return ProjectRoleNone
	}
}
