package models

import "time"

// User is an authenticated principal auto-provisioned on its first request.
//
// Subject is the stable opaque identifier extracted from the authentication
// principal; it is globally unique and never changes for a given identity.
type User struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Subject     string    `gorm:"uniqueIndex;not null;size:255" json:"subject"`
	Email       string    `gorm:"size:255" json:"email,omitempty"`
	DisplayName string    `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// WorkspaceMembership grants a user a role within a workspace.
// At most one membership exists per (workspace, user).
type WorkspaceMembership struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string        `gorm:"not null;size:36;uniqueIndex:idx_ws_member" json:"workspace_id"`
	UserID      string        `gorm:"not null;size:36;uniqueIndex:idx_ws_member" json:"user_id"`
	Role        WorkspaceRole `gorm:"not null;size:50" json:"role"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for WorkspaceMembership.
func (WorkspaceMembership) TableName() string {
	return "workspace_memberships"
}

// ProjectMembership grants a user a role within a project.
// At most one membership exists per (project, user).
type ProjectMembership struct {
	ID        string      `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string      `gorm:"not null;size:36;uniqueIndex:idx_proj_member" json:"project_id"`
	UserID    string      `gorm:"not null;size:36;uniqueIndex:idx_proj_member" json:"user_id"`
	Role      ProjectRole `gorm:"not null;size:50" json:"role"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for ProjectMembership.
func (ProjectMembership) TableName() string {
	return "project_memberships"
}
