package models

import (
	"fmt"
	"time"
)

// Workspace is the root tenancy unit. It owns memberships, projects,
// OAuth apps and an optional storage quota.
type Workspace struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	QuotaBytes  *int64    `json:"quota_bytes,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Projects    []Project             `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`
	Memberships []WorkspaceMembership `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`
	OAuthApps   []OAuthApp            `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Workspace.
func (Workspace) TableName() string {
	return "workspaces"
}

// Validate checks if the workspace has valid configuration.
func (w *Workspace) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("workspace name is required")
	}
	if w.QuotaBytes != nil && *w.QuotaBytes < 0 {
		return fmt.Errorf("workspace quota must not be negative")
	}
	return nil
}

// Project is a child of a workspace scoping files, models and upload sessions.
type Project struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string    `gorm:"not null;size:36;index" json:"workspace_id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Memberships []ProjectMembership `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for Project.
func (Project) TableName() string {
	return "projects"
}

// Validate checks if the project has valid configuration.
func (p *Project) Validate() error {
	if p.WorkspaceID == "" {
		return fmt.Errorf("project workspace id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("project name is required")
	}
	return nil
}
