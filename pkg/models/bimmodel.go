package models

import (
	"fmt"
	"time"
)

// Model is a named BIM model within a project, containing ordered versions.
type Model struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	ProjectID   string    `gorm:"not null;size:36;index" json:"project_id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Description string    `gorm:"size:1024" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Model.
func (Model) TableName() string {
	return "bim_models"
}

// Validate checks if the model has valid configuration.
func (m *Model) Validate() error {
	if m.ProjectID == "" {
		return fmt.Errorf("model project id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// VersionStatus is the processing state of a model version.
type VersionStatus string

const (
	VersionStatusPending    VersionStatus = "pending"
	VersionStatusProcessing VersionStatus = "processing"
	VersionStatusReady      VersionStatus = "ready"
	VersionStatusFailed     VersionStatus = "failed"
)

// IsTerminal reports whether the status is terminal.
func (s VersionStatus) IsTerminal() bool {
	return s == VersionStatusReady || s == VersionStatusFailed
}

// ModelVersion is a revision of a model tied to one IFC source file and up
// to two derived artifacts.
//
// Invariants:
//   - VersionNumber is unique per model and monotonically increasing from 1.
//   - IfcFileID references a non-deleted Source file in the same project.
//   - When Status is Ready, both WexBimFileID and PropertiesFileID are set.
type ModelVersion struct {
	ID               string        `gorm:"primaryKey;size:36" json:"id"`
	ModelID          string        `gorm:"not null;size:36;uniqueIndex:idx_model_version" json:"model_id"`
	VersionNumber    int           `gorm:"not null;uniqueIndex:idx_model_version" json:"version_number"`
	IfcFileID        string        `gorm:"not null;size:36" json:"ifc_file_id"`
	WexBimFileID     *string       `gorm:"size:36" json:"wexbim_file_id,omitempty"`
	PropertiesFileID *string       `gorm:"size:36" json:"properties_file_id,omitempty"`
	Status           VersionStatus `gorm:"not null;size:20;index" json:"status"`
	ErrorMessage     string        `gorm:"size:2048" json:"error_message,omitempty"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	ProcessedAt      *time.Time    `json:"processed_at,omitempty"`
}

// TableName returns the table name for ModelVersion.
func (ModelVersion) TableName() string {
	return "model_versions"
}

// ArtifactsComplete reports whether both derived artifacts exist.
func (v *ModelVersion) ArtifactsComplete() bool {
	return v.WexBimFileID != nil && v.PropertiesFileID != nil
}
