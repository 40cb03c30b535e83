// Package bim implements model and version management: named models within
// projects, monotonically numbered versions tied to one IFC source file,
// and access to the derived viewer artifacts.
package bim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/store"
)

// Service manages BIM models and their versions.
type Service struct {
	store    store.Store
	registry *registry.Service

	now func() time.Time
}

// NewService creates a model service.
func NewService(s store.Store, reg *registry.Service) *Service {
	return &Service{store: s, registry: reg, now: time.Now}
}

// CreateModel creates a named model in a project.
func (s *Service) CreateModel(ctx context.Context, projectID, name, description string) (*models.Model, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	m := &models.Model{
		ProjectID:   projectID,
		Name:        name,
		Description: description,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.CreateModel(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetModel returns a model by ID.
func (s *Service) GetModel(ctx context.Context, id string) (*models.Model, error) {
	return s.store.GetModel(ctx, id)
}

// ListModels returns the project's models, newest first.
func (s *Service) ListModels(ctx context.Context, projectID string, page store.Page) ([]*models.Model, int64, error) {
	return s.store.ListModelsByProject(ctx, projectID, page)
}

// CreateVersion registers a new version of the model from an uploaded IFC
// file and enqueues the conversion and extraction jobs in the same
// transaction. The version starts Pending.
//
// The IFC file must be a non-deleted source file in the model's project.
func (s *Service) CreateVersion(ctx context.Context, modelID, ifcFileID string) (*models.ModelVersion, error) {
	model, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	file, err := s.store.GetFile(ctx, ifcFileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return nil, models.ErrFileDeleted
	}
	if file.ProjectID != model.ProjectID {
		return nil, fmt.Errorf("%w: file belongs to a different project", models.ErrFileNotFound)
	}
	if file.Kind != models.FileKindSource {
		return nil, fmt.Errorf("version source must be an uploaded file, got kind %s", file.Kind)
	}
	if file.Category != models.FileCategoryIfc && file.Category != models.FileCategoryOther {
		return nil, fmt.Errorf("version source must be an IFC file, got category %s", file.Category)
	}

	version := &models.ModelVersion{
		ModelID:   modelID,
		IfcFileID: ifcFileID,
		Status:    models.VersionStatusPending,
	}
	jobs, err := s.outboxJobs(version)
	if err != nil {
		return nil, err
	}
	created, err := s.store.CreateModelVersion(ctx, version, jobs)
	if err != nil {
		return nil, err
	}
	logger.Info("model version created",
		"model_id", modelID, "version_id", created.ID, "version_number", created.VersionNumber)
	return created, nil
}

// outboxJobs builds the two processing jobs for a version. The version ID is
// assigned up front so the payload can reference it inside the transaction.
func (s *Service) outboxJobs(version *models.ModelVersion) ([]*models.Job, error) {
	if version.ID == "" {
		version.ID = uuid.New().String()
	}
	payload, err := json.Marshal(queue.VersionPayload{ModelVersionID: version.ID})
	if err != nil {
		return nil, err
	}
	now := s.now()
	return []*models.Job{
		{Type: models.JobTypeConvertWexBim, Payload: string(payload), Status: models.JobStatusPending, RunAfter: now},
		{Type: models.JobTypeExtractProperties, Payload: string(payload), Status: models.JobStatusPending, RunAfter: now},
	}, nil
}

// GetVersion returns a version by ID.
func (s *Service) GetVersion(ctx context.Context, id string) (*models.ModelVersion, error) {
	return s.store.GetModelVersion(ctx, id)
}

// ListVersions returns the model's versions in version order.
func (s *Service) ListVersions(ctx context.Context, modelID string, page store.Page) ([]*models.ModelVersion, int64, error) {
	if _, err := s.store.GetModel(ctx, modelID); err != nil {
		return nil, 0, err
	}
	return s.store.ListModelVersions(ctx, modelID, page)
}

// OpenArtifact streams a version's derived artifact. Returns
// models.ErrArtifactNotReady while processing has not produced it yet.
func (s *Service) OpenArtifact(ctx context.Context, versionID string, category models.FileCategory) (*models.File, io.ReadCloser, error) {
	version, err := s.store.GetModelVersion(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}

	var fileID *string
	switch category {
	case models.FileCategoryWexBim:
		fileID = version.WexBimFileID
	case models.FileCategoryProperties:
		fileID = version.PropertiesFileID
	default:
		return nil, nil, fmt.Errorf("unknown artifact category %q", category)
	}
	if fileID == nil {
		return nil, nil, fmt.Errorf("%w: version is %s", models.ErrArtifactNotReady, version.Status)
	}
	return s.registry.Download(ctx, *fileID)
}
