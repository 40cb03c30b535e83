package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/ifc"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/storage"
	"github.com/octopus-bim/octopus/pkg/store"
)

// ExtractPropertiesHandler parses a version's IFC source and produces the
// properties JSON artifact.
type ExtractPropertiesHandler struct {
	store    store.Store
	provider storage.Provider
	notifier Notifier
}

// NewExtractPropertiesHandler wires the extraction handler.
func NewExtractPropertiesHandler(s store.Store, p storage.Provider, n Notifier) *ExtractPropertiesHandler {
	if n == nil {
		n = NopNotifier{}
	}
	return &ExtractPropertiesHandler{store: s, provider: p, notifier: n}
}

func (h *ExtractPropertiesHandler) Handle(ctx context.Context, env *queue.JobEnvelope) error {
	var payload queue.VersionPayload
	if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	versionID := payload.ModelVersionID

	version, err := h.store.GetModelVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if version.PropertiesFileID != nil {
		h.notify(env.JobID, versionID, "extract", 100, "extraction already complete", true, true, "")
		return nil
	}

	if err := h.store.MarkVersionProcessing(ctx, versionID); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			logger.Warn("skipping extraction for terminal version", "version_id", versionID)
			return nil
		}
		return err
	}
	h.notify(env.JobID, versionID, "extract", 0, "starting extraction", false, false, "")

	scope, err := resolveVersionScope(ctx, h.store, version)
	if err != nil {
		return err
	}

	r, err := h.provider.OpenRead(ctx, scope.ifcFile.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("%w: ifc bytes missing for file %s", models.ErrStorageInconsistency, scope.ifcFile.ID)
		}
		h.notifyFailure(env.JobID, versionID, err)
		return err
	}
	model, err := ifc.Decode(r)
	r.Close()
	if err != nil {
		h.notifyFailure(env.JobID, versionID, err)
		return fmt.Errorf("failed to parse ifc: %w", err)
	}

	h.notify(env.JobID, versionID, "extract", 50, "extracting element properties", false, false, "")
	doc := ifc.Extract(model)
	body, err := json.Marshal(doc)
	if err != nil {
		h.notifyFailure(env.JobID, versionID, err)
		return err
	}

	h.notify(env.JobID, versionID, "extract", 80, "uploading artifact", false, false, "")
	artifactName := fmt.Sprintf("%s-v%d.properties.json", scope.model.Name, version.VersionNumber)
	file, err := uploadArtifact(ctx, h.store, h.provider, artifactScope{
		workspaceID: scope.project.WorkspaceID,
		projectID:   scope.project.ID,
		name:        artifactName,
		contentType: "application/json",
		category:    models.FileCategoryProperties,
		ifcFileID:   version.IfcFileID,
		linkType:    models.FileLinkPropertiesOf,
	}, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	})
	if err != nil {
		h.notifyFailure(env.JobID, versionID, err)
		return err
	}

	if _, err := h.store.AttachVersionArtifact(ctx, versionID, models.FileCategoryProperties, file.ID); err != nil {
		h.notifyFailure(env.JobID, versionID, err)
		return err
	}
	h.notify(env.JobID, versionID, "extract", 100, "extraction complete", true, true, "")
	logger.Info("property extraction complete",
		"version_id", versionID, "file_id", file.ID, "elements", doc.TotalElements)
	return nil
}

func (h *ExtractPropertiesHandler) notify(jobID, versionID, stage string, pct int, msg string, complete, success bool, errMsg string) {
	h.notifier.Notify(Progress{
		JobID:           jobID,
		ModelVersionID:  versionID,
		Stage:           stage,
		PercentComplete: pct,
		Message:         msg,
		IsComplete:      complete,
		IsSuccess:       success,
		ErrorMessage:    errMsg,
	})
}

func (h *ExtractPropertiesHandler) notifyFailure(jobID, versionID string, err error) {
	h.notify(jobID, versionID, "extract", 100, "", true, false, err.Error())
}
