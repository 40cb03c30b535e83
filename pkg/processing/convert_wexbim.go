package processing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/queue"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/storage"
	"github.com/octopus-bim/octopus/pkg/store"
)

// ConvertWexBimHandler converts a version's IFC source into a WexBIM
// artifact using an external converter.
type ConvertWexBimHandler struct {
	store     store.Store
	provider  storage.Provider
	converter Converter
	notifier  Notifier

	// TempDir overrides os.TempDir for scratch files.
	TempDir string
}

// NewConvertWexBimHandler wires the conversion handler.
func NewConvertWexBimHandler(s store.Store, p storage.Provider, c Converter, n Notifier) *ConvertWexBimHandler {
	if n == nil {
		n = NopNotifier{}
	}
	return &ConvertWexBimHandler{store: s, provider: p, converter: c, notifier: n}
}

func (h *ConvertWexBimHandler) Handle(ctx context.Context, env *queue.JobEnvelope) error {
	var payload queue.VersionPayload
	if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	versionID := payload.ModelVersionID

	version, err := h.store.GetModelVersion(ctx, versionID)
	if err != nil {
		return err
	}
	// Redelivered after a crash between upload and completion.
	if version.WexBimFileID != nil {
		h.notify(env.JobID, versionID, "convert", 100, "conversion already complete", true, true, "")
		return nil
	}

	if err := h.store.MarkVersionProcessing(ctx, versionID); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			logger.Warn("skipping conversion for terminal version", "version_id", versionID)
			return nil
		}
		return err
	}
	h.notify(env.JobID, versionID, "convert", 0, "starting conversion", false, false, "")

	scope, err := resolveVersionScope(ctx, h.store, version)
	if err != nil {
		return err
	}

	ifcPath, cleanup, err := h.stageIfc(ctx, scope.ifcFile)
	if err != nil {
		h.notifyFailure(env.JobID, versionID, "convert", err)
		return err
	}
	defer cleanup()

	wexBimPath := ifcPath + ".wexbim"
	defer os.Remove(wexBimPath)
	h.notify(env.JobID, versionID, "convert", 30, "running converter", false, false, "")
	if err := h.converter.Convert(ctx, ifcPath, wexBimPath); err != nil {
		h.notifyFailure(env.JobID, versionID, "convert", err)
		return err
	}

	h.notify(env.JobID, versionID, "convert", 70, "uploading artifact", false, false, "")
	artifactName := fmt.Sprintf("%s-v%d.wexbim", scope.model.Name, version.VersionNumber)
	file, err := uploadArtifact(ctx, h.store, h.provider, artifactScope{
		workspaceID: scope.project.WorkspaceID,
		projectID:   scope.project.ID,
		name:        artifactName,
		contentType: "application/octet-stream",
		category:    models.FileCategoryWexBim,
		ifcFileID:   version.IfcFileID,
		linkType:    models.FileLinkDerivedFrom,
	}, func() (io.ReadCloser, error) { return os.Open(wexBimPath) })
	if err != nil {
		h.notifyFailure(env.JobID, versionID, "convert", err)
		return err
	}

	if _, err := h.store.AttachVersionArtifact(ctx, versionID, models.FileCategoryWexBim, file.ID); err != nil {
		h.notifyFailure(env.JobID, versionID, "convert", err)
		return err
	}
	h.notify(env.JobID, versionID, "convert", 100, "conversion complete", true, true, "")
	logger.Info("wexbim conversion complete", "version_id", versionID, "file_id", file.ID)
	return nil
}

// stageIfc streams the IFC bytes to a scratch file for the converter.
func (h *ConvertWexBimHandler) stageIfc(ctx context.Context, ifcFile *models.File) (string, func(), error) {
	r, err := h.provider.OpenRead(ctx, ifcFile.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, fmt.Errorf("%w: ifc bytes missing for file %s", models.ErrStorageInconsistency, ifcFile.ID)
		}
		return "", nil, err
	}
	defer r.Close()

	dir := h.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp, err := os.CreateTemp(dir, "octopus-ifc-*"+filepath.Ext(ifcFile.Name))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func (h *ConvertWexBimHandler) notify(jobID, versionID, stage string, pct int, msg string, complete, success bool, errMsg string) {
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

func (h *ConvertWexBimHandler) notifyFailure(jobID, versionID, stage string, err error) {
	h.notify(jobID, versionID, stage, 100, "", true, false, err.Error())
}

// versionScope bundles the rows a handler needs around one version.
type versionScope struct {
	model   *models.Model
	project *models.Project
	ifcFile *models.File
}

func resolveVersionScope(ctx context.Context, s store.Store, version *models.ModelVersion) (*versionScope, error) {
	model, err := s.GetModel(ctx, version.ModelID)
	if err != nil {
		return nil, err
	}
	project, err := s.GetProject(ctx, model.ProjectID)
	if err != nil {
		return nil, err
	}
	ifcFile, err := s.GetFile(ctx, version.IfcFileID)
	if err != nil {
		return nil, err
	}
	return &versionScope{model: model, project: project, ifcFile: ifcFile}, nil
}

type artifactScope struct {
	workspaceID string
	projectID   string
	name        string
	contentType string
	category    models.FileCategory
	ifcFileID   string
	linkType    models.FileLinkType
}

// uploadArtifact stores the artifact bytes, registers the file row and the
// lineage edge from the IFC source to the artifact.
func uploadArtifact(ctx context.Context, s store.Store, p storage.Provider, scope artifactScope, open func() (io.ReadCloser, error)) (*models.File, error) {
	r, err := open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	key := registry.BuildStorageKey(scope.workspaceID, scope.projectID, registry.PoolArtifacts, scope.name)
	hash := sha256.New()
	counted := &countingReader{r: io.TeeReader(r, hash)}
	if err := p.Put(ctx, key, counted, scope.contentType); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	file := &models.File{
		ProjectID:       scope.projectID,
		Name:            scope.name,
		ContentType:     scope.contentType,
		SizeBytes:       counted.n,
		Checksum:        hex.EncodeToString(hash.Sum(nil)),
		Kind:            models.FileKindArtifact,
		Category:        scope.category,
		StorageProvider: p.ProviderID(),
		StorageKey:      key,
	}
	if _, err := s.CreateFile(ctx, file); err != nil {
		_ = p.Delete(ctx, key)
		return nil, err
	}

	link := &models.FileLink{
		SourceFileID: scope.ifcFileID,
		TargetFileID: file.ID,
		LinkType:     scope.linkType,
	}
	if _, err := s.CreateFileLink(ctx, link); err != nil && !errors.Is(err, models.ErrDuplicateFileLink) {
		return nil, err
	}
	return file, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
