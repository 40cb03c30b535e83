package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/bim"
	"github.com/octopus-bim/octopus/pkg/ifc"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/processing"
)

// ModelHandler serves BIM models, versions, derived artifacts and the
// processing progress stream.
type ModelHandler struct {
	Base
	BIM *bim.Service
	Bus *processing.Bus
}

// NewModelHandler creates a model handler.
func NewModelHandler(base Base, svc *bim.Service, bus *processing.Bus) *ModelHandler {
	return &ModelHandler{Base: base, BIM: svc, Bus: bus}
}

type createModelRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Create adds a model container to a project. Requires Editor.
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, _, err := h.requireProject(r.Context(), projectID, models.ProjectRoleEditor); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req createModelRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	model, err := h.BIM.CreateModel(r.Context(), projectID, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, model)
}

// List returns the project's models. Requires Viewer.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, _, err := h.requireProject(r.Context(), projectID, models.ProjectRoleViewer); err != nil {
		writeDomainError(w, err, true)
		return
	}
	page := pageParams(r)
	list, total, err := h.BIM.ListModels(r.Context(), projectID, page)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	writePaged(w, list, total, page)
}

type createVersionRequest struct {
	IfcFileID string `json:"ifc_file_id"`
}

// CreateVersion ingests an uploaded IFC file as the model's next version
// and enqueues the conversion pipeline. Requires Editor.
func (h *ModelHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	model, err := h.BIM.GetModel(r.Context(), modelID)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	if _, _, err := h.requireProject(r.Context(), model.ProjectID, models.ProjectRoleEditor); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req createVersionRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	version, err := h.BIM.CreateVersion(r.Context(), modelID, req.IfcFileID)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, version)
}

// ListVersions returns a model's versions. Requires Viewer.
func (h *ModelHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "id")
	model, err := h.BIM.GetModel(r.Context(), modelID)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	if _, _, err := h.requireProject(r.Context(), model.ProjectID, models.ProjectRoleViewer); err != nil {
		writeDomainError(w, err, true)
		return
	}
	page := pageParams(r)
	versions, total, err := h.BIM.ListVersions(r.Context(), modelID, page)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	writePaged(w, versions, total, page)
}

// GetVersion returns a model version with its processing status.
// Requires Viewer.
func (h *ModelHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.authorizeVersion(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, version)
}

// WexBim streams the version's geometry artifact. Requires Viewer.
// Answers 404 while the pipeline has not produced it yet.
func (h *ModelHandler) WexBim(w http.ResponseWriter, r *http.Request) {
	version, err := h.authorizeVersion(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	file, rc, err := h.BIM.OpenArtifact(r.Context(), version.ID, models.FileCategoryWexBim)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("wexbim download interrupted", "model_version_id", version.ID, "error", err)
	}
}

// propertiesResponse pages over the extracted elements while keeping the
// document metadata in the envelope.
type propertiesResponse struct {
	SchemaVersion int           `json:"schemaVersion"`
	ExtractedAt   time.Time     `json:"extractedAt"`
	TotalElements int           `json:"totalElements"`
	Elements      []ifc.Element `json:"elements"`
	Page          int           `json:"page"`
	PageSize      int           `json:"pageSize"`
}

// Properties returns a page of the version's extracted property document.
// Requires Viewer. Answers 404 while extraction has not completed.
func (h *ModelHandler) Properties(w http.ResponseWriter, r *http.Request) {
	version, err := h.authorizeVersion(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	_, rc, err := h.BIM.OpenArtifact(r.Context(), version.ID, models.FileCategoryProperties)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	defer rc.Close()

	var doc ifc.Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		writeDomainError(w, fmt.Errorf("%w: undecodable properties artifact: %v",
			models.ErrStorageInconsistency, err), true)
		return
	}

	page := pageParams(r)
	start := (page.Page - 1) * page.PageSize
	end := start + page.PageSize
	if start > len(doc.Elements) {
		start = len(doc.Elements)
	}
	if end > len(doc.Elements) {
		end = len(doc.Elements)
	}
	WriteJSONOK(w, propertiesResponse{
		SchemaVersion: doc.SchemaVersion,
		ExtractedAt:   doc.ExtractedAt,
		TotalElements: doc.TotalElements,
		Elements:      doc.Elements[start:end],
		Page:          page.Page,
		PageSize:      page.PageSize,
	})
}

// Progress streams processing progress for a version as server-sent
// events. Requires Viewer. The stream ends when the client disconnects or
// a terminal event arrives.
func (h *ModelHandler) Progress(w http.ResponseWriter, r *http.Request) {
	version, err := h.authorizeVersion(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalServerError(w, "streaming is not supported")
		return
	}

	events, cancel := h.Bus.Subscribe(version.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Versions already terminal get a single synthetic event so clients do
	// not hang waiting for a pipeline that will never run again.
	if version.Status.IsTerminal() {
		writeSSE(w, flusher, processing.Progress{
			ModelVersionID:  version.ID,
			Stage:           string(version.Status),
			PercentComplete: 100,
			IsComplete:      true,
			IsSuccess:       version.Status == models.VersionStatusReady,
			ErrorMessage:    version.ErrorMessage,
		})
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-events:
			writeSSE(w, flusher, p)
			if p.IsComplete {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, p processing.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	flusher.Flush()
}

// authorizeVersion resolves the version and checks the caller's role on
// the owning project.
func (h *ModelHandler) authorizeVersion(r *http.Request, min models.ProjectRole) (*models.ModelVersion, error) {
	version, err := h.BIM.GetVersion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	model, err := h.BIM.GetModel(r.Context(), version.ModelID)
	if err != nil {
		return nil, err
	}
	if _, _, err := h.requireProject(r.Context(), model.ProjectID, min); err != nil {
		return nil, err
	}
	return version, nil
}
