package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/registry"
	"github.com/octopus-bim/octopus/pkg/store"
)

// FileHandler serves file registry reads and deletion.
type FileHandler struct {
	Base
	Registry *registry.Service
}

// NewFileHandler creates a file handler.
func NewFileHandler(base Base, reg *registry.Service) *FileHandler {
	return &FileHandler{Base: base, Registry: reg}
}

// List returns the project's files, newest first. Requires Viewer.
// ?kind= and ?category= narrow the listing; ?includeDeleted=true also
// returns soft-deleted rows and requires project Admin.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	filter := store.FileFilter{
		Kind:           models.FileKind(r.URL.Query().Get("kind")),
		Category:       models.FileCategory(r.URL.Query().Get("category")),
		IncludeDeleted: r.URL.Query().Get("includeDeleted") == "true",
	}
	minRole := models.ProjectRoleViewer
	if filter.IncludeDeleted {
		minRole = models.ProjectRoleAdmin
	}
	if _, _, err := h.requireProject(r.Context(), projectID, minRole); err != nil {
		writeDomainError(w, err, true)
		return
	}
	page := pageParams(r)
	files, total, err := h.Registry.ListFiles(r.Context(), projectID, filter, page)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	writePaged(w, files, total, page)
}

// Get returns file metadata. Requires Viewer on the owning project.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.authorizeFile(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, file)
}

// Content streams the file bytes. Requires Viewer on the owning project.
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	file, err := h.authorizeFile(r, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	_, rc, err := h.Registry.Download(r.Context(), file.ID)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	defer rc.Close()

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("file download interrupted", "file_id", file.ID, "error", err)
	}
}

// Delete soft-deletes a file. Requires Editor on the owning project.
// Artifacts cannot be deleted while their source file is still live.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	file, err := h.authorizeFile(r, models.ProjectRoleEditor)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	if err := h.Registry.DeleteFile(r.Context(), file.ID); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteNoContent(w)
}

// authorizeFile loads the file and checks the caller's role on its project.
func (h *FileHandler) authorizeFile(r *http.Request, min models.ProjectRole) (*models.File, error) {
	file, err := h.Registry.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if _, _, err := h.requireProject(r.Context(), file.ProjectID, min); err != nil {
		return nil, err
	}
	return file, nil
}
