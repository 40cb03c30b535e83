package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/pkg/models"
)

// ProjectHandler serves project CRUD and project membership endpoints.
type ProjectHandler struct {
	Base
}

// NewProjectHandler creates a project handler.
func NewProjectHandler(base Base) *ProjectHandler {
	return &ProjectHandler{Base: base}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Create adds a project to a workspace. Requires workspace Member.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), workspaceID, models.WorkspaceRoleMember); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	project := &models.Project{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := project.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if _, err := h.Store.CreateProject(r.Context(), project); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, project)
}

// List returns the workspace's projects. Requires at least Guest.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), workspaceID, models.WorkspaceRoleGuest); err != nil {
		writeDomainError(w, err, true)
		return
	}
	page := pageParams(r)
	projects, total, err := h.Store.ListProjectsByWorkspace(r.Context(), workspaceID, page)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	writePaged(w, projects, total, page)
}

// Get returns a project. Requires an effective project Viewer role.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, _, err := h.requireProject(r.Context(), id, models.ProjectRoleViewer)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, project)
}

type addProjectMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember grants a per-project role override. Requires project Admin.
// The target user must already be a member of the owning workspace.
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project, _, err := h.requireProject(r.Context(), id, models.ProjectRoleAdmin)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req addProjectMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	role := models.ProjectRole(req.Role)
	if !role.IsValid() {
		BadRequest(w, "invalid project role")
		return
	}
	if _, err := h.Store.GetWorkspaceMembership(r.Context(), project.WorkspaceID, req.UserID); err != nil {
		writeDomainError(w, err, false)
		return
	}

	m := &models.ProjectMembership{ProjectID: id, UserID: req.UserID, Role: role}
	if err := h.Store.UpsertProjectMembership(r.Context(), m); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, m)
}
