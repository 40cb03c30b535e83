package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/registry"
)

// WorkspaceHandler serves workspace CRUD, membership and usage endpoints.
type WorkspaceHandler struct {
	Base
	Registry *registry.Service
}

// NewWorkspaceHandler creates a workspace handler.
func NewWorkspaceHandler(base Base, reg *registry.Service) *WorkspaceHandler {
	return &WorkspaceHandler{Base: base, Registry: reg}
}

type createWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	QuotaBytes  *int64 `json:"quota_bytes,omitempty"`
}

// Create registers a workspace; the caller becomes its Owner.
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	ws := &models.Workspace{
		Name:        req.Name,
		Description: req.Description,
		QuotaBytes:  req.QuotaBytes,
	}
	if err := ws.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if _, err := h.Store.CreateWorkspace(r.Context(), ws, user.ID); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, ws)
}

// List returns the caller's workspaces, newest first.
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	page := pageParams(r)
	workspaces, total, err := h.Store.ListWorkspacesForUser(r.Context(), user.ID, page)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	writePaged(w, workspaces, total, page)
}

// Get returns a workspace. Requires at least Guest membership.
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), id, models.WorkspaceRoleGuest); err != nil {
		writeDomainError(w, err, true)
		return
	}
	ws, err := h.Store.GetWorkspace(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, ws)
}

type updateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	QuotaBytes  *int64 `json:"quota_bytes,omitempty"`
}

// Update modifies name, description and quota. Requires Admin.
func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), id, models.WorkspaceRoleAdmin); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req updateWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	ws, err := h.Store.GetWorkspace(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}
	ws.Name = req.Name
	ws.Description = req.Description
	ws.QuotaBytes = req.QuotaBytes
	if err := ws.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := h.Store.UpdateWorkspace(r.Context(), ws); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONOK(w, ws)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// AddMember creates or updates a workspace membership. Requires Admin.
// Only an Owner may grant the Owner role.
func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller, err := h.requireWorkspace(r.Context(), id, models.WorkspaceRoleAdmin)
	if err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	role := models.WorkspaceRole(req.Role)
	if !role.IsValid() {
		BadRequest(w, "invalid workspace role")
		return
	}
	if role == models.WorkspaceRoleOwner {
		if err := h.Authz.RequireWorkspaceRole(r.Context(), id, caller.ID, models.WorkspaceRoleOwner); err != nil {
			writeDomainError(w, err, false)
			return
		}
	}
	if _, err := h.Store.GetUserByID(r.Context(), req.UserID); err != nil {
		writeDomainError(w, err, false)
		return
	}

	m := &models.WorkspaceMembership{WorkspaceID: id, UserID: req.UserID, Role: role}
	if err := h.Store.UpsertWorkspaceMembership(r.Context(), m); err != nil {
		writeDomainError(w, err, false)
		return
	}
	WriteJSONCreated(w, m)
}

// Usage reports storage consumption against the effective quota.
// Requires at least Guest membership.
func (h *WorkspaceHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), id, models.WorkspaceRoleGuest); err != nil {
		writeDomainError(w, err, true)
		return
	}
	usage, err := h.Registry.WorkspaceUsage(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, usage)
}
