package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/oauth"
)

// AppHandler serves OAuth client registration within a workspace.
type AppHandler struct {
	Base
	OAuth *oauth.Service
}

// NewAppHandler creates an OAuth app handler.
func NewAppHandler(base Base, svc *oauth.Service) *AppHandler {
	return &AppHandler{Base: base, OAuth: svc}
}

type registerAppRequest struct {
	Name          string   `json:"name"`
	ClientType    string   `json:"client_type"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes,omitempty"`
}

type registerAppResponse struct {
	*models.OAuthApp
	// ClientSecret is returned exactly once, at registration.
	ClientSecret string `json:"client_secret,omitempty"`
}

// Register creates an OAuth client in the workspace. Requires Admin.
// The client secret for confidential apps appears only in this response.
func (h *AppHandler) Register(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), workspaceID, models.WorkspaceRoleAdmin); err != nil {
		writeDomainError(w, err, false)
		return
	}

	var req registerAppRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	registered, err := h.OAuth.RegisterApp(r.Context(), oauth.RegisterAppRequest{
		WorkspaceID:   workspaceID,
		Name:          req.Name,
		ClientType:    models.ClientType(req.ClientType),
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
	})
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	WriteJSONCreated(w, registerAppResponse{
		OAuthApp:     registered.App,
		ClientSecret: registered.ClientSecret,
	})
}

// List returns the workspace's OAuth clients. Requires Admin.
func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "id")
	if _, err := h.requireWorkspace(r.Context(), workspaceID, models.WorkspaceRoleAdmin); err != nil {
		writeDomainError(w, err, true)
		return
	}
	apps, err := h.OAuth.ListApps(r.Context(), workspaceID)
	if err != nil {
		writeDomainError(w, err, true)
		return
	}
	WriteJSONOK(w, apps)
}
