package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/store"
)

// Base carries the dependencies shared by resource handlers and the access
// helpers built on them.
type Base struct {
	Store store.Store
	Authz *auth.Authorizer
}

// currentUser returns the provisioned user for the request.
func currentUser(ctx context.Context) (*models.User, error) {
	u := auth.UserFromContext(ctx)
	if u == nil {
		return nil, models.ErrUnauthorized
	}
	return u, nil
}

// workspaceConfined reports whether an OAuth-issued token confines the
// principal to a different workspace than the target.
func workspaceConfined(ctx context.Context, workspaceID string) bool {
	p := auth.PrincipalFromContext(ctx)
	return p != nil && p.WorkspaceID != "" && p.WorkspaceID != workspaceID
}

// requireWorkspace checks the caller's workspace role. Token workspace
// confinement is applied before the membership lookup.
func (b *Base) requireWorkspace(ctx context.Context, workspaceID string, min models.WorkspaceRole) (*models.User, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if workspaceConfined(ctx, workspaceID) {
		return nil, fmt.Errorf("token is confined to another workspace: %w", models.ErrForbidden)
	}
	if err := b.Authz.RequireWorkspaceRole(ctx, workspaceID, user.ID, min); err != nil {
		return nil, err
	}
	return user, nil
}

// requireProject resolves the project and checks the caller's effective
// project role.
func (b *Base) requireProject(ctx context.Context, projectID string, min models.ProjectRole) (*models.Project, *models.User, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	project, err := b.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if workspaceConfined(ctx, project.WorkspaceID) {
		return nil, nil, fmt.Errorf("token is confined to another workspace: %w", models.ErrForbidden)
	}
	if err := b.Authz.RequireProjectRole(ctx, project, user.ID, min); err != nil {
		return nil, nil, err
	}
	return project, user, nil
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pageParams parses ?page= and ?pageSize= with clamping.
func pageParams(r *http.Request) store.Page {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return store.ClampPage(page, pageSize)
}

// pagedResponse is the envelope for list endpoints.
type pagedResponse struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func writePaged(w http.ResponseWriter, items any, total int64, page store.Page) {
	WriteJSONOK(w, pagedResponse{
		Items:    items,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}
