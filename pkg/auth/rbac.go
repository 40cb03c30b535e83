package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/store"
)

// Authorizer resolves membership-based roles against the store.
type Authorizer struct {
	store store.Store
}

// NewAuthorizer creates an Authorizer backed by the given store.
func NewAuthorizer(s store.Store) *Authorizer {
	return &Authorizer{store: s}
}

// ProvisionUser resolves (creating on first sight) the user row for the
// principal. Called by the authentication middleware on every request.
func (a *Authorizer) ProvisionUser(ctx context.Context, p *Principal) (*models.User, error) {
	if p == nil || p.Subject == "" {
		return nil, models.ErrUnauthorized
	}
	return a.store.GetOrCreateUserBySubject(ctx, p.Subject, p.Email, p.DisplayName)
}

// WorkspaceRole returns the user's role in the workspace, or
// (ProjectRoleNone-equivalent) false when the user is not a member.
func (a *Authorizer) WorkspaceRole(ctx context.Context, workspaceID, userID string) (models.WorkspaceRole, bool, error) {
	m, err := a.store.GetWorkspaceMembership(ctx, workspaceID, userID)
	if err != nil {
		if errors.Is(err, models.ErrMembershipNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return m.Role, true, nil
}

// CanAccessWorkspace reports whether the user's workspace role is at least
// the minimum. Non-members have no access.
func (a *Authorizer) CanAccessWorkspace(ctx context.Context, workspaceID, userID string, min models.WorkspaceRole) (bool, error) {
	role, ok, err := a.WorkspaceRole(ctx, workspaceID, userID)
	if err != nil {
		return false, err
	}
	return ok && role.AtLeast(min), nil
}

// RequireWorkspaceRole returns models.ErrForbidden when the user's
// workspace role is below the minimum.
func (a *Authorizer) RequireWorkspaceRole(ctx context.Context, workspaceID, userID string, min models.WorkspaceRole) error {
	ok, err := a.CanAccessWorkspace(ctx, workspaceID, userID, min)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("workspace %s requires role %s: %w", workspaceID, min, models.ErrForbidden)
	}
	return nil
}

// EffectiveProjectRole resolves the user's role for a project:
// a direct project membership wins; otherwise the workspace membership is
// mapped (Owner/Admin -> ProjectAdmin, Member -> Viewer, Guest -> none).
func (a *Authorizer) EffectiveProjectRole(ctx context.Context, project *models.Project, userID string) (models.ProjectRole, error) {
	m, err := a.store.GetProjectMembership(ctx, project.ID, userID)
	if err == nil {
		return m.Role, nil
	}
	if !errors.Is(err, models.ErrMembershipNotFound) {
		return models.ProjectRoleNone, err
	}

	wsRole, ok, err := a.WorkspaceRole(ctx, project.WorkspaceID, userID)
	if err != nil {
		return models.ProjectRoleNone, err
	}
	if !ok {
		return models.ProjectRoleNone, nil
	}
	return models.ProjectRoleForWorkspace(wsRole), nil
}

// RequireProjectRole returns models.ErrForbidden when the user's effective
// project role is below the minimum.
func (a *Authorizer) RequireProjectRole(ctx context.Context, project *models.Project, userID string, min models.ProjectRole) error {
	role, err := a.EffectiveProjectRole(ctx, project, userID)
	if err != nil {
		return err
	}
	if !role.AtLeast(min) {
		return fmt.Errorf("project %s requires role %s: %w", project.ID, min, models.ErrForbidden)
	}
	return nil
}
