package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/models"
)

// RegisterAppRequest describes a client registration.
type RegisterAppRequest struct {
	WorkspaceID   string
	Name          string
	ClientType    models.ClientType
	RedirectURIs  []string
	AllowedScopes []string
}

// RegisteredApp is the registration result. ClientSecret is set only for
// confidential clients and only here; it is never retrievable again.
type RegisteredApp struct {
	App          *models.OAuthApp
	ClientSecret string
}

// RegisterApp creates an OAuth client in a workspace. Confidential clients
// get a generated secret, stored hashed.
func (s *Service) RegisterApp(ctx context.Context, req RegisterAppRequest) (*RegisteredApp, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if !req.ClientType.IsValid() {
		return nil, fmt.Errorf("invalid client type %q", req.ClientType)
	}
	if len(req.RedirectURIs) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}
	for _, uri := range req.RedirectURIs {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return nil, fmt.Errorf("invalid redirect URI %q", uri)
		}
	}
	scopes := req.AllowedScopes
	if len(scopes) == 0 {
		scopes = []string{auth.ScopeRead, auth.ScopeWrite}
	}

	clientID, err := generateClientID()
	if err != nil {
		return nil, err
	}
	app := &models.OAuthApp{
		WorkspaceID:   req.WorkspaceID,
		Name:          req.Name,
		ClientID:      clientID,
		ClientType:    req.ClientType,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: scopes,
		IsEnabled:     true,
	}

	var secret string
	if req.ClientType == models.ClientTypeConfidential {
		secret, err = auth.GenerateClientSecret()
		if err != nil {
			return nil, err
		}
		app.ClientSecretHash, err = auth.HashSecret(secret)
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.store.CreateOAuthApp(ctx, app); err != nil {
		return nil, err
	}
	return &RegisteredApp{App: app, ClientSecret: secret}, nil
}

// ListApps returns the workspace's registered clients.
func (s *Service) ListApps(ctx context.Context, workspaceID string) ([]*models.OAuthApp, error) {
	return s.store.ListOAuthApps(ctx, workspaceID)
}

func generateClientID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate client id: %w", err)
	}
	return "octo_" + hex.EncodeToString(buf), nil
}
