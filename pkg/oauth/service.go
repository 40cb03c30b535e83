// Package oauth implements the Octopus OAuth2 authorization server:
// the authorization code grant with PKCE (RFC 6749, RFC 7636).
//
// Authorization codes are stored by SHA-256 hash and are single-use; a
// replayed code fails with invalid_grant regardless of timing. Errors are
// split into redirectable protocol errors and direct errors that must never
// reach an unvalidated redirect URI.
package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/octopus-bim/octopus/internal/logger"
	"github.com/octopus-bim/octopus/pkg/auth"
	"github.com/octopus-bim/octopus/pkg/models"
	"github.com/octopus-bim/octopus/pkg/store"
)

// Config holds authorization server settings.
type Config struct {
	// CodeTTL is the lifetime of authorization codes. Default: 60 seconds.
	CodeTTL time.Duration
}

// Service implements the authorize and token endpoints.
type Service struct {
	store   store.Store
	tokens  *auth.TokenService
	authz   *auth.Authorizer
	codeTTL time.Duration

	now func() time.Time
}

// NewService creates the authorization server service.
func NewService(s store.Store, tokens *auth.TokenService, authz *auth.Authorizer, cfg Config) *Service {
	ttl := cfg.CodeTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &Service{
		store:   s,
		tokens:  tokens,
		authz:   authz,
		codeTTL: ttl,
		now:     time.Now,
	}
}

// AuthorizeRequest carries the query parameters of the authorize endpoint
// plus the already-authenticated end user.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	UserID string
}

// Authorize validates an authorization request and, on success, issues a
// single-use code bound to the client, user, redirect URI and scopes.
// It returns the full redirect URL carrying the code and state.
//
// Errors of type *Error with Redirectable=false (unknown client, redirect
// URI mismatch) must be rendered directly to the user agent.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	app, err := s.store.GetOAuthAppByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, models.ErrOAuthAppNotFound) {
			return "", directErr(ErrCodeInvalidRequest, "unknown client_id")
		}
		return "", err
	}
	if !app.IsEnabled {
		return "", directErr(ErrCodeUnauthorizedClient, "client is disabled")
	}

	// The redirect URI must exactly match a registered one. On mismatch the
	// user agent is never redirected.
	if req.RedirectURI == "" || !app.HasRedirectURI(req.RedirectURI) {
		return "", directErr(ErrCodeInvalidRequest, "redirect_uri does not match a registered redirect URI")
	}

	if req.ResponseType != "code" {
		return "", protocolErr(ErrCodeUnsupportedResponseType, "only response_type=code is supported")
	}

	challenge, method, err := s.validatePKCE(app, req)
	if err != nil {
		return "", err
	}

	scopes, err := resolveScopes(app, req.Scope)
	if err != nil {
		return "", err
	}

	// The end user must be a member of the workspace that owns the app.
	ok, err := s.authz.CanAccessWorkspace(ctx, app.WorkspaceID, req.UserID, models.WorkspaceRoleGuest)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", protocolErr(ErrCodeAccessDenied, "user is not a member of the application's workspace")
	}

	code, err := auth.GenerateCode()
	if err != nil {
		return "", err
	}
	now := s.now()
	_, err = s.store.CreateAuthorizationCode(ctx, &models.AuthorizationCode{
		CodeHash:            auth.HashCode(code),
		OAuthAppID:          app.ID,
		UserID:              req.UserID,
		WorkspaceID:         app.WorkspaceID,
		Scopes:              scopes,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.codeTTL),
	})
	if err != nil {
		return "", err
	}

	logger.Info("issued authorization code", "client_id", app.ClientID, "user_id", req.UserID, "scopes", scopes)
	return buildRedirect(req.RedirectURI, url.Values{"code": {code}, "state": {req.State}}), nil
}

func (s *Service) validatePKCE(app *models.OAuthApp, req AuthorizeRequest) (string, models.CodeChallengeMethod, error) {
	if req.CodeChallenge == "" {
		if app.ClientType == models.ClientTypePublic {
			return "", "", protocolErr(ErrCodeInvalidRequest, "code_challenge is required for public clients")
		}
		return "", "", nil
	}

	method := models.CodeChallengeMethod(req.CodeChallengeMethod)
	if method == "" {
		method = models.ChallengeMethodPlain
	}
	if !method.IsValid() {
		return "", "", protocolErr(ErrCodeInvalidRequest, "unsupported code_challenge_method")
	}
	if app.ClientType == models.ClientTypePublic && method != models.ChallengeMethodS256 {
		return "", "", protocolErr(ErrCodeInvalidRequest, "public clients must use code_challenge_method=S256")
	}
	return req.CodeChallenge, method, nil
}

// resolveScopes intersects the requested scope set with the app's allowed
// scopes. An empty request grants all allowed scopes.
func resolveScopes(app *models.OAuthApp, requested string) ([]string, error) {
	if requested == "" {
		return slices.Clone(app.AllowedScopes), nil
	}
	scopes := strings.Fields(requested)
	for _, sc := range scopes {
		if !slices.Contains(app.AllowedScopes, sc) {
			return nil, protocolErr(ErrCodeInvalidScope, "scope "+sc+" is not allowed for this client")
		}
	}
	return scopes, nil
}

func buildRedirect(redirectURI string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		// Registered URIs are validated at registration time.
		return redirectURI
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ErrorRedirect builds the redirect URL delivering a redirectable protocol
// error to the client.
func ErrorRedirect(redirectURI string, oerr *Error, state string) string {
	return buildRedirect(redirectURI, url.Values{
		"error":             {oerr.Code},
		"error_description": {oerr.Description},
		"state":             {state},
	})
}

// TokenRequest carries the form parameters of the token endpoint.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// TokenResponse is the successful token endpoint response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Exchange trades an authorization code for an access token.
//
// Failures return *Error with an RFC 6749 code; the token endpoint renders
// them as a JSON body, never a redirect.
func (s *Service) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, protocolErr(ErrCodeUnsupportedGrantType, "only grant_type=authorization_code is supported")
	}
	if req.Code == "" {
		return nil, protocolErr(ErrCodeInvalidRequest, "code is required")
	}

	app, err := s.store.GetOAuthAppByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, models.ErrOAuthAppNotFound) {
			return nil, protocolErr(ErrCodeInvalidClient, "unknown client_id")
		}
		return nil, err
	}
	if !app.IsEnabled {
		return nil, protocolErr(ErrCodeInvalidClient, "client is disabled")
	}
	if app.ClientType == models.ClientTypeConfidential {
		if !auth.VerifySecret(app.ClientSecretHash, req.ClientSecret) {
			return nil, protocolErr(ErrCodeInvalidClient, "client authentication failed")
		}
	}

	code, err := s.store.GetAuthorizationCodeByHash(ctx, auth.HashCode(req.Code), app.ID)
	if err != nil {
		if errors.Is(err, models.ErrAuthCodeNotFound) {
			return nil, protocolErr(ErrCodeInvalidGrant, "authorization code is invalid")
		}
		return nil, err
	}

	now := s.now()
	if code.Expired(now) {
		return nil, protocolErr(ErrCodeInvalidGrant, "authorization code has expired")
	}
	if req.RedirectURI != code.RedirectURI {
		return nil, protocolErr(ErrCodeInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if err := verifyPKCE(app, code, req.CodeVerifier); err != nil {
		return nil, err
	}

	// Single use: a lost race or a replay both surface as invalid_grant.
	if err := s.store.ConsumeAuthorizationCode(ctx, code.ID, now); err != nil {
		if errors.Is(err, models.ErrAuthCodeConsumed) {
			logger.Warn("authorization code replay detected", "client_id", app.ClientID, "code_id", code.ID)
			return nil, protocolErr(ErrCodeInvalidGrant, "authorization code has already been used")
		}
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, code.UserID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.IssueAccessToken(user.Subject, code.WorkspaceID, app.ClientID, code.Scopes)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.AccessTokenTTL().Seconds()),
		Scope:       strings.Join(code.Scopes, " "),
	}, nil
}

func verifyPKCE(app *models.OAuthApp, code *models.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		// Public clients have no secret; PKCE is their only proof of
		// possession, so a code issued without a challenge is unusable.
		if app.ClientType == models.ClientTypePublic {
			return protocolErr(ErrCodeInvalidGrant, "authorization code was issued without a PKCE challenge")
		}
		return nil
	}
	if verifier == "" {
		return protocolErr(ErrCodeInvalidGrant, "code_verifier is required")
	}

	var derived string
	switch code.CodeChallengeMethod {
	case models.ChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case models.ChallengeMethodPlain:
		derived = verifier
	default:
		return protocolErr(ErrCodeInvalidGrant, "unsupported code_challenge_method")
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return protocolErr(ErrCodeInvalidGrant, "code_verifier does not match the code_challenge")
	}
	return nil
}
