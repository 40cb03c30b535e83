package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/octopus-bim/octopus/pkg/oauth"
)

// OAuthHandler serves the authorization and token endpoints of the
// built-in OAuth2 server.
type OAuthHandler struct {
	Base
	OAuth *oauth.Service
}

// NewOAuthHandler creates an OAuth endpoint handler.
func NewOAuthHandler(base Base, svc *oauth.Service) *OAuthHandler {
	return &OAuthHandler{Base: base, OAuth: svc}
}

// oauthError is the RFC 6749 error body for non-redirectable failures.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, oerr *oauth.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauthError{Code: oerr.Code, Description: oerr.Description})
}

// Authorize handles GET /oauth/authorize for an authenticated user.
//
// Validation failures that happen before the redirect URI is trusted are
// answered directly; everything after that is delivered to the client via
// an error redirect, per RFC 6749.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r.Context())
	if err != nil {
		Unauthorized(w, "authentication required")
		return
	}

	q := r.URL.Query()
	req := oauth.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		UserID:              user.ID,
	}

	redirect, err := h.OAuth.Authorize(r.Context(), req)
	if err != nil {
		var oerr *oauth.Error
		if !errors.As(err, &oerr) {
			InternalServerError(w, "authorization failed")
			return
		}
		if oerr.Redirectable {
			http.Redirect(w, r, oauth.ErrorRedirect(req.RedirectURI, oerr, req.State), http.StatusFound)
			return
		}
		writeOAuthError(w, http.StatusBadRequest, oerr)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Token handles POST /oauth/token. The endpoint is anonymous; the client
// authenticates through the form credentials themselves.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest,
			&oauth.Error{Code: oauth.ErrCodeInvalidRequest, Description: "malformed form body"})
		return
	}

	resp, err := h.OAuth.Exchange(r.Context(), oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	})
	if err != nil {
		var oerr *oauth.Error
		if !errors.As(err, &oerr) {
			oerr = &oauth.Error{Code: oauth.ErrCodeServerError, Description: "token exchange failed"}
		}
		status := http.StatusBadRequest
		if oerr.Code == oauth.ErrCodeInvalidClient {
			status = http.StatusUnauthorized
		}
		writeOAuthError(w, status, oerr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(resp)
}
