package models

import (
	"slices"
	"time"
)

// ClientType distinguishes OAuth clients that can keep a secret from those
// that cannot (browser or native apps).
type ClientType string

const (
	ClientTypePublic       ClientType = "public"
	ClientTypeConfidential ClientType = "confidential"
)

// IsValid checks if the client type is known.
func (t ClientType) IsValid() bool {
	return t == ClientTypePublic || t == ClientTypeConfidential
}

// CodeChallengeMethod is a PKCE code challenge method (RFC 7636).
type CodeChallengeMethod string

const (
	ChallengeMethodS256  CodeChallengeMethod = "S256"
	ChallengeMethodPlain CodeChallengeMethod = "plain"
)

// IsValid checks if the challenge method is known.
func (m CodeChallengeMethod) IsValid() bool {
	return m == ChallengeMethodS256 || m == ChallengeMethodPlain
}

// OAuthApp is a registered OAuth2 client owned by a workspace.
//
// ClientSecretHash is a PBKDF2-SHA256 hash; the plaintext secret is shown
// only once at registration time. Public clients carry no secret and must
// use PKCE.
type OAuthApp struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID      string     `gorm:"not null;size:36;index" json:"workspace_id"`
	Name             string     `gorm:"not null;size:255" json:"name"`
	ClientID         string     `gorm:"uniqueIndex;not null;size:64" json:"client_id"`
	ClientSecretHash string     `gorm:"size:512" json:"-"`
	ClientType       ClientType `gorm:"not null;size:20" json:"client_type"`
	RedirectURIs     []string   `gorm:"serializer:json" json:"redirect_uris"`
	AllowedScopes    []string   `gorm:"serializer:json" json:"allowed_scopes"`
	IsEnabled        bool       `gorm:"not null;default:true" json:"is_enabled"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for OAuthApp.
func (OAuthApp) TableName() string {
	return "oauth_apps"
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (a *OAuthApp) HasRedirectURI(uri string) bool {
	return slices.Contains(a.RedirectURIs, uri)
}

// AuthorizationCode is a single-use grant stored by hash; the code itself
// never touches the database.
type AuthorizationCode struct {
	ID                  string              `gorm:"primaryKey;size:36" json:"id"`
	CodeHash            string              `gorm:"uniqueIndex;not null;size:128" json:"-"`
	OAuthAppID          string              `gorm:"column:oauth_app_id;not null;size:36;index" json:"oauth_app_id"`
	UserID              string              `gorm:"not null;size:36" json:"user_id"`
	WorkspaceID         string              `gorm:"not null;size:36" json:"workspace_id"`
	Scopes              []string            `gorm:"serializer:json" json:"scopes"`
	RedirectURI         string              `gorm:"not null;size:2048" json:"redirect_uri"`
	CodeChallenge       string              `gorm:"size:255" json:"-"`
	CodeChallengeMethod CodeChallengeMethod `gorm:"size:10" json:"-"`
	CreatedAt           time.Time           `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt           time.Time           `gorm:"not null;index" json:"expires_at"`
	IsUsed              bool                `gorm:"not null;default:false" json:"is_used"`
	UsedAt              *time.Time          `json:"used_at,omitempty"`
}

// TableName returns the table name for AuthorizationCode.
func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}

// Expired reports whether the code is past its expiry at the given time.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
