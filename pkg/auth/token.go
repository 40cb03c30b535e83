package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for token operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token signing key must be at least 32 characters")
)

// AccessClaims are the JWT claims carried by Octopus access tokens.
//
// The subject is the user's stable subject, `tid` scopes the token to one
// workspace, and `scp` is the space-separated granted scope set.
type AccessClaims struct {
	jwt.RegisteredClaims

	WorkspaceID string `json:"tid"`
	ClientID    string `json:"client_id"`
	Scope       string `json:"scp"`
}

// Scopes returns the scope claim split into a set.
func (c *AccessClaims) Scopes() []string {
	if c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}

// TokenConfig holds configuration for access token issuance.
type TokenConfig struct {
	// SigningKey is the HMAC signing key. Must be at least 32 characters.
	SigningKey string

	// Issuer is the token issuer claim. Default: "octopus".
	Issuer string

	// AccessTokenTTL is the lifetime of access tokens. Default: 1 hour.
	AccessTokenTTL time.Duration
}

// TokenService issues and validates Octopus access tokens (HS256).
type TokenService struct {
	config TokenConfig
}

// NewTokenService creates a token service with the given configuration.
func NewTokenService(config TokenConfig) (*TokenService, error) {
	if len(config.SigningKey) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "octopus"
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = time.Hour
	}
	return &TokenService{config: config}, nil
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.config.AccessTokenTTL
}

// IssueAccessToken signs an access token for the given identity.
func (s *TokenService) IssueAccessToken(subject, workspaceID, clientID string, scopes []string) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
		},
		WorkspaceID: workspaceID,
		ClientID:    clientID,
		Scope:       strings.Join(scopes, " "),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.SigningKey))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// ValidateAccessToken validates a token and returns its claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SigningKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
