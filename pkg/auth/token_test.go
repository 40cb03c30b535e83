package auth

import (
	"errors"
	"testing"
	"time"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewTokenServiceKeyLength(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{SigningKey: "short"}); !errors.Is(err, ErrInvalidSecretLength) {
		t.Errorf("Expected ErrInvalidSecretLength, got %v", err)
	}
	if _, err := NewTokenService(TokenConfig{SigningKey: testKey}); err != nil {
		t.Errorf("Expected 32-char key to be accepted, got %v", err)
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc, err := NewTokenService(TokenConfig{SigningKey: testKey, Issuer: "test"})
	if err != nil {
		t.Fatalf("NewTokenService failed: %v", err)
	}

	token, err := svc.IssueAccessToken("alice", "ws-1", "octo_abc", []string{ScopeRead, ScopeWrite})
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Expected subject alice, got %s", claims.Subject)
	}
	if claims.WorkspaceID != "ws-1" {
		t.Errorf("Expected workspace ws-1, got %s", claims.WorkspaceID)
	}
	if claims.ClientID != "octo_abc" {
		t.Errorf("Expected client octo_abc, got %s", claims.ClientID)
	}
	scopes := claims.Scopes()
	if len(scopes) != 2 || scopes[0] != ScopeRead || scopes[1] != ScopeWrite {
		t.Errorf("Unexpected scopes: %v", scopes)
	}
}

func TestValidateAccessTokenRejects(t *testing.T) {
	svc, _ := NewTokenService(TokenConfig{SigningKey: testKey})

	t.Run("garbage", func(t *testing.T) {
		if _, err := svc.ValidateAccessToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		other, _ := NewTokenService(TokenConfig{SigningKey: "ffffffffffffffffffffffffffffffff"})
		token, err := other.IssueAccessToken("alice", "ws-1", "", nil)
		if err != nil {
			t.Fatalf("IssueAccessToken failed: %v", err)
		}
		if _, err := svc.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		short, _ := NewTokenService(TokenConfig{SigningKey: testKey, AccessTokenTTL: time.Nanosecond})
		token, err := short.IssueAccessToken("alice", "ws-1", "", nil)
		if err != nil {
			t.Fatalf("IssueAccessToken failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
		if _, err := short.ValidateAccessToken(token); !errors.Is(err, ErrExpiredToken) {
			t.Errorf("Expected ErrExpiredToken, got %v", err)
		}
	})
}

func TestScopesEmpty(t *testing.T) {
	c := &AccessClaims{}
	if got := c.Scopes(); got != nil {
		t.Errorf("Expected nil scopes, got %v", got)
	}
}
