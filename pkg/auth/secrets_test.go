package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2-sha256$") {
		t.Errorf("Unexpected hash format: %s", hash)
	}
	if !VerifySecret(hash, "s3cret") {
		t.Error("Expected secret to verify")
	}
	if VerifySecret(hash, "wrong") {
		t.Error("Expected wrong secret to fail")
	}

	// Same secret hashes differently (random salt).
	again, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if again == hash {
		t.Error("Expected distinct salts per hash")
	}
}

func TestVerifySecretMalformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"wrong scheme", "bcrypt$10$abc$def"},
		{"too few parts", "pbkdf2-sha256$150000$onlysalt"},
		{"bad iterations", "pbkdf2-sha256$zero$c2FsdA$a2V5"},
		{"bad salt encoding", "pbkdf2-sha256$150000$!!$a2V5"},
		{"bad key encoding", "pbkdf2-sha256$150000$c2FsdA$!!"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySecret(tc.encoded, "anything") {
				t.Error("Expected verification to fail")
			}
		})
	}
}

func TestGenerateCodeUniqueness(t *testing.T) {
	a, err := GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	b, err := GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	if a == b {
		t.Error("Expected distinct codes")
	}
	if HashCode(a) == HashCode(b) {
		t.Error("Expected distinct hashes")
	}
	if len(HashCode(a)) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(HashCode(a)))
	}
}
