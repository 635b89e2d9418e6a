package security

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	token, errGenerate := GenerateToken("secret", 42, "alice", "alice@example.com", time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}

	claims, errParse := ParseToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, errGenerate := GenerateToken("secret", 42, "alice", "alice@example.com", time.Hour)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if _, errParse := ParseToken("other-secret", token); !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, errGenerate := GenerateToken("secret", 42, "alice", "alice@example.com", -time.Minute)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if _, errParse := ParseToken("secret", token); !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, errHash := HashPassword("hunter2")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "hunter2" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "hunter2") {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected mismatched password to fail")
	}
}
