package security

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	userID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected subject 42, got %d", userID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b", time.Hour).Verify(token); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, err := NewTokenIssuer("secret", -time.Minute).Issue(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewTokenIssuer("secret", -time.Minute).Verify(token); err == nil {
		t.Fatal("expected verification failure for expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("password not hashed")
	}
	if !CheckPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}
