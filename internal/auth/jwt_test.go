package auth

import (
	"testing"
	"time"

	"voice-agent-platform/internal/config"
)

func TestIssueAndVerifyServiceToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret: "secret",
		JWTIssuer: "issuer",
		TokenTTL:  15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "scheduler", ScopeDispatch)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, ScopeDispatch, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Caller != "scheduler" || claims.Scope != ScopeDispatch {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongScope(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	tok, err := m.Issue(time.Now(), "scheduler", "other")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, ScopeDispatch, time.Now()); err == nil {
		t.Fatalf("expected scope mismatch")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "scheduler", ScopeDispatch)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, ScopeDispatch, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}
