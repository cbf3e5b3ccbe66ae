package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestManager_AdminTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	raw, err := m.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Role != RoleAdmin || claims.Subject != "ops" || claims.JTI == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestManager_RejectsExpired(t *testing.T) {
	m := NewManager("test-secret", time.Minute)
	issued := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	raw, err := m.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	m.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestManager_RejectsOtherSecret(t *testing.T) {
	raw, err := NewManager("one", time.Hour).GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewManager("two", time.Hour).VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestManager_RejectsNonAccessType(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	claims := Claims{
		Role:      RoleAdmin,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.VerifyAccessToken(raw); err == nil {
		t.Fatalf("expected refresh typ to be rejected")
	}
}
