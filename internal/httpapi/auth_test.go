package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/oabdelghanydev-eng/AzafcoSys-sub000/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssuedTokenRoundTrips(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)

	token, expiresAt, err := manager.IssueToken(domain.Actor{Username: "layla", Role: domain.RoleAccountant})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "layla" || actor.Role != domain.RoleAccountant {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)

	if _, _, err := manager.IssueToken(domain.Actor{Username: "omar", Role: "cashier"}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
	if _, _, err := manager.IssueToken(domain.Actor{Username: " ", Role: domain.RoleSales}); err == nil {
		t.Fatalf("expected blank username to be rejected")
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	issuer := NewAuthManager("another-secret-another-secret-xx", time.Hour)
	token, _, err := issuer.IssueToken(domain.Actor{Username: "omar", Role: domain.RoleSales})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := NewAuthManager(testSecret, time.Hour).ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "omar",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: domain.RoleSales,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsForeignIssuer(t *testing.T) {
	manager := NewAuthManager(testSecret, time.Hour)
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "omar",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected the first two attempts to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected the third attempt to be refused")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected another client to be unaffected")
	}
}
