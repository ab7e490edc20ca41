package auth

import (
	"testing"
	"time"
)

func TestTokenIssuerRoundTripsThroughValidator(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		TokenTTL:      30 * time.Minute,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueSessionToken(Identity{
		UserID:      " user-123 ",
		Email:       "reader@example.com",
		DisplayName: "Reader",
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("super-secret"),
		CookieName:    "session",
		Clock:         func() time.Time { return now.Add(10 * time.Minute) },
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("unexpected subject %q / %q", claims.Subject, claims.UserID)
	}
	if claims.UserDisplayName != "Reader" || claims.Issuer != defaultSessionIssuer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{}); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestTokenIssuerRejectsMissingSubject(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken(Identity{UserID: "  "}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}
