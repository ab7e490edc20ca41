package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func newTestValidator(t *testing.T, now time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		CookieName:    testSessionCookieName,
		Clock: func() time.Time {
			return now
		},
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signClaims(t *testing.T, claims SessionClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	signed := signClaims(t, SessionClaims{
		UserID:    testSessionUserID,
		UserEmail: testSessionUserEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}, testSessionSigningSecret)

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
}

func TestSessionValidatorRejectsBadTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	valid := jwt.RegisteredClaims{
		Issuer:    defaultSessionIssuer,
		Subject:   testSessionUserID,
		IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-time.Hour))
	foreignIssuer := valid
	foreignIssuer.Issuer = "someone-else"
	noSubject := valid
	noSubject.Subject = ""

	testCases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "  ", want: ErrMissingSessionToken},
		{name: "expired", token: signClaims(t, SessionClaims{UserID: testSessionUserID, RegisteredClaims: expired}, testSessionSigningSecret), want: ErrExpiredSessionToken},
		{name: "wrong secret", token: signClaims(t, SessionClaims{UserID: testSessionUserID, RegisteredClaims: valid}, "other"), want: ErrInvalidSessionToken},
		{name: "foreign issuer", token: signClaims(t, SessionClaims{UserID: testSessionUserID, RegisteredClaims: foreignIssuer}, testSessionSigningSecret), want: ErrInvalidSessionToken},
		{name: "no subject", token: signClaims(t, SessionClaims{RegisteredClaims: noSubject}, testSessionSigningSecret), want: ErrMissingSessionSubject},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := validator.ValidateToken(testCase.token)
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	signed, _, err := issuer.IssueSessionToken(Identity{UserID: testSessionUserID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	validator := newTestValidator(t, time.Now())

	request := httptest.NewRequest(http.MethodGet, "/catalogs", http.NoBody)
	request.AddCookie(&http.Cookie{
		Name:  testSessionCookieName,
		Value: signed,
	})

	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.UserID != testSessionUserID {
		t.Fatalf("unexpected user id: %s", claims.UserID)
	}
}

func TestSessionValidatorValidateRequestFallsBackToBearer(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSessionSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	signed, _, err := issuer.IssueSessionToken(Identity{UserID: testSessionUserID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	validator := newTestValidator(t, time.Now())

	request := httptest.NewRequest(http.MethodGet, "/catalogs", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+signed)
	if _, err := validator.ValidateRequest(request); err != nil {
		t.Fatalf("validation failed: %v", err)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/catalogs", http.NoBody)
	if _, err := validator.ValidateRequest(anonymous); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}

func TestSessionValidatorToleratesClockSkew(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, clockNow)

	signed := signClaims(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultSessionIssuer,
			Subject:   "google:42",
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(10 * time.Second)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(10 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(-10 * time.Second)),
		},
	}, testSessionSigningSecret)

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("expected skew within leeway to be accepted: %v", err)
	}
	if claims.AccountID() != "google:42" {
		t.Fatalf("unexpected account id %q", claims.AccountID())
	}
}
