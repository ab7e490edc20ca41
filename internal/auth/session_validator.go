package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer = "chapterhouse"
	bearerPrefix         = "Bearer "
	defaultClockLeeway   = 30 * time.Second
)

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// SessionClaims is the JWT payload carried by the session cookie. Subject holds the
// provider-qualified account id; UserID is accepted for tokens minted by older issuers.
type SessionClaims struct {
	UserID          string `json:"user_id,omitempty"`
	UserEmail       string `json:"user_email,omitempty"`
	UserDisplayName string `json:"user_display_name,omitempty"`
	UserAvatarURL   string `json:"user_avatar_url,omitempty"`
	jwt.RegisteredClaims
}

// AccountID is the identifier the session speaks for.
func (c SessionClaims) AccountID() string {
	if subject := strings.TrimSpace(c.Subject); subject != "" {
		return subject
	}
	return strings.TrimSpace(c.UserID)
}

// SessionValidatorConfig describes how to validate session JWTs.
type SessionValidatorConfig struct {
	SigningSecret []byte
	// Issuer defaults to "chapterhouse".
	Issuer     string
	CookieName string
	// Leeway tolerates clock skew between issuer and validator. Defaults to 30s.
	Leeway time.Duration
	Clock  func() time.Time
}

// SessionValidator validates HS256 session JWTs from a cookie or bearer header.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultClockLeeway
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken parses tokenString and returns its claims. Expired tokens are reported as
// ErrExpiredSessionToken so callers can log them quietly.
func (v *SessionValidator) ValidateToken(tokenString string) (SessionClaims, error) {
	raw := strings.TrimSpace(tokenString)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.signingKey); err != nil {
		return SessionClaims{}, classifyParseError(err)
	}
	if claims.AccountID() == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest reads the session cookie, falling back to an Authorization bearer
// token for non-browser clients.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	return v.ValidateToken(v.tokenFromRequest(r))
}

func (v *SessionValidator) tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	return ""
}

func (v *SessionValidator) signingKey(*jwt.Token) (any, error) {
	return v.secret, nil
}

func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredSessionToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
}
