package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxIdentifierLength = 190

// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
var ErrInvalidUserID = errors.New("domain: invalid user id")

// UserID represents a validated, canonical user identifier. The zero value is the
// anonymous caller.
type UserID string

// Anonymous is the identity of a caller without a session.
const Anonymous UserID = ""

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return Anonymous, fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return Anonymous, fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// IsAnonymous reports whether the caller has no session.
func (id UserID) IsAnonymous() bool {
	return strings.TrimSpace(string(id)) == ""
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// IDProvider issues primary keys for new rows.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
