// Package blob stores uploaded chapter documents and cover images and returns the URL they
// are served from.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const maxFilenameLength = 80

var (
	// ErrEmptyUpload is returned when Put receives no bytes.
	ErrEmptyUpload = errors.New("blob: upload is empty")
	// ErrUploadTooLarge is returned when the body exceeds the store's limit.
	ErrUploadTooLarge = errors.New("blob: upload too large")

	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Store persists uploaded bytes and returns a URL for them.
type Store interface {
	Put(ctx context.Context, filenameHint, contentType string, body io.Reader, size int64) (string, error)
}

// ObjectName builds a collision-free object name from a client supplied filename:
// "<nanoid>-<sanitized name>".
func ObjectName(filenameHint string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate object id: %w", err)
	}
	return id + "-" + SanitizeFilename(filenameHint), nil
}

// SanitizeFilename strips directories and anything outside [A-Za-z0-9._-].
func SanitizeFilename(filenameHint string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filenameHint), "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	cleaned := strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "._")
	if cleaned == "" {
		cleaned = "upload"
	}
	if len(cleaned) > maxFilenameLength {
		cleaned = cleaned[len(cleaned)-maxFilenameLength:]
	}
	return cleaned
}
