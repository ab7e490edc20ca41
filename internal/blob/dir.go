package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// DirStore writes uploads into a directory that the HTTP server exposes under PublicPrefix.
type DirStore struct {
	fs           afero.Fs
	root         string
	publicPrefix string
	maxBytes     int64
}

// NewDirStore stores uploads under root on the local disk, creating it when missing.
func NewDirStore(root, publicPrefix string, maxBytes int64) (*DirStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob: directory is required")
	}
	if err := afero.NewOsFs().MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create directory: %w", err)
	}
	store := NewDirStoreOnFs(afero.NewBasePathFs(afero.NewOsFs(), root), publicPrefix, maxBytes)
	store.root = root
	return store, nil
}

// NewDirStoreOnFs stores uploads at the top level of fs.
func NewDirStoreOnFs(fs afero.Fs, publicPrefix string, maxBytes int64) *DirStore {
	return &DirStore{
		fs:           fs,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
		maxBytes:     maxBytes,
	}
}

// Root returns the directory uploads are written to; empty for stores not backed by disk.
func (s *DirStore) Root() string {
	return s.root
}

// FileSystem exposes the stored uploads for static serving.
func (s *DirStore) FileSystem() http.FileSystem {
	return afero.NewHttpFs(s.fs)
}

// PublicPrefix returns the URL path uploads are served under.
func (s *DirStore) PublicPrefix() string {
	return s.publicPrefix
}

// Put copies body into a new file. A size of -1 means unknown; the copy is still capped at
// the store's limit.
func (s *DirStore) Put(ctx context.Context, filenameHint, _ string, body io.Reader, size int64) (string, error) {
	if size == 0 {
		return "", ErrEmptyUpload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := ObjectName(filenameHint)
	if err != nil {
		return "", err
	}
	file, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob: create %s: %w", name, err)
	}

	reader := body
	if s.maxBytes > 0 {
		reader = io.LimitReader(body, s.maxBytes+1)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	var failure error
	switch {
	case copyErr != nil:
		failure = fmt.Errorf("blob: write %s: %w", name, copyErr)
	case closeErr != nil:
		failure = fmt.Errorf("blob: close %s: %w", name, closeErr)
	case written == 0:
		failure = ErrEmptyUpload
	case s.maxBytes > 0 && written > s.maxBytes:
		failure = fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.maxBytes)
	}
	if failure != nil {
		_ = s.fs.Remove(name)
		return "", failure
	}
	return s.publicPrefix + "/" + name, nil
}
