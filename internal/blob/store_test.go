package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{"chapter one.pdf", "chapter_one.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\cover.png`, "cover.png"},
		{"   ", "upload"},
		{"..", "upload"},
		{"résumé (final).pdf", "r_sum_final_.pdf"},
		{".hidden", "hidden"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.want, SanitizeFilename(testCase.input), testCase.input)
	}
	long := strings.Repeat("a", 200) + ".pdf"
	assert.Len(t, SanitizeFilename(long), maxFilenameLength)
	assert.True(t, strings.HasSuffix(SanitizeFilename(long), ".pdf"))
}

func TestObjectNameIsUnique(t *testing.T) {
	first, err := ObjectName("cover.png")
	require.NoError(t, err)
	second, err := ObjectName("cover.png")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(first, "-cover.png"))
}

func TestDirStorePutWritesToDisk(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDirStore(root, "uploads/", 1024)
	require.NoError(t, err)
	assert.Equal(t, "/uploads", store.PublicPrefix())

	payload := []byte("%PDF-1.7 tiny")
	url, err := store.Put(t.Context(), "notes.pdf", "application/pdf", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/uploads/"))

	stored, err := os.ReadFile(filepath.Join(root, strings.TrimPrefix(url, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}

func TestDirStoreRejectsEmptyAndOversizedUploads(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewDirStoreOnFs(fs, "/uploads", 4)

	_, err := store.Put(t.Context(), "empty.txt", "", bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = store.Put(t.Context(), "unknown.txt", "", bytes.NewReader(nil), -1)
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = store.Put(t.Context(), "big.txt", "", bytes.NewReader([]byte("too large")), -1)
	assert.ErrorIs(t, err, ErrUploadTooLarge)

	entries, err := afero.ReadDir(fs, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	url, err := store.Put(t.Context(), "ok.txt", "text/plain", bytes.NewReader([]byte("fine")), 4)
	require.NoError(t, err)
	stored, err := afero.ReadFile(fs, strings.TrimPrefix(url, "/uploads/"))
	require.NoError(t, err)
	assert.Equal(t, "fine", string(stored))
}
