package server

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/blob"
)

func newUploadServer(t *testing.T, maxBytes int64) *testServer {
	t.Helper()
	store, err := blob.NewDirStore(t.TempDir(), "/uploads", maxBytes)
	if err != nil {
		t.Fatalf("failed to construct dir store: %v", err)
	}
	return newTestServer(t, func(deps *Dependencies) {
		deps.Blobs = store
		deps.UploadMaxBytes = maxBytes
	})
}

func (s *testServer) upload(t *testing.T, path, userID, filename string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	part, err := writer.CreateFormFile(uploadFormField, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(body); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, path, &buffer)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if userID != "" {
		request.AddCookie(&http.Cookie{Name: testCookieName, Value: s.token(t, userID)})
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestUploadStoresAndServesFiles(t *testing.T) {
	server := newUploadServer(t, 1024)

	recorder := server.upload(t, "/uploads", authorUser, "My Cover.png", []byte("png-bytes"))
	expectStatus(t, recorder, http.StatusCreated)
	uploaded := decodeBody[struct {
		URL string `json:"url"`
	}](t, recorder)
	if !strings.HasPrefix(uploaded.URL, "/uploads/") || !strings.HasSuffix(uploaded.URL, "-My_Cover.png") {
		t.Fatalf("unexpected upload url %q", uploaded.URL)
	}

	served := httptest.NewRecorder()
	server.handler.ServeHTTP(served, httptest.NewRequest(http.MethodGet, uploaded.URL, http.NoBody))
	expectStatus(t, served, http.StatusOK)
	body, _ := io.ReadAll(served.Body)
	if string(body) != "png-bytes" {
		t.Fatalf("unexpected served body %q", body)
	}
}

func TestUploadRejections(t *testing.T) {
	server := newUploadServer(t, 8)

	expectStatus(t, server.upload(t, "/uploads", "", "a.txt", []byte("x")), http.StatusUnauthorized)
	expectStatus(t, server.upload(t, "/uploads", authorUser, "big.bin", []byte("way too many bytes")), http.StatusRequestEntityTooLarge)
	expectStatus(t, server.upload(t, "/uploads", authorUser, "empty.txt", nil), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodPost, "/uploads", authorUser, map[string]any{}), http.StatusBadRequest)

	withoutStore := newTestServer(t)
	expectStatus(t, withoutStore.upload(t, "/uploads", authorUser, "a.txt", []byte("x")), http.StatusNotFound)
}

func TestUploadDocumentAttachesToChapter(t *testing.T) {
	server := newUploadServer(t, 1024)
	catalog := server.createCatalog(t, authorUser, "Scans", true)
	chapter := server.createChapter(t, authorUser, catalog.ID, "Scan one").Chapter
	path := "/chapters/" + chapter.ID + "/document"

	expectStatus(t, server.upload(t, path, readerUser, "scan.pdf", []byte("%PDF")), http.StatusForbidden)

	recorder := server.upload(t, path, authorUser, "scan.pdf", []byte("%PDF"))
	expectStatus(t, recorder, http.StatusOK)
	attached := decodeBody[chapterResponse](t, recorder).Chapter
	if !strings.HasSuffix(attached.DocumentURL, "-scan.pdf") {
		t.Fatalf("unexpected document url %q", attached.DocumentURL)
	}

	detail := decodeBody[struct {
		Pages []pagePayload `json:"pages"`
	}](t, server.do(t, http.MethodGet, "/chapters/"+chapter.ID, "", nil))
	if len(detail.Pages) != 0 {
		t.Fatalf("expected a document chapter to have no pages, got %d", len(detail.Pages))
	}
}

func TestUploadRejectsOversizedBodyBeforeParsing(t *testing.T) {
	server := newUploadServer(t, 8)
	oversized := bytes.Repeat([]byte("x"), multipartOverhead+1024)

	expectStatus(t, server.upload(t, "/uploads", authorUser, "huge.bin", oversized), http.StatusRequestEntityTooLarge)
}
