package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/database"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/invalidation"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/readinglist"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "chapterhouse_session"
	testOrigin        = "api-test"

	authorUser = "author-1"
	readerUser = "reader-1"
	otherUser  = "other-1"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []invalidation.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event invalidation.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []invalidation.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]invalidation.Event(nil), p.events...)
}

type testServer struct {
	handler   http.Handler
	db        *gorm.DB
	issuer    *auth.TokenIssuer
	realtime  *InvalidationDispatcher
	publisher *recordingPublisher
	logs      *observer.ObservedLogs
}

func newTestServer(t *testing.T, configure ...func(*Dependencies)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Open(database.DriverSQLite, dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Migrate(db, nil); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	ids := domain.NewUUIDProvider()
	contentService, err := content.NewService(content.ServiceConfig{Database: db, IDProvider: ids, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct content service: %v", err)
	}
	socialService, err := social.NewService(social.ServiceConfig{Database: db, IDProvider: ids, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct social service: %v", err)
	}
	readingListService, err := readinglist.NewService(readinglist.ServiceConfig{Database: db, IDProvider: ids, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct reading list service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	realtime := NewInvalidationDispatcher()
	publisher := &recordingPublisher{}
	deps := Dependencies{
		Sessions:    validator,
		Identities:  userService,
		Content:     contentService,
		Social:      socialService,
		ReadingList: readingListService,
		Realtime:    realtime,
		Publisher:   publisher,
		Origin:      testOrigin,
		Logger:      logger,
	}
	for _, apply := range configure {
		apply(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testServer{
		handler:   handler,
		db:        db,
		issuer:    issuer,
		realtime:  realtime,
		publisher: publisher,
		logs:      logs,
	}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := s.issuer.IssueSessionToken(auth.Identity{UserID: userID, DisplayName: "Name of " + userID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

// do sends a JSON request as userID; an empty userID sends no session.
func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		request.AddCookie(&http.Cookie{Name: testCookieName, Value: s.token(t, userID)})
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

type catalogResponse struct {
	Catalog  catalogPayload `json:"catalog"`
	Affected []string       `json:"affected"`
}

type chapterResponse struct {
	Chapter  chapterPayload `json:"chapter"`
	Pages    []pagePayload  `json:"pages"`
	Affected []string       `json:"affected"`
}

func (s *testServer) createCatalog(t *testing.T, userID, title string, public bool) catalogPayload {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/catalogs", userID, map[string]any{"title": title, "is_public": public})
	expectStatus(t, recorder, http.StatusCreated)
	return decodeBody[catalogResponse](t, recorder).Catalog
}

func (s *testServer) createChapter(t *testing.T, userID, catalogID, title string) chapterResponse {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/catalogs/"+catalogID+"/chapters", userID, map[string]any{"title": title})
	expectStatus(t, recorder, http.StatusCreated)
	return decodeBody[chapterResponse](t, recorder)
}

func containsString(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
