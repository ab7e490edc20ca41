package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/blob"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/invalidation"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/readinglist"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "chapterhouse_user_id"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingIdentityResolver = errors.New("identity resolver dependency required")
	errMissingContentService   = errors.New("content service dependency required")
	errMissingSocialService    = errors.New("social service dependency required")
	errMissingReadingList      = errors.New("reading list service dependency required")
)

// SessionValidator extracts session claims from a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// IdentityResolver maps session claims to canonical users and looks up display profiles.
type IdentityResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (domain.UserID, error)
	Profiles(ctx context.Context, userIDs []string) (map[string]users.Profile, error)
}

type Dependencies struct {
	Sessions    SessionValidator
	Identities  IdentityResolver
	Content     *content.Service
	Social      *social.Service
	ReadingList *readinglist.Service
	// Blobs is optional; upload routes answer 404 without it.
	Blobs          blob.Store
	UploadMaxBytes int64
	Realtime       *InvalidationDispatcher
	Publisher      invalidation.Publisher
	Origin         string
	CommentLimiter *ratelimit.KeyedLimiter
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Identities == nil {
		return nil, errMissingIdentityResolver
	}
	if deps.Content == nil {
		return nil, errMissingContentService
	}
	if deps.Social == nil {
		return nil, errMissingSocialService
	}
	if deps.ReadingList == nil {
		return nil, errMissingReadingList
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	limiter := deps.CommentLimiter
	if limiter == nil {
		limiter = ratelimit.PerMinute(0)
	}

	handler := &httpHandler{
		sessions:          deps.Sessions,
		identities:        deps.Identities,
		content:           deps.Content,
		social:            deps.Social,
		readingList:       deps.ReadingList,
		blobs:             deps.Blobs,
		uploadMaxBytes:    deps.UploadMaxBytes,
		realtime:          deps.Realtime,
		publisher:         deps.Publisher,
		origin:            deps.Origin,
		commentLimiter:    limiter,
		heartbeatInterval: defaultHeartbeatInterval,
		now:               clock,
		logger:            logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(handler.resolveSession)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/events", handler.handleEvents)

	router.GET("/catalogs", handler.handleListPublicCatalogs)
	router.POST("/catalogs", handler.handleCreateCatalog)
	router.GET("/catalogs/:catalogID", handler.handleGetCatalog)
	router.PUT("/catalogs/:catalogID", handler.handleUpdateCatalog)
	router.DELETE("/catalogs/:catalogID", handler.handleDeleteCatalog)
	router.POST("/catalogs/:catalogID/like", handler.handleToggleCatalogLike)
	router.POST("/catalogs/:catalogID/chapters", handler.handleCreateChapter)
	router.PUT("/catalogs/:catalogID/chapters/order", handler.handleReorderChapters)
	router.GET("/catalogs/:catalogID/comments", handler.handleListComments)
	router.POST("/catalogs/:catalogID/comments", handler.handleCreateComment)
	router.GET("/me/catalogs", handler.handleListMyCatalogs)

	router.GET("/chapters/:chapterID", handler.handleGetChapter)
	router.PATCH("/chapters/:chapterID", handler.handleUpdateChapterTitle)
	router.DELETE("/chapters/:chapterID", handler.handleDeleteChapter)
	router.PUT("/chapters/:chapterID/document", handler.handleAttachDocument)
	router.POST("/chapters/:chapterID/document", handler.handleUploadDocument)
	router.GET("/chapters/:chapterID/pages", handler.handleListPages)
	router.PUT("/chapters/:chapterID/pages/:page", handler.handleSavePage)
	router.DELETE("/chapters/:chapterID/pages/:page", handler.handleDeletePage)

	router.DELETE("/comments/:commentID", handler.handleDeleteComment)
	router.POST("/comments/:commentID/pin", handler.handleTogglePin)
	router.POST("/comments/:commentID/like", handler.handleToggleLike)
	router.POST("/comments/:commentID/dislike", handler.handleToggleDislike)
	router.GET("/comments/:commentID/reaction", handler.handleReactionOf)

	router.GET("/reading-list", handler.handleListEntries)
	router.POST("/reading-list/toggle", handler.handleToggleReadingList)
	router.GET("/reading-list/contains/:catalogID", handler.handleContains)
	router.GET("/reading-list/groups", handler.handleListGroups)
	router.POST("/reading-list/groups", handler.handleCreateGroup)
	router.PATCH("/reading-list/groups/:groupID", handler.handleUpdateGroup)
	router.DELETE("/reading-list/groups/:groupID", handler.handleDeleteGroup)

	router.POST("/uploads", handler.handleUpload)
	if dir, ok := deps.Blobs.(*blob.DirStore); ok {
		router.StaticFS(dir.PublicPrefix(), dir.FileSystem())
	}

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	identities        IdentityResolver
	content           *content.Service
	social            *social.Service
	readingList       *readinglist.Service
	blobs             blob.Store
	uploadMaxBytes    int64
	realtime          *InvalidationDispatcher
	publisher         invalidation.Publisher
	origin            string
	commentLimiter    *ratelimit.KeyedLimiter
	heartbeatInterval time.Duration
	now               func() time.Time
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

// resolveSession attaches the caller's canonical user id. Requests without a valid
// session continue anonymously; each engine decides whether that is enough.
func (h *httpHandler) resolveSession(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.Next()
		return
	}
	userID, err := h.identities.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("identity resolution failed", zap.Error(err))
		c.Next()
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func actorOf(c *gin.Context) domain.UserID {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return domain.Anonymous
	}
	userID, _ := value.(domain.UserID)
	return userID
}
