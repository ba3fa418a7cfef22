package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/auth"
	"github.com/Helli-o-s/Social-Media-Submission/internal/intake"
	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/session"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	providerContextKey = "submissions_session_provider"
	userContextKey     = "submissions_user"
	tokenContextKey    = "submissions_session_token"

	liveURL = "/admin/live"
)

var (
	errMissingSessions    = errors.New("session service dependency required")
	errMissingSubmissions = errors.New("submission store dependency required")
	errMissingIntake      = errors.New("intake service dependency required")
	errMissingEditor      = errors.New("editor dependency required")
	errMissingObjects     = errors.New("object store dependency required")
	errMissingThumbnails  = errors.New("thumbnailer dependency required")
)

// SessionService signs administrators in and out and resolves their sessions.
type SessionService interface {
	session.Source
	SignIn(ctx context.Context, email, password string) (string, auth.Session, error)
	SignOut(ctx context.Context, token string) error
	CookieName() string
	SessionTTL() time.Duration
}

// SubmissionStore reads submissions and streams inserts.
type SubmissionStore interface {
	List(ctx context.Context) ([]submissions.Submission, error)
	Get(ctx context.Context, id string) (submissions.Submission, error)
	SubscribeToInserts(ctx context.Context) (<-chan submissions.Submission, func())
}

// Submitter accepts public submissions.
type Submitter interface {
	Submit(ctx context.Context, request intake.Request) (submissions.Submission, error)
}

// ObjectReader serves stored images.
type ObjectReader interface {
	Open(key string) (afero.File, error)
	KeyFromURL(publicURL string) (string, bool)
}

// Thumbnailer renders image previews.
type Thumbnailer interface {
	Thumbnail(key string) ([]byte, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Sessions         SessionService
	Submissions      SubmissionStore
	Intake           Submitter
	Editor           *mutation.Editor
	Objects          ObjectReader
	Thumbnails       Thumbnailer
	Logger           *zap.Logger
	AllowedOrigins   []string
	SecureCookies    bool
	DebounceInterval time.Duration
	HeartbeatPeriod  time.Duration
}

// NewHTTPHandler builds the gin router serving pages, the JSON API, media and live updates.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Submissions == nil {
		return nil, errMissingSubmissions
	}
	if deps.Intake == nil {
		return nil, errMissingIntake
	}
	if deps.Editor == nil {
		return nil, errMissingEditor
	}
	if deps.Objects == nil {
		return nil, errMissingObjects
	}
	if deps.Thumbnails == nil {
		return nil, errMissingThumbnails
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatPeriod
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatPeriod
	}

	router := gin.New()
	router.Use(gin.Recovery())

	handler := &httpHandler{
		sessions:         deps.Sessions,
		submissions:      deps.Submissions,
		intake:           deps.Intake,
		editor:           deps.Editor,
		objects:          deps.Objects,
		thumbnails:       deps.Thumbnails,
		logger:           logger,
		secureCookies:    deps.SecureCookies,
		debounceInterval: deps.DebounceInterval,
		heartbeat:        heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/media/*key", handler.handleMedia)
	router.GET("/thumbnails/*key", handler.handleThumbnail)

	pages := router.Group("/")
	pages.Use(handler.loadSession)
	pages.GET("/", handler.handleSubmitForm)
	pages.POST("/", handler.handleSubmit)
	pages.GET("/login", handler.handleLoginForm)
	pages.POST("/login", handler.handleLogin)
	pages.POST("/logout", handler.handleLogout)

	admin := router.Group("/admin")
	admin.Use(handler.loadSession, handler.requirePageSession)
	admin.GET("", handler.handleDashboard)
	admin.GET("/submissions/:id/edit", handler.handleEditForm)
	admin.POST("/submissions/:id/edit", handler.handleEdit)
	admin.POST("/submissions/:id/delete", handler.handleDelete)
	admin.GET("/live", handler.handleLive)
	admin.GET("/stream", handler.handleStream)

	api := router.Group("/api")
	api.Use(corsMiddleware(deps.AllowedOrigins), handler.loadSession, handler.requireAPISession)
	api.OPTIONS("/submissions", handlePreflight)
	api.OPTIONS("/submissions/:id", handlePreflight)
	api.GET("/submissions", handler.handleListSubmissions)
	api.PATCH("/submissions/:id", handler.handlePatchSubmission)
	api.DELETE("/submissions/:id", handler.handleDeleteSubmission)

	return router, nil
}

type httpHandler struct {
	sessions         SessionService
	submissions      SubmissionStore
	intake           Submitter
	editor           *mutation.Editor
	objects          ObjectReader
	thumbnails       Thumbnailer
	logger           *zap.Logger
	secureCookies    bool
	debounceInterval time.Duration
	heartbeat        time.Duration
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return false }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

// loadSession resolves the session cookie through a session provider that lives as long as the
// request. Long-lived handlers observe the provider for sign-out.
func (h *httpHandler) loadSession(c *gin.Context) {
	if _, exists := c.Get(providerContextKey); exists {
		c.Next()
		return
	}
	token, _ := c.Cookie(h.sessions.CookieName())
	provider := session.NewProvider(h.sessions, token, h.logger)
	provider.Start(c.Request.Context())
	defer provider.Close()

	state := provider.Wait(c.Request.Context())
	c.Set(providerContextKey, provider)
	c.Set(tokenContextKey, token)
	if state.User != nil {
		c.Set(userContextKey, state.User)
	}
	c.Next()
}

func (h *httpHandler) requirePageSession(c *gin.Context) {
	if currentUser(c) == nil {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.Next()
}

func (h *httpHandler) requireAPISession(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		c.Next()
		return
	}
	if currentUser(c) == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) *auth.Identity {
	value, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := value.(*auth.Identity)
	return user
}

func currentProvider(c *gin.Context) *session.Provider {
	value, ok := c.Get(providerContextKey)
	if !ok {
		return nil
	}
	provider, _ := value.(*session.Provider)
	return provider
}

func handlePreflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, maxAge, "/", "", h.secureCookies, true)
}

func closeQuietly(closer io.Closer) {
	_ = closer.Close()
}
