package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/auth"
	"github.com/Helli-o-s/Social-Media-Submission/internal/database"
	"github.com/Helli-o-s/Social-Media-Submission/internal/intake"
	"github.com/Helli-o-s/Social-Media-Submission/internal/media"
	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/objectstore"
	"github.com/Helli-o-s/Social-Media-Submission/internal/realtime"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/Helli-o-s/Social-Media-Submission/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "test-signing-secret"
	testCookieName    = "submissions_session"
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "hunter2"
	testPublicBaseURL = "https://cdn.example.com/media"
)

type testHarness struct {
	handler  http.Handler
	store    *submissions.Store
	sessions *auth.Service
	objects  *objectstore.Store
	fs       afero.Fs
	logs     *observer.ObservedLogs
}

func newTestHarness(t *testing.T, allowedOrigins ...string) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	accounts, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct accounts: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if _, err := accounts.EnsureAccount(context.Background(), testAdminEmail, "Admin", string(hash)); err != nil {
		t.Fatalf("failed to bootstrap admin: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	sessions, err := auth.NewService(auth.ServiceConfig{
		Database:  db,
		Accounts:  accounts,
		Issuer:    issuer,
		Validator: validator,
		Changes:   realtime.NewDispatcher[auth.SessionChange](4),
	})
	if err != nil {
		t.Fatalf("failed to construct session service: %v", err)
	}

	store, err := submissions.NewStore(submissions.StoreConfig{
		Database:   db,
		IDProvider: submissions.NewUUIDProvider(),
		Feed:       realtime.NewDispatcher[submissions.Submission](16),
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	fs := afero.NewMemMapFs()
	objects, err := objectstore.New(objectstore.Config{Filesystem: fs, PublicBaseURL: testPublicBaseURL})
	if err != nil {
		t.Fatalf("failed to construct object store: %v", err)
	}
	thumbnails, err := media.NewThumbnailer(media.ThumbnailerConfig{Source: objects})
	if err != nil {
		t.Fatalf("failed to construct thumbnailer: %v", err)
	}
	intakeService, err := intake.NewService(intake.Config{Objects: objects, Records: store})
	if err != nil {
		t.Fatalf("failed to construct intake: %v", err)
	}
	editor, err := mutation.NewEditor(mutation.Config{Store: store})
	if err != nil {
		t.Fatalf("failed to construct editor: %v", err)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:         sessions,
		Submissions:      store,
		Intake:           intakeService,
		Editor:           editor,
		Objects:          objects,
		Thumbnails:       thumbnails,
		Logger:           zap.New(core),
		AllowedOrigins:   allowedOrigins,
		DebounceInterval: 10 * time.Millisecond,
		HeartbeatPeriod:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testHarness{
		handler:  handler,
		store:    store,
		sessions: sessions,
		objects:  objects,
		fs:       fs,
		logs:     logs,
	}
}

func (h *testHarness) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *testHarness) signIn(t *testing.T) *http.Cookie {
	t.Helper()
	form := url.Values{"email": {testAdminEmail}, "password": {testAdminPassword}}
	request := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := h.serve(request)
	if recorder.Code != http.StatusSeeOther {
		t.Fatalf("expected sign in redirect, got %d: %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName && cookie.Value != "" {
			return &http.Cookie{Name: cookie.Name, Value: cookie.Value}
		}
	}
	t.Fatalf("expected session cookie to be set")
	return nil
}

func (h *testHarness) seed(t *testing.T, name, handle string) submissions.Submission {
	t.Helper()
	row, err := h.store.Insert(context.Background(), submissions.NewSubmission{
		Name:              name,
		SocialMediaHandle: handle,
		ImageURLs:         []string{testPublicBaseURL + "/" + strings.ToLower(handle) + ".png"},
	})
	if err != nil {
		t.Fatalf("failed to seed submission: %v", err)
	}
	return row
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	buffer := &bytes.Buffer{}
	if err := png.Encode(buffer, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buffer.Bytes()
}
