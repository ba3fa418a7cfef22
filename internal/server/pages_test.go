package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
)

func multipartSubmission(t *testing.T, name, handle string, images map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("name", name); err != nil {
		t.Fatalf("failed to write name: %v", err)
	}
	if err := writer.WriteField("handle", handle); err != nil {
		t.Fatalf("failed to write handle: %v", err)
	}
	for fileName, content := range images {
		part, err := writer.CreateFormFile("images", fileName)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSubmitFormShowsPublicNavigation(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.serve(httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, `<a href="/">Submit</a>`) {
		t.Fatalf("expected submit link in navigation")
	}
	if strings.Contains(body, "Admin Dashboard") || strings.Contains(body, "Logout") {
		t.Fatalf("expected admin navigation to be hidden without a session")
	}
	if !strings.Contains(body, "Admin login") {
		t.Fatalf("expected admin login link")
	}
}

func TestSubmitStoresImagesAndRecord(t *testing.T) {
	harness := newTestHarness(t)
	image := encodePNG(t, 40, 20)
	body, contentType := multipartSubmission(t, "Ada", "@ada_codes", map[string][]byte{"portrait.png": image})

	request := httptest.NewRequest(http.MethodPost, "/", body)
	request.Header.Set("Content-Type", contentType)
	recorder := harness.serve(request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "Submission successful!") {
		t.Fatalf("expected success notice, got %s", recorder.Body.String())
	}

	rows, err := harness.store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one stored submission, got %d", len(rows))
	}
	row := rows[0]
	if row.Name != "Ada" || row.SocialMediaHandle != "ada_codes" {
		t.Fatalf("unexpected row %+v", row)
	}
	if len(row.ImageURLs) != 1 || !strings.HasPrefix(row.ImageURLs[0], testPublicBaseURL+"/") {
		t.Fatalf("unexpected image urls %v", row.ImageURLs)
	}

	key, ok := harness.objects.KeyFromURL(row.ImageURLs[0])
	if !ok {
		t.Fatalf("expected image url to map back to a key")
	}
	mediaRecorder := harness.serve(httptest.NewRequest(http.MethodGet, "/media/"+url.PathEscape(key), http.NoBody))
	if mediaRecorder.Code != http.StatusOK {
		t.Fatalf("unexpected media status %d", mediaRecorder.Code)
	}
	if !bytes.Equal(mediaRecorder.Body.Bytes(), image) {
		t.Fatalf("expected stored bytes to round trip")
	}
}

func TestSubmitWithoutImagesKeepsEnteredValues(t *testing.T) {
	harness := newTestHarness(t)
	body, contentType := multipartSubmission(t, "Ada", "ada_codes", nil)

	request := httptest.NewRequest(http.MethodPost, "/", body)
	request.Header.Set("Content-Type", contentType)
	recorder := harness.serve(request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	page := recorder.Body.String()
	if !strings.Contains(page, "Please select at least one image") {
		t.Fatalf("expected validation notice, got %s", page)
	}
	if !strings.Contains(page, `value="Ada"`) || !strings.Contains(page, `value="ada_codes"`) {
		t.Fatalf("expected entered values to be kept")
	}
	rows, err := harness.store.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected nothing stored, got %d rows", len(rows))
	}
}

func TestAdminPagesRedirectWithoutSession(t *testing.T) {
	harness := newTestHarness(t)

	for _, path := range []string{"/admin", "/admin/submissions/abc/edit"} {
		recorder := harness.serve(httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if recorder.Code != http.StatusFound {
			t.Fatalf("%s: expected redirect, got %d", path, recorder.Code)
		}
		if location := recorder.Header().Get("Location"); location != "/login" {
			t.Fatalf("%s: unexpected redirect target %q", path, location)
		}
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	harness := newTestHarness(t)
	form := url.Values{"email": {testAdminEmail}, "password": {"wrong"}}
	request := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recorder := harness.serve(request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Invalid email or password.") {
		t.Fatalf("expected invalid credentials notice")
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName && cookie.Value != "" {
			t.Fatalf("expected no session cookie")
		}
	}
}

func TestDashboardFiltersByField(t *testing.T) {
	harness := newTestHarness(t)
	harness.seed(t, "Ada Lovelace", "countess")
	harness.seed(t, "Grace Hopper", "ada_fan")
	cookie := harness.signIn(t)

	request := httptest.NewRequest(http.MethodGet, "/admin?field=name&q=ADA", http.NoBody)
	request.AddCookie(cookie)
	recorder := harness.serve(request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	page := recorder.Body.String()
	if !strings.Contains(page, "Ada Lovelace") {
		t.Fatalf("expected matching submission")
	}
	if strings.Contains(page, "Grace Hopper") {
		t.Fatalf("expected handle-only match to be filtered out")
	}
	if !strings.Contains(page, "Admin Dashboard") || !strings.Contains(page, "Logout") {
		t.Fatalf("expected admin navigation with a session")
	}
	if !strings.Contains(page, `data-live="/admin/live"`) {
		t.Fatalf("expected live endpoint on the grid")
	}
}

func TestEditAndDeleteThroughForms(t *testing.T) {
	harness := newTestHarness(t)
	row := harness.seed(t, "Ada", "ada_codes")
	cookie := harness.signIn(t)

	form := url.Values{"name": {"Ada L."}, "handle": {"@ada"}}
	editRequest := httptest.NewRequest(http.MethodPost, "/admin/submissions/"+row.ID+"/edit", strings.NewReader(form.Encode()))
	editRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	editRequest.AddCookie(cookie)
	editRecorder := harness.serve(editRequest)
	if editRecorder.Code != http.StatusSeeOther {
		t.Fatalf("unexpected edit status %d: %s", editRecorder.Code, editRecorder.Body.String())
	}
	if location := editRecorder.Header().Get("Location"); location != "/admin?notice=updated" {
		t.Fatalf("unexpected edit redirect %q", location)
	}
	updated, err := harness.store.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Name != "Ada L." || updated.SocialMediaHandle != "ada" {
		t.Fatalf("unexpected update %+v", updated)
	}

	blank := url.Values{"name": {"  "}, "handle": {"ada"}}
	invalidRequest := httptest.NewRequest(http.MethodPost, "/admin/submissions/"+row.ID+"/edit", strings.NewReader(blank.Encode()))
	invalidRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	invalidRequest.AddCookie(cookie)
	invalidRecorder := harness.serve(invalidRequest)
	if invalidRecorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected invalid edit status %d", invalidRecorder.Code)
	}
	if !strings.Contains(invalidRecorder.Body.String(), "Name is required.") {
		t.Fatalf("expected validation notice")
	}

	deleteRequest := httptest.NewRequest(http.MethodPost, "/admin/submissions/"+row.ID+"/delete", http.NoBody)
	deleteRequest.AddCookie(cookie)
	deleteRecorder := harness.serve(deleteRequest)
	if location := deleteRecorder.Header().Get("Location"); location != "/admin?notice=deleted" {
		t.Fatalf("unexpected delete redirect %q", location)
	}
	if _, err := harness.store.Get(context.Background(), row.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("expected submission to be gone, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	harness := newTestHarness(t)
	cookie := harness.signIn(t)

	logout := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
	logout.AddCookie(cookie)
	recorder := harness.serve(logout)
	if recorder.Code != http.StatusSeeOther || recorder.Header().Get("Location") != "/" {
		t.Fatalf("unexpected logout response %d %q", recorder.Code, recorder.Header().Get("Location"))
	}

	request := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
	request.AddCookie(cookie)
	if afterLogout := harness.serve(request); afterLogout.Code != http.StatusFound {
		t.Fatalf("expected revoked cookie to be rejected, got %d", afterLogout.Code)
	}
}
