package server

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestThumbnailServesBoundedJPEG(t *testing.T) {
	harness := newTestHarness(t)
	if _, err := harness.objects.Upload(context.Background(), "wide.png", bytes.NewReader(encodePNG(t, 600, 300))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	recorder := harness.serve(httptest.NewRequest(http.MethodGet, "/thumbnails/wide.png", http.NoBody))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	config, err := jpeg.DecodeConfig(recorder.Body)
	if err != nil {
		t.Fatalf("failed to decode thumbnail: %v", err)
	}
	if config.Width > 300 || config.Height > 300 {
		t.Fatalf("thumbnail exceeds bounds: %dx%d", config.Width, config.Height)
	}
}

func TestThumbnailRejectsNonImage(t *testing.T) {
	harness := newTestHarness(t)
	if _, err := harness.objects.Upload(context.Background(), "notes.txt", strings.NewReader("plain text")); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	recorder := harness.serve(httptest.NewRequest(http.MethodGet, "/thumbnails/notes.txt", http.NoBody))

	if recorder.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestMediaMissingObjectIsNotFound(t *testing.T) {
	harness := newTestHarness(t)

	for _, path := range []string{"/media/missing.png", "/thumbnails/missing.png", "/media/..%2Fsecret"} {
		recorder := harness.serve(httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if recorder.Code != http.StatusNotFound {
			t.Fatalf("%s: expected not found, got %d", path, recorder.Code)
		}
	}
}
