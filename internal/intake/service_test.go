package intake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/objectstore"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeObjects struct {
	mu        sync.Mutex
	uploads   map[string]int
	deleted   []string
	failKey   string
	deleteErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: make(map[string]int)}
}

func (f *fakeObjects) Upload(_ context.Context, key string, content io.Reader) (objectstore.Receipt, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return objectstore.Receipt{}, err
	}
	if f.failKey != "" && strings.Contains(key, f.failKey) {
		return objectstore.Receipt{}, errors.New("bucket unavailable")
	}
	f.mu.Lock()
	f.uploads[key] = len(data)
	f.mu.Unlock()
	return objectstore.Receipt{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) PublicURL(key string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

func (f *fakeObjects) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type fakeRecords struct {
	inserts []submissions.NewSubmission
	err     error
}

func (f *fakeRecords) Insert(_ context.Context, input submissions.NewSubmission) (submissions.Submission, error) {
	f.inserts = append(f.inserts, input)
	if f.err != nil {
		return submissions.Submission{}, f.err
	}
	return submissions.Submission{
		ID:                "sub-1",
		Name:              input.Name,
		SocialMediaHandle: submissions.NormalizeHandle(input.SocialMediaHandle),
		ImageURLs:         input.ImageURLs,
	}, nil
}

func bytesFile(name string, size int) File {
	return File{
		Name: name,
		Size: int64(size),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(make([]byte, size))), nil
		},
	}
}

func newTestService(t *testing.T, objects ObjectStore, records RecordStore, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(Config{
		Objects: objects,
		Records: records,
		Clock: func() time.Time {
			return time.UnixMilli(1700000000123)
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to construct intake service: %v", err)
	}
	return service
}

func TestSubmitStoresSingleImageSubmission(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service := newTestService(t, objects, records, nil)

	record, err := service.Submit(context.Background(), Request{
		Name:   "Ada",
		Handle: "ada_codes",
		Files:  []File{bytesFile("portrait.png", 2<<20)},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if objects.uploadCount() != 1 {
		t.Fatalf("expected one upload, got %d", objects.uploadCount())
	}
	if len(records.inserts) != 1 {
		t.Fatalf("expected one insert, got %d", len(records.inserts))
	}
	insert := records.inserts[0]
	if insert.Name != "Ada" || insert.SocialMediaHandle != "ada_codes" {
		t.Fatalf("unexpected insert %+v", insert)
	}
	expectedURL := "https://cdn.example.com/1700000000123-0-portrait.png"
	if len(insert.ImageURLs) != 1 || insert.ImageURLs[0] != expectedURL {
		t.Fatalf("unexpected image urls %v", insert.ImageURLs)
	}
	if record.ID != "sub-1" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestSubmitKeepsInputOrder(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service := newTestService(t, objects, records, nil)

	_, err := service.Submit(context.Background(), Request{
		Name:   "Grace",
		Handle: "@grace",
		Files: []File{
			bytesFile("a.png", 10),
			bytesFile("b.png", 20),
			bytesFile("c.png", 30),
		},
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	urls := records.inserts[0].ImageURLs
	for index, suffix := range []string{"0-a.png", "1-b.png", "2-c.png"} {
		if !strings.HasSuffix(urls[index], suffix) {
			t.Fatalf("expected url %d to end with %s, got %s", index, suffix, urls[index])
		}
	}
}

func TestSubmitRejectsEmptyFileSet(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service := newTestService(t, objects, records, nil)

	_, err := service.Submit(context.Background(), Request{Name: "Ada", Handle: "ada"})
	if !errors.Is(err, ErrNoImages) {
		t.Fatalf("expected no images error, got %v", err)
	}
	if UserMessage(err) != "Please select at least one image" {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if objects.uploadCount() != 0 || len(records.inserts) != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestSubmitRejectsOversizedBatchWithoutUploading(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service := newTestService(t, objects, records, nil)

	_, err := service.Submit(context.Background(), Request{
		Name:   "Ada",
		Handle: "ada",
		Files:  []File{bytesFile("small.png", 1024), bytesFile("huge.png", 11<<20)},
	})
	var tooLarge *FileTooLargeError
	if !errors.As(err, &tooLarge) || tooLarge.FileName != "huge.png" {
		t.Fatalf("expected file too large error naming huge.png, got %v", err)
	}
	if UserMessage(err) != "File huge.png exceeds the size limit of 10MB." {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if objects.uploadCount() != 0 || len(records.inserts) != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestSubmitRejectsBlankNameAndHandle(t *testing.T) {
	service := newTestService(t, newFakeObjects(), &fakeRecords{}, nil)
	files := []File{bytesFile("a.png", 1)}
	if _, err := service.Submit(context.Background(), Request{Name: " ", Handle: "ada", Files: files}); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected missing name, got %v", err)
	}
	if _, err := service.Submit(context.Background(), Request{Name: "Ada", Handle: "@", Files: files}); !errors.Is(err, ErrMissingHandle) {
		t.Fatalf("expected missing handle, got %v", err)
	}
}

func TestSubmitRejectsOverlongTextBeforeUploading(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service := newTestService(t, objects, records, nil)
	files := []File{bytesFile("a.png", 1)}
	long := strings.Repeat("x", 321)

	for _, request := range []Request{
		{Name: long, Handle: "ada", Files: files},
		{Name: "Ada", Handle: long, Files: files},
	} {
		_, err := service.Submit(context.Background(), request)
		if !errors.Is(err, submissions.ErrTextTooLong) {
			t.Fatalf("expected text too long, got %v", err)
		}
		if UserMessage(err) != "Name and handle must be at most 320 characters." {
			t.Fatalf("unexpected message %q", UserMessage(err))
		}
	}
	if objects.uploadCount() != 0 || len(records.inserts) != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestSubmitRejectsContentBeyondDeclaredSize(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{}
	service, err := NewService(Config{
		Objects:     objects,
		Records:     records,
		MaxFileSize: 64,
	})
	if err != nil {
		t.Fatalf("failed to construct intake service: %v", err)
	}
	understated := File{
		Name: "liar.png",
		Size: 8,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(make([]byte, 200))), nil
		},
	}

	_, err = service.Submit(context.Background(), Request{
		Name:   "Ada",
		Handle: "ada",
		Files:  []File{understated},
	})
	var tooLarge *FileTooLargeError
	if !errors.As(err, &tooLarge) || tooLarge.FileName != "liar.png" {
		t.Fatalf("expected file too large error naming liar.png, got %v", err)
	}
	if len(records.inserts) != 0 {
		t.Fatalf("expected no insert after oversized content")
	}
	if len(objects.deleted) != 1 || !strings.HasSuffix(objects.deleted[0], "liar.png") {
		t.Fatalf("expected truncated object to be discarded, got %v", objects.deleted)
	}
}

func TestSubmitUploadFailureSkipsInsertAndCleansUp(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	objects := newFakeObjects()
	objects.failKey = "bad.png"
	records := &fakeRecords{}
	service := newTestService(t, objects, records, zap.New(core))

	_, err := service.Submit(context.Background(), Request{
		Name:   "Ada",
		Handle: "ada",
		Files:  []File{bytesFile("good.png", 10), bytesFile("bad.png", 10)},
	})
	if err == nil {
		t.Fatalf("expected upload failure")
	}
	if UserMessage(err) != GenericFailureMessage {
		t.Fatalf("unexpected message %q", UserMessage(err))
	}
	if len(records.inserts) != 0 {
		t.Fatalf("expected no insert after upload failure")
	}
	objects.mu.Lock()
	defer objects.mu.Unlock()
	for key := range objects.uploads {
		found := false
		for _, deleted := range objects.deleted {
			if deleted == key {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected uploaded object %s to be removed", key)
		}
	}
	if logs.FilterField(zap.String("reason", "upload_failed")).Len() != 1 {
		t.Fatalf("expected upload failure to be logged")
	}
}

func TestSubmitInsertFailureRemovesUploads(t *testing.T) {
	objects := newFakeObjects()
	records := &fakeRecords{err: errors.New("insert rejected")}
	service := newTestService(t, objects, records, nil)

	_, err := service.Submit(context.Background(), Request{
		Name:   "Ada",
		Handle: "ada",
		Files:  []File{bytesFile("a.png", 10), bytesFile("b.png", 10)},
	})
	if err == nil {
		t.Fatalf("expected insert failure")
	}
	objects.mu.Lock()
	defer objects.mu.Unlock()
	if len(objects.deleted) != 2 {
		t.Fatalf("expected both uploads removed, got %v", objects.deleted)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"portrait.png":          "portrait.png",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\photo.JPG`: "photo.JPG",
		"my photo (1).png":      "my_photo__1_.png",
		"photo#1.png":           "photo_1.png",
		"":                      "image",
		"...":                   "image",
	}
	for input, expected := range cases {
		if got := sanitizeFileName(input); got != expected {
			t.Fatalf("sanitizeFileName(%q) = %q, want %q", input, got, expected)
		}
	}
}
