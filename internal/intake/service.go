package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/objectstore"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/Helli-o-s/Social-Media-Submission/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxFileSize is the largest accepted image in bytes.
const MaxFileSize int64 = 10 << 20

const (
	opSubmit = "intake.submit"

	// GenericFailureMessage is shown for failures that carry no user-facing detail.
	GenericFailureMessage = "Something went wrong. Please try again."
	// SuccessMessage is shown after a stored submission.
	SuccessMessage = "Submission successful!"
)

var (
	// ErrNoImages indicates the submission carried no files.
	ErrNoImages = errors.New("intake: no images selected")
	// ErrMissingName indicates an empty name.
	ErrMissingName = errors.New("intake: name is required")
	// ErrMissingHandle indicates an empty social media handle.
	ErrMissingHandle = errors.New("intake: social media handle is required")

	errMissingObjects = errors.New("intake: object store required")
	errMissingRecords = errors.New("intake: record store required")
)

// FileTooLargeError names the file that exceeded MaxFileSize.
type FileTooLargeError struct {
	FileName string
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("intake: file %s exceeds the size limit", e.FileName)
}

// UserMessage returns the notice shown to the submitter for err.
func UserMessage(err error) string {
	var tooLarge *FileTooLargeError
	switch {
	case err == nil:
		return SuccessMessage
	case errors.Is(err, ErrNoImages):
		return "Please select at least one image"
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("File %s exceeds the size limit of 10MB.", tooLarge.FileName)
	case errors.Is(err, ErrMissingName):
		return "Please enter your name"
	case errors.Is(err, ErrMissingHandle):
		return "Please enter your social media handle"
	case errors.Is(err, submissions.ErrTextTooLong):
		return "Name and handle must be at most 320 characters."
	default:
		return GenericFailureMessage
	}
}

// File is one image attached to a submission.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Request carries the submitted form.
type Request struct {
	Name   string
	Handle string
	Files  []File
	UserID string
}

// ObjectStore stores uploaded images.
type ObjectStore interface {
	Upload(ctx context.Context, key string, content io.Reader) (objectstore.Receipt, error)
	PublicURL(key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore persists submissions.
type RecordStore interface {
	Insert(ctx context.Context, input submissions.NewSubmission) (submissions.Submission, error)
}

// Config describes the dependencies of the intake service.
type Config struct {
	Objects     ObjectStore
	Records     RecordStore
	Clock       func() time.Time
	Logger      *zap.Logger
	MaxFileSize int64
}

// Service validates submissions, uploads their images and records them.
type Service struct {
	objects     ObjectStore
	records     RecordStore
	clock       func() time.Time
	logger      *zap.Logger
	maxFileSize int64
}

// NewService constructs the intake service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Objects == nil {
		return nil, errMissingObjects
	}
	if cfg.Records == nil {
		return nil, errMissingRecords
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	return &Service{
		objects:     cfg.Objects,
		records:     cfg.Records,
		clock:       clock,
		logger:      logger,
		maxFileSize: maxFileSize,
	}, nil
}

// Submit uploads every file and inserts one submission referencing them in input order.
// Nothing is uploaded when validation fails; objects from a failed batch are removed.
func (s *Service) Submit(ctx context.Context, request Request) (submissions.Submission, error) {
	if err := s.validate(request); err != nil {
		return submissions.Submission{}, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, opSubmit)
	defer span.End()
	span.SetAttributes(attribute.Int("intake.files", len(request.Files)))

	prefix := s.clock().UnixMilli()
	keys := make([]string, len(request.Files))
	for index, file := range request.Files {
		keys[index] = fmt.Sprintf("%d-%d-%s", prefix, index, sanitizeFileName(file.Name))
	}

	urls := make([]string, len(request.Files))
	var (
		uploadedMu sync.Mutex
		uploaded   []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for index := range request.Files {
		file := request.Files[index]
		key := keys[index]
		group.Go(func() error {
			stored, err := s.upload(groupCtx, key, file)
			if stored {
				uploadedMu.Lock()
				uploaded = append(uploaded, key)
				uploadedMu.Unlock()
			}
			if err != nil {
				return fmt.Errorf("upload %s: %w", file.Name, err)
			}

			url, err := s.objects.PublicURL(key)
			if err != nil {
				return fmt.Errorf("resolve url for %s: %w", file.Name, err)
			}
			urls[index] = url
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload_failed")
		s.logError("upload_failed", err)
		s.discard(ctx, uploaded)
		return submissions.Submission{}, fmt.Errorf("%s: %w", opSubmit, err)
	}

	record, err := s.records.Insert(ctx, submissions.NewSubmission{
		Name:              request.Name,
		SocialMediaHandle: request.Handle,
		ImageURLs:         urls,
		UserID:            request.UserID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert_failed")
		s.logError("insert_failed", err)
		s.discard(ctx, uploaded)
		return submissions.Submission{}, fmt.Errorf("%s: %w", opSubmit, err)
	}
	span.SetAttributes(attribute.String("submission.id", record.ID))
	return record, nil
}

func (s *Service) validate(request Request) error {
	if len(request.Files) == 0 {
		return ErrNoImages
	}
	for _, file := range request.Files {
		if file.Size > s.maxFileSize {
			return &FileTooLargeError{FileName: file.Name}
		}
	}
	if strings.TrimSpace(request.Name) == "" {
		return ErrMissingName
	}
	if submissions.NormalizeHandle(request.Handle) == "" {
		return ErrMissingHandle
	}
	if _, err := submissions.NewPatch(request.Name, request.Handle); err != nil {
		return err
	}
	return nil
}

// upload stores one file under key. stored reports whether an object was written, so the caller
// can discard it when the content turns out to exceed the declared limit.
func (s *Service) upload(ctx context.Context, key string, file File) (stored bool, err error) {
	if file.Open == nil {
		return false, fmt.Errorf("intake: file %s has no content", file.Name)
	}
	content, err := file.Open()
	if err != nil {
		return false, err
	}
	defer content.Close()
	receipt, err := s.objects.Upload(ctx, key, io.LimitReader(content, s.maxFileSize+1))
	if err != nil {
		return false, err
	}
	if receipt.Size > s.maxFileSize {
		return true, &FileTooLargeError{FileName: file.Name}
	}
	return true, nil
}

// discard removes objects uploaded by a failed batch. Failures are logged only.
func (s *Service) discard(ctx context.Context, keys []string) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.objects.Delete(cleanupCtx, key); err != nil {
			s.logger.Warn("orphaned upload",
				zap.String("operation", opSubmit),
				zap.String("object_key", key),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) logError(reason string, err error) {
	s.logger.Error("submission intake failed",
		zap.String("operation", opSubmit),
		zap.String("reason", reason),
		zap.Error(err),
	)
}
