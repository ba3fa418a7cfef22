package submissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/realtime"
	"github.com/Helli-o-s/Social-Media-Submission/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InsertTopic is the realtime topic carrying newly inserted submissions.
const InsertTopic = "user_submissions:insert"

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingID         = errors.New("submission id is required")
	errMissingImages     = errors.New("at least one image url is required")
	// ErrNotFound indicates no submission matched the identifier.
	ErrNotFound = errors.New("submissions: not found")
	noOpLogger  = zap.NewNop()
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew = "submissions.store.new"
	opList     = "submissions.list"
	opGet      = "submissions.get"
	opInsert   = "submissions.insert"
	opUpdate   = "submissions.update"
	opDelete   = "submissions.delete"

	reasonMissingDatabase = "missing_database"
	reasonMissingID       = "missing_id"
	reasonQueryFailed     = "query_failed"
	reasonNotFound        = "not_found"
	reasonInvalidInput    = "invalid_input"
	reasonIDFailed        = "id_generation_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"

	queryByID        = "id = ?"
	orderNewestFirst = "created_at DESC"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of the record store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Feed       *realtime.Dispatcher[Submission]
}

// Store is the record store for the user_submissions table. Inserts are published on the feed.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	feed       *realtime.Dispatcher[Submission]
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	feed := cfg.Feed
	if feed == nil {
		feed = realtime.NewDispatcher[Submission](0)
	}
	return &Store{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		feed:       feed,
	}, nil
}

// List returns every submission, newest first.
func (s *Store) List(ctx context.Context) ([]Submission, error) {
	if s.db == nil {
		return nil, newServiceError(opList, reasonMissingDatabase, errMissingDatabase)
	}
	ctx, span := telemetry.Tracer().Start(ctx, opList)
	defer span.End()

	var rows []Submission
	if err := s.db.WithContext(ctx).Order(orderNewestFirst).Find(&rows).Error; err != nil {
		span.RecordError(err)
		s.logError(opList, reasonQueryFailed, err)
		return nil, newServiceError(opList, reasonQueryFailed, err)
	}
	span.SetAttributes(attribute.Int("submissions.count", len(rows)))
	return rows, nil
}

// Get returns the submission with the given identifier.
func (s *Store) Get(ctx context.Context, id string) (Submission, error) {
	if s.db == nil {
		return Submission{}, newServiceError(opGet, reasonMissingDatabase, errMissingDatabase)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Submission{}, newServiceError(opGet, reasonMissingID, errMissingID)
	}
	var row Submission
	err := s.db.WithContext(ctx).Where(queryByID, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Submission{}, newServiceError(opGet, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("submission_id", id))
		return Submission{}, newServiceError(opGet, reasonQueryFailed, err)
	}
	return row, nil
}

// Insert stores a new submission and publishes it to insert subscribers.
func (s *Store) Insert(ctx context.Context, input NewSubmission) (Submission, error) {
	if s.db == nil {
		return Submission{}, newServiceError(opInsert, reasonMissingDatabase, errMissingDatabase)
	}
	ctx, span := telemetry.Tracer().Start(ctx, opInsert)
	defer span.End()

	if len(input.ImageURLs) == 0 {
		return Submission{}, newServiceError(opInsert, reasonInvalidInput, errMissingImages)
	}
	patch := Patch{Name: strings.TrimSpace(input.Name), SocialMediaHandle: NormalizeHandle(input.SocialMediaHandle)}
	if err := patch.validate(); err != nil {
		return Submission{}, newServiceError(opInsert, reasonInvalidInput, err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opInsert, reasonIDFailed, err)
		return Submission{}, newServiceError(opInsert, reasonIDFailed, err)
	}

	row := Submission{
		ID:                id,
		Name:              patch.Name,
		SocialMediaHandle: patch.SocialMediaHandle,
		ImageURLs:         append([]string(nil), input.ImageURLs...),
		CreatedAt:         s.clock().UTC(),
	}
	if owner := strings.TrimSpace(input.UserID); owner != "" {
		row.UserID = &owner
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		span.RecordError(err)
		s.logError(opInsert, reasonInsertFailed, err, zap.String("submission_id", id))
		return Submission{}, newServiceError(opInsert, reasonInsertFailed, err)
	}
	span.SetAttributes(attribute.String("submission.id", id), attribute.Int("submission.images", len(row.ImageURLs)))

	s.feed.Publish(InsertTopic, row)
	s.logger.Debug("submission published",
		zap.String("submission_id", id),
		zap.Int("subscribers", s.feed.SubscriberCount(InsertTopic)))
	return row, nil
}

// Update writes the name and handle of a submission keyed by id.
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	if s.db == nil {
		return newServiceError(opUpdate, reasonMissingDatabase, errMissingDatabase)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return newServiceError(opUpdate, reasonMissingID, errMissingID)
	}
	if err := patch.validate(); err != nil {
		return newServiceError(opUpdate, reasonInvalidInput, err)
	}
	ctx, span := telemetry.Tracer().Start(ctx, opUpdate)
	defer span.End()

	result := s.db.WithContext(ctx).
		Model(&Submission{}).
		Where(queryByID, id).
		Updates(map[string]interface{}{
			"name":                patch.Name,
			"social_media_handle": patch.SocialMediaHandle,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		s.logError(opUpdate, reasonUpdateFailed, result.Error, zap.String("submission_id", id))
		return newServiceError(opUpdate, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdate, reasonNotFound, ErrNotFound)
	}
	return nil
}

// Delete removes a submission keyed by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return newServiceError(opDelete, reasonMissingDatabase, errMissingDatabase)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return newServiceError(opDelete, reasonMissingID, errMissingID)
	}
	ctx, span := telemetry.Tracer().Start(ctx, opDelete)
	defer span.End()

	result := s.db.WithContext(ctx).Where(queryByID, id).Delete(&Submission{})
	if result.Error != nil {
		span.RecordError(result.Error)
		s.logError(opDelete, reasonDeleteFailed, result.Error, zap.String("submission_id", id))
		return newServiceError(opDelete, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, reasonNotFound, ErrNotFound)
	}
	return nil
}

// SubscribeToInserts streams submissions inserted after the call until ctx is done or the
// returned cleanup runs.
func (s *Store) SubscribeToInserts(ctx context.Context) (<-chan Submission, func()) {
	return s.feed.Subscribe(ctx, InsertTopic)
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("submissions store error", attrs...)
}
