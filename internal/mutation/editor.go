package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"go.uber.org/zap"
)

const (
	// UpdateFailedMessage is shown when an edit cannot be stored.
	UpdateFailedMessage = "Failed to update submission."
	// DeleteFailedMessage is shown when a delete cannot be stored.
	DeleteFailedMessage = "Failed to delete submission."
	// UpdatedMessage confirms a stored edit.
	UpdatedMessage = "Submission updated."
	// DeletedMessage confirms a stored delete.
	DeletedMessage = "Submission deleted."
)

var (
	// ErrDeleteInProgress indicates a delete of the same submission has not finished yet.
	ErrDeleteInProgress = errors.New("mutation: delete already in progress")
	// ErrMissingID indicates a mutation without a submission id.
	ErrMissingID = errors.New("mutation: submission id is required")

	errMissingStore = errors.New("mutation: store required")
)

// Store writes submission changes.
type Store interface {
	Update(ctx context.Context, id string, patch submissions.Patch) error
	Delete(ctx context.Context, id string) error
}

// Reconciler mirrors stored changes into a live view.
type Reconciler interface {
	ApplyEdit(ctx context.Context, id string, patch submissions.Patch) error
	ApplyDelete(ctx context.Context, id string) error
}

// Draft is an edit in progress.
type Draft struct {
	ID     string
	Name   string
	Handle string
}

// BeginEdit returns a draft pre-populated from s.
func BeginEdit(s submissions.Submission) Draft {
	return Draft{ID: s.ID, Name: s.Name, Handle: s.SocialMediaHandle}
}

// Config describes the dependencies of an Editor.
type Config struct {
	Store      Store
	Reconciler Reconciler
	Logger     *zap.Logger
}

// Editor applies admin edits and deletes to the store and reconciles an optional live view.
type Editor struct {
	store      Store
	reconciler Reconciler
	logger     *zap.Logger
	deletes    *inflight
}

type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewEditor constructs an Editor.
func NewEditor(cfg Config) (*Editor, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{
		store:      cfg.Store,
		reconciler: cfg.Reconciler,
		logger:     logger,
		deletes:    &inflight{ids: make(map[string]struct{})},
	}, nil
}

// WithReconciler returns an Editor that reconciles into r and shares the in-flight delete set.
func (e *Editor) WithReconciler(r Reconciler) *Editor {
	clone := *e
	clone.reconciler = r
	return &clone
}

// Save validates the draft and stores its name and handle.
func (e *Editor) Save(ctx context.Context, draft Draft) (submissions.Patch, error) {
	id := strings.TrimSpace(draft.ID)
	if id == "" {
		return submissions.Patch{}, ErrMissingID
	}
	patch, err := submissions.NewPatch(draft.Name, draft.Handle)
	if err != nil {
		return submissions.Patch{}, err
	}
	if err := e.store.Update(ctx, id, patch); err != nil {
		e.logger.Error("submission update failed",
			zap.String("operation", "mutation.save"),
			zap.String("submission_id", id),
			zap.Error(err),
		)
		return submissions.Patch{}, err
	}
	if e.reconciler != nil {
		if err := e.reconciler.ApplyEdit(ctx, id, patch); err != nil {
			e.logger.Debug("edit not reconciled", zap.String("submission_id", id), zap.Error(err))
		}
	}
	return patch, nil
}

// Delete removes the submission with id. A second call for the same id while the first is still
// running returns ErrDeleteInProgress without touching the store.
func (e *Editor) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingID
	}
	if !e.deletes.acquire(id) {
		return ErrDeleteInProgress
	}
	defer e.deletes.release(id)

	if err := e.store.Delete(ctx, id); err != nil {
		e.logger.Error("submission delete failed",
			zap.String("operation", "mutation.delete"),
			zap.String("submission_id", id),
			zap.Error(err),
		)
		return err
	}
	if e.reconciler != nil {
		if err := e.reconciler.ApplyDelete(ctx, id); err != nil {
			e.logger.Debug("delete not reconciled", zap.String("submission_id", id), zap.Error(err))
		}
	}
	return nil
}

// Deleting reports whether a delete of id is in flight.
func (e *Editor) Deleting(id string) bool {
	e.deletes.mu.Lock()
	defer e.deletes.mu.Unlock()
	_, ok := e.deletes.ids[id]
	return ok
}

// SaveMessage returns the notice for the outcome of Save.
func SaveMessage(err error) string {
	switch {
	case err == nil:
		return UpdatedMessage
	case errors.Is(err, submissions.ErrMissingName):
		return "Name is required."
	case errors.Is(err, submissions.ErrMissingHandle):
		return "Social media handle is required."
	case errors.Is(err, submissions.ErrTextTooLong):
		return "Name and handle must be at most 320 characters."
	default:
		return UpdateFailedMessage
	}
}

// DeleteMessage returns the notice for the outcome of Delete.
func DeleteMessage(err error) string {
	switch {
	case err == nil:
		return DeletedMessage
	case errors.Is(err, ErrDeleteInProgress):
		return "Delete already in progress."
	default:
		return DeleteFailedMessage
	}
}

func (f *inflight) acquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) release(id string) {
	f.mu.Lock()
	delete(f.ids, id)
	f.mu.Unlock()
}
