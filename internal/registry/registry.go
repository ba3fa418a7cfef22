package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"go.uber.org/zap"
)

const inboxSize = 64

var (
	// ErrStopped indicates the registry is no longer running.
	ErrStopped = errors.New("registry: stopped")

	errMissingStore = errors.New("registry: submission loader required")
	errMissingFeed  = errors.New("registry: insert feed required")
)

// Loader fetches every submission, newest first.
type Loader interface {
	List(ctx context.Context) ([]submissions.Submission, error)
}

// InsertFeed streams newly inserted submissions.
type InsertFeed interface {
	SubscribeToInserts(ctx context.Context) (<-chan submissions.Submission, func())
}

// View is the dashboard state rendered to the admin.
type View struct {
	Loading     bool
	LoadError   string
	Items       []submissions.Submission
	Page        int
	PageCount   int
	Total       int
	Query       string
	Field       submissions.Field
	ActiveImage string
}

// Config describes the dependencies of a Registry.
type Config struct {
	Store            Loader
	Feed             InsertFeed
	PageSize         int
	DebounceInterval time.Duration
	AfterFunc        AfterFunc
	Logger           *zap.Logger
}

// Registry owns one dashboard's canonical submission list and its filtered, paginated view.
// A single goroutine started by Run applies every command in arrival order.
type Registry struct {
	store    Loader
	feed     InsertFeed
	pageSize int
	logger   *zap.Logger
	debounce *debouncer

	inbox   chan func(*state)
	updates chan View
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	latest View
}

type state struct {
	all          []submissions.Submission
	seen         map[string]struct{}
	filtered     []submissions.Submission
	query        string
	pendingQuery string
	field        submissions.Field
	page         int
	loading      bool
	loadError    string
	activeImage  string
}

// New constructs a Registry. Commands issued before Run are queued.
func New(cfg Config) (*Registry, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Feed == nil {
		return nil, errMissingFeed
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	interval := cfg.DebounceInterval
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	afterFunc := cfg.AfterFunc
	if afterFunc == nil {
		afterFunc = timeAfterFunc
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:    cfg.Store,
		feed:     cfg.Feed,
		pageSize: pageSize,
		logger:   logger,
		debounce: &debouncer{interval: interval, afterFunc: afterFunc},
		inbox:    make(chan func(*state), inboxSize),
		updates:  make(chan View, 1),
		done:     make(chan struct{}),
		latest:   View{Loading: true, Page: 1, Field: submissions.FieldHandle},
	}, nil
}

// Run subscribes to inserts, loads the list and applies commands until ctx is done. The insert
// subscription is released when Run returns.
func (r *Registry) Run(ctx context.Context) error {
	started := false
	r.once.Do(func() { started = true })
	if !started {
		return errors.New("registry: already running")
	}
	defer close(r.done)
	defer r.debounce.stop()

	inserts, unsubscribe := r.feed.SubscribeToInserts(ctx)
	defer unsubscribe()

	st := &state{
		seen:    make(map[string]struct{}),
		field:   submissions.FieldHandle,
		page:    1,
		loading: true,
	}
	r.publish(st)

	rows, err := r.store.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Error("registry load failed", zap.String("operation", "registry.load"), zap.Error(err))
		st.loadError = LoadErrorMessage
		rows = nil
	}
	st.loading = false
	for _, row := range rows {
		if _, dup := st.seen[row.ID]; dup {
			continue
		}
		st.seen[row.ID] = struct{}{}
		st.all = append(st.all, row)
	}
	st.recompute(r.pageSize)
	r.publish(st)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-r.inbox:
			cmd(st)
			r.publish(st)
		case row, ok := <-inserts:
			if !ok {
				inserts = nil
				continue
			}
			if st.prepend(row) {
				st.recompute(r.pageSize)
				r.publish(st)
			}
		}
	}
}

// Done is closed after Run returns.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// View returns the most recently published view.
func (r *Registry) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Updates delivers the latest view after every state change. Intermediate views are skipped
// when the reader falls behind.
func (r *Registry) Updates() <-chan View {
	return r.updates
}

// Snapshot returns the view after every previously issued command has been applied.
func (r *Registry) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, func(st *state) {
		reply <- st.view(r.pageSize)
	}); err != nil {
		return View{}, err
	}
	select {
	case view := <-reply:
		return view, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-r.done:
		return View{}, ErrStopped
	}
}

// SetQuery records the search text. It is applied once the debounce interval passes without
// another SetQuery.
func (r *Registry) SetQuery(ctx context.Context, query string) error {
	return r.send(ctx, func(st *state) {
		st.pendingQuery = query
		r.debounce.trigger(func() {
			_ = r.send(context.Background(), func(st *state) {
				if st.pendingQuery == st.query {
					return
				}
				st.query = st.pendingQuery
				st.page = 1
				st.recompute(r.pageSize)
			})
		})
	})
}

// SetField switches the searched column and returns to page 1.
func (r *Registry) SetField(ctx context.Context, field submissions.Field) error {
	if _, err := submissions.ParseField(string(field)); err != nil {
		return err
	}
	return r.send(ctx, func(st *state) {
		if st.field == field {
			return
		}
		st.field = field
		st.page = 1
		st.recompute(r.pageSize)
	})
}

// SetPage moves to page, clamped to the available pages.
func (r *Registry) SetPage(ctx context.Context, page int) error {
	return r.send(ctx, func(st *state) {
		st.page = ClampPage(page, PageCount(len(st.filtered), r.pageSize))
	})
}

// OpenImage shows url in the full-size viewer.
func (r *Registry) OpenImage(ctx context.Context, url string) error {
	return r.send(ctx, func(st *state) {
		st.activeImage = url
	})
}

// CloseImage hides the full-size viewer.
func (r *Registry) CloseImage(ctx context.Context) error {
	return r.send(ctx, func(st *state) {
		st.activeImage = ""
	})
}

// ApplyEdit merges patch into the submission with id, keeping its position. The active filter is
// re-run so an edited row enters or leaves the view; the page is clamped, not reset.
func (r *Registry) ApplyEdit(ctx context.Context, id string, patch submissions.Patch) error {
	return r.send(ctx, func(st *state) {
		for index := range st.all {
			if st.all[index].ID == id {
				st.all[index] = patch.Apply(st.all[index])
			}
		}
		st.recompute(r.pageSize)
	})
}

// ApplyDelete removes the submission with id from the list and the view.
func (r *Registry) ApplyDelete(ctx context.Context, id string) error {
	return r.send(ctx, func(st *state) {
		st.all = without(st.all, id)
		st.filtered = without(st.filtered, id)
		st.page = ClampPage(st.page, PageCount(len(st.filtered), r.pageSize))
	})
}

func (r *Registry) send(ctx context.Context, cmd func(*state)) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) publish(st *state) {
	view := st.view(r.pageSize)

	r.mu.Lock()
	r.latest = view
	r.mu.Unlock()

	select {
	case r.updates <- view:
		return
	default:
	}
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- view:
	default:
	}
}

func (st *state) prepend(row submissions.Submission) bool {
	if _, dup := st.seen[row.ID]; dup {
		return false
	}
	st.seen[row.ID] = struct{}{}
	st.all = append([]submissions.Submission{row}, st.all...)
	return true
}

func (st *state) recompute(pageSize int) {
	st.filtered = Filter(st.all, st.field, st.query)
	st.page = ClampPage(st.page, PageCount(len(st.filtered), pageSize))
}

func (st *state) view(pageSize int) View {
	return View{
		Loading:     st.loading,
		LoadError:   st.loadError,
		Items:       Paginate(st.filtered, st.page, pageSize),
		Page:        st.page,
		PageCount:   PageCount(len(st.filtered), pageSize),
		Total:       len(st.filtered),
		Query:       st.query,
		Field:       st.field,
		ActiveImage: st.activeImage,
	}
}

func without(items []submissions.Submission, id string) []submissions.Submission {
	kept := items[:0:0]
	for _, item := range items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	return kept
}
