package session

import (
	"context"
	"errors"
	"sync"

	"github.com/Helli-o-s/Social-Media-Submission/internal/auth"
	"go.uber.org/zap"
)

// Source resolves sessions and streams their changes.
type Source interface {
	CurrentSession(ctx context.Context, token string) (auth.Session, error)
	OnSessionChange(ctx context.Context, sessionID string, fn func(*auth.Identity)) func()
}

// State is the observable session state.
type State struct {
	User    *auth.Identity
	Loading bool
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.User != nil
}

// Provider resolves the session behind one token and keeps the user current as the session changes.
type Provider struct {
	source Source
	token  string
	logger *zap.Logger

	mu          sync.RWMutex
	state       State
	sessionID   string
	started     bool
	closed      bool
	cancel      context.CancelFunc
	unsubscribe func()

	ready   chan struct{}
	changed chan struct{}
}

// NewProvider constructs a provider for token. The provider reports loading until Start resolves it.
func NewProvider(source Source, token string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		source:  source,
		token:   token,
		logger:  logger,
		state:   State{Loading: true},
		ready:   make(chan struct{}),
		changed: make(chan struct{}, 1),
	}
}

// Start fetches the current session in the background. Calling Start twice has no effect.
func (p *Provider) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.resolve(ctx)
}

func (p *Provider) resolve(ctx context.Context) {
	var (
		current auth.Session
		err     error
	)
	if p.source == nil || p.token == "" {
		err = auth.ErrMissingSessionToken
	} else {
		current, err = p.source.CurrentSession(ctx, p.token)
	}
	if err != nil && !errors.Is(err, auth.ErrMissingSessionToken) {
		p.logger.Warn("session fetch failed", zap.String("operation", "session.resolve"), zap.Error(err))
	}

	p.mu.Lock()
	if err != nil {
		p.state = State{}
	} else {
		identity := current.Identity
		p.state = State{User: &identity}
		p.sessionID = current.ID
	}
	subscribe := err == nil && !p.closed
	p.mu.Unlock()

	if subscribe {
		unsubscribe := p.source.OnSessionChange(ctx, current.ID, p.apply)
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			unsubscribe()
		} else {
			p.unsubscribe = unsubscribe
			p.mu.Unlock()
		}
	}

	close(p.ready)
	p.notify()
}

func (p *Provider) apply(user *auth.Identity) {
	p.mu.Lock()
	if user == nil {
		p.state = State{}
	} else {
		copied := *user
		p.state = State{User: &copied}
	}
	p.mu.Unlock()
	p.notify()
}

func (p *Provider) notify() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// State returns a snapshot of the session state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	state := p.state
	if state.User != nil {
		copied := *state.User
		state.User = &copied
	}
	return state
}

// SessionID returns the resolved session identifier, or "" when there is none.
func (p *Provider) SessionID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionID
}

// Ready is closed once the initial fetch finishes.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Changed signals after every state change. Signals coalesce.
func (p *Provider) Changed() <-chan struct{} {
	return p.changed
}

// Wait blocks until the initial fetch finishes or ctx is done, then returns the state.
func (p *Provider) Wait(ctx context.Context) State {
	select {
	case <-p.ready:
	case <-ctx.Done():
	}
	return p.State()
}

// Close releases the change subscription.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}
