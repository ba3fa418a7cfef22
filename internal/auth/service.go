package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Helli-o-s/Social-Media-Submission/internal/realtime"
	"github.com/Helli-o-s/Social-Media-Submission/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidCredentials indicates a rejected email and password pair.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrSessionRevoked indicates the session was signed out.
	ErrSessionRevoked = errors.New("auth: session revoked")

	errMissingDatabase  = errors.New("auth: database connection required")
	errMissingAccounts  = errors.New("auth: account authenticator required")
	errMissingIssuer    = errors.New("auth: token issuer required")
	errMissingValidator = errors.New("auth: session validator required")
)

// Authenticator verifies administrator credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (users.Account, error)
}

// ServiceConfig describes the dependencies of the session service.
type ServiceConfig struct {
	Database  *gorm.DB
	Accounts  Authenticator
	Issuer    *TokenIssuer
	Validator *SessionValidator
	Changes   *realtime.Dispatcher[SessionChange]
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service signs administrators in and out and tracks session changes.
type Service struct {
	db        *gorm.DB
	accounts  Authenticator
	issuer    *TokenIssuer
	validator *SessionValidator
	changes   *realtime.Dispatcher[SessionChange]
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the session service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Accounts == nil {
		return nil, errMissingAccounts
	}
	if cfg.Issuer == nil {
		return nil, errMissingIssuer
	}
	if cfg.Validator == nil {
		return nil, errMissingValidator
	}
	changes := cfg.Changes
	if changes == nil {
		changes = realtime.NewDispatcher[SessionChange](0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		accounts:  cfg.Accounts,
		issuer:    cfg.Issuer,
		validator: cfg.Validator,
		changes:   changes,
		clock:     clock,
		logger:    logger,
	}, nil
}

// CookieName returns the session cookie name.
func (s *Service) CookieName() string {
	return s.validator.CookieName()
}

// SessionTTL reports the lifetime of issued sessions.
func (s *Service) SessionTTL() time.Duration {
	return s.issuer.TTL()
}

// SignIn verifies credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, Session, error) {
	account, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return "", Session{}, ErrInvalidCredentials
		}
		s.logger.Error("sign in failed", zap.String("operation", "auth.sign_in"), zap.Error(err))
		return "", Session{}, fmt.Errorf("auth: sign in: %w", err)
	}
	identity := Identity{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
	token, session, err := s.issuer.Issue(identity)
	if err != nil {
		s.logger.Error("issue session failed", zap.String("operation", "auth.sign_in"), zap.Error(err))
		return "", Session{}, fmt.Errorf("auth: issue session: %w", err)
	}
	s.changes.Publish(session.ID, SessionChange{SessionID: session.ID, User: &identity})
	return token, session, nil
}

// CurrentSession resolves the session carried by token.
func (s *Service) CurrentSession(ctx context.Context, token string) (Session, error) {
	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		return Session{}, err
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&RevokedSession{}).
		Where("session_id = ?", claims.ID).
		Count(&count).Error; err != nil {
		return Session{}, fmt.Errorf("auth: revocation lookup: %w", err)
	}
	if count > 0 {
		return Session{}, ErrSessionRevoked
	}
	session := Session{ID: claims.ID, Identity: claims.Identity()}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return session, nil
}

// SignOut revokes the session carried by token and notifies its listeners.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		return err
	}
	revoked := RevokedSession{
		SessionID: claims.ID,
		UserID:    claims.UserID,
		RevokedAt: s.clock().UTC(),
	}
	if claims.ExpiresAt != nil {
		revoked.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&revoked).Error; err != nil {
		s.logger.Error("sign out failed", zap.String("operation", "auth.sign_out"), zap.Error(err))
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	s.changes.Publish(claims.ID, SessionChange{SessionID: claims.ID})
	return nil
}

// OnSessionChange invokes fn with the session's user on every change until ctx is done or the
// returned unsubscribe runs.
func (s *Service) OnSessionChange(ctx context.Context, sessionID string, fn func(*Identity)) func() {
	stream, cleanup := s.changes.Subscribe(ctx, sessionID)
	go func() {
		for change := range stream {
			fn(change.User)
		}
	}()
	return cleanup
}

// PruneRevoked removes revocation rows whose tokens have expired anyway.
func (s *Service) PruneRevoked(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.clock().UTC()).
		Delete(&RevokedSession{})
	return result.RowsAffected, result.Error
}
