package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidAccount indicates incomplete bootstrap account data.
	ErrInvalidAccount = errors.New("users: invalid account")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service authenticates administrators against stored bcrypt hashes.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// HashPassword returns a bcrypt hash suitable for the admin.password_hash setting.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ErrInvalidAccount
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// EnsureAccount creates the account for email or refreshes its display name and hash.
func (s *Service) EnsureAccount(ctx context.Context, email, displayName, passwordHash string) (Account, error) {
	normalized := normalizeEmail(email)
	passwordHash = strings.TrimSpace(passwordHash)
	if normalized == "" || passwordHash == "" {
		return Account{}, ErrInvalidAccount
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return Account{}, fmt.Errorf("%w: password hash is not bcrypt", ErrInvalidAccount)
	}

	var account Account
	err := s.db.WithContext(ctx).Where("user_email = ?", normalized).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, idErr := uuid.NewV7()
		if idErr != nil {
			return Account{}, idErr
		}
		account = Account{
			UserID:       id.String(),
			Email:        normalized,
			DisplayName:  strings.TrimSpace(displayName),
			PasswordHash: passwordHash,
		}
		if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
			return Account{}, err
		}
		return account, nil
	}
	if err != nil {
		return Account{}, err
	}

	updates := map[string]interface{}{}
	if passwordHash != account.PasswordHash {
		updates["password_hash"] = passwordHash
		account.PasswordHash = passwordHash
	}
	if display := strings.TrimSpace(displayName); display != "" && display != account.DisplayName {
		updates["user_display_name"] = display
		account.DisplayName = display
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&Account{}).Where("user_id = ?", account.UserID).Updates(updates).Error; err != nil {
			return Account{}, err
		}
	}
	return account, nil
}

// Authenticate verifies the email and password pair and records the sign-in time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).Where("user_email = ?", normalized).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	account.LastSeenAt = s.now().UTC()
	_ = s.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", account.UserID).
		Update("last_seen_at", account.LastSeenAt).
		Error
	return account, nil
}
